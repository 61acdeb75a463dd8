// Package health serves the liveness and readiness probe endpoints.
package health

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"
)

// readyTimeout bounds how long a readiness probe may spend across all checks.
const readyTimeout = 5 * time.Second

// Checker reports whether a named dependency is usable.
type Checker interface {
	Name() string
	Check(ctx context.Context) error
}

// Handler answers probe requests against its registered checkers.
type Handler struct {
	mu       sync.RWMutex
	checkers map[string]Checker
}

// NewHandler creates a probe handler with no checkers registered.
func NewHandler() *Handler {
	return &Handler{checkers: make(map[string]Checker)}
}

// RegisterChecker adds a dependency check. Registering the same name
// twice replaces the earlier checker.
func (h *Handler) RegisterChecker(c Checker) {
	h.mu.Lock()
	h.checkers[c.Name()] = c
	h.mu.Unlock()
}

type probeStatus struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func writeProbe(w http.ResponseWriter, code int, p probeStatus) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(p)
}

// Health reports that the process is up. It never consults checkers.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeProbe(w, http.StatusOK, probeStatus{Status: "ok"})
}

// Live is the liveness probe. Like Health it only proves the process
// is serving requests.
func (h *Handler) Live(w http.ResponseWriter, r *http.Request) {
	writeProbe(w, http.StatusOK, probeStatus{Status: "live"})
}

// Ready is the readiness probe. It runs every registered checker and
// returns 503 if any dependency is unavailable.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	h.mu.RLock()
	names := make([]string, 0, len(h.checkers))
	for name := range h.checkers {
		names = append(names, name)
	}
	sort.Strings(names)
	checkers := make([]Checker, 0, len(names))
	for _, name := range names {
		checkers = append(checkers, h.checkers[name])
	}
	h.mu.RUnlock()

	p := probeStatus{Status: "ready", Checks: make(map[string]string, len(checkers))}
	code := http.StatusOK
	for _, c := range checkers {
		if err := c.Check(ctx); err != nil {
			p.Checks[c.Name()] = err.Error()
			p.Status = "not_ready"
			code = http.StatusServiceUnavailable
			continue
		}
		p.Checks[c.Name()] = "ok"
	}

	writeProbe(w, code, p)
}

// SQLiteChecker pings the alert database.
type SQLiteChecker struct {
	db *sql.DB
}

// NewSQLiteChecker wraps an open database handle as a readiness check.
func NewSQLiteChecker(db *sql.DB) *SQLiteChecker {
	return &SQLiteChecker{db: db}
}

func (c *SQLiteChecker) Name() string { return "sqlite" }

func (c *SQLiteChecker) Check(ctx context.Context) error {
	if c.db == nil {
		return fmt.Errorf("database not open")
	}
	return c.db.PingContext(ctx)
}
