// Package alerts provides HTTP handlers for alert ingestion and
// lifecycle actions.
package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/blue-kestrel/shipsentry/internal/lifecycle"
	"github.com/blue-kestrel/shipsentry/internal/models"
	"github.com/blue-kestrel/shipsentry/internal/storage"
	"github.com/blue-kestrel/shipsentry/internal/suppression"
)

// Response helpers
type errorResponse struct {
	Error errorBody `json:"error"`
}
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
type dataResponse struct {
	Data any `json:"data"`
}

const (
	errCodeBadRequest       = "BAD_REQUEST"
	errCodeValidationFailed = "VALIDATION_FAILED"
	errCodeNotFound         = "NOT_FOUND"
	errCodeConflict         = "CONFLICT"
	errCodeInternalError    = "INTERNAL_ERROR"
)

func jsonError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(errorResponse{Error: errorBody{Code: code, Message: message}}); err != nil {
		log.Printf("json encode error: %v", err)
	}
}

func jsonOK(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(dataResponse{Data: data}); err != nil {
		log.Printf("json encode error: %v", err)
	}
}

func jsonCreated(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(dataResponse{Data: data}); err != nil {
		log.Printf("json encode error: %v", err)
	}
}

// Handler handles alert endpoints.
type Handler struct {
	storage    storage.Storage
	suppressor *suppression.Engine
	lifecycle  *lifecycle.Manager
	timeout    time.Duration
}

// NewHandler creates an alert handler.
func NewHandler(store storage.Storage, suppressor *suppression.Engine, lm *lifecycle.Manager, timeout time.Duration) *Handler {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Handler{
		storage:    store,
		suppressor: suppressor,
		lifecycle:  lm,
		timeout:    timeout,
	}
}

// Request types
type IngestRequest struct {
	Type             string  `json:"type"`
	Severity         string  `json:"severity"`
	Category         string  `json:"category"`
	Title            string  `json:"title"`
	Description      string  `json:"description"`
	SourceSystem     string  `json:"source_system"`
	SourceEntityType string  `json:"source_entity_type"`
	SourceEntityID   string  `json:"source_entity_id"`
	RiskScore        float64 `json:"risk_score"`
	ImpactScore      float64 `json:"impact_score"`
}

type IngestResponse struct {
	Alert      *models.Alert `json:"alert"`
	Suppressed bool          `json:"suppressed"`
}

type actionRequest struct {
	Actor          string `json:"actor"`
	Note           string `json:"note"`
	ResolutionType string `json:"resolution_type"`
}

// Ingest runs suppression and admission for a candidate alert.
func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	var req IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, "Invalid request body")
		return
	}
	if err := validateIngest(&req); err != nil {
		jsonError(w, http.StatusBadRequest, errCodeValidationFailed, err.Error())
		return
	}

	candidate := &models.Alert{
		Type:             req.Type,
		Severity:         models.Severity(req.Severity),
		Category:         req.Category,
		Title:            req.Title,
		Description:      req.Description,
		SourceSystem:     req.SourceSystem,
		SourceEntityType: req.SourceEntityType,
		SourceEntityID:   req.SourceEntityID,
		RiskScore:        req.RiskScore,
		ImpactScore:      req.ImpactScore,
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	alert, suppressed, err := h.suppressor.Ingest(ctx, candidate)
	if err != nil {
		log.Printf("ingest alert: %v", err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "Failed to ingest alert")
		return
	}

	resp := &IngestResponse{Alert: alert, Suppressed: suppressed}
	if suppressed {
		jsonOK(w, resp)
		return
	}
	jsonCreated(w, resp)
}

// GetByID returns one alert.
func (h *Handler) GetByID(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	alert, err := h.storage.Alerts().GetByID(ctx, chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			jsonError(w, http.StatusNotFound, errCodeNotFound, "Alert not found")
			return
		}
		log.Printf("get alert: %v", err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "Failed to load alert")
		return
	}
	jsonOK(w, alert)
}

// List returns alerts, optionally filtered by status or severity.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var (
		alerts []*models.Alert
		err    error
	)
	switch {
	case r.URL.Query().Get("status") != "":
		status, ok := models.ParseAlertStatus(r.URL.Query().Get("status"))
		if !ok {
			jsonError(w, http.StatusBadRequest, errCodeValidationFailed, "Unknown status")
			return
		}
		alerts, err = h.storage.Alerts().ListByStatus(ctx, status)
	case r.URL.Query().Get("severity") != "":
		severity := models.ParseSeverity(r.URL.Query().Get("severity"))
		alerts, err = h.storage.Alerts().ListBySeverity(ctx, severity)
	default:
		alerts, err = h.storage.Alerts().List(ctx)
	}
	if err != nil {
		log.Printf("list alerts: %v", err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "Failed to list alerts")
		return
	}
	jsonOK(w, alerts)
}

// ListEscalations returns the escalation trail of an alert.
func (h *Handler) ListEscalations(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id := chi.URLParam(r, "id")
	if _, err := h.storage.Alerts().GetByID(ctx, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			jsonError(w, http.StatusNotFound, errCodeNotFound, "Alert not found")
			return
		}
		log.Printf("get alert: %v", err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "Failed to load alert")
		return
	}

	escalations, err := h.storage.Escalations().ListByAlert(ctx, id)
	if err != nil {
		log.Printf("list escalations: %v", err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "Failed to list escalations")
		return
	}
	jsonOK(w, escalations)
}

// Acknowledge moves an alert to acknowledged.
func (h *Handler) Acknowledge(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeAction(w, r, true)
	if !ok {
		return
	}
	h.action(w, r, func(ctx context.Context, id string) (*models.Alert, error) {
		return h.lifecycle.Acknowledge(ctx, id, req.Actor, req.Note)
	})
}

// Start moves an acknowledged alert to in progress.
func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	h.action(w, r, func(ctx context.Context, id string) (*models.Alert, error) {
		return h.lifecycle.Start(ctx, id)
	})
}

// Resolve moves an alert to resolved. A resolution note is required.
func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeAction(w, r, true)
	if !ok {
		return
	}
	if req.Note == "" {
		jsonError(w, http.StatusBadRequest, errCodeValidationFailed, "Resolution note is required")
		return
	}
	h.action(w, r, func(ctx context.Context, id string) (*models.Alert, error) {
		return h.lifecycle.Resolve(ctx, id, req.Actor, req.Note, req.ResolutionType)
	})
}

// Dismiss moves an alert to dismissed.
func (h *Handler) Dismiss(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeAction(w, r, true)
	if !ok {
		return
	}
	h.action(w, r, func(ctx context.Context, id string) (*models.Alert, error) {
		return h.lifecycle.Dismiss(ctx, id, req.Actor)
	})
}

// Close moves a resolved alert to closed.
func (h *Handler) Close(w http.ResponseWriter, r *http.Request) {
	h.action(w, r, func(ctx context.Context, id string) (*models.Alert, error) {
		return h.lifecycle.Close(ctx, id)
	})
}

// decodeAction reads an action request body. An empty body is allowed
// unless requireActor is set.
func (h *Handler) decodeAction(w http.ResponseWriter, r *http.Request, requireActor bool) (*actionRequest, bool) {
	var req actionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, "Invalid request body")
		return nil, false
	}
	if requireActor && req.Actor == "" {
		jsonError(w, http.StatusBadRequest, errCodeValidationFailed, "Actor is required")
		return nil, false
	}
	return &req, true
}

// action runs a lifecycle transition and writes the resulting alert.
func (h *Handler) action(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id string) (*models.Alert, error)) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	alert, err := fn(ctx, chi.URLParam(r, "id"))
	if err != nil {
		var invalid *lifecycle.InvalidTransitionError
		switch {
		case errors.Is(err, storage.ErrNotFound):
			jsonError(w, http.StatusNotFound, errCodeNotFound, "Alert not found")
		case errors.As(err, &invalid):
			jsonError(w, http.StatusConflict, errCodeConflict, invalid.Error())
		default:
			log.Printf("alert transition: %v", err)
			jsonError(w, http.StatusInternalServerError, errCodeInternalError, "Failed to update alert")
		}
		return
	}
	jsonOK(w, alert)
}
