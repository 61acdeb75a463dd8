package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/blue-kestrel/shipsentry/internal/config"
	"github.com/blue-kestrel/shipsentry/internal/lifecycle"
	"github.com/blue-kestrel/shipsentry/internal/models"
	"github.com/blue-kestrel/shipsentry/internal/storage"
	"github.com/blue-kestrel/shipsentry/internal/suppression"
)

func setupServer(t *testing.T) (*httptest.Server, storage.Storage, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "shipsentry-test-*")
	if err != nil {
		t.Fatalf("create temp dir: %v", err)
	}

	store := storage.NewSQLiteStorage(filepath.Join(tmpDir, "test.db"))
	if err := store.Open(); err != nil {
		os.RemoveAll(tmpDir)
		t.Fatalf("open database: %v", err)
	}
	if err := store.Migrate(); err != nil {
		store.Close()
		os.RemoveAll(tmpDir)
		t.Fatalf("migrate database: %v", err)
	}

	// No configurations: suppression runs in degraded mode, which is
	// fine for handler-level tests.
	suppressor := suppression.NewEngine(store.Alerts(), emptyProvider{}, nil, nil)
	lm := lifecycle.NewManager(store.Alerts(), store.Escalations())
	handler := NewHandler(store, suppressor, lm, 5*time.Second)

	r := chi.NewRouter()
	r.Route("/api/v1/alerts", func(r chi.Router) {
		r.Post("/", handler.Ingest)
		r.Get("/", handler.List)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", handler.GetByID)
			r.Get("/escalations", handler.ListEscalations)
			r.Post("/acknowledge", handler.Acknowledge)
			r.Post("/start", handler.Start)
			r.Post("/resolve", handler.Resolve)
			r.Post("/dismiss", handler.Dismiss)
			r.Post("/close", handler.Close)
		})
	})

	server := httptest.NewServer(r)
	cleanup := func() {
		server.Close()
		store.Close()
		os.RemoveAll(tmpDir)
	}
	return server, store, cleanup
}

type emptyProvider struct{}

func (emptyProvider) ForType(ctx context.Context, alertType string) (*models.AlertConfiguration, error) {
	return nil, config.ErrConfigurationMissing
}

func postJSON(t *testing.T, client *http.Client, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	resp, err := client.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func decodeAlert(t *testing.T, resp *http.Response) *models.Alert {
	t.Helper()
	defer resp.Body.Close()
	var envelope struct {
		Data *models.Alert `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return envelope.Data
}

func validIngest() IngestRequest {
	return IngestRequest{
		Type:             "shipment_overdue",
		Severity:         "high",
		Title:            "Shipment overdue",
		SourceEntityType: "shipment",
		SourceEntityID:   "ship-1",
		RiskScore:        70,
	}
}

func ingestAlert(t *testing.T, server *httptest.Server) *models.Alert {
	t.Helper()
	resp := postJSON(t, server.Client(), server.URL+"/api/v1/alerts", validIngest())
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("ingest status = %d, want 201", resp.StatusCode)
	}
	var envelope struct {
		Data IngestResponse `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return envelope.Data.Alert
}

func TestIngestEndpoint(t *testing.T) {
	server, _, cleanup := setupServer(t)
	defer cleanup()

	alert := ingestAlert(t, server)
	if alert.ID == "" {
		t.Error("no alert id in response")
	}
	if alert.Status != models.AlertStatusNew {
		t.Errorf("status = %s, want new", alert.Status)
	}
	if alert.Severity != models.SeverityHigh {
		t.Errorf("severity = %s, want high", alert.Severity)
	}
}

func TestIngestValidation(t *testing.T) {
	server, _, cleanup := setupServer(t)
	defer cleanup()

	tests := []struct {
		name   string
		mutate func(*IngestRequest)
	}{
		{"missing type", func(r *IngestRequest) { r.Type = "" }},
		{"missing title", func(r *IngestRequest) { r.Title = "" }},
		{"oversized title", func(r *IngestRequest) { r.Title = strings.Repeat("x", 501) }},
		{"missing source", func(r *IngestRequest) { r.SourceEntityID = "" }},
		{"unknown severity", func(r *IngestRequest) { r.Severity = "catastrophic" }},
		{"risk score out of range", func(r *IngestRequest) { r.RiskScore = 101 }},
		{"negative impact score", func(r *IngestRequest) { r.ImpactScore = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validIngest()
			tt.mutate(&req)
			resp := postJSON(t, server.Client(), server.URL+"/api/v1/alerts", req)
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
		})
	}
}

func TestIngestRejectsMalformedBody(t *testing.T) {
	server, _, cleanup := setupServer(t)
	defer cleanup()

	resp, err := server.Client().Post(server.URL+"/api/v1/alerts", "application/json", strings.NewReader("{broken"))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestGetAlertEndpoint(t *testing.T) {
	server, _, cleanup := setupServer(t)
	defer cleanup()

	alert := ingestAlert(t, server)

	resp, err := server.Client().Get(server.URL + "/api/v1/alerts/" + alert.ID)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	got := decodeAlert(t, resp)
	if got.ID != alert.ID || got.Title != "Shipment overdue" {
		t.Errorf("alert = %+v", got)
	}

	resp, err = server.Client().Get(server.URL + "/api/v1/alerts/" + uuid.New().String())
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestListAlertsEndpoint(t *testing.T) {
	server, _, cleanup := setupServer(t)
	defer cleanup()

	ingestAlert(t, server)

	tests := []struct {
		query      string
		wantStatus int
		wantCount  int
	}{
		{"", http.StatusOK, 1},
		{"?status=new", http.StatusOK, 1},
		{"?status=resolved", http.StatusOK, 0},
		{"?status=bogus", http.StatusBadRequest, 0},
		{"?severity=high", http.StatusOK, 1},
		{"?severity=low", http.StatusOK, 0},
	}

	for _, tt := range tests {
		resp, err := server.Client().Get(server.URL + "/api/v1/alerts" + tt.query)
		if err != nil {
			t.Fatalf("GET %q: %v", tt.query, err)
		}
		if resp.StatusCode != tt.wantStatus {
			t.Errorf("GET %q status = %d, want %d", tt.query, resp.StatusCode, tt.wantStatus)
			resp.Body.Close()
			continue
		}
		if tt.wantStatus == http.StatusOK {
			var envelope struct {
				Data []*models.Alert `json:"data"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if len(envelope.Data) != tt.wantCount {
				t.Errorf("GET %q returned %d alerts, want %d", tt.query, len(envelope.Data), tt.wantCount)
			}
		}
		resp.Body.Close()
	}
}

func TestLifecycleEndpoints(t *testing.T) {
	server, _, cleanup := setupServer(t)
	defer cleanup()
	client := server.Client()

	alert := ingestAlert(t, server)
	base := server.URL + "/api/v1/alerts/" + alert.ID

	resp := postJSON(t, client, base+"/acknowledge", map[string]string{"actor": "ops", "note": "on it"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("acknowledge status = %d", resp.StatusCode)
	}
	got := decodeAlert(t, resp)
	if got.Status != models.AlertStatusAcknowledged {
		t.Errorf("status = %s, want acknowledged", got.Status)
	}

	resp = postJSON(t, client, base+"/start", map[string]string{})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("start status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = postJSON(t, client, base+"/resolve", map[string]string{"actor": "ops", "note": "carrier delivered"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("resolve status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = postJSON(t, client, base+"/close", map[string]string{})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("close status = %d", resp.StatusCode)
	}
	got = decodeAlert(t, resp)
	if got.Status != models.AlertStatusClosed {
		t.Errorf("status = %s, want closed", got.Status)
	}
}

func TestIllegalTransitionConflicts(t *testing.T) {
	server, _, cleanup := setupServer(t)
	defer cleanup()

	alert := ingestAlert(t, server)
	base := server.URL + "/api/v1/alerts/" + alert.ID

	// Closing a NEW alert is not a legal edge.
	resp := postJSON(t, server.Client(), base+"/close", map[string]string{})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want 409", resp.StatusCode)
	}
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if envelope.Error.Code != "CONFLICT" {
		t.Errorf("error code = %q, want CONFLICT", envelope.Error.Code)
	}
}

func TestActionValidation(t *testing.T) {
	server, _, cleanup := setupServer(t)
	defer cleanup()
	client := server.Client()

	alert := ingestAlert(t, server)
	base := server.URL + "/api/v1/alerts/" + alert.ID

	// Actor is required.
	resp := postJSON(t, client, base+"/acknowledge", map[string]string{"note": "x"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("acknowledge without actor status = %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()

	// Resolving needs a note.
	resp = postJSON(t, client, base+"/resolve", map[string]string{"actor": "ops"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("resolve without note status = %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()

	// Unknown alert.
	resp = postJSON(t, client, server.URL+"/api/v1/alerts/"+uuid.New().String()+"/acknowledge",
		map[string]string{"actor": "ops"})
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("acknowledge missing alert status = %d, want 404", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestListEscalationsEndpoint(t *testing.T) {
	server, store, cleanup := setupServer(t)
	defer cleanup()

	alert := ingestAlert(t, server)
	esc := &models.AlertEscalation{
		ID:          uuid.New().String(),
		AlertID:     alert.ID,
		Level:       1,
		EscalatedTo: "team-lead",
		EscalatedBy: "scheduler",
		Status:      models.EscalationStatusPending,
		EscalatedAt: time.Now().UTC(),
	}
	if err := store.Escalations().Create(context.Background(), esc); err != nil {
		t.Fatalf("seed escalation: %v", err)
	}

	resp, err := server.Client().Get(server.URL + "/api/v1/alerts/" + alert.ID + "/escalations")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var envelope struct {
		Data []*models.AlertEscalation `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(envelope.Data) != 1 || envelope.Data[0].EscalatedTo != "team-lead" {
		t.Errorf("escalations = %+v", envelope.Data)
	}
}
