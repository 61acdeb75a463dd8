// Package notifications provides HTTP handlers for notification
// delivery status and recipient interactions.
package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/blue-kestrel/shipsentry/internal/dispatch"
	"github.com/blue-kestrel/shipsentry/internal/models"
	"github.com/blue-kestrel/shipsentry/internal/storage"
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

// Handler handles notification endpoints.
type Handler struct {
	storage    storage.Storage
	dispatcher *dispatch.Dispatcher
	timeout    time.Duration
}

// NewHandler creates a notification handler.
func NewHandler(store storage.Storage, dispatcher *dispatch.Dispatcher, timeout time.Duration) *Handler {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Handler{
		storage:    store,
		dispatcher: dispatcher,
		timeout:    timeout,
	}
}

// GetByID returns one notification.
func (h *Handler) GetByID(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	n, err := h.storage.Notifications().GetByID(ctx, chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			jsonError(w, http.StatusNotFound, errCodeNotFound, "Notification not found")
			return
		}
		log.Printf("get notification: %v", err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "Failed to load notification")
		return
	}
	jsonOK(w, n)
}

// ListByAlert returns the notifications linked to an alert.
func (h *Handler) ListByAlert(w http.ResponseWriter, r *http.Request) {
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

	list, err := h.storage.Notifications().ListByAlert(ctx, id)
	if err != nil {
		log.Printf("list notifications: %v", err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "Failed to list notifications")
		return
	}
	jsonOK(w, list)
}

// GetDeliveryStatus returns the aggregate delivery status of a
// notification plus its per-channel breakdown.
func (h *Handler) GetDeliveryStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	report, err := h.dispatcher.GetDeliveryStatus(ctx, chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			jsonError(w, http.StatusNotFound, errCodeNotFound, "Notification not found")
			return
		}
		log.Printf("delivery status: %v", err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "Failed to load delivery status")
		return
	}
	jsonOK(w, report)
}

// InteractionRequest records a recipient action.
type InteractionRequest struct {
	Recipient string `json:"recipient"`
	Action    string `json:"action"`
	Detail    string `json:"detail"`
}

// RecordInteraction appends a recipient action to a notification's
// interaction log.
func (h *Handler) RecordInteraction(w http.ResponseWriter, r *http.Request) {
	var req InteractionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, "Invalid request body")
		return
	}
	if req.Recipient == "" {
		jsonError(w, http.StatusBadRequest, errCodeValidationFailed, "Recipient is required")
		return
	}
	action, ok := models.ParseInteractionAction(req.Action)
	if !ok {
		jsonError(w, http.StatusBadRequest, errCodeValidationFailed, "Unknown action")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	in, err := h.dispatcher.RecordInteraction(ctx, chi.URLParam(r, "id"), req.Recipient, action, req.Detail)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			jsonError(w, http.StatusNotFound, errCodeNotFound, "Notification not found")
			return
		}
		log.Printf("record interaction: %v", err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "Failed to record interaction")
		return
	}
	jsonCreated(w, in)
}

// ListInteractions returns the interaction log of a notification.
func (h *Handler) ListInteractions(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id := chi.URLParam(r, "id")
	if _, err := h.storage.Notifications().GetByID(ctx, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			jsonError(w, http.StatusNotFound, errCodeNotFound, "Notification not found")
			return
		}
		log.Printf("get notification: %v", err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "Failed to load notification")
		return
	}

	list, err := h.storage.Interactions().ListByNotification(ctx, id)
	if err != nil {
		log.Printf("list interactions: %v", err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "Failed to list interactions")
		return
	}
	jsonOK(w, list)
}
