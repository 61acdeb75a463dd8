// Package suppression dedups newly detected conditions against open
// alerts, so a flapping source cannot spawn an unbounded chain of
// duplicate alerts and escalations.
package suppression

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/blue-kestrel/shipsentry/internal/config"
	"github.com/blue-kestrel/shipsentry/internal/metrics"
	"github.com/blue-kestrel/shipsentry/internal/models"
	"github.com/blue-kestrel/shipsentry/internal/render"
	"github.com/blue-kestrel/shipsentry/internal/storage"
)

// Notifier submits a notification for delivery. Implemented by the
// dispatcher.
type Notifier interface {
	Send(ctx context.Context, n *models.Notification) error
}

// Engine decides whether a candidate alert is admitted as a new
// record or merged into an existing open one.
type Engine struct {
	alerts   storage.AlertRepository
	configs  config.Provider
	notifier Notifier
	renderer *render.Renderer

	// now is injected for deterministic tests.
	now func() time.Time
}

// NewEngine creates a suppression engine. notifier and renderer may be
// nil, in which case admission does not emit notifications.
func NewEngine(alerts storage.AlertRepository, configs config.Provider, notifier Notifier, renderer *render.Renderer) *Engine {
	return &Engine{
		alerts:   alerts,
		configs:  configs,
		notifier: notifier,
		renderer: renderer,
		now:      time.Now,
	}
}

// SetNowFunc overrides the clock (useful for testing).
func (e *Engine) SetNowFunc(now func() time.Time) {
	e.now = now
}

// Ingest runs suppression and then admission for a candidate alert.
// It returns the resulting alert and whether the candidate was merged
// into an existing one. A merged candidate increments the existing
// alert's occurrence counter; its detection time and escalation level
// stay untouched, so the escalation clock is not reset by duplicates.
func (e *Engine) Ingest(ctx context.Context, candidate *models.Alert) (*models.Alert, bool, error) {
	if candidate.Type == "" {
		return nil, false, fmt.Errorf("alert type is required")
	}
	if candidate.SourceEntityType == "" || candidate.SourceEntityID == "" {
		return nil, false, fmt.Errorf("source entity reference is required")
	}

	cfg, err := e.configuration(ctx, candidate.Type)
	if err != nil {
		return nil, false, err
	}

	if cfg != nil && cfg.Suppression.Enabled {
		since := e.now().Add(-cfg.Suppression.Window())
		existing, err := e.alerts.FindOpenBySource(ctx,
			candidate.SourceEntityType, candidate.SourceEntityID, candidate.Type, since)
		switch {
		case err == nil:
			if err := e.alerts.IncrementOccurrence(ctx, existing.ID); err != nil {
				return nil, false, err
			}
			metrics.AlertsSuppressedTotal.WithLabelValues(candidate.Type).Inc()
			merged, err := e.alerts.GetByID(ctx, existing.ID)
			if err != nil {
				return nil, false, err
			}
			return merged, true, nil
		case errors.Is(err, storage.ErrNotFound):
			// No open duplicate; fall through to admission.
		default:
			return nil, false, err
		}
	}

	return e.admit(ctx, candidate, cfg)
}

// admit persists the candidate as a new alert in the new state and
// notifies the configured recipients.
func (e *Engine) admit(ctx context.Context, candidate *models.Alert, cfg *models.AlertConfiguration) (*models.Alert, bool, error) {
	now := e.now()
	if candidate.ID == "" {
		candidate.ID = uuid.New().String()
	}
	candidate.Status = models.AlertStatusNew
	candidate.EscalationLevel = 0
	if candidate.OccurrenceCount == 0 {
		candidate.OccurrenceCount = 1
	}
	if candidate.DetectedAt.IsZero() {
		candidate.DetectedAt = now
	}
	if candidate.Severity == "" {
		candidate.Severity = models.SeverityMedium
	}
	candidate.CreatedAt = now
	candidate.UpdatedAt = now

	if err := e.alerts.Create(ctx, candidate); err != nil {
		return nil, false, err
	}
	metrics.AlertsIngestedTotal.WithLabelValues(candidate.Type, string(candidate.Severity)).Inc()

	if err := e.notify(ctx, candidate, cfg); err != nil {
		// The alert is already persisted; a notification failure must
		// not fail admission.
		log.Printf("suppression: notify for alert %s: %v", candidate.ID, err)
	}
	return candidate, false, nil
}

// notify submits the admitted-alert notification to the configured
// recipients.
func (e *Engine) notify(ctx context.Context, alert *models.Alert, cfg *models.AlertConfiguration) error {
	if e.notifier == nil || e.renderer == nil || cfg == nil || !cfg.Enabled {
		return nil
	}
	if len(cfg.Recipients) == 0 || len(cfg.Channels) == 0 {
		return nil
	}

	subject, body, err := e.renderer.Render("alert_admitted", render.AlertVariables(alert))
	if err != nil {
		return err
	}

	n := models.NewNotification(cfg.Recipients, cfg.Channels, subject, body)
	n.ID = uuid.New().String()
	n.AlertID = alert.ID
	n.TemplateID = "alert_admitted"
	return e.notifier.Send(ctx, n)
}

func (e *Engine) configuration(ctx context.Context, alertType string) (*models.AlertConfiguration, error) {
	cfg, err := e.configs.ForType(ctx, alertType)
	if err != nil {
		if errors.Is(err, config.ErrConfigurationMissing) {
			// Degraded mode: the alert is still admitted, it just
			// cannot be suppressed, escalated, or notified.
			log.Printf("no configuration for alert type %s, admitting without suppression", alertType)
			return nil, nil
		}
		return nil, err
	}
	return cfg, nil
}
