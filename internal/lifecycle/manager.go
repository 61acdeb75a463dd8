// Package lifecycle owns the alert state machine and the transitions
// other components must respect.
package lifecycle

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/blue-kestrel/shipsentry/internal/models"
	"github.com/blue-kestrel/shipsentry/internal/storage"
)

// InvalidTransitionError reports an illegal state-machine edge. It is
// returned to the caller and never retried.
type InvalidTransitionError struct {
	AlertID   string
	Current   models.AlertStatus
	Requested models.AlertStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("alert %s: invalid transition from %s to %s", e.AlertID, e.Current, e.Requested)
}

// legalEdges is the transition table. Only these edges may fire.
var legalEdges = map[models.AlertStatus][]models.AlertStatus{
	models.AlertStatusNew: {
		models.AlertStatusAcknowledged,
		models.AlertStatusResolved,
		models.AlertStatusDismissed,
	},
	models.AlertStatusAcknowledged: {
		models.AlertStatusInProgress,
		models.AlertStatusResolved,
		models.AlertStatusDismissed,
	},
	models.AlertStatusInProgress: {
		models.AlertStatusResolved,
		models.AlertStatusDismissed,
	},
	models.AlertStatusResolved: {
		models.AlertStatusClosed,
	},
}

// CanTransition reports whether the edge from→to is in the transition table.
func CanTransition(from, to models.AlertStatus) bool {
	for _, next := range legalEdges[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Manager owns acknowledge/resolve/dismiss/close transitions. All
// mutations are single-row compare-and-set writes against the current
// status, so concurrent callers cannot produce an illegal state: the
// loser of a race observes a changed precondition and reports it.
type Manager struct {
	alerts      storage.AlertRepository
	escalations storage.EscalationRepository

	// now is injected for deterministic tests.
	now func() time.Time
}

// NewManager creates an alert lifecycle manager.
func NewManager(alerts storage.AlertRepository, escalations storage.EscalationRepository) *Manager {
	return &Manager{
		alerts:      alerts,
		escalations: escalations,
		now:         time.Now,
	}
}

// SetNowFunc overrides the clock (useful for testing).
func (m *Manager) SetNowFunc(now func() time.Time) {
	m.now = now
}

// Get returns an alert by id.
func (m *Manager) Get(ctx context.Context, id string) (*models.Alert, error) {
	return m.alerts.GetByID(ctx, id)
}

// Acknowledge moves an alert from new to acknowledged. A second call
// on an already-acknowledged alert returns the existing record
// unchanged, tolerating duplicate client retries.
func (m *Manager) Acknowledge(ctx context.Context, id, actor, note string) (*models.Alert, error) {
	alert, err := m.alerts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if alert.Status == models.AlertStatusAcknowledged {
		return alert, nil
	}

	updated, err := m.alerts.MarkAcknowledged(ctx, id, actor, note, m.now())
	if err != nil {
		return nil, err
	}
	if !updated {
		// Lost a race; re-read to report the state we actually saw.
		current, err := m.alerts.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if current.Status == models.AlertStatusAcknowledged {
			return current, nil
		}
		return nil, &InvalidTransitionError{AlertID: id, Current: current.Status, Requested: models.AlertStatusAcknowledged}
	}

	// Acknowledgment stops the escalation chain; mark the trail.
	if _, err := m.escalations.SetPendingForAlert(ctx, id, models.EscalationStatusAcknowledged); err != nil {
		log.Printf("update escalation trail for alert %s: %v", id, err)
	}

	return m.alerts.GetByID(ctx, id)
}

// Resolve moves an alert to resolved from new, acknowledged, or
// in_progress. The resolution note must be non-empty.
func (m *Manager) Resolve(ctx context.Context, id, actor, note, resolutionType string) (*models.Alert, error) {
	if note == "" {
		return nil, fmt.Errorf("resolution note is required")
	}

	updated, err := m.alerts.MarkResolved(ctx, id, actor, note, resolutionType, m.now())
	if err != nil {
		return nil, err
	}
	if !updated {
		current, err := m.alerts.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		return nil, &InvalidTransitionError{AlertID: id, Current: current.Status, Requested: models.AlertStatusResolved}
	}

	if _, err := m.escalations.SetPendingForAlert(ctx, id, models.EscalationStatusResolved); err != nil {
		log.Printf("update escalation trail for alert %s: %v", id, err)
	}

	return m.alerts.GetByID(ctx, id)
}

// Dismiss moves an alert to dismissed from any non-terminal state.
// No resolution is required.
func (m *Manager) Dismiss(ctx context.Context, id, actor string) (*models.Alert, error) {
	updated, err := m.alerts.MarkDismissed(ctx, id, actor, m.now())
	if err != nil {
		return nil, err
	}
	if !updated {
		current, err := m.alerts.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		return nil, &InvalidTransitionError{AlertID: id, Current: current.Status, Requested: models.AlertStatusDismissed}
	}

	if _, err := m.escalations.SetPendingForAlert(ctx, id, models.EscalationStatusCancelled); err != nil {
		log.Printf("update escalation trail for alert %s: %v", id, err)
	}

	return m.alerts.GetByID(ctx, id)
}

// Start moves an acknowledged alert to in_progress.
func (m *Manager) Start(ctx context.Context, id string) (*models.Alert, error) {
	updated, err := m.alerts.MarkInProgress(ctx, id, m.now())
	if err != nil {
		return nil, err
	}
	if !updated {
		current, err := m.alerts.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		return nil, &InvalidTransitionError{AlertID: id, Current: current.Status, Requested: models.AlertStatusInProgress}
	}
	return m.alerts.GetByID(ctx, id)
}

// Close moves a resolved alert to closed.
func (m *Manager) Close(ctx context.Context, id string) (*models.Alert, error) {
	updated, err := m.alerts.MarkClosed(ctx, id, m.now())
	if err != nil {
		return nil, err
	}
	if !updated {
		current, err := m.alerts.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		return nil, &InvalidTransitionError{AlertID: id, Current: current.Status, Requested: models.AlertStatusClosed}
	}
	return m.alerts.GetByID(ctx, id)
}
