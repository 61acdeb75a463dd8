// Package storage provides database storage interfaces and implementations.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/blue-kestrel/shipsentry/internal/models"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrDuplicateEscalation is returned when an escalation insert hits
// the (alert_id, level) unique key. Concurrent sweeps racing on the
// same alert swallow this error: the level already fired.
var ErrDuplicateEscalation = errors.New("escalation already recorded for this level")

// Storage is the main interface for database operations.
type Storage interface {
	// Open initializes the database connection.
	Open() error
	// Close closes the database connection.
	Close() error
	// Migrate runs database migrations.
	Migrate() error

	// Repository accessors
	Alerts() AlertRepository
	Escalations() EscalationRepository
	Configurations() ConfigurationRepository
	Notifications() NotificationRepository
	Deliveries() DeliveryRepository
	Interactions() InteractionRepository
}

// AlertRepository defines operations for alert records. Status
// mutations are conditional writes: they report false when the alert's
// current state no longer satisfies the precondition, so racing
// callers observe the conflict instead of clobbering each other.
type AlertRepository interface {
	Create(ctx context.Context, alert *models.Alert) error
	GetByID(ctx context.Context, id string) (*models.Alert, error)
	List(ctx context.Context) ([]*models.Alert, error)
	ListByStatus(ctx context.Context, statuses ...models.AlertStatus) ([]*models.Alert, error)
	ListBySeverity(ctx context.Context, severity models.Severity) ([]*models.Alert, error)

	// FindOpenBySource returns the newest non-terminal alert with the
	// given suppression key detected at or after since, or ErrNotFound.
	FindOpenBySource(ctx context.Context, entityType, entityID, alertType string, since time.Time) (*models.Alert, error)

	// IncrementOccurrence bumps the occurrence counter of an open alert.
	// DetectedAt and the escalation level are untouched.
	IncrementOccurrence(ctx context.Context, id string) error

	MarkAcknowledged(ctx context.Context, id, actor, note string, at time.Time) (bool, error)
	MarkInProgress(ctx context.Context, id string, at time.Time) (bool, error)
	MarkResolved(ctx context.Context, id, actor, resolution, resolutionType string, at time.Time) (bool, error)
	MarkDismissed(ctx context.Context, id, actor string, at time.Time) (bool, error)
	MarkClosed(ctx context.Context, id string, at time.Time) (bool, error)

	// AdvanceEscalationLevel sets the escalation level to level if the
	// alert is still unsettled and its current level is lower.
	AdvanceEscalationLevel(ctx context.Context, id string, level int, at time.Time) (bool, error)
}

// EscalationRepository defines operations for escalation audit records.
type EscalationRepository interface {
	// Create inserts an escalation record. Returns
	// ErrDuplicateEscalation if (alert_id, level) already exists.
	Create(ctx context.Context, esc *models.AlertEscalation) error
	ListByAlert(ctx context.Context, alertID string) ([]*models.AlertEscalation, error)
	UpdateStatus(ctx context.Context, id string, status models.EscalationStatus) error
	// SetPendingForAlert moves all pending escalations of an alert to
	// the given status, used when the alert is acknowledged, resolved,
	// or dismissed.
	SetPendingForAlert(ctx context.Context, alertID string, to models.EscalationStatus) (int64, error)
}

// ConfigurationRepository defines operations for alert configurations.
type ConfigurationRepository interface {
	Upsert(ctx context.Context, cfg *models.AlertConfiguration) error
	GetByType(ctx context.Context, alertType string) (*models.AlertConfiguration, error)
	List(ctx context.Context) ([]*models.AlertConfiguration, error)
	Delete(ctx context.Context, alertType string) error
}

// NotificationRepository defines operations for notifications.
type NotificationRepository interface {
	Create(ctx context.Context, n *models.Notification) error
	GetByID(ctx context.Context, id string) (*models.Notification, error)
	ListByAlert(ctx context.Context, alertID string) ([]*models.Notification, error)

	// SetStatus moves the aggregate status unless it is already
	// terminal. Reports whether a row changed.
	SetStatus(ctx context.Context, id string, status models.NotificationStatus, at time.Time) (bool, error)
}

// DeliveryRepository defines operations for delivery units. The unique
// key (notification_id, channel, recipient) keeps fan-out idempotent.
type DeliveryRepository interface {
	Create(ctx context.Context, d *models.NotificationDelivery) error
	GetByID(ctx context.Context, id string) (*models.NotificationDelivery, error)
	ListByNotification(ctx context.Context, notificationID string) ([]*models.NotificationDelivery, error)

	MarkAttempt(ctx context.Context, id string, at time.Time) error
	SetSent(ctx context.Context, id, externalMessageID string, at time.Time) (bool, error)
	SetRetrying(ctx context.Context, id string, retryCount int, reason string, at time.Time) (bool, error)
	SetFailed(ctx context.Context, id, reason string, at time.Time) (bool, error)
	SetDelivered(ctx context.Context, id string, at time.Time) (bool, error)
	SetRead(ctx context.Context, id string, at time.Time) (bool, error)

	// CountsByStatus returns how many delivery units of a notification
	// are in each status, for aggregate recomputation.
	CountsByStatus(ctx context.Context, notificationID string) (map[models.DeliveryStatus]int, error)
}

// InteractionRepository defines operations for the append-only
// interaction log.
type InteractionRepository interface {
	Create(ctx context.Context, in *models.NotificationInteraction) error
	ListByNotification(ctx context.Context, notificationID string) ([]*models.NotificationInteraction, error)
}
