package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/blue-kestrel/shipsentry/internal/models"
)

type sqliteNotificationRepo struct {
	db *sql.DB
}

const notificationColumns = `id, alert_id, recipients_json, channels_json, subject, body,
	template_id, priority, status, scheduled_for, expires_at,
	retry_count, max_retries, created_at, updated_at`

func (r *sqliteNotificationRepo) Create(ctx context.Context, n *models.Notification) error {
	recipientsJSON, err := json.Marshal(n.Recipients)
	if err != nil {
		return fmt.Errorf("marshal recipients: %w", err)
	}
	channelsJSON, err := json.Marshal(n.Channels)
	if err != nil {
		return fmt.Errorf("marshal channels: %w", err)
	}

	query := `
		INSERT INTO notifications (` + notificationColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.ExecContext(ctx, query,
		n.ID, nullString(n.AlertID), string(recipientsJSON), string(channelsJSON),
		n.Subject, n.Body, nullString(n.TemplateID), n.Priority, n.Status,
		n.ScheduledFor, n.ExpiresAt, n.RetryCount, n.MaxRetries,
		n.CreatedAt, n.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (r *sqliteNotificationRepo) GetByID(ctx context.Context, id string) (*models.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE id = ?`
	n, err := scanNotification(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, err
	}
	if n == nil {
		return nil, fmt.Errorf("notification %s: %w", id, ErrNotFound)
	}
	return n, nil
}

func (r *sqliteNotificationRepo) ListByAlert(ctx context.Context, alertID string) ([]*models.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE alert_id = ? ORDER BY created_at`
	rows, err := r.db.QueryContext(ctx, query, alertID)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	var notifications []*models.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

// terminalNotificationStatuses guard SetStatus: a terminal aggregate
// is never overwritten.
var terminalNotificationStatuses = []models.NotificationStatus{
	models.NotificationDelivered,
	models.NotificationPartial,
	models.NotificationFailed,
	models.NotificationCancelled,
	models.NotificationExpired,
}

// SetStatus applies a derived aggregate status and rolls the highest
// per-unit retry count up into the notification row.
func (r *sqliteNotificationRepo) SetStatus(ctx context.Context, id string, status models.NotificationStatus, at time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE notifications SET status = ?,
			retry_count = (
				SELECT COALESCE(MAX(retry_count), 0)
				FROM notification_deliveries
				WHERE notification_id = notifications.id
			),
			updated_at = ?
		WHERE id = ? AND status NOT IN (?, ?, ?, ?, ?)
	`, status, at, id,
		terminalNotificationStatuses[0], terminalNotificationStatuses[1],
		terminalNotificationStatuses[2], terminalNotificationStatuses[3],
		terminalNotificationStatuses[4])
	if err != nil {
		return false, fmt.Errorf("set notification status: %w", err)
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

func scanNotification(row scanner) (*models.Notification, error) {
	n := &models.Notification{}
	var alertID, templateID sql.NullString
	var recipientsJSON, channelsJSON string
	var scheduledFor, expiresAt sql.NullTime

	err := row.Scan(
		&n.ID, &alertID, &recipientsJSON, &channelsJSON, &n.Subject, &n.Body,
		&templateID, &n.Priority, &n.Status, &scheduledFor, &expiresAt,
		&n.RetryCount, &n.MaxRetries, &n.CreatedAt, &n.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan notification: %w", err)
	}

	n.AlertID = alertID.String
	n.TemplateID = templateID.String
	if scheduledFor.Valid {
		n.ScheduledFor = &scheduledFor.Time
	}
	if expiresAt.Valid {
		n.ExpiresAt = &expiresAt.Time
	}

	if err := json.Unmarshal([]byte(recipientsJSON), &n.Recipients); err != nil {
		return nil, fmt.Errorf("unmarshal recipients: %w", err)
	}
	if err := json.Unmarshal([]byte(channelsJSON), &n.Channels); err != nil {
		return nil, fmt.Errorf("unmarshal channels: %w", err)
	}
	return n, nil
}
