package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/blue-kestrel/shipsentry/internal/models"
)

type sqliteDeliveryRepo struct {
	db *sql.DB
}

const deliveryColumns = `id, notification_id, channel, recipient, status,
	external_message_id, retry_count, failure_reason,
	attempted_at, completed_at, created_at, updated_at`

func (r *sqliteDeliveryRepo) Create(ctx context.Context, d *models.NotificationDelivery) error {
	query := `
		INSERT INTO notification_deliveries (` + deliveryColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		d.ID, d.NotificationID, d.Channel, d.Recipient, d.Status,
		nullString(d.ExternalMessageID), d.RetryCount, nullString(d.FailureReason),
		d.AttemptedAt, d.CompletedAt, d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("delivery for %s/%s/%s already exists: %w",
				d.NotificationID, d.Channel, d.Recipient, err)
		}
		return fmt.Errorf("insert delivery: %w", err)
	}
	return nil
}

func (r *sqliteDeliveryRepo) GetByID(ctx context.Context, id string) (*models.NotificationDelivery, error) {
	query := `SELECT ` + deliveryColumns + ` FROM notification_deliveries WHERE id = ?`
	d, err := scanDelivery(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, fmt.Errorf("delivery %s: %w", id, ErrNotFound)
	}
	return d, nil
}

func (r *sqliteDeliveryRepo) ListByNotification(ctx context.Context, notificationID string) ([]*models.NotificationDelivery, error) {
	query := `SELECT ` + deliveryColumns + ` FROM notification_deliveries
		WHERE notification_id = ? ORDER BY channel, recipient`
	rows, err := r.db.QueryContext(ctx, query, notificationID)
	if err != nil {
		return nil, fmt.Errorf("query deliveries: %w", err)
	}
	defer rows.Close()

	var deliveries []*models.NotificationDelivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		deliveries = append(deliveries, d)
	}
	return deliveries, rows.Err()
}

func (r *sqliteDeliveryRepo) MarkAttempt(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE notification_deliveries SET attempted_at = ?, updated_at = ? WHERE id = ?`,
		at, at, id)
	if err != nil {
		return fmt.Errorf("mark attempt: %w", err)
	}
	return nil
}

func (r *sqliteDeliveryRepo) SetSent(ctx context.Context, id, externalMessageID string, at time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE notification_deliveries
		SET status = ?, external_message_id = ?, completed_at = ?, updated_at = ?
		WHERE id = ? AND status IN (?, ?)
	`, models.DeliverySent, nullString(externalMessageID), at, at, id,
		models.DeliveryPending, models.DeliveryRetrying)
	if err != nil {
		return false, fmt.Errorf("set sent: %w", err)
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

func (r *sqliteDeliveryRepo) SetRetrying(ctx context.Context, id string, retryCount int, reason string, at time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE notification_deliveries
		SET status = ?, retry_count = ?, failure_reason = ?, updated_at = ?
		WHERE id = ? AND status IN (?, ?)
	`, models.DeliveryRetrying, retryCount, reason, at, id,
		models.DeliveryPending, models.DeliveryRetrying)
	if err != nil {
		return false, fmt.Errorf("set retrying: %w", err)
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

func (r *sqliteDeliveryRepo) SetFailed(ctx context.Context, id, reason string, at time.Time) (bool, error) {
	// Terminal states are never retried or overwritten.
	result, err := r.db.ExecContext(ctx, `
		UPDATE notification_deliveries
		SET status = ?, failure_reason = ?, completed_at = ?, updated_at = ?
		WHERE id = ? AND status IN (?, ?)
	`, models.DeliveryFailed, reason, at, at, id,
		models.DeliveryPending, models.DeliveryRetrying)
	if err != nil {
		return false, fmt.Errorf("set failed: %w", err)
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

func (r *sqliteDeliveryRepo) SetDelivered(ctx context.Context, id string, at time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE notification_deliveries SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`, models.DeliveryDelivered, at, id, models.DeliverySent)
	if err != nil {
		return false, fmt.Errorf("set delivered: %w", err)
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

func (r *sqliteDeliveryRepo) SetRead(ctx context.Context, id string, at time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE notification_deliveries SET status = ?, updated_at = ?
		WHERE id = ? AND status IN (?, ?)
	`, models.DeliveryRead, at, id, models.DeliverySent, models.DeliveryDelivered)
	if err != nil {
		return false, fmt.Errorf("set read: %w", err)
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

func (r *sqliteDeliveryRepo) CountsByStatus(ctx context.Context, notificationID string) (map[models.DeliveryStatus]int, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT status, COUNT(*) FROM notification_deliveries
		WHERE notification_id = ? GROUP BY status
	`, notificationID)
	if err != nil {
		return nil, fmt.Errorf("count deliveries: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.DeliveryStatus]int)
	for rows.Next() {
		var status models.DeliveryStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan delivery count: %w", err)
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

func scanDelivery(row scanner) (*models.NotificationDelivery, error) {
	d := &models.NotificationDelivery{}
	var externalID, failureReason sql.NullString
	var attemptedAt, completedAt sql.NullTime

	err := row.Scan(
		&d.ID, &d.NotificationID, &d.Channel, &d.Recipient, &d.Status,
		&externalID, &d.RetryCount, &failureReason,
		&attemptedAt, &completedAt, &d.CreatedAt, &d.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan delivery: %w", err)
	}

	d.ExternalMessageID = externalID.String
	d.FailureReason = failureReason.String
	if attemptedAt.Valid {
		d.AttemptedAt = &attemptedAt.Time
	}
	if completedAt.Valid {
		d.CompletedAt = &completedAt.Time
	}
	return d, nil
}
