package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/blue-kestrel/shipsentry/internal/models"
)

type sqliteInteractionRepo struct {
	db *sql.DB
}

func (r *sqliteInteractionRepo) Create(ctx context.Context, in *models.NotificationInteraction) error {
	query := `
		INSERT INTO notification_interactions (id, notification_id, recipient, action, detail, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		in.ID, in.NotificationID, in.Recipient, in.Action,
		nullString(in.Detail), in.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("insert interaction: %w", err)
	}
	return nil
}

func (r *sqliteInteractionRepo) ListByNotification(ctx context.Context, notificationID string) ([]*models.NotificationInteraction, error) {
	query := `
		SELECT id, notification_id, recipient, action, detail, occurred_at
		FROM notification_interactions WHERE notification_id = ? ORDER BY occurred_at
	`
	rows, err := r.db.QueryContext(ctx, query, notificationID)
	if err != nil {
		return nil, fmt.Errorf("query interactions: %w", err)
	}
	defer rows.Close()

	var interactions []*models.NotificationInteraction
	for rows.Next() {
		in := &models.NotificationInteraction{}
		var detail sql.NullString
		err := rows.Scan(&in.ID, &in.NotificationID, &in.Recipient, &in.Action, &detail, &in.OccurredAt)
		if err != nil {
			return nil, fmt.Errorf("scan interaction: %w", err)
		}
		in.Detail = detail.String
		interactions = append(interactions, in)
	}
	return interactions, rows.Err()
}
