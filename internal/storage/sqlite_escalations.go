package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/blue-kestrel/shipsentry/internal/models"
)

type sqliteEscalationRepo struct {
	db *sql.DB
}

func (r *sqliteEscalationRepo) Create(ctx context.Context, esc *models.AlertEscalation) error {
	query := `
		INSERT INTO alert_escalations (id, alert_id, level, escalated_to, escalated_by, reason, status, escalated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		esc.ID, esc.AlertID, esc.Level, esc.EscalatedTo, esc.EscalatedBy,
		nullString(esc.Reason), esc.Status, esc.EscalatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("alert %s level %d: %w", esc.AlertID, esc.Level, ErrDuplicateEscalation)
		}
		return fmt.Errorf("insert escalation: %w", err)
	}
	return nil
}

func (r *sqliteEscalationRepo) ListByAlert(ctx context.Context, alertID string) ([]*models.AlertEscalation, error) {
	query := `
		SELECT id, alert_id, level, escalated_to, escalated_by, reason, status, escalated_at
		FROM alert_escalations WHERE alert_id = ? ORDER BY level
	`
	rows, err := r.db.QueryContext(ctx, query, alertID)
	if err != nil {
		return nil, fmt.Errorf("query escalations: %w", err)
	}
	defer rows.Close()

	var escalations []*models.AlertEscalation
	for rows.Next() {
		esc := &models.AlertEscalation{}
		var reason sql.NullString
		err := rows.Scan(&esc.ID, &esc.AlertID, &esc.Level, &esc.EscalatedTo,
			&esc.EscalatedBy, &reason, &esc.Status, &esc.EscalatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan escalation: %w", err)
		}
		esc.Reason = reason.String
		escalations = append(escalations, esc)
	}
	return escalations, rows.Err()
}

func (r *sqliteEscalationRepo) UpdateStatus(ctx context.Context, id string, status models.EscalationStatus) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE alert_escalations SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("update escalation status: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("escalation %s: %w", id, ErrNotFound)
	}
	return nil
}

func (r *sqliteEscalationRepo) SetPendingForAlert(ctx context.Context, alertID string, to models.EscalationStatus) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE alert_escalations SET status = ?
		WHERE alert_id = ? AND status = ?
	`, to, alertID, models.EscalationStatusPending)
	if err != nil {
		return 0, fmt.Errorf("update pending escalations: %w", err)
	}
	rows, _ := result.RowsAffected()
	return rows, nil
}
