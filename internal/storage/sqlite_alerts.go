package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/blue-kestrel/shipsentry/internal/models"
)

type sqliteAlertRepo struct {
	db *sql.DB
}

const alertColumns = `id, type, severity, category, status, title, description,
	source_system, source_entity_type, source_entity_id,
	risk_score, impact_score, assigned_to, assigned_team,
	escalation_level, occurrence_count, detected_at,
	acknowledged_at, acknowledged_by, acknowledged_note,
	resolved_at, resolved_by, resolution, resolution_type,
	closed_at, created_at, updated_at`

func (r *sqliteAlertRepo) Create(ctx context.Context, alert *models.Alert) error {
	query := `
		INSERT INTO alerts (` + alertColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		alert.ID, alert.Type, alert.Severity, nullString(alert.Category),
		alert.Status, alert.Title, nullString(alert.Description),
		nullString(alert.SourceSystem), alert.SourceEntityType, alert.SourceEntityID,
		alert.RiskScore, alert.ImpactScore,
		nullString(alert.AssignedTo), nullString(alert.AssignedTeam),
		alert.EscalationLevel, alert.OccurrenceCount, alert.DetectedAt,
		alert.AcknowledgedAt, nullString(alert.AcknowledgedBy), nullString(alert.AcknowledgedNote),
		alert.ResolvedAt, nullString(alert.ResolvedBy), nullString(alert.Resolution),
		nullString(alert.ResolutionType), alert.ClosedAt,
		alert.CreatedAt, alert.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

func (r *sqliteAlertRepo) GetByID(ctx context.Context, id string) (*models.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts WHERE id = ?`
	alert, err := scanAlert(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, err
	}
	if alert == nil {
		return nil, fmt.Errorf("alert %s: %w", id, ErrNotFound)
	}
	return alert, nil
}

func (r *sqliteAlertRepo) List(ctx context.Context) ([]*models.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts ORDER BY detected_at DESC`
	return r.queryAlerts(ctx, query)
}

func (r *sqliteAlertRepo) ListByStatus(ctx context.Context, statuses ...models.AlertStatus) ([]*models.Alert, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	placeholders := strings.Repeat("?,", len(statuses))
	placeholders = placeholders[:len(placeholders)-1]
	query := `SELECT ` + alertColumns + ` FROM alerts WHERE status IN (` + placeholders + `) ORDER BY detected_at DESC`

	args := make([]interface{}, len(statuses))
	for i, s := range statuses {
		args[i] = s
	}
	return r.queryAlerts(ctx, query, args...)
}

func (r *sqliteAlertRepo) ListBySeverity(ctx context.Context, severity models.Severity) ([]*models.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts WHERE severity = ? ORDER BY detected_at DESC`
	return r.queryAlerts(ctx, query, severity)
}

func (r *sqliteAlertRepo) FindOpenBySource(ctx context.Context, entityType, entityID, alertType string, since time.Time) (*models.Alert, error) {
	query := `
		SELECT ` + alertColumns + ` FROM alerts
		WHERE source_entity_type = ? AND source_entity_id = ? AND type = ?
			AND status NOT IN (?, ?)
			AND detected_at >= ?
		ORDER BY detected_at DESC
		LIMIT 1
	`
	alert, err := scanAlert(r.db.QueryRowContext(ctx, query,
		entityType, entityID, alertType,
		models.AlertStatusClosed, models.AlertStatusDismissed,
		since,
	))
	if err != nil {
		return nil, err
	}
	if alert == nil {
		return nil, ErrNotFound
	}
	return alert, nil
}

func (r *sqliteAlertRepo) IncrementOccurrence(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE alerts SET occurrence_count = occurrence_count + 1, updated_at = ? WHERE id = ?`,
		time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("increment occurrence: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("alert %s: %w", id, ErrNotFound)
	}
	return nil
}

func (r *sqliteAlertRepo) MarkAcknowledged(ctx context.Context, id, actor, note string, at time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE alerts
		SET status = ?, acknowledged_at = ?, acknowledged_by = ?, acknowledged_note = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`, models.AlertStatusAcknowledged, at, actor, nullString(note), at, id, models.AlertStatusNew)
	if err != nil {
		return false, fmt.Errorf("mark acknowledged: %w", err)
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

func (r *sqliteAlertRepo) MarkInProgress(ctx context.Context, id string, at time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE alerts SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`, models.AlertStatusInProgress, at, id, models.AlertStatusAcknowledged)
	if err != nil {
		return false, fmt.Errorf("mark in progress: %w", err)
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

func (r *sqliteAlertRepo) MarkResolved(ctx context.Context, id, actor, resolution, resolutionType string, at time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE alerts
		SET status = ?, resolved_at = ?, resolved_by = ?, resolution = ?, resolution_type = ?, updated_at = ?
		WHERE id = ? AND status IN (?, ?, ?)
	`, models.AlertStatusResolved, at, actor, resolution, nullString(resolutionType), at, id,
		models.AlertStatusNew, models.AlertStatusAcknowledged, models.AlertStatusInProgress)
	if err != nil {
		return false, fmt.Errorf("mark resolved: %w", err)
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

func (r *sqliteAlertRepo) MarkDismissed(ctx context.Context, id, actor string, at time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE alerts
		SET status = ?, resolved_by = ?, closed_at = ?, updated_at = ?
		WHERE id = ? AND status IN (?, ?, ?)
	`, models.AlertStatusDismissed, actor, at, at, id,
		models.AlertStatusNew, models.AlertStatusAcknowledged, models.AlertStatusInProgress)
	if err != nil {
		return false, fmt.Errorf("mark dismissed: %w", err)
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

func (r *sqliteAlertRepo) MarkClosed(ctx context.Context, id string, at time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE alerts SET status = ?, closed_at = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`, models.AlertStatusClosed, at, at, id, models.AlertStatusResolved)
	if err != nil {
		return false, fmt.Errorf("mark closed: %w", err)
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

func (r *sqliteAlertRepo) AdvanceEscalationLevel(ctx context.Context, id string, level int, at time.Time) (bool, error) {
	// The level only ever increases, and only while the alert is still
	// unacknowledged. A concurrent acknowledge wins this race: the
	// update matches no row and the caller observes false.
	result, err := r.db.ExecContext(ctx, `
		UPDATE alerts SET escalation_level = ?, updated_at = ?
		WHERE id = ? AND escalation_level < ? AND status = ?
	`, level, at, id, level, models.AlertStatusNew)
	if err != nil {
		return false, fmt.Errorf("advance escalation level: %w", err)
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

func (r *sqliteAlertRepo) queryAlerts(ctx context.Context, query string, args ...interface{}) ([]*models.Alert, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []*models.Alert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, alert)
	}
	return alerts, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanAlert(row scanner) (*models.Alert, error) {
	alert := &models.Alert{}
	var category, description, sourceSystem sql.NullString
	var assignedTo, assignedTeam sql.NullString
	var ackBy, ackNote, resolvedBy, resolution, resolutionType sql.NullString
	var ackAt, resolvedAt, closedAt sql.NullTime

	err := row.Scan(
		&alert.ID, &alert.Type, &alert.Severity, &category, &alert.Status,
		&alert.Title, &description,
		&sourceSystem, &alert.SourceEntityType, &alert.SourceEntityID,
		&alert.RiskScore, &alert.ImpactScore, &assignedTo, &assignedTeam,
		&alert.EscalationLevel, &alert.OccurrenceCount, &alert.DetectedAt,
		&ackAt, &ackBy, &ackNote,
		&resolvedAt, &resolvedBy, &resolution, &resolutionType,
		&closedAt, &alert.CreatedAt, &alert.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan alert: %w", err)
	}

	alert.Category = category.String
	alert.Description = description.String
	alert.SourceSystem = sourceSystem.String
	alert.AssignedTo = assignedTo.String
	alert.AssignedTeam = assignedTeam.String
	alert.AcknowledgedBy = ackBy.String
	alert.AcknowledgedNote = ackNote.String
	alert.ResolvedBy = resolvedBy.String
	alert.Resolution = resolution.String
	alert.ResolutionType = resolutionType.String
	if ackAt.Valid {
		alert.AcknowledgedAt = &ackAt.Time
	}
	if resolvedAt.Valid {
		alert.ResolvedAt = &resolvedAt.Time
	}
	if closedAt.Valid {
		alert.ClosedAt = &closedAt.Time
	}

	return alert, nil
}
