package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/blue-kestrel/shipsentry/internal/models"
)

type sqliteConfigurationRepo struct {
	db *sql.DB
}

func (r *sqliteConfigurationRepo) Upsert(ctx context.Context, cfg *models.AlertConfiguration) error {
	thresholdsJSON, err := json.Marshal(cfg.Thresholds)
	if err != nil {
		return fmt.Errorf("marshal thresholds: %w", err)
	}
	channelsJSON, err := json.Marshal(cfg.Channels)
	if err != nil {
		return fmt.Errorf("marshal channels: %w", err)
	}
	recipientsJSON, err := json.Marshal(cfg.Recipients)
	if err != nil {
		return fmt.Errorf("marshal recipients: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO alert_configurations (id, alert_type, enabled, thresholds_json,
			channels_json, recipients_json,
			suppression_enabled, suppression_window_minutes,
			hours_enabled, hours_start, hours_end, hours_timezone,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(alert_type) DO UPDATE SET
			enabled = excluded.enabled,
			thresholds_json = excluded.thresholds_json,
			channels_json = excluded.channels_json,
			recipients_json = excluded.recipients_json,
			suppression_enabled = excluded.suppression_enabled,
			suppression_window_minutes = excluded.suppression_window_minutes,
			hours_enabled = excluded.hours_enabled,
			hours_start = excluded.hours_start,
			hours_end = excluded.hours_end,
			hours_timezone = excluded.hours_timezone,
			updated_at = excluded.updated_at
	`
	_, err = tx.ExecContext(ctx, query,
		cfg.ID, cfg.AlertType, boolToInt(cfg.Enabled), string(thresholdsJSON),
		string(channelsJSON), string(recipientsJSON),
		boolToInt(cfg.Suppression.Enabled), cfg.Suppression.WindowMinutes,
		boolToInt(cfg.Hours.Enabled), cfg.Hours.StartHour, cfg.Hours.EndHour,
		nullString(cfg.Hours.Timezone),
		cfg.CreatedAt, cfg.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert configuration: %w", err)
	}

	// Resolve the stored id: on conflict the existing row keeps its id.
	var storedID string
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM alert_configurations WHERE alert_type = ?`, cfg.AlertType,
	).Scan(&storedID)
	if err != nil {
		return fmt.Errorf("resolve configuration id: %w", err)
	}

	// Replace the escalation chain wholesale.
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM escalation_rules WHERE configuration_id = ?`, storedID); err != nil {
		return fmt.Errorf("clear escalation rules: %w", err)
	}
	for _, rule := range cfg.Escalation {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO escalation_rules (configuration_id, level, delay_minutes, escalate_to, condition)
			VALUES (?, ?, ?, ?, ?)
		`, storedID, rule.Level, rule.DelayMinutes, rule.EscalateTo, nullString(rule.Condition))
		if err != nil {
			return fmt.Errorf("insert escalation rule level %d: %w", rule.Level, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit configuration: %w", err)
	}
	cfg.ID = storedID
	return nil
}

func (r *sqliteConfigurationRepo) GetByType(ctx context.Context, alertType string) (*models.AlertConfiguration, error) {
	query := `
		SELECT id, alert_type, enabled, thresholds_json, channels_json, recipients_json,
			suppression_enabled, suppression_window_minutes,
			hours_enabled, hours_start, hours_end, hours_timezone,
			created_at, updated_at
		FROM alert_configurations WHERE alert_type = ?
	`
	cfg, err := r.scanConfiguration(r.db.QueryRowContext(ctx, query, alertType))
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, fmt.Errorf("configuration for type %s: %w", alertType, ErrNotFound)
	}
	if err := r.loadRules(ctx, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (r *sqliteConfigurationRepo) List(ctx context.Context) ([]*models.AlertConfiguration, error) {
	query := `
		SELECT id, alert_type, enabled, thresholds_json, channels_json, recipients_json,
			suppression_enabled, suppression_window_minutes,
			hours_enabled, hours_start, hours_end, hours_timezone,
			created_at, updated_at
		FROM alert_configurations ORDER BY alert_type
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query configurations: %w", err)
	}
	defer rows.Close()

	var configs []*models.AlertConfiguration
	for rows.Next() {
		cfg, err := r.scanConfiguration(rows)
		if err != nil {
			return nil, err
		}
		configs = append(configs, cfg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, cfg := range configs {
		if err := r.loadRules(ctx, cfg); err != nil {
			return nil, err
		}
	}
	return configs, nil
}

func (r *sqliteConfigurationRepo) Delete(ctx context.Context, alertType string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM alert_configurations WHERE alert_type = ?`, alertType)
	if err != nil {
		return fmt.Errorf("delete configuration: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("configuration for type %s: %w", alertType, ErrNotFound)
	}
	return nil
}

func (r *sqliteConfigurationRepo) scanConfiguration(row scanner) (*models.AlertConfiguration, error) {
	cfg := &models.AlertConfiguration{}
	var thresholdsJSON, channelsJSON, recipientsJSON string
	var enabled, suppEnabled, hoursEnabled int
	var timezone sql.NullString

	err := row.Scan(
		&cfg.ID, &cfg.AlertType, &enabled, &thresholdsJSON, &channelsJSON, &recipientsJSON,
		&suppEnabled, &cfg.Suppression.WindowMinutes,
		&hoursEnabled, &cfg.Hours.StartHour, &cfg.Hours.EndHour, &timezone,
		&cfg.CreatedAt, &cfg.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan configuration: %w", err)
	}

	cfg.Enabled = enabled != 0
	cfg.Suppression.Enabled = suppEnabled != 0
	cfg.Hours.Enabled = hoursEnabled != 0
	cfg.Hours.Timezone = timezone.String

	if err := json.Unmarshal([]byte(thresholdsJSON), &cfg.Thresholds); err != nil {
		return nil, fmt.Errorf("unmarshal thresholds: %w", err)
	}
	if err := json.Unmarshal([]byte(channelsJSON), &cfg.Channels); err != nil {
		return nil, fmt.Errorf("unmarshal channels: %w", err)
	}
	if err := json.Unmarshal([]byte(recipientsJSON), &cfg.Recipients); err != nil {
		return nil, fmt.Errorf("unmarshal recipients: %w", err)
	}
	return cfg, nil
}

func (r *sqliteConfigurationRepo) loadRules(ctx context.Context, cfg *models.AlertConfiguration) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT level, delay_minutes, escalate_to, condition
		FROM escalation_rules WHERE configuration_id = ? ORDER BY level
	`, cfg.ID)
	if err != nil {
		return fmt.Errorf("query escalation rules: %w", err)
	}
	defer rows.Close()

	cfg.Escalation = nil
	for rows.Next() {
		var rule models.EscalationRule
		var condition sql.NullString
		if err := rows.Scan(&rule.Level, &rule.DelayMinutes, &rule.EscalateTo, &condition); err != nil {
			return fmt.Errorf("scan escalation rule: %w", err)
		}
		rule.Condition = condition.String
		cfg.Escalation = append(cfg.Escalation, rule)
	}
	return rows.Err()
}
