package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// Migration represents a database migration.
type Migration struct {
	Version int
	Name    string
	Up      string
}

// migrations holds all database migrations in order.
var migrations = []Migration{
	{
		Version: 1,
		Name:    "initial_schema",
		Up: `
			-- Alerts table
			CREATE TABLE IF NOT EXISTS alerts (
				id TEXT PRIMARY KEY,
				type TEXT NOT NULL,
				severity TEXT NOT NULL,
				category TEXT,
				status TEXT NOT NULL DEFAULT 'new',
				title TEXT NOT NULL,
				description TEXT,
				source_system TEXT,
				source_entity_type TEXT NOT NULL,
				source_entity_id TEXT NOT NULL,
				risk_score REAL NOT NULL DEFAULT 0,
				impact_score REAL NOT NULL DEFAULT 0,
				assigned_to TEXT,
				assigned_team TEXT,
				escalation_level INTEGER NOT NULL DEFAULT 0,
				occurrence_count INTEGER NOT NULL DEFAULT 1,
				detected_at DATETIME NOT NULL,
				acknowledged_at DATETIME,
				acknowledged_by TEXT,
				acknowledged_note TEXT,
				resolved_at DATETIME,
				resolved_by TEXT,
				resolution TEXT,
				resolution_type TEXT,
				closed_at DATETIME,
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL
			);

			-- Escalation audit records; the unique key is the
			-- at-most-once guard for concurrent scheduler sweeps
			CREATE TABLE IF NOT EXISTS alert_escalations (
				id TEXT PRIMARY KEY,
				alert_id TEXT NOT NULL,
				level INTEGER NOT NULL,
				escalated_to TEXT NOT NULL,
				escalated_by TEXT NOT NULL,
				reason TEXT,
				status TEXT NOT NULL DEFAULT 'pending',
				escalated_at DATETIME NOT NULL,
				UNIQUE (alert_id, level),
				FOREIGN KEY (alert_id) REFERENCES alerts(id)
			);

			-- Per alert-type policy
			CREATE TABLE IF NOT EXISTS alert_configurations (
				id TEXT PRIMARY KEY,
				alert_type TEXT UNIQUE NOT NULL,
				enabled INTEGER NOT NULL DEFAULT 1,
				thresholds_json TEXT NOT NULL,
				channels_json TEXT NOT NULL,
				recipients_json TEXT NOT NULL,
				suppression_enabled INTEGER NOT NULL DEFAULT 0,
				suppression_window_minutes INTEGER NOT NULL DEFAULT 0,
				hours_enabled INTEGER NOT NULL DEFAULT 0,
				hours_start INTEGER NOT NULL DEFAULT 0,
				hours_end INTEGER NOT NULL DEFAULT 0,
				hours_timezone TEXT,
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL
			);

			-- Ordered escalation chain per configuration
			CREATE TABLE IF NOT EXISTS escalation_rules (
				configuration_id TEXT NOT NULL,
				level INTEGER NOT NULL,
				delay_minutes INTEGER NOT NULL,
				escalate_to TEXT NOT NULL,
				condition TEXT,
				PRIMARY KEY (configuration_id, level),
				FOREIGN KEY (configuration_id) REFERENCES alert_configurations(id) ON DELETE CASCADE
			);

			-- Notifications table
			CREATE TABLE IF NOT EXISTS notifications (
				id TEXT PRIMARY KEY,
				alert_id TEXT,
				recipients_json TEXT NOT NULL,
				channels_json TEXT NOT NULL,
				subject TEXT NOT NULL,
				body TEXT NOT NULL,
				template_id TEXT,
				priority TEXT NOT NULL DEFAULT 'normal',
				status TEXT NOT NULL DEFAULT 'pending',
				scheduled_for DATETIME,
				expires_at DATETIME,
				retry_count INTEGER NOT NULL DEFAULT 0,
				max_retries INTEGER NOT NULL DEFAULT 3,
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL,
				FOREIGN KEY (alert_id) REFERENCES alerts(id)
			);

			-- Delivery units; unique key keeps fan-out idempotent
			CREATE TABLE IF NOT EXISTS notification_deliveries (
				id TEXT PRIMARY KEY,
				notification_id TEXT NOT NULL,
				channel TEXT NOT NULL,
				recipient TEXT NOT NULL,
				status TEXT NOT NULL DEFAULT 'pending',
				external_message_id TEXT,
				retry_count INTEGER NOT NULL DEFAULT 0,
				failure_reason TEXT,
				attempted_at DATETIME,
				completed_at DATETIME,
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL,
				UNIQUE (notification_id, channel, recipient),
				FOREIGN KEY (notification_id) REFERENCES notifications(id)
			);

			-- Append-only recipient interaction log
			CREATE TABLE IF NOT EXISTS notification_interactions (
				id TEXT PRIMARY KEY,
				notification_id TEXT NOT NULL,
				recipient TEXT NOT NULL,
				action TEXT NOT NULL,
				detail TEXT,
				occurred_at DATETIME NOT NULL,
				FOREIGN KEY (notification_id) REFERENCES notifications(id)
			);

			-- Indexes
			CREATE INDEX IF NOT EXISTS idx_alerts_status ON alerts(status);
			CREATE INDEX IF NOT EXISTS idx_alerts_severity ON alerts(severity);
			CREATE INDEX IF NOT EXISTS idx_alerts_source ON alerts(source_entity_type, source_entity_id, type);
			CREATE INDEX IF NOT EXISTS idx_escalations_alert ON alert_escalations(alert_id);
			CREATE INDEX IF NOT EXISTS idx_notifications_alert ON notifications(alert_id);
			CREATE INDEX IF NOT EXISTS idx_deliveries_notification ON notification_deliveries(notification_id);
			CREATE INDEX IF NOT EXISTS idx_interactions_notification ON notification_interactions(notification_id);
		`,
	},
}

// runMigrations applies all pending migrations.
func runMigrations(db *sql.DB) error {
	// Create migrations table if not exists
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at DATETIME NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	// Get current version
	var currentVersion int
	err = db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("get current version: %w", err)
	}

	// Apply pending migrations
	for _, m := range migrations {
		if m.Version <= currentVersion {
			continue
		}

		// Run migration in transaction
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin transaction for migration %d: %w", m.Version, err)
		}

		_, err = tx.Exec(m.Up)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("execute migration %d (%s): %w", m.Version, m.Name, err)
		}

		_, err = tx.Exec(
			"INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)",
			m.Version, m.Name, time.Now(),
		)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}
