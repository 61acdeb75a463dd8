// Package models defines domain models for ShipSentry.
package models

import "time"

// Severity represents alert severity level.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// AlertStatus represents the lifecycle state of an alert.
type AlertStatus string

const (
	AlertStatusNew          AlertStatus = "new"
	AlertStatusAcknowledged AlertStatus = "acknowledged"
	AlertStatusInProgress   AlertStatus = "in_progress"
	AlertStatusResolved     AlertStatus = "resolved"
	AlertStatusClosed       AlertStatus = "closed"
	AlertStatusDismissed    AlertStatus = "dismissed"
)

// IsTerminal reports whether the status is a terminal state.
func (s AlertStatus) IsTerminal() bool {
	return s == AlertStatusClosed || s == AlertStatusDismissed
}

// IsSettled reports whether the alert no longer needs escalation.
// Resolved alerts are settled even though they are not yet closed.
func (s AlertStatus) IsSettled() bool {
	return s == AlertStatusResolved || s.IsTerminal()
}

// Alert represents a detected condition requiring attention.
type Alert struct {
	ID          string      `json:"id"`
	Type        string      `json:"type"`
	Severity    Severity    `json:"severity"`
	Category    string      `json:"category,omitempty"`
	Status      AlertStatus `json:"status"`
	Title       string      `json:"title"`
	Description string      `json:"description,omitempty"`

	// Source reference identifies the system and entity that raised
	// the condition. Together with Type it forms the suppression key.
	SourceSystem     string `json:"source_system,omitempty"`
	SourceEntityType string `json:"source_entity_type"`
	SourceEntityID   string `json:"source_entity_id"`

	RiskScore   float64 `json:"risk_score,omitempty"`
	ImpactScore float64 `json:"impact_score,omitempty"`

	AssignedTo   string `json:"assigned_to,omitempty"`
	AssignedTeam string `json:"assigned_team,omitempty"`

	// EscalationLevel only increases, and only while the alert is
	// still unsettled. Mutated exclusively by the escalation scheduler.
	EscalationLevel int `json:"escalation_level"`

	// OccurrenceCount tracks suppressed duplicates merged into this alert.
	OccurrenceCount int `json:"occurrence_count"`

	DetectedAt       time.Time  `json:"detected_at"`
	AcknowledgedAt   *time.Time `json:"acknowledged_at,omitempty"`
	AcknowledgedBy   string     `json:"acknowledged_by,omitempty"`
	AcknowledgedNote string     `json:"acknowledged_note,omitempty"`
	ResolvedAt       *time.Time `json:"resolved_at,omitempty"`
	ResolvedBy       string     `json:"resolved_by,omitempty"`
	Resolution       string     `json:"resolution,omitempty"`
	ResolutionType   string     `json:"resolution_type,omitempty"`
	ClosedAt         *time.Time `json:"closed_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// NewAlert creates a new Alert in the new state with initialized timestamps.
func NewAlert(alertType string, severity Severity, title string) *Alert {
	now := time.Now()
	return &Alert{
		Type:            alertType,
		Severity:        severity,
		Status:          AlertStatusNew,
		Title:           title,
		OccurrenceCount: 1,
		DetectedAt:      now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// ParseSeverity converts a string to Severity.
func ParseSeverity(s string) Severity {
	switch s {
	case "low":
		return SeverityLow
	case "medium":
		return SeverityMedium
	case "high":
		return SeverityHigh
	case "critical":
		return SeverityCritical
	default:
		return SeverityMedium
	}
}

// ParseAlertStatus converts a string to AlertStatus.
// Returns false if the string is not a known status.
func ParseAlertStatus(s string) (AlertStatus, bool) {
	switch AlertStatus(s) {
	case AlertStatusNew, AlertStatusAcknowledged, AlertStatusInProgress,
		AlertStatusResolved, AlertStatusClosed, AlertStatusDismissed:
		return AlertStatus(s), true
	default:
		return "", false
	}
}
