package models

import "time"

// EscalationStatus represents the state of a recorded escalation.
type EscalationStatus string

const (
	EscalationStatusPending      EscalationStatus = "pending"
	EscalationStatusAcknowledged EscalationStatus = "acknowledged"
	EscalationStatusResolved     EscalationStatus = "resolved"
	EscalationStatusCancelled    EscalationStatus = "cancelled"
)

// AlertEscalation is an immutable audit record of one escalation
// firing. At most one row exists per (alert, level); the unique key is
// the idempotency guard against concurrent scheduler sweeps.
type AlertEscalation struct {
	ID          string           `json:"id"`
	AlertID     string           `json:"alert_id"`
	Level       int              `json:"level"`
	EscalatedTo string           `json:"escalated_to"`
	EscalatedBy string           `json:"escalated_by"`
	Reason      string           `json:"reason,omitempty"`
	Status      EscalationStatus `json:"status"`
	EscalatedAt time.Time        `json:"escalated_at"`
}
