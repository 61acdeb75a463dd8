package models

import "time"

// DeliveryStatus is the state of one (channel, recipient) delivery unit.
type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "pending"
	DeliverySent      DeliveryStatus = "sent"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryRead      DeliveryStatus = "read"
	DeliveryRetrying  DeliveryStatus = "retrying"
	DeliveryFailed    DeliveryStatus = "failed"
	DeliveryBounced   DeliveryStatus = "bounced"
	DeliveryRejected  DeliveryStatus = "rejected"
)

// IsSuccess reports whether the status is a terminal success state.
func (s DeliveryStatus) IsSuccess() bool {
	return s == DeliverySent || s == DeliveryDelivered || s == DeliveryRead
}

// IsFailure reports whether the status is a terminal failure state.
func (s DeliveryStatus) IsFailure() bool {
	return s == DeliveryFailed || s == DeliveryBounced || s == DeliveryRejected
}

// IsTerminal reports whether the delivery unit will see no further attempts.
func (s DeliveryStatus) IsTerminal() bool {
	return s.IsSuccess() || s.IsFailure()
}

// NotificationDelivery is one (channel, recipient) delivery attempt
// record. Owned by the delivery worker; at most one row exists per
// (notification, channel, recipient).
type NotificationDelivery struct {
	ID             string         `json:"id"`
	NotificationID string         `json:"notification_id"`
	Channel        Channel        `json:"channel"`
	Recipient      string         `json:"recipient"`
	Status         DeliveryStatus `json:"status"`

	ExternalMessageID string `json:"external_message_id,omitempty"`
	RetryCount        int    `json:"retry_count"`
	FailureReason     string `json:"failure_reason,omitempty"`

	AttemptedAt *time.Time `json:"attempted_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}
