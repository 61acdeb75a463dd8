package models

import "time"

// Channel is a delivery medium.
type Channel string

const (
	ChannelEmail   Channel = "email"
	ChannelChat    Channel = "chat"
	ChannelSMS     Channel = "sms"
	ChannelPush    Channel = "push"
	ChannelWebhook Channel = "webhook"
)

// ParseChannel converts a string to Channel.
// Returns false if the string is not a known channel.
func ParseChannel(s string) (Channel, bool) {
	switch Channel(s) {
	case ChannelEmail, ChannelChat, ChannelSMS, ChannelPush, ChannelWebhook:
		return Channel(s), true
	default:
		return "", false
	}
}

// NotificationPriority orders notifications for delivery.
type NotificationPriority string

const (
	PriorityLow    NotificationPriority = "low"
	PriorityNormal NotificationPriority = "normal"
	PriorityHigh   NotificationPriority = "high"
	PriorityUrgent NotificationPriority = "urgent"
)

// NotificationStatus is the aggregate status of a notification across
// all of its delivery units.
type NotificationStatus string

const (
	NotificationPending NotificationStatus = "pending"
	NotificationSent    NotificationStatus = "sent"
	// NotificationPartial means every delivery unit is terminal and the
	// outcomes are mixed: some succeeded, some failed.
	NotificationPartial   NotificationStatus = "partially_delivered"
	NotificationDelivered NotificationStatus = "delivered"
	NotificationFailed    NotificationStatus = "failed"
	NotificationRetrying  NotificationStatus = "retrying"
	NotificationCancelled NotificationStatus = "cancelled"
	NotificationExpired   NotificationStatus = "expired"
)

// IsTerminal reports whether the aggregate status is final.
func (s NotificationStatus) IsTerminal() bool {
	switch s {
	case NotificationDelivered, NotificationPartial, NotificationFailed,
		NotificationCancelled, NotificationExpired:
		return true
	}
	return false
}

// Notification is one logical message, fanned out across recipients
// and channels by the dispatcher. Status is mutated only by the
// dispatcher's aggregation logic.
type Notification struct {
	ID         string               `json:"id"`
	AlertID    string               `json:"alert_id,omitempty"`
	Recipients []string             `json:"recipients"`
	Channels   []Channel            `json:"channels"`
	Subject    string               `json:"subject"`
	Body       string               `json:"body"`
	TemplateID string               `json:"template_id,omitempty"`
	Priority   NotificationPriority `json:"priority"`
	Status     NotificationStatus   `json:"status"`

	ScheduledFor *time.Time `json:"scheduled_for,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`

	// RetryCount is the highest retry count among the delivery units;
	// MaxRetries caps retries per unit.
	RetryCount int `json:"retry_count"`
	MaxRetries int `json:"max_retries"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewNotification creates a pending Notification with initialized
// timestamps and the default retry budget.
func NewNotification(recipients []string, channels []Channel, subject, body string) *Notification {
	now := time.Now()
	return &Notification{
		Recipients: recipients,
		Channels:   channels,
		Subject:    subject,
		Body:       body,
		Priority:   PriorityNormal,
		Status:     NotificationPending,
		MaxRetries: 3,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Expired reports whether the notification expired as of now.
func (n *Notification) Expired(now time.Time) bool {
	return n.ExpiresAt != nil && now.After(*n.ExpiresAt)
}

// InteractionAction is a recipient action against a notification.
type InteractionAction string

const (
	InteractionOpened       InteractionAction = "opened"
	InteractionClicked      InteractionAction = "clicked"
	InteractionAcknowledged InteractionAction = "acknowledged"
	InteractionDismissed    InteractionAction = "dismissed"
	InteractionReplied      InteractionAction = "replied"
)

// ParseInteractionAction converts a string to InteractionAction.
// Returns false if the string is not a known action.
func ParseInteractionAction(s string) (InteractionAction, bool) {
	switch InteractionAction(s) {
	case InteractionOpened, InteractionClicked, InteractionAcknowledged,
		InteractionDismissed, InteractionReplied:
		return InteractionAction(s), true
	default:
		return "", false
	}
}

// NotificationInteraction is an append-only log entry of a recipient
// action against a notification. Never mutated, only inserted.
type NotificationInteraction struct {
	ID             string            `json:"id"`
	NotificationID string            `json:"notification_id"`
	Recipient      string            `json:"recipient"`
	Action         InteractionAction `json:"action"`
	Detail         string            `json:"detail,omitempty"`
	OccurredAt     time.Time         `json:"occurred_at"`
}
