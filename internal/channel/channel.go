// Package channel provides delivery-channel senders. A sender accepts
// a rendered message for one recipient and returns either an external
// message id or a failure classified as transient or permanent.
package channel

import (
	"context"
	"errors"
	"fmt"

	"github.com/blue-kestrel/shipsentry/internal/models"
)

// Sender is the interface for all delivery channels.
type Sender interface {
	// Channel returns the delivery medium this sender serves.
	Channel() models.Channel
	// Send delivers a rendered message to one recipient and returns
	// the provider's message id. Failures are *SendError values.
	Send(ctx context.Context, recipient, subject, body string) (string, error)
	// Close releases any resources.
	Close() error
}

// SendError is a classified delivery failure. Transient failures are
// retried per the backoff policy; permanent failures are recorded and
// never retried.
type SendError struct {
	Reason    string
	Transient bool
	Err       error
}

func (e *SendError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return e.Reason
}

func (e *SendError) Unwrap() error {
	return e.Err
}

// TransientError builds a retryable send failure.
func TransientError(reason string, err error) *SendError {
	return &SendError{Reason: reason, Transient: true, Err: err}
}

// PermanentError builds a non-retryable send failure.
func PermanentError(reason string, err error) *SendError {
	return &SendError{Reason: reason, Transient: false, Err: err}
}

// IsTransient reports whether a send failure should be retried.
// Unclassified errors are treated as transient: an unknown failure is
// cheaper to retry than to drop.
func IsTransient(err error) bool {
	var se *SendError
	if errors.As(err, &se) {
		return se.Transient
	}
	return true
}

// FailureReason extracts the recorded reason from a send failure.
func FailureReason(err error) string {
	var se *SendError
	if errors.As(err, &se) {
		return se.Reason
	}
	return err.Error()
}

// Registry maps channels to their senders.
type Registry struct {
	senders map[models.Channel]Sender
}

// NewRegistry creates a sender registry.
func NewRegistry() *Registry {
	return &Registry{senders: make(map[models.Channel]Sender)}
}

// Register adds a sender for its channel, replacing any previous one.
func (r *Registry) Register(s Sender) {
	r.senders[s.Channel()] = s
}

// Get returns the sender for a channel.
func (r *Registry) Get(ch models.Channel) (Sender, bool) {
	s, ok := r.senders[ch]
	return s, ok
}

// Channels returns the channels with a registered sender.
func (r *Registry) Channels() []models.Channel {
	channels := make([]models.Channel, 0, len(r.senders))
	for ch := range r.senders {
		channels = append(channels, ch)
	}
	return channels
}

// Close closes all registered senders.
func (r *Registry) Close() error {
	var errs []error
	for name, s := range r.senders {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	r.senders = make(map[models.Channel]Sender)

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
