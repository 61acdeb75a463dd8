package channel

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/blue-kestrel/shipsentry/internal/models"
)

// RateLimitedSender wraps a Sender with a token-bucket limiter so a
// chatty channel cannot exceed its provider's rate limits. Waits are
// cooperative: the wrapped Send blocks on the limiter but honors
// context cancellation.
type RateLimitedSender struct {
	inner   Sender
	limiter *rate.Limiter
}

// RateLimit configures a per-channel send rate.
type RateLimit struct {
	PerSecond float64 // sustained sends per second
	Burst     int     // burst capacity
}

// NewRateLimitedSender wraps a sender with the given rate limit.
// A zero or negative rate disables limiting.
func NewRateLimitedSender(inner Sender, limit RateLimit) Sender {
	if limit.PerSecond <= 0 {
		return inner
	}
	burst := limit.Burst
	if burst < 1 {
		burst = 1
	}
	return &RateLimitedSender{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(limit.PerSecond), burst),
	}
}

// Channel returns the wrapped sender's channel.
func (s *RateLimitedSender) Channel() models.Channel {
	return s.inner.Channel()
}

// Send waits for a rate token, then delegates to the wrapped sender.
func (s *RateLimitedSender) Send(ctx context.Context, recipient, subject, body string) (string, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return "", TransientError("rate limiter wait cancelled", err)
	}
	return s.inner.Send(ctx, recipient, subject, body)
}

// Close closes the wrapped sender.
func (s *RateLimitedSender) Close() error {
	return s.inner.Close()
}
