package dispatch

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/blue-kestrel/shipsentry/internal/channel"
	"github.com/blue-kestrel/shipsentry/internal/metrics"
	"github.com/blue-kestrel/shipsentry/internal/models"
)

// worker consumes one channel's queue until ctx is cancelled.
func (d *Dispatcher) worker(ctx context.Context, ch models.Channel, sender channel.Sender, queue chan job) {
	defer d.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case j := <-queue:
			metrics.WorkerQueueDepth.WithLabelValues(string(ch)).Dec()
			if err := d.process(ctx, sender, j); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("delivery %s (%s to %s): %v", j.delivery.ID, ch, j.delivery.Recipient, err)
			}
		}
	}
}

// process drives one delivery unit to a terminal state: attempt, then
// classify the failure and either fail permanently or back off and
// retry up to the notification's budget.
func (d *Dispatcher) process(ctx context.Context, sender channel.Sender, j job) error {
	del := j.delivery
	n := j.notification
	chName := string(del.Channel)
	retries := del.RetryCount

	if n.ScheduledFor != nil {
		if wait := n.ScheduledFor.Sub(d.now()); wait > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}
	}

	for {
		// An alert someone is already handling, a settled alert, or an
		// expired notification makes delivery pointless. Checked before
		// every attempt, not just the first.
		if reason, stale := d.superseded(ctx, n); stale {
			if _, err := d.deliveries.SetFailed(ctx, del.ID, reason, d.now()); err != nil {
				return err
			}
			metrics.DeliveriesTotal.WithLabelValues(chName, string(models.DeliveryFailed)).Inc()
			return d.recompute(ctx, n.ID)
		}

		if err := d.deliveries.MarkAttempt(ctx, del.ID, d.now()); err != nil {
			return err
		}

		start := time.Now()
		externalID, err := sender.Send(ctx, del.Recipient, n.Subject, n.Body)
		metrics.DeliveryAttemptDuration.WithLabelValues(chName).Observe(time.Since(start).Seconds())

		if err == nil {
			if _, err := d.deliveries.SetSent(ctx, del.ID, externalID, d.now()); err != nil {
				return err
			}
			metrics.DeliveriesTotal.WithLabelValues(chName, string(models.DeliverySent)).Inc()
			return d.recompute(ctx, n.ID)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		reason := channel.FailureReason(err)
		if !channel.IsTransient(err) || retries >= n.MaxRetries {
			if _, err := d.deliveries.SetFailed(ctx, del.ID, reason, d.now()); err != nil {
				return err
			}
			metrics.DeliveriesTotal.WithLabelValues(chName, string(models.DeliveryFailed)).Inc()
			log.Printf("delivery %s (%s to %s) failed: %s", del.ID, chName, del.Recipient, reason)
			return d.recompute(ctx, n.ID)
		}

		retries++
		if _, err := d.deliveries.SetRetrying(ctx, del.ID, retries, reason, d.now()); err != nil {
			return err
		}
		metrics.DeliveryRetriesTotal.WithLabelValues(chName).Inc()
		if err := d.recompute(ctx, n.ID); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoffDelay(d.opts.BackoffBase, d.opts.BackoffMax, retries)):
		}
	}
}

// superseded reports whether a delivery no longer needs to happen and
// why.
func (d *Dispatcher) superseded(ctx context.Context, n *models.Notification) (string, bool) {
	if n.Expired(d.now()) {
		return "notification expired", true
	}
	if n.AlertID == "" {
		return "", false
	}

	alert, err := d.alerts.GetByID(ctx, n.AlertID)
	if err != nil {
		// The delivery proceeds on a read failure; dropping it on a
		// transient storage error would lose the notification.
		log.Printf("dispatch: read alert %s: %v", n.AlertID, err)
		return "", false
	}
	// Acknowledged and in-progress alerts already have someone's
	// attention; only a still-NEW alert keeps its deliveries alive.
	if alert.Status != models.AlertStatusNew {
		return "superseded: alert " + string(alert.Status), true
	}
	return "", false
}

// backoffDelay returns the capped exponential delay before the given
// retry attempt.
func backoffDelay(base, max time.Duration, retry int) time.Duration {
	delay := base
	for i := 1; i < retry; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}
