// Package dispatch fans notifications out into per-recipient,
// per-channel delivery units and drives them to a terminal state
// through bounded channel worker pools.
package dispatch

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/blue-kestrel/shipsentry/internal/channel"
	"github.com/blue-kestrel/shipsentry/internal/metrics"
	"github.com/blue-kestrel/shipsentry/internal/models"
	"github.com/blue-kestrel/shipsentry/internal/storage"
)

// Options configures the dispatcher.
type Options struct {
	// WorkersPerChannel is the number of concurrent delivery workers
	// per channel pool.
	WorkersPerChannel int
	// QueueSize is the per-channel queue capacity.
	QueueSize int
	// MaxRetries is the retry budget for transient failures.
	MaxRetries int
	// BackoffBase is the first retry delay; it doubles per retry.
	BackoffBase time.Duration
	// BackoffMax caps the retry delay.
	BackoffMax time.Duration
}

// DefaultOptions returns default dispatcher options.
func DefaultOptions() *Options {
	return &Options{
		WorkersPerChannel: 4,
		QueueSize:         256,
		MaxRetries:        3,
		BackoffBase:       5 * time.Second,
		BackoffMax:        2 * time.Minute,
	}
}

// job is one delivery unit handed to a channel worker, paired with its
// parent notification so workers avoid a read per attempt.
type job struct {
	delivery     *models.NotificationDelivery
	notification *models.Notification
}

// Dispatcher fans out notifications and owns the aggregate status of
// each one. Delivery rows are mutated only by workers; the parent
// Notification status only by recompute.
type Dispatcher struct {
	notifications storage.NotificationRepository
	deliveries    storage.DeliveryRepository
	interactions  storage.InteractionRepository
	alerts        storage.AlertRepository
	registry      *channel.Registry

	opts *Options
	now  func() time.Time

	queues map[models.Channel]chan job

	// aggMu serializes aggregate recomputation so a stale count read
	// cannot overwrite a newer status.
	aggMu sync.Mutex

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewDispatcher creates a notification dispatcher.
func NewDispatcher(store storage.Storage, registry *channel.Registry, opts *Options) *Dispatcher {
	if opts == nil {
		opts = DefaultOptions()
	}
	if opts.WorkersPerChannel <= 0 {
		opts.WorkersPerChannel = DefaultOptions().WorkersPerChannel
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultOptions().QueueSize
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = DefaultOptions().MaxRetries
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = DefaultOptions().BackoffBase
	}
	if opts.BackoffMax < opts.BackoffBase {
		opts.BackoffMax = DefaultOptions().BackoffMax
	}

	d := &Dispatcher{
		notifications: store.Notifications(),
		deliveries:    store.Deliveries(),
		interactions:  store.Interactions(),
		alerts:        store.Alerts(),
		registry:      registry,
		opts:          opts,
		now:           time.Now,
		queues:        make(map[models.Channel]chan job),
	}
	for _, ch := range registry.Channels() {
		d.queues[ch] = make(chan job, opts.QueueSize)
	}
	return d
}

// SetNowFunc overrides the clock (useful for testing).
func (d *Dispatcher) SetNowFunc(now func() time.Time) {
	d.now = now
}

// Start launches the channel worker pools.
func (d *Dispatcher) Start(ctx context.Context) {
	ctx, d.cancel = context.WithCancel(ctx)

	for ch, queue := range d.queues {
		sender, _ := d.registry.Get(ch)
		for i := 0; i < d.opts.WorkersPerChannel; i++ {
			d.wg.Add(1)
			go d.worker(ctx, ch, sender, queue)
		}
	}
	log.Printf("dispatcher started: %d channels, %d workers each", len(d.queues), d.opts.WorkersPerChannel)
}

// Stop cancels the workers and waits for in-flight deliveries to
// finish their current attempt.
func (d *Dispatcher) Stop() {
	if d.cancel != nil {
		d.cancel()
	}
	d.wg.Wait()
}

// Send persists a notification, fans it out into one PENDING delivery
// row per (channel, recipient) pair, and enqueues each to its channel
// pool. Channels without a registered sender fail their units
// immediately.
func (d *Dispatcher) Send(ctx context.Context, n *models.Notification) error {
	if len(n.Recipients) == 0 {
		return fmt.Errorf("notification has no recipients")
	}
	if len(n.Channels) == 0 {
		return fmt.Errorf("notification has no channels")
	}

	now := d.now()
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	n.Status = models.NotificationPending
	if n.MaxRetries == 0 {
		n.MaxRetries = d.opts.MaxRetries
	}
	n.CreatedAt = now
	n.UpdatedAt = now

	if err := d.notifications.Create(ctx, n); err != nil {
		return fmt.Errorf("create notification: %w", err)
	}

	for _, ch := range n.Channels {
		for _, recipient := range n.Recipients {
			unit := &models.NotificationDelivery{
				ID:             uuid.NewString(),
				NotificationID: n.ID,
				Channel:        ch,
				Recipient:      recipient,
				Status:         models.DeliveryPending,
				CreatedAt:      now,
				UpdatedAt:      now,
			}
			if err := d.deliveries.Create(ctx, unit); err != nil {
				return fmt.Errorf("create delivery %s/%s: %w", ch, recipient, err)
			}

			queue, ok := d.queues[ch]
			if !ok {
				if _, err := d.deliveries.SetFailed(ctx, unit.ID, "channel not configured", now); err != nil {
					return fmt.Errorf("fail delivery %s: %w", unit.ID, err)
				}
				metrics.DeliveriesTotal.WithLabelValues(string(ch), string(models.DeliveryFailed)).Inc()
				continue
			}

			select {
			case queue <- job{delivery: unit, notification: n}:
				metrics.WorkerQueueDepth.WithLabelValues(string(ch)).Inc()
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	return d.recompute(ctx, n.ID)
}

// recompute derives the aggregate notification status from the current
// delivery unit counts and applies it through the terminal-status
// guard.
func (d *Dispatcher) recompute(ctx context.Context, notificationID string) error {
	d.aggMu.Lock()
	defer d.aggMu.Unlock()

	counts, err := d.deliveries.CountsByStatus(ctx, notificationID)
	if err != nil {
		return fmt.Errorf("count deliveries: %w", err)
	}

	status := aggregate(counts)
	changed, err := d.notifications.SetStatus(ctx, notificationID, status, d.now())
	if err != nil {
		return fmt.Errorf("set notification status: %w", err)
	}
	if changed && status.IsTerminal() {
		metrics.NotificationsTotal.WithLabelValues(string(status)).Inc()
	}
	return nil
}

// aggregate maps delivery unit counts to the notification status.
func aggregate(counts map[models.DeliveryStatus]int) models.NotificationStatus {
	var pending, retrying, success, failure int
	for status, n := range counts {
		switch {
		case status == models.DeliveryPending:
			pending += n
		case status == models.DeliveryRetrying:
			retrying += n
		case status.IsSuccess():
			success += n
		case status.IsFailure():
			failure += n
		}
	}

	switch {
	case retrying > 0:
		return models.NotificationRetrying
	case pending > 0:
		if success > 0 {
			return models.NotificationSent
		}
		return models.NotificationPending
	case success > 0 && failure > 0:
		return models.NotificationPartial
	case success > 0:
		return models.NotificationDelivered
	case failure > 0:
		return models.NotificationFailed
	default:
		return models.NotificationPending
	}
}

// ChannelBreakdown summarizes one channel's delivery units.
type ChannelBreakdown struct {
	Total    int                           `json:"total"`
	ByStatus map[models.DeliveryStatus]int `json:"by_status"`
}

// DeliveryReport is the aggregate view of one notification's delivery.
type DeliveryReport struct {
	NotificationID string                               `json:"notification_id"`
	Status         models.NotificationStatus            `json:"status"`
	Channels       map[models.Channel]*ChannelBreakdown `json:"channels"`
	Units          []*models.NotificationDelivery       `json:"units"`
}

// GetDeliveryStatus returns the aggregate status and per-channel
// breakdown of a notification.
func (d *Dispatcher) GetDeliveryStatus(ctx context.Context, notificationID string) (*DeliveryReport, error) {
	n, err := d.notifications.GetByID(ctx, notificationID)
	if err != nil {
		return nil, err
	}

	units, err := d.deliveries.ListByNotification(ctx, notificationID)
	if err != nil {
		return nil, fmt.Errorf("list deliveries: %w", err)
	}

	report := &DeliveryReport{
		NotificationID: n.ID,
		Status:         n.Status,
		Channels:       make(map[models.Channel]*ChannelBreakdown),
		Units:          units,
	}
	for _, u := range units {
		b, ok := report.Channels[u.Channel]
		if !ok {
			b = &ChannelBreakdown{ByStatus: make(map[models.DeliveryStatus]int)}
			report.Channels[u.Channel] = b
		}
		b.Total++
		b.ByStatus[u.Status]++
	}
	return report, nil
}

// RecordInteraction appends a recipient action to the interaction log.
// An opened interaction also promotes the recipient's delivery units to
// read where their state allows it.
func (d *Dispatcher) RecordInteraction(ctx context.Context, notificationID, recipient string, action models.InteractionAction, detail string) (*models.NotificationInteraction, error) {
	if _, err := d.notifications.GetByID(ctx, notificationID); err != nil {
		return nil, err
	}

	in := &models.NotificationInteraction{
		ID:             uuid.NewString(),
		NotificationID: notificationID,
		Recipient:      recipient,
		Action:         action,
		Detail:         detail,
		OccurredAt:     d.now(),
	}
	if err := d.interactions.Create(ctx, in); err != nil {
		return nil, fmt.Errorf("record interaction: %w", err)
	}

	if action == models.InteractionOpened {
		units, err := d.deliveries.ListByNotification(ctx, notificationID)
		if err != nil {
			return in, nil
		}
		for _, u := range units {
			if u.Recipient != recipient {
				continue
			}
			if _, err := d.deliveries.SetRead(ctx, u.ID, d.now()); err != nil {
				log.Printf("dispatch: mark delivery %s read: %v", u.ID, err)
			}
		}
	}
	return in, nil
}
