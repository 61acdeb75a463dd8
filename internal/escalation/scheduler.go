// Package escalation advances unacknowledged alerts through their
// configured escalation chain on a fixed-interval sweep.
package escalation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/blue-kestrel/shipsentry/internal/config"
	"github.com/blue-kestrel/shipsentry/internal/metrics"
	"github.com/blue-kestrel/shipsentry/internal/models"
	"github.com/blue-kestrel/shipsentry/internal/render"
	"github.com/blue-kestrel/shipsentry/internal/storage"
)

// Notifier submits a notification for delivery. Implemented by the
// dispatcher.
type Notifier interface {
	Send(ctx context.Context, n *models.Notification) error
}

// Options configures the scheduler.
type Options struct {
	// Interval between sweeps.
	Interval time.Duration
	// Concurrency bounds parallel per-alert evaluation within a sweep.
	Concurrency int
}

// DefaultOptions returns default scheduler options.
func DefaultOptions() *Options {
	return &Options{
		Interval:    30 * time.Second,
		Concurrency: 8,
	}
}

// Scheduler periodically sweeps open alerts and fires overdue
// escalation levels. At most one level fires per alert per sweep; the
// (alert_id, level) unique key makes concurrent fires idempotent.
type Scheduler struct {
	alerts      storage.AlertRepository
	escalations storage.EscalationRepository
	configs     config.Provider
	notifier    Notifier
	renderer    *render.Renderer

	opts *Options
	now  func() time.Time

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewScheduler creates an escalation scheduler.
func NewScheduler(alerts storage.AlertRepository, escalations storage.EscalationRepository, configs config.Provider, notifier Notifier, renderer *render.Renderer, opts *Options) *Scheduler {
	if opts == nil {
		opts = DefaultOptions()
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultOptions().Interval
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultOptions().Concurrency
	}
	return &Scheduler{
		alerts:      alerts,
		escalations: escalations,
		configs:     configs,
		notifier:    notifier,
		renderer:    renderer,
		opts:        opts,
		now:         time.Now,
	}
}

// SetNowFunc overrides the clock (useful for testing).
func (s *Scheduler) SetNowFunc(now func() time.Time) {
	s.now = now
}

// Start launches the sweep loop. It runs until ctx is cancelled or
// Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.opts.Interval)
		defer ticker.Stop()

		log.Printf("escalation scheduler started (interval %s)", s.opts.Interval)
		for {
			select {
			case <-ctx.Done():
				log.Printf("escalation scheduler stopped")
				return
			case <-ticker.C:
				if err := s.Sweep(ctx); err != nil && !errors.Is(err, context.Canceled) {
					log.Printf("escalation sweep error: %v", err)
				}
			}
		}
	}()
}

// Stop cancels the sweep loop and waits for an in-flight sweep to
// finish.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// Sweep runs one sweep at the current clock time.
func (s *Scheduler) Sweep(ctx context.Context) error {
	return s.SweepAt(ctx, s.now())
}

// SweepAt runs one sweep as of the given time. Each open alert is
// evaluated independently; one alert's failure never blocks the rest.
func (s *Scheduler) SweepAt(ctx context.Context, now time.Time) error {
	start := time.Now()
	defer func() {
		metrics.SweepDuration.Observe(time.Since(start).Seconds())
	}()

	open, err := s.alerts.ListByStatus(ctx, models.AlertStatusNew, models.AlertStatusAcknowledged)
	if err != nil {
		return fmt.Errorf("list open alerts: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)

	for _, alert := range open {
		alert := alert
		g.Go(func() error {
			if err := s.evaluate(gctx, alert, now); err != nil {
				metrics.SweepErrorsTotal.Inc()
				log.Printf("escalation: alert %s: %v", alert.ID, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// evaluate advances a single alert by at most one escalation level.
func (s *Scheduler) evaluate(ctx context.Context, alert *models.Alert, now time.Time) error {
	cfg, err := s.configs.ForType(ctx, alert.Type)
	if err != nil {
		if errors.Is(err, config.ErrConfigurationMissing) {
			return nil
		}
		return err
	}
	if !cfg.Enabled || len(cfg.Escalation) == 0 {
		return nil
	}

	// Escalations settle when the alert is acknowledged; the delay
	// clock only runs for alerts nobody has looked at.
	if alert.Status == models.AlertStatusAcknowledged {
		if _, err := s.escalations.SetPendingForAlert(ctx, alert.ID, models.EscalationStatusAcknowledged); err != nil {
			return fmt.Errorf("settle pending escalations: %w", err)
		}
		return nil
	}

	elapsed := effectiveElapsed(alert.DetectedAt, now, cfg.Hours)

	next, ok := nextLevelDue(cfg.Escalation, alert.EscalationLevel, elapsed)
	if !ok {
		return nil
	}

	// The listing may be stale; only fire against a live NEW alert.
	fresh, err := s.alerts.GetByID(ctx, alert.ID)
	if err != nil {
		return err
	}
	if fresh.Status != models.AlertStatusNew || fresh.EscalationLevel >= next.Level {
		return nil
	}

	return s.fire(ctx, fresh, cfg, next, now)
}

// nextLevelDue returns the lowest unfired escalation rule whose
// cumulative delay has elapsed. Rules advance one level at a time even
// when several levels are overdue.
func nextLevelDue(rules []models.EscalationRule, current int, elapsed time.Duration) (models.EscalationRule, bool) {
	sorted := make([]models.EscalationRule, len(rules))
	copy(sorted, rules)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Level < sorted[j].Level })

	var cumulative time.Duration
	for _, rule := range sorted {
		cumulative += rule.Delay()
		if rule.Level <= current {
			continue
		}
		if elapsed >= cumulative {
			return rule, true
		}
		break
	}
	return models.EscalationRule{}, false
}

func (s *Scheduler) fire(ctx context.Context, alert *models.Alert, cfg *models.AlertConfiguration, rule models.EscalationRule, now time.Time) error {
	esc := &models.AlertEscalation{
		ID:          uuid.NewString(),
		AlertID:     alert.ID,
		Level:       rule.Level,
		EscalatedTo: rule.EscalateTo,
		EscalatedBy: "scheduler",
		Reason:      fmt.Sprintf("unacknowledged after %d minutes", int(now.Sub(alert.DetectedAt).Minutes())),
		Status:      models.EscalationStatusPending,
		EscalatedAt: now,
	}

	if err := s.escalations.Create(ctx, esc); err != nil {
		if errors.Is(err, storage.ErrDuplicateEscalation) {
			metrics.EscalationsDuplicateTotal.Inc()
			return nil
		}
		return fmt.Errorf("record escalation: %w", err)
	}

	advanced, err := s.alerts.AdvanceEscalationLevel(ctx, alert.ID, rule.Level, now)
	if err != nil {
		return fmt.Errorf("advance escalation level: %w", err)
	}
	if !advanced {
		// The alert settled or another sweep advanced it first. The
		// audit record stands; no notification for a stale fire.
		return nil
	}

	metrics.EscalationsFiredTotal.WithLabelValues(fmt.Sprintf("%d", rule.Level)).Inc()
	log.Printf("escalation: alert %s advanced to level %d, notifying %s", alert.ID, rule.Level, rule.EscalateTo)

	subject, body, err := s.renderer.Render("escalation", render.EscalationVariables(alert, rule.Level))
	if err != nil {
		return fmt.Errorf("render escalation notice: %w", err)
	}

	n := models.NewNotification([]string{rule.EscalateTo}, cfg.Channels, subject, body)
	n.ID = uuid.NewString()
	n.AlertID = alert.ID
	n.TemplateID = "escalation"
	n.Priority = priorityForSeverity(alert.Severity)

	if err := s.notifier.Send(ctx, n); err != nil {
		return fmt.Errorf("submit escalation notification: %w", err)
	}
	return nil
}

func priorityForSeverity(sev models.Severity) models.NotificationPriority {
	switch sev {
	case models.SeverityCritical:
		return models.PriorityUrgent
	case models.SeverityHigh:
		return models.PriorityHigh
	case models.SeverityLow:
		return models.PriorityLow
	default:
		return models.PriorityNormal
	}
}
