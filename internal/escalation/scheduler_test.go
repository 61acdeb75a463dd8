package escalation

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/blue-kestrel/shipsentry/internal/config"
	"github.com/blue-kestrel/shipsentry/internal/models"
	"github.com/blue-kestrel/shipsentry/internal/render"
	"github.com/blue-kestrel/shipsentry/internal/storage"
)

func TestNextLevelDue(t *testing.T) {
	rules := []models.EscalationRule{
		{Level: 1, DelayMinutes: 30, EscalateTo: "team-lead"},
		{Level: 2, DelayMinutes: 30, EscalateTo: "manager"},
		{Level: 3, DelayMinutes: 60, EscalateTo: "director"},
	}

	tests := []struct {
		name      string
		current   int
		elapsed   time.Duration
		wantLevel int
		wantOK    bool
	}{
		{"nothing due yet", 0, 29 * time.Minute, 0, false},
		{"level 1 due", 0, 30 * time.Minute, 1, true},
		{"level 2 not yet cumulative", 1, 59 * time.Minute, 0, false},
		{"level 2 due at cumulative delay", 1, 60 * time.Minute, 2, true},
		{"level 3 due at cumulative delay", 2, 120 * time.Minute, 3, true},
		{"one level at a time even when overdue", 0, 5 * time.Hour, 1, true},
		{"chain exhausted", 3, 10 * time.Hour, 0, false},
		{"no elapsed time", 0, 0, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule, ok := nextLevelDue(rules, tt.current, tt.elapsed)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && rule.Level != tt.wantLevel {
				t.Errorf("level = %d, want %d", rule.Level, tt.wantLevel)
			}
		})
	}
}

func TestNextLevelDueUnsortedRules(t *testing.T) {
	rules := []models.EscalationRule{
		{Level: 2, DelayMinutes: 30, EscalateTo: "manager"},
		{Level: 1, DelayMinutes: 30, EscalateTo: "team-lead"},
	}

	rule, ok := nextLevelDue(rules, 0, 45*time.Minute)
	if !ok || rule.Level != 1 {
		t.Errorf("got level %d ok=%v, want level 1 regardless of rule order", rule.Level, ok)
	}
}

func TestEffectiveElapsedWallClock(t *testing.T) {
	from := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	got := effectiveElapsed(from, from.Add(90*time.Minute), models.BusinessHours{})
	if got != 90*time.Minute {
		t.Errorf("elapsed = %s, want 90m", got)
	}
}

func TestEffectiveElapsedBusinessHours(t *testing.T) {
	hours := models.BusinessHours{
		Enabled:   true,
		StartHour: 9,
		EndHour:   17,
		Timezone:  "UTC",
	}

	// Monday 2026-03-02.
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		from time.Time
		to   time.Time
		want time.Duration
	}{
		{
			name: "fully inside the window",
			from: day.Add(10 * time.Hour),
			to:   day.Add(12 * time.Hour),
			want: 2 * time.Hour,
		},
		{
			name: "overnight accrues nothing",
			from: day.Add(18 * time.Hour),
			to:   day.Add(32 * time.Hour), // 08:00 next day
			want: 0,
		},
		{
			name: "detected before opening",
			from: day.Add(7 * time.Hour),
			to:   day.Add(11 * time.Hour),
			want: 2 * time.Hour,
		},
		{
			name: "spans the close and next open",
			from: day.Add(16 * time.Hour),
			to:   day.Add(34 * time.Hour), // 10:00 next day
			want: 2 * time.Hour,
		},
		{
			name: "multiple full days",
			from: day.Add(9 * time.Hour),
			to:   day.AddDate(0, 0, 2).Add(9 * time.Hour),
			want: 16 * time.Hour,
		},
		{
			name: "to before from",
			from: day.Add(12 * time.Hour),
			to:   day.Add(11 * time.Hour),
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := effectiveElapsed(tt.from, tt.to, hours)
			if got != tt.want {
				t.Errorf("elapsed = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestEffectiveElapsedBadTimezoneFallsBackToWallClock(t *testing.T) {
	hours := models.BusinessHours{Enabled: true, StartHour: 9, EndHour: 17, Timezone: "Mars/Olympus"}
	from := time.Date(2026, 3, 2, 3, 0, 0, 0, time.UTC)

	// An unloadable timezone ignores the window instead of freezing the
	// escalation clock; the full hour accrues even though 03:00 is
	// outside business hours.
	got := effectiveElapsed(from, from.Add(time.Hour), hours)
	if got != time.Hour {
		t.Errorf("elapsed = %s, want 1h", got)
	}
}

// --- Sweep integration ---

type fakeProvider struct {
	configs map[string]*models.AlertConfiguration
}

func (p *fakeProvider) ForType(ctx context.Context, alertType string) (*models.AlertConfiguration, error) {
	cfg, ok := p.configs[alertType]
	if !ok {
		return nil, fmt.Errorf("alert type %s: %w", alertType, config.ErrConfigurationMissing)
	}
	return cfg, nil
}

type captureNotifier struct {
	sent []*models.Notification
}

func (c *captureNotifier) Send(ctx context.Context, n *models.Notification) error {
	c.sent = append(c.sent, n)
	return nil
}

func setupScheduler(t *testing.T, configs map[string]*models.AlertConfiguration) (*Scheduler, *captureNotifier, storage.Storage, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "shipsentry-test-*")
	if err != nil {
		t.Fatalf("create temp dir: %v", err)
	}

	store := storage.NewSQLiteStorage(filepath.Join(tmpDir, "test.db"))
	if err := store.Open(); err != nil {
		os.RemoveAll(tmpDir)
		t.Fatalf("open database: %v", err)
	}
	if err := store.Migrate(); err != nil {
		store.Close()
		os.RemoveAll(tmpDir)
		t.Fatalf("migrate database: %v", err)
	}

	renderer, err := render.New()
	if err != nil {
		store.Close()
		os.RemoveAll(tmpDir)
		t.Fatalf("load templates: %v", err)
	}

	notifier := &captureNotifier{}
	scheduler := NewScheduler(store.Alerts(), store.Escalations(),
		&fakeProvider{configs: configs}, notifier, renderer, &Options{Concurrency: 1})

	cleanup := func() {
		store.Close()
		os.RemoveAll(tmpDir)
	}
	return scheduler, notifier, store, cleanup
}

func escalatingConfig() *models.AlertConfiguration {
	return &models.AlertConfiguration{
		ID:        "cfg-1",
		AlertType: "shipment_overdue",
		Enabled:   true,
		Channels:  []models.Channel{models.ChannelEmail},
		Escalation: []models.EscalationRule{
			{Level: 1, DelayMinutes: 30, EscalateTo: "team-lead"},
			{Level: 2, DelayMinutes: 30, EscalateTo: "manager"},
		},
	}
}

func seedAlert(t *testing.T, store storage.Storage, detectedAt time.Time) *models.Alert {
	t.Helper()
	alert := &models.Alert{
		ID:               uuid.New().String(),
		Type:             "shipment_overdue",
		Severity:         models.SeverityCritical,
		Status:           models.AlertStatusNew,
		Title:            "Shipment overdue",
		SourceEntityType: "shipment",
		SourceEntityID:   "ship-1",
		OccurrenceCount:  1,
		DetectedAt:       detectedAt,
		CreatedAt:        detectedAt,
		UpdatedAt:        detectedAt,
	}
	if err := store.Alerts().Create(context.Background(), alert); err != nil {
		t.Fatalf("seed alert: %v", err)
	}
	return alert
}

func TestSweepFiresOverdueLevel(t *testing.T) {
	scheduler, notifier, store, cleanup := setupScheduler(t, map[string]*models.AlertConfiguration{
		"shipment_overdue": escalatingConfig(),
	})
	defer cleanup()
	ctx := context.Background()

	detected := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	alert := seedAlert(t, store, detected)

	if err := scheduler.SweepAt(ctx, detected.Add(31*time.Minute)); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	got, _ := store.Alerts().GetByID(ctx, alert.ID)
	if got.EscalationLevel != 1 {
		t.Fatalf("escalation_level = %d, want 1", got.EscalationLevel)
	}

	trail, _ := store.Escalations().ListByAlert(ctx, alert.ID)
	if len(trail) != 1 || trail[0].Level != 1 || trail[0].EscalatedTo != "team-lead" {
		t.Fatalf("trail = %+v", trail)
	}
	if trail[0].EscalatedBy != "scheduler" {
		t.Errorf("escalated_by = %q", trail[0].EscalatedBy)
	}

	if len(notifier.sent) != 1 {
		t.Fatalf("sent %d notifications, want 1", len(notifier.sent))
	}
	n := notifier.sent[0]
	if len(n.Recipients) != 1 || n.Recipients[0] != "team-lead" {
		t.Errorf("recipients = %v, want the escalation target", n.Recipients)
	}
	if n.Priority != models.PriorityUrgent {
		t.Errorf("priority = %s, want urgent for a critical alert", n.Priority)
	}
}

func TestSweepFiresNothingBeforeDelay(t *testing.T) {
	scheduler, notifier, store, cleanup := setupScheduler(t, map[string]*models.AlertConfiguration{
		"shipment_overdue": escalatingConfig(),
	})
	defer cleanup()
	ctx := context.Background()

	detected := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	alert := seedAlert(t, store, detected)

	if err := scheduler.SweepAt(ctx, detected.Add(29*time.Minute)); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	got, _ := store.Alerts().GetByID(ctx, alert.ID)
	if got.EscalationLevel != 0 {
		t.Errorf("escalation_level = %d, want 0", got.EscalationLevel)
	}
	if len(notifier.sent) != 0 {
		t.Errorf("sent %d notifications, want 0", len(notifier.sent))
	}
}

func TestSweepAdvancesOneLevelPerSweep(t *testing.T) {
	scheduler, notifier, store, cleanup := setupScheduler(t, map[string]*models.AlertConfiguration{
		"shipment_overdue": escalatingConfig(),
	})
	defer cleanup()
	ctx := context.Background()

	detected := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	alert := seedAlert(t, store, detected)

	// Both levels are overdue, but each sweep fires only one.
	way := detected.Add(5 * time.Hour)
	if err := scheduler.SweepAt(ctx, way); err != nil {
		t.Fatalf("first sweep: %v", err)
	}
	got, _ := store.Alerts().GetByID(ctx, alert.ID)
	if got.EscalationLevel != 1 {
		t.Fatalf("after first sweep level = %d, want 1", got.EscalationLevel)
	}

	if err := scheduler.SweepAt(ctx, way); err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	got, _ = store.Alerts().GetByID(ctx, alert.ID)
	if got.EscalationLevel != 2 {
		t.Fatalf("after second sweep level = %d, want 2", got.EscalationLevel)
	}

	// Chain exhausted; a third sweep is a no-op.
	if err := scheduler.SweepAt(ctx, way); err != nil {
		t.Fatalf("third sweep: %v", err)
	}
	got, _ = store.Alerts().GetByID(ctx, alert.ID)
	if got.EscalationLevel != 2 {
		t.Errorf("after third sweep level = %d, want 2", got.EscalationLevel)
	}
	if len(notifier.sent) != 2 {
		t.Errorf("sent %d notifications, want 2", len(notifier.sent))
	}
}

func TestSweepSettlesAcknowledgedAlerts(t *testing.T) {
	scheduler, notifier, store, cleanup := setupScheduler(t, map[string]*models.AlertConfiguration{
		"shipment_overdue": escalatingConfig(),
	})
	defer cleanup()
	ctx := context.Background()

	detected := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	alert := seedAlert(t, store, detected)

	if err := scheduler.SweepAt(ctx, detected.Add(31*time.Minute)); err != nil {
		t.Fatalf("first sweep: %v", err)
	}
	if _, err := store.Alerts().MarkAcknowledged(ctx, alert.ID, "ops", "", detected.Add(40*time.Minute)); err != nil {
		t.Fatalf("acknowledge: %v", err)
	}

	// Acknowledged: the sweep settles the pending record and fires
	// nothing further, even though level 2 is overdue.
	if err := scheduler.SweepAt(ctx, detected.Add(5*time.Hour)); err != nil {
		t.Fatalf("second sweep: %v", err)
	}

	got, _ := store.Alerts().GetByID(ctx, alert.ID)
	if got.EscalationLevel != 1 {
		t.Errorf("escalation_level = %d, want 1", got.EscalationLevel)
	}
	trail, _ := store.Escalations().ListByAlert(ctx, alert.ID)
	if len(trail) != 1 || trail[0].Status != models.EscalationStatusAcknowledged {
		t.Errorf("trail = %+v, want the pending record settled", trail)
	}
	if len(notifier.sent) != 1 {
		t.Errorf("sent %d notifications, want 1", len(notifier.sent))
	}
}

func TestSweepSkipsUnconfiguredAndDisabled(t *testing.T) {
	disabled := escalatingConfig()
	disabled.AlertType = "supplier_risk"
	disabled.Enabled = false

	scheduler, notifier, store, cleanup := setupScheduler(t, map[string]*models.AlertConfiguration{
		"supplier_risk": disabled,
	})
	defer cleanup()
	ctx := context.Background()

	detected := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	// No configuration exists for shipment_overdue in this setup.
	noConfig := seedAlert(t, store, detected)

	disabledAlert := &models.Alert{
		ID:               uuid.New().String(),
		Type:             "supplier_risk",
		Severity:         models.SeverityHigh,
		Status:           models.AlertStatusNew,
		Title:            "Risky supplier",
		SourceEntityType: "supplier",
		SourceEntityID:   "sup-1",
		OccurrenceCount:  1,
		DetectedAt:       detected,
		CreatedAt:        detected,
		UpdatedAt:        detected,
	}
	if err := store.Alerts().Create(ctx, disabledAlert); err != nil {
		t.Fatalf("seed alert: %v", err)
	}

	if err := scheduler.SweepAt(ctx, detected.Add(5*time.Hour)); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	for _, id := range []string{noConfig.ID, disabledAlert.ID} {
		got, _ := store.Alerts().GetByID(ctx, id)
		if got.EscalationLevel != 0 {
			t.Errorf("alert %s escalated to %d, want 0", id, got.EscalationLevel)
		}
	}
	if len(notifier.sent) != 0 {
		t.Errorf("sent %d notifications, want 0", len(notifier.sent))
	}
}

func TestSweepWithBusinessHoursDefersDelay(t *testing.T) {
	cfg := escalatingConfig()
	cfg.Hours = models.BusinessHours{Enabled: true, StartHour: 9, EndHour: 17, Timezone: "UTC"}

	scheduler, _, store, cleanup := setupScheduler(t, map[string]*models.AlertConfiguration{
		"shipment_overdue": cfg,
	})
	defer cleanup()
	ctx := context.Background()

	// Detected at 16:45; only 15 minutes accrue before close.
	detected := time.Date(2026, 3, 2, 16, 45, 0, 0, time.UTC)
	alert := seedAlert(t, store, detected)

	// 22:00 same day: wall clock says 5h15m, accrued says 15m.
	if err := scheduler.SweepAt(ctx, time.Date(2026, 3, 2, 22, 0, 0, 0, time.UTC)); err != nil {
		t.Fatalf("evening sweep: %v", err)
	}
	got, _ := store.Alerts().GetByID(ctx, alert.ID)
	if got.EscalationLevel != 0 {
		t.Fatalf("escalated outside business hours: level = %d", got.EscalationLevel)
	}

	// Next day 09:15: 30 minutes accrued, level 1 fires.
	if err := scheduler.SweepAt(ctx, time.Date(2026, 3, 3, 9, 15, 0, 0, time.UTC)); err != nil {
		t.Fatalf("morning sweep: %v", err)
	}
	got, _ = store.Alerts().GetByID(ctx, alert.ID)
	if got.EscalationLevel != 1 {
		t.Errorf("escalation_level = %d, want 1", got.EscalationLevel)
	}
}
