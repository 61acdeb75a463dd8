package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/blue-kestrel/shipsentry/internal/storage"
)

func TestWatcherStartReturnsAndReloadsOnFileChange(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "shipsentry-test-*")
	if err != nil {
		t.Fatalf("create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	store := storage.NewSQLiteStorage(filepath.Join(tmpDir, "test.db"))
	if err := store.Open(); err != nil {
		t.Fatalf("open database: %v", err)
	}
	defer store.Close()
	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate database: %v", err)
	}

	path := filepath.Join(tmpDir, "configurations.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o644); err != nil {
		t.Fatalf("write configurations file: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if _, err := Seed(ctx, store.Configurations(), path); err != nil {
		t.Fatalf("seed: %v", err)
	}

	w, err := NewWatcher(path, store.Configurations())
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}
	defer w.Close()

	// Start must hand back control so server wiring after it can run;
	// the watch loop works in the background.
	w.Start(ctx)

	updated := strings.Replace(sampleYAML,
		"recipients: [ops@example.com]",
		"recipients: [ops@example.com, oncall@example.com]", 1)
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		t.Fatalf("rewrite configurations file: %v", err)
	}

	provider := NewStoreProvider(store.Configurations())
	deadline := time.Now().Add(5 * time.Second)
	for {
		cfg, err := provider.ForType(ctx, "shipment_overdue")
		if err == nil && len(cfg.Recipients) == 2 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("configuration was not reloaded after file change: %+v, err %v", cfg, err)
		}
		time.Sleep(50 * time.Millisecond)
	}
}
