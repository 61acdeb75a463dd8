package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.HTTPAddress != ":8080" {
		t.Errorf("http_address = %q", cfg.Server.HTTPAddress)
	}
	if cfg.Server.MetricsAddress != ":9090" {
		t.Errorf("metrics_address = %q", cfg.Server.MetricsAddress)
	}
	if cfg.Database.Path != "data/shipsentry.db" {
		t.Errorf("database path = %q", cfg.Database.Path)
	}
	if cfg.Escalation.SweepInterval != 30*time.Second {
		t.Errorf("sweep_interval = %s", cfg.Escalation.SweepInterval)
	}
	if cfg.Dispatch.WorkersPerChannel != 4 || cfg.Dispatch.QueueSize != 256 {
		t.Errorf("dispatch = %+v", cfg.Dispatch)
	}
	if cfg.Channels.Email.Enabled {
		t.Error("channels should be disabled by default")
	}
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
server:
  http_address: ":9999"
database:
  path: /var/lib/shipsentry/db.sqlite
configurations:
  path: /etc/shipsentry/alerts.yaml
  watch: true
escalation:
  sweep_interval: 10s
  concurrency: 2
dispatch:
  max_retries: 5
  backoff_base: 1s
  backoff_max: 30s
channels:
  email:
    enabled: true
    host: smtp.example.com
    port: 587
    from: alerts@example.com
    rate:
      per_second: 2
      burst: 5
  chat:
    enabled: true
    webhook_url: https://hooks.example.com/T0/B0/x
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.Server.HTTPAddress != ":9999" {
		t.Errorf("http_address = %q", cfg.Server.HTTPAddress)
	}
	// Unset fields still default.
	if cfg.Server.MetricsAddress != ":9090" {
		t.Errorf("metrics_address = %q", cfg.Server.MetricsAddress)
	}
	if !cfg.Configurations.Watch || cfg.Configurations.Path != "/etc/shipsentry/alerts.yaml" {
		t.Errorf("configurations = %+v", cfg.Configurations)
	}
	if cfg.Escalation.SweepInterval != 10*time.Second || cfg.Escalation.Concurrency != 2 {
		t.Errorf("escalation = %+v", cfg.Escalation)
	}
	if cfg.Dispatch.MaxRetries != 5 || cfg.Dispatch.BackoffMax != 30*time.Second {
		t.Errorf("dispatch = %+v", cfg.Dispatch)
	}

	email := cfg.Channels.Email
	if !email.Enabled || email.Host != "smtp.example.com" || email.Port != 587 {
		t.Errorf("email = %+v", email)
	}
	if email.Rate.PerSecond != 2 || email.Rate.Burst != 5 {
		t.Errorf("email rate = %+v", email.Rate)
	}
	limit := email.Rate.Limit()
	if limit.PerSecond != 2 || limit.Burst != 5 {
		t.Errorf("rate limit = %+v", limit)
	}
	if !cfg.Channels.Chat.Enabled || cfg.Channels.Chat.WebhookURL == "" {
		t.Errorf("chat = %+v", cfg.Channels.Chat)
	}
	if cfg.Channels.SMS.Enabled {
		t.Error("sms should stay disabled")
	}
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	tests := []struct {
		name   string
		yaml   string
		errMsg string
	}{
		{
			name: "sweep interval too small",
			yaml: `
escalation:
  sweep_interval: 100ms
`,
			errMsg: "sweep_interval must be at least 1s",
		},
		{
			name: "backoff max below base",
			yaml: `
dispatch:
  backoff_base: 10s
  backoff_max: 1s
`,
			errMsg: "backoff_max must be at least",
		},
		{
			name: "enabled email without host",
			yaml: `
channels:
  email:
    enabled: true
    port: 587
    from: a@b.c
`,
			errMsg: "channels.email",
		},
		{
			name: "enabled chat with plain http",
			yaml: `
channels:
  chat:
    enabled: true
    webhook_url: http://hooks.example.com/x
`,
			errMsg: "channels.chat",
		},
		{
			name: "enabled sms without key",
			yaml: `
channels:
  sms:
    enabled: true
    api_url: https://sms.example.com
    from: "+15550100"
`,
			errMsg: "channels.sms",
		},
		{
			name:   "malformed yaml",
			yaml:   "server: [",
			errMsg: "parse config",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.yaml))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("error = %q, want substring %q", err.Error(), tt.errMsg)
			}
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}
