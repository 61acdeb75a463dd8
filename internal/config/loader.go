// Package config loads and serves alert configurations: the per
// alert-type policies for channels, recipients, escalation chains,
// suppression, and business-hours gating.
package config

import (
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/blue-kestrel/shipsentry/internal/models"
)

// configFile is the YAML file layout for alert configurations.
type configFile struct {
	Configurations []*models.AlertConfiguration `yaml:"configurations"`
}

// LoadFile loads alert configurations from a YAML file.
func LoadFile(path string) ([]*models.AlertConfiguration, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open configurations file: %w", err)
	}
	defer f.Close()

	return Load(f)
}

// Load loads alert configurations from a reader.
func Load(r io.Reader) ([]*models.AlertConfiguration, error) {
	var file configFile
	decoder := yaml.NewDecoder(r)
	if err := decoder.Decode(&file); err != nil {
		return nil, fmt.Errorf("parse configurations YAML: %w", err)
	}

	for i, cfg := range file.Configurations {
		if err := Validate(cfg); err != nil {
			return nil, fmt.Errorf("invalid configuration at index %d: %w", i, err)
		}
	}

	return file.Configurations, nil
}

// Validate checks an alert configuration for errors. Escalation rules
// are parsed into their structured form at load time, never at
// evaluation time, so the scheduler only ever sees valid chains.
func Validate(cfg *models.AlertConfiguration) error {
	if cfg.AlertType == "" {
		return fmt.Errorf("alert_type is required")
	}
	if len(cfg.Channels) == 0 {
		return fmt.Errorf("at least one channel is required")
	}
	for _, ch := range cfg.Channels {
		if _, ok := models.ParseChannel(string(ch)); !ok {
			return fmt.Errorf("unknown channel %q", ch)
		}
	}
	if len(cfg.Recipients) == 0 {
		return fmt.Errorf("at least one recipient is required")
	}

	// Levels must be strictly ascending from 1 so the escalation trail
	// stays deterministic and auditable.
	for i, rule := range cfg.Escalation {
		if rule.Level != i+1 {
			return fmt.Errorf("escalation levels must ascend from 1 without gaps, got level %d at index %d", rule.Level, i)
		}
		if rule.DelayMinutes <= 0 {
			return fmt.Errorf("escalation level %d: delay_minutes must be positive", rule.Level)
		}
		if rule.EscalateTo == "" {
			return fmt.Errorf("escalation level %d: escalate_to is required", rule.Level)
		}
	}

	if cfg.Suppression.Enabled && cfg.Suppression.WindowMinutes <= 0 {
		return fmt.Errorf("suppression window_minutes must be positive when suppression is enabled")
	}

	if cfg.Hours.Enabled {
		if cfg.Hours.StartHour < 0 || cfg.Hours.StartHour > 23 ||
			cfg.Hours.EndHour < 1 || cfg.Hours.EndHour > 24 ||
			cfg.Hours.StartHour >= cfg.Hours.EndHour {
			return fmt.Errorf("business hours window %d-%d is invalid", cfg.Hours.StartHour, cfg.Hours.EndHour)
		}
		if _, err := time.LoadLocation(cfg.Hours.Timezone); err != nil {
			return fmt.Errorf("invalid business hours timezone %q: %w", cfg.Hours.Timezone, err)
		}
	}

	return nil
}
