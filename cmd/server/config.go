// Package main provides the ShipSentry server CLI.
package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/blue-kestrel/shipsentry/internal/channel"
)

// Config represents the server configuration.
type Config struct {
	Server         ServerConfig     `yaml:"server"`
	Database       DatabaseConfig   `yaml:"database"`
	Configurations ConfigsConfig    `yaml:"configurations"`
	Escalation     EscalationConfig `yaml:"escalation"`
	Dispatch       DispatchConfig   `yaml:"dispatch"`
	Channels       ChannelsConfig   `yaml:"channels"`
	Verbose        bool             `yaml:"-"` // set via CLI flag
}

// ServerConfig contains listener settings.
type ServerConfig struct {
	HTTPAddress    string `yaml:"http_address"`    // HTTP API listen address (default: :8080)
	MetricsAddress string `yaml:"metrics_address"` // Prometheus listen address (default: :9090)
}

// DatabaseConfig contains storage settings.
type DatabaseConfig struct {
	Path string `yaml:"path"` // SQLite database file
}

// ConfigsConfig points at the alert-configuration YAML file.
type ConfigsConfig struct {
	Path  string `yaml:"path"`  // alert configuration file (optional)
	Watch bool   `yaml:"watch"` // reload the file on change
}

// EscalationConfig tunes the escalation scheduler.
type EscalationConfig struct {
	SweepInterval time.Duration `yaml:"sweep_interval"`
	Concurrency   int           `yaml:"concurrency"`
}

// DispatchConfig tunes the delivery worker pools.
type DispatchConfig struct {
	WorkersPerChannel int           `yaml:"workers_per_channel"`
	QueueSize         int           `yaml:"queue_size"`
	MaxRetries        int           `yaml:"max_retries"`
	BackoffBase       time.Duration `yaml:"backoff_base"`
	BackoffMax        time.Duration `yaml:"backoff_max"`
}

// RateConfig is a per-channel send rate limit.
type RateConfig struct {
	PerSecond float64 `yaml:"per_second"`
	Burst     int     `yaml:"burst"`
}

// Limit converts the rate config to the channel rate limit.
func (r RateConfig) Limit() channel.RateLimit {
	return channel.RateLimit{PerSecond: r.PerSecond, Burst: r.Burst}
}

// EmailChannelConfig enables the email channel.
type EmailChannelConfig struct {
	Enabled             bool       `yaml:"enabled"`
	Rate                RateConfig `yaml:"rate"`
	channel.EmailConfig `yaml:",inline"`
}

// ChatChannelConfig enables the chat channel.
type ChatChannelConfig struct {
	Enabled            bool       `yaml:"enabled"`
	Rate               RateConfig `yaml:"rate"`
	channel.ChatConfig `yaml:",inline"`
}

// SMSChannelConfig enables the SMS channel.
type SMSChannelConfig struct {
	Enabled           bool       `yaml:"enabled"`
	Rate              RateConfig `yaml:"rate"`
	channel.SMSConfig `yaml:",inline"`
}

// PushChannelConfig enables the push channel.
type PushChannelConfig struct {
	Enabled            bool       `yaml:"enabled"`
	Rate               RateConfig `yaml:"rate"`
	channel.PushConfig `yaml:",inline"`
}

// WebhookChannelConfig enables the outbound webhook channel.
type WebhookChannelConfig struct {
	Enabled               bool       `yaml:"enabled"`
	Rate                  RateConfig `yaml:"rate"`
	channel.WebhookConfig `yaml:",inline"`
}

// ChannelsConfig holds per-channel credentials.
type ChannelsConfig struct {
	Email   EmailChannelConfig   `yaml:"email"`
	Chat    ChatChannelConfig    `yaml:"chat"`
	SMS     SMSChannelConfig     `yaml:"sms"`
	Push    PushChannelConfig    `yaml:"push"`
	Webhook WebhookChannelConfig `yaml:"webhook"`
}

// LoadConfig loads configuration from a YAML file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

// setDefaults sets default values for missing config fields.
func (c *Config) setDefaults() {
	if c.Server.HTTPAddress == "" {
		c.Server.HTTPAddress = ":8080"
	}
	if c.Server.MetricsAddress == "" {
		c.Server.MetricsAddress = ":9090"
	}
	if c.Database.Path == "" {
		c.Database.Path = "data/shipsentry.db"
	}
	if c.Escalation.SweepInterval == 0 {
		c.Escalation.SweepInterval = 30 * time.Second
	}
	if c.Escalation.Concurrency == 0 {
		c.Escalation.Concurrency = 8
	}
	if c.Dispatch.WorkersPerChannel == 0 {
		c.Dispatch.WorkersPerChannel = 4
	}
	if c.Dispatch.QueueSize == 0 {
		c.Dispatch.QueueSize = 256
	}
	if c.Dispatch.MaxRetries == 0 {
		c.Dispatch.MaxRetries = 3
	}
	if c.Dispatch.BackoffBase == 0 {
		c.Dispatch.BackoffBase = 5 * time.Second
	}
	if c.Dispatch.BackoffMax == 0 {
		c.Dispatch.BackoffMax = 2 * time.Minute
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Escalation.SweepInterval < time.Second {
		return fmt.Errorf("escalation.sweep_interval must be at least 1s")
	}
	if c.Dispatch.BackoffMax < c.Dispatch.BackoffBase {
		return fmt.Errorf("dispatch.backoff_max must be at least dispatch.backoff_base")
	}
	if c.Channels.Email.Enabled {
		if err := c.Channels.Email.EmailConfig.Validate(); err != nil {
			return fmt.Errorf("channels.email: %w", err)
		}
	}
	if c.Channels.Chat.Enabled {
		if err := c.Channels.Chat.ChatConfig.Validate(); err != nil {
			return fmt.Errorf("channels.chat: %w", err)
		}
	}
	if c.Channels.SMS.Enabled {
		if err := c.Channels.SMS.SMSConfig.Validate(); err != nil {
			return fmt.Errorf("channels.sms: %w", err)
		}
	}
	if c.Channels.Push.Enabled {
		if err := c.Channels.Push.PushConfig.Validate(); err != nil {
			return fmt.Errorf("channels.push: %w", err)
		}
	}
	return nil
}
