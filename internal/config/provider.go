package config

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/blue-kestrel/shipsentry/internal/models"
	"github.com/blue-kestrel/shipsentry/internal/storage"
)

// ErrConfigurationMissing is returned when an alert type has no
// configuration. The alert is still admitted; the caller logs a
// degraded-mode condition and schedules no escalation or notification.
var ErrConfigurationMissing = errors.New("no configuration for alert type")

// Provider is the runtime read surface for alert configurations.
type Provider interface {
	// ForType returns the configuration for an alert type, or
	// ErrConfigurationMissing.
	ForType(ctx context.Context, alertType string) (*models.AlertConfiguration, error)
}

// StoreProvider serves configurations from storage.
type StoreProvider struct {
	repo storage.ConfigurationRepository
}

// NewStoreProvider creates a storage-backed configuration provider.
func NewStoreProvider(repo storage.ConfigurationRepository) *StoreProvider {
	return &StoreProvider{repo: repo}
}

// ForType returns the configuration for an alert type.
func (p *StoreProvider) ForType(ctx context.Context, alertType string) (*models.AlertConfiguration, error) {
	cfg, err := p.repo.GetByType(ctx, alertType)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("alert type %s: %w", alertType, ErrConfigurationMissing)
		}
		return nil, err
	}
	return cfg, nil
}

// Seed loads configurations from a YAML file and upserts them into
// storage. Existing rows keep their ids; escalation chains are
// replaced wholesale.
func Seed(ctx context.Context, repo storage.ConfigurationRepository, path string) (int, error) {
	configs, err := LoadFile(path)
	if err != nil {
		return 0, err
	}

	now := time.Now()
	for _, cfg := range configs {
		if cfg.ID == "" {
			cfg.ID = uuid.New().String()
		}
		if cfg.CreatedAt.IsZero() {
			cfg.CreatedAt = now
		}
		cfg.UpdatedAt = now
		if err := repo.Upsert(ctx, cfg); err != nil {
			return 0, fmt.Errorf("seed configuration %s: %w", cfg.AlertType, err)
		}
	}
	return len(configs), nil
}
