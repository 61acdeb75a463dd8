package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/blue-kestrel/shipsentry/internal/api"
	"github.com/blue-kestrel/shipsentry/internal/api/health"
	"github.com/blue-kestrel/shipsentry/internal/channel"
	sentrycfg "github.com/blue-kestrel/shipsentry/internal/config"
	"github.com/blue-kestrel/shipsentry/internal/dispatch"
	"github.com/blue-kestrel/shipsentry/internal/escalation"
	"github.com/blue-kestrel/shipsentry/internal/lifecycle"
	"github.com/blue-kestrel/shipsentry/internal/metrics"
	"github.com/blue-kestrel/shipsentry/internal/render"
	"github.com/blue-kestrel/shipsentry/internal/storage"
	"github.com/blue-kestrel/shipsentry/internal/suppression"
	"github.com/blue-kestrel/shipsentry/pkg/config"
)

var (
	configFile string
	httpAddr   string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "shipsentry-server",
	Short: "ShipSentry Server - Alert lifecycle and notification engine",
	Long: `ShipSentry Server ingests supplier and shipment alerts, walks them
through their lifecycle, escalates the unacknowledged ones, and fans
notifications out across the configured delivery channels.`,
	RunE: runServer,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(config.VersionString())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path (optional)")
	rootCmd.PersistentFlags().StringVarP(&httpAddr, "address", "a", "", "HTTP listen address")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServer(cmd *cobra.Command, args []string) error {
	var cfg *Config

	// Load configuration from file if provided
	if configFile != "" {
		var err error
		cfg, err = LoadConfig(configFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
	} else {
		cfg = DefaultConfig()
	}

	// Override with CLI flags
	if httpAddr != "" {
		cfg.Server.HTTPAddress = httpAddr
	}
	cfg.Verbose = verbose

	// Auto-create data directory
	dbDir := filepath.Dir(cfg.Database.Path)
	if err := os.MkdirAll(dbDir, 0750); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	// Initialize storage
	store := storage.NewSQLiteStorage(cfg.Database.Path)
	if err := store.Open(); err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer store.Close()

	if err := store.Migrate(); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	log.Printf("database initialized at %s", cfg.Database.Path)

	// Setup signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Printf("received signal %v, shutting down...", sig)
		cancel()
	}()

	// Alert configurations: seed from file, serve from store, reload on
	// file change.
	provider := sentrycfg.NewStoreProvider(store.Configurations())
	if cfg.Configurations.Path != "" {
		n, err := sentrycfg.Seed(ctx, store.Configurations(), cfg.Configurations.Path)
		if err != nil {
			return fmt.Errorf("seed alert configurations: %w", err)
		}
		log.Printf("loaded %d alert configurations from %s", n, cfg.Configurations.Path)

		if cfg.Configurations.Watch {
			watcher, err := sentrycfg.NewWatcher(cfg.Configurations.Path, store.Configurations())
			if err != nil {
				return fmt.Errorf("watch alert configurations: %w", err)
			}
			watcher.Start(ctx)
			defer watcher.Close()
		}
	}

	renderer, err := render.New()
	if err != nil {
		return fmt.Errorf("load templates: %w", err)
	}

	registry, err := buildRegistry(cfg)
	if err != nil {
		return err
	}
	defer registry.Close()
	log.Printf("delivery channels enabled: %v", registry.Channels())

	dispatcher := dispatch.NewDispatcher(store, registry, &dispatch.Options{
		WorkersPerChannel: cfg.Dispatch.WorkersPerChannel,
		QueueSize:         cfg.Dispatch.QueueSize,
		MaxRetries:        cfg.Dispatch.MaxRetries,
		BackoffBase:       cfg.Dispatch.BackoffBase,
		BackoffMax:        cfg.Dispatch.BackoffMax,
	})
	dispatcher.Start(ctx)
	defer dispatcher.Stop()

	suppressor := suppression.NewEngine(store.Alerts(), provider, dispatcher, renderer)
	lm := lifecycle.NewManager(store.Alerts(), store.Escalations())

	scheduler := escalation.NewScheduler(store.Alerts(), store.Escalations(), provider, dispatcher, renderer, &escalation.Options{
		Interval:    cfg.Escalation.SweepInterval,
		Concurrency: cfg.Escalation.Concurrency,
	})
	scheduler.Start(ctx)
	defer scheduler.Stop()

	// Metrics server
	metricsSrv := metrics.NewServer(cfg.Server.MetricsAddress)
	go func() {
		if err := metricsSrv.Run(ctx); err != nil {
			log.Printf("metrics server error: %v", err)
		}
	}()

	// HTTP API server
	srv, err := api.New(&api.Config{
		Address: cfg.Server.HTTPAddress,
		Verbose: cfg.Verbose,
	}, store, suppressor, lm, dispatcher)
	if err != nil {
		return fmt.Errorf("create API server: %w", err)
	}
	srv.RegisterHealthChecker(health.NewSQLiteChecker(store.DB()))

	log.Printf("starting shipsentry-server %s", config.Version)
	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("run server: %w", err)
	}

	log.Printf("server stopped")
	return nil
}

// buildRegistry constructs senders for every enabled channel, each
// wrapped with its configured rate limit.
func buildRegistry(cfg *Config) (*channel.Registry, error) {
	registry := channel.NewRegistry()

	if cfg.Channels.Email.Enabled {
		sender, err := channel.NewEmailSender(cfg.Channels.Email.EmailConfig)
		if err != nil {
			return nil, fmt.Errorf("email channel: %w", err)
		}
		registry.Register(channel.NewRateLimitedSender(sender, cfg.Channels.Email.Rate.Limit()))
	}
	if cfg.Channels.Chat.Enabled {
		sender, err := channel.NewChatSender(cfg.Channels.Chat.ChatConfig)
		if err != nil {
			return nil, fmt.Errorf("chat channel: %w", err)
		}
		registry.Register(channel.NewRateLimitedSender(sender, cfg.Channels.Chat.Rate.Limit()))
	}
	if cfg.Channels.SMS.Enabled {
		sender, err := channel.NewSMSSender(cfg.Channels.SMS.SMSConfig)
		if err != nil {
			return nil, fmt.Errorf("sms channel: %w", err)
		}
		registry.Register(channel.NewRateLimitedSender(sender, cfg.Channels.SMS.Rate.Limit()))
	}
	if cfg.Channels.Push.Enabled {
		sender, err := channel.NewPushSender(cfg.Channels.Push.PushConfig)
		if err != nil {
			return nil, fmt.Errorf("push channel: %w", err)
		}
		registry.Register(channel.NewRateLimitedSender(sender, cfg.Channels.Push.Rate.Limit()))
	}
	if cfg.Channels.Webhook.Enabled {
		sender := channel.NewWebhookSender(cfg.Channels.Webhook.WebhookConfig)
		registry.Register(channel.NewRateLimitedSender(sender, cfg.Channels.Webhook.Rate.Limit()))
	}

	return registry, nil
}
