package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"shopsync/internal/checkpoint"
	"shopsync/internal/commerce"
	"shopsync/internal/config"
	"shopsync/internal/handler"
	"shopsync/internal/importer"
	"shopsync/internal/logger"
	"shopsync/internal/metrics"
	"shopsync/internal/objstore"
	"shopsync/internal/retry"
	"shopsync/internal/store"
	"shopsync/internal/syncer"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "shopsync",
	Short: "Synchronize commerce platform resources into a key-value store",
	Long: `A periodic, idempotent, at-least-once batch synchronizer that pulls
paginated collections (orders, products, customers) from a rate-limited
commerce API and durably persists them, tracking progress under well-known
metadata keys. A bulk importer ingests flat order files from an object store
into the same schema.`,
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run a full resync of products, customers and orders",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd, handler.Event{})
	},
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import flat order files from the object store",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd, handler.Event{Action: handler.ActionBulkImport})
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default is ./config.yaml)")

	// Upstream flags
	rootCmd.PersistentFlags().String("api-url", "", "Commerce API base URL")
	rootCmd.PersistentFlags().String("api-token", "", "Commerce API access token")

	// Store flags
	rootCmd.PersistentFlags().String("store-driver", "", "Key-value store driver (redis/sqlite)")
	rootCmd.PersistentFlags().String("redis-addr", "", "Redis address")
	rootCmd.PersistentFlags().String("sqlite-path", "", "SQLite database file")

	// Import flags
	rootCmd.PersistentFlags().String("import-endpoint", "", "Object store endpoint")
	rootCmd.PersistentFlags().String("import-access-key", "", "Object store access key")
	rootCmd.PersistentFlags().String("import-secret-key", "", "Object store secret key")
	rootCmd.PersistentFlags().String("bucket", "", "Import bucket name")
	rootCmd.PersistentFlags().String("prefix", "", "Import object prefix")

	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug/info/warn/error)")
	rootCmd.PersistentFlags().String("metrics-addr", "", "Metrics listen address (empty disables)")

	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(importCmd)
}

func run(cmd *cobra.Command, evt handler.Event) error {
	cfg, err := config.Load(configFile, cmd.Root().PersistentFlags())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()

	st, err := newStore(cfg)
	if err != nil {
		return fmt.Errorf("failed to create store: %w", err)
	}
	defer st.Close()

	tracker := checkpoint.New(st, cfg.Store.Tables.SyncMetadata, log)
	collector := metrics.New()

	if cfg.MetricsAddr != "" {
		go func() {
			if err := collector.StartServer(cfg.MetricsAddr); err != nil && err != http.ErrServerClosed {
				log.Error("Failed to start metrics server", zap.Error(err))
			}
		}()
	}

	h, err := buildHandler(cfg, st, tracker, collector, log)
	if err != nil {
		return err
	}

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info("Received shutdown signal, stopping...")
		cancel()
	}()

	resp := h.Handle(ctx, evt)
	fmt.Println(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("run finished with status %d", resp.StatusCode)
	}
	return nil
}

func buildHandler(cfg *config.Config, st store.Store, tracker *checkpoint.Tracker, collector *metrics.Collector, log *zap.Logger) (*handler.Handler, error) {
	var orchestrator *syncer.Orchestrator
	if cfg.Upstream.BaseURL != "" {
		client, err := commerce.NewClient(commerce.Options{
			BaseURL:  cfg.Upstream.BaseURL,
			Token:    cfg.Upstream.AccessToken,
			Timeout:  time.Duration(cfg.Upstream.TimeoutSeconds) * time.Second,
			PageSize: cfg.Sync.PageSize,
			Strategy: retry.Strategy{
				MaxAttempts: cfg.Sync.PageRetries,
				BaseDelay:   time.Duration(cfg.Sync.RetryBackoffMs) * time.Millisecond,
				MaxDelay:    time.Duration(cfg.Sync.MaxBackoffMs) * time.Millisecond,
				Jitter:      250 * time.Millisecond,
			},
			RateLimitDelay: time.Duration(cfg.Sync.RateLimitDelayMs) * time.Millisecond,
			PageDelay:      500 * time.Millisecond,
		}, log)
		if err != nil {
			return nil, fmt.Errorf("failed to create API client: %w", err)
		}
		orchestrator = syncer.New(client, st, tracker, collector, log, cfg.Store.Tables, cfg.Sync)
	}

	var imp *importer.Importer
	if cfg.Import.Endpoint != "" {
		objects, err := objstore.NewMinIOClient(objstore.Config{
			Endpoint:  cfg.Import.Endpoint,
			AccessKey: cfg.Import.AccessKey,
			SecretKey: cfg.Import.SecretKey,
			Secure:    cfg.Import.Secure,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create object store client: %w", err)
		}
		imp = importer.New(objects, st, tracker, collector, log,
			cfg.Import.Bucket, cfg.Import.Prefix, cfg.Store.Tables.Orders, cfg.Sync)
	}

	return handler.New(orchestrator, imp, log), nil
}

func newStore(cfg *config.Config) (store.Store, error) {
	switch cfg.Store.Driver {
	case "redis":
		return store.NewRedisStore(store.RedisConfig{
			Addr:     cfg.Store.RedisAddr,
			Password: cfg.Store.RedisPassword,
			DB:       cfg.Store.RedisDB,
		})
	default:
		return store.NewSQLiteStore(cfg.Store.SQLitePath)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
