package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel"

	"github.com/syncmesh/syncmesh-server/internal/api"
	"github.com/syncmesh/syncmesh-server/internal/config"
	"github.com/syncmesh/syncmesh-server/internal/events"
	"github.com/syncmesh/syncmesh-server/internal/store"
	"github.com/syncmesh/syncmesh-server/internal/supervisor"
	"github.com/syncmesh/syncmesh-server/internal/sync"
	"github.com/syncmesh/syncmesh-server/internal/telemetry"
	"github.com/syncmesh/syncmesh-server/internal/transport"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the syncmesh server",
	Long: `Start the syncmesh server to supervise endpoint connectivity and
synchronize state between instances.

The server requires a configuration file (--config) that specifies:
- Endpoints to supervise and instances to synchronize
- Reconnection and retry tuning
- Storage backend (in-memory or PostgreSQL)

See examples/ directory for sample configurations.`,
	RunE: runServe,
}

const (
	defaultGracefulTimeout = 30 * time.Second // Kubernetes-friendly shutdown time
	serverRequestTimeout   = 10 * time.Second // Sync requests include a bounded push retry loop
	serverReadTimeout      = 10 * time.Second // Enough for headers and small requests
	serverWriteTimeout     = 15 * time.Second // Must be > serverRequestTimeout to let middleware handle timeout
	serverIdleTimeout      = 60 * time.Second // Keep connections alive for reuse
)

func init() {
	serveCmd.Flags().String("address", ":8080", "Address to listen on")
	serveCmd.Flags().String("config", "", "Path to configuration file (YAML format, required)")

	err := viper.BindPFlag("address", serveCmd.Flags().Lookup("address"))
	if err != nil {
		slog.Error("Failed to bind address flag", "error", err)
		os.Exit(1)
	}
	err = viper.BindPFlag("config", serveCmd.Flags().Lookup("config"))
	if err != nil {
		slog.Error("Failed to bind config flag", "error", err)
		os.Exit(1)
	}

	// Mark config as required
	if err := serveCmd.MarkFlagRequired("config"); err != nil {
		slog.Error("Failed to mark config flag as required", "error", err)
		os.Exit(1)
	}
}

// buildResolver maps configured endpoint and instance ids to their base
// URLs. Instances without an explicit URL inherit their endpoint's URL.
func buildResolver(cfg *config.Config) transport.Resolver {
	urls := make(map[string]string, len(cfg.Endpoints)+len(cfg.Instances))
	for _, ep := range cfg.Endpoints {
		urls[ep.ID] = ep.URL
	}
	for _, inst := range cfg.Instances {
		switch {
		case inst.URL != "":
			urls[inst.ID] = inst.URL
		case inst.Endpoint != "":
			urls[inst.ID] = urls[inst.Endpoint]
		}
	}
	return func(id string) (string, error) {
		base, ok := urls[id]
		if !ok || base == "" {
			return "", fmt.Errorf("no base URL configured for %q", id)
		}
		return base, nil
	}
}

// createPool creates a pgx connection pool when database storage is
// configured; it returns nil for in-memory storage.
func createPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	if cfg.Database == nil {
		return nil, nil
	}

	connString, err := cfg.Database.GetConnectionString()
	if err != nil {
		return nil, fmt.Errorf("failed to build connection string: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse pool config: %w", err)
	}
	if cfg.Database.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.Database.MaxConns) // #nosec G115 -- validated config value
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}

// logEvents drains the bus subscription and logs each event
func logEvents(ch <-chan events.Event) {
	for evt := range ch {
		slog.Info("Event",
			"type", evt.Type,
			"endpoint", evt.EndpointID,
			"instance", evt.InstanceID,
			"operation", evt.OperationID,
			"status", evt.Status,
			"detail", evt.Detail)
	}
}

func runServe(_ *cobra.Command, _ []string) error {
	ctx := context.Background()
	address := viper.GetString("address")

	slog.Info("Starting syncmesh server", "address", address)

	// Load and validate configuration
	configPath := viper.GetString("config")
	cfg, err := config.LoadConfig(config.WithConfigPath(configPath))
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	slog.Info("Loaded configuration",
		"path", configPath,
		"server", cfg.GetServerName(),
		"storage", cfg.GetStorageType(),
		"endpoints", len(cfg.Endpoints),
		"instances", len(cfg.Instances))

	// Connect storage
	pool, err := createPool(ctx, cfg)
	if err != nil {
		return err
	}
	if pool != nil {
		defer pool.Close()
	}

	stores, err := store.NewStores(cfg, pool)
	if err != nil {
		return fmt.Errorf("failed to create stores: %w", err)
	}

	// The event bus carries status changes and sync outcomes to observers
	bus := events.NewBus(0)
	defer bus.Close()

	eventCh, unsubscribe := bus.Subscribe()
	defer unsubscribe()
	go logEvents(eventCh)

	// Shared retry policy for probes and pushes
	policy, err := cfg.Retry.ToPolicy()
	if err != nil {
		return err
	}

	httpTransport := transport.NewHTTPTransport(buildResolver(cfg), 0)

	meterProvider := otel.GetMeterProvider()
	supMetrics, err := telemetry.NewSupervisorMetrics(meterProvider)
	if err != nil {
		return fmt.Errorf("failed to create supervisor metrics: %w", err)
	}
	syncMetrics, err := telemetry.NewSyncMetrics(meterProvider)
	if err != nil {
		return fmt.Errorf("failed to create sync metrics: %w", err)
	}

	// Reconnection supervisor
	supCfg := supervisor.DefaultConfig()
	supCfg.ProbePolicy = policy
	if cfg.Supervisor != nil {
		supCfg.SweepInterval = cfg.Supervisor.GetSweepInterval(supCfg.SweepInterval)
		supCfg.BaseDelay = cfg.Supervisor.GetBaseDelay(supCfg.BaseDelay)
		supCfg.CapDelay = cfg.Supervisor.GetCapDelay(supCfg.CapDelay)
	}
	sup := supervisor.New(stores.Endpoints, httpTransport, bus, supCfg,
		supervisor.WithMetrics(supMetrics))

	// Synchronizer gated on the supervisor's endpoint view
	syncer := sync.NewSynchronizer(stores.Temporal, httpTransport, bus,
		sync.WithEndpointHealth(sup),
		sync.WithPushPolicy(policy),
		sync.WithSyncMetrics(syncMetrics))

	// Register configured endpoints and instances; already-known ids are
	// fine on restart with persistent storage
	for _, ep := range cfg.Endpoints {
		if _, err := sup.RegisterEndpoint(ctx, ep.ID); err != nil && !errors.Is(err, store.ErrEndpointExists) {
			return fmt.Errorf("failed to register endpoint %s: %w", ep.ID, err)
		}
	}
	for _, inst := range cfg.Instances {
		if _, err := syncer.RegisterInstance(ctx, inst.ID, inst.Endpoint); err != nil && !errors.Is(err, store.ErrInstanceExists) {
			return fmt.Errorf("failed to register instance %s: %w", inst.ID, err)
		}
	}

	// Start the supervisor sweep loop
	supCtx, supCancel := context.WithCancel(context.Background())
	defer supCancel()
	go func() {
		if err := sup.Start(supCtx); err != nil {
			slog.Error("Supervisor failed", "error", err)
		}
	}()

	// Create the API server with middleware
	router := api.NewServer(sup, syncer,
		api.WithMiddlewares(
			middleware.RequestID,
			middleware.RealIP,
			middleware.Recoverer,
			middleware.Timeout(serverRequestTimeout),
			api.LoggingMiddleware,
		),
	)

	server := &http.Server{
		Addr:         address,
		Handler:      router,
		ReadTimeout:  serverReadTimeout,
		WriteTimeout: serverWriteTimeout,
		IdleTimeout:  serverIdleTimeout,
	}

	// Start server in goroutine
	go func() {
		slog.Info("Server listening", "address", address)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutting down server...")

	// Stop the supervisor before the HTTP server so no probe outlives it
	if err := sup.Stop(); err != nil {
		slog.Error("Failed to stop supervisor", "error", err)
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultGracefulTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		return err
	}

	slog.Info("Server shutdown complete")
	return nil
}
