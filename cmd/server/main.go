/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the channel ledger server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load .env (optional) and TILL_* configuration
  2. Parse command-line flags (override config)
  3. Open the SQL store and apply migrations
  4. Build engine with metrics, event publisher and retry policy
  5. Wrap reports with the Redis cache when configured
  6. Start the reconciliation scheduler
  7. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (default: TILL_APP_PORT)
  -db      Database DSN (default: TILL_DB_DSN)
           Use ":memory:" for an in-memory SQLite database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the scheduler, close Kafka, Redis and the database
  4. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/till.db"

  # Run against PostgreSQL with Kafka events
  TILL_DB_DRIVER=postgres TILL_DB_DSN="postgres://..." TILL_KAFKA_BROKERS=localhost:9092 ./server

SEE ALSO:
  - api/server.go: Router configuration
  - config/config.go: Environment variables
  - store/sqlstore/sqlstore.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/warp/channel-ledger/api"
	"github.com/warp/channel-ledger/auth"
	"github.com/warp/channel-ledger/config"
	"github.com/warp/channel-ledger/events"
	"github.com/warp/channel-ledger/ledger"
	"github.com/warp/channel-ledger/logger"
	"github.com/warp/channel-ledger/metrics"
	"github.com/warp/channel-ledger/reports"
	"github.com/warp/channel-ledger/store/sqlstore"
)

const devSecret = "till-dev-secret"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Flags
	port := flag.String("port", cfg.App.Port, "HTTP server port")
	dsn := flag.String("db", cfg.DB.DSN, "Database DSN (SQLite path or postgres URL)")
	flag.Parse()
	cfg.App.Port = *port
	cfg.DB.DSN = *dsn

	logg := logger.New(logger.Options{
		ServiceName: "channel-ledger",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
	})
	ctx := context.Background()

	// Initialize store
	store, err := sqlstore.Open(ctx, cfg.DB)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer store.Close()

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	ledgerMetrics := metrics.NewLedgerMetrics(registry)
	schedulerMetrics := metrics.NewSchedulerMetrics(registry)

	// Events
	var publisher events.Publisher = events.LogPublisher{Logger: logg}
	if cfg.Kafka.Enabled() {
		kafka := events.NewKafkaPublisher(cfg.Kafka)
		defer kafka.Close()
		publisher = kafka
	}

	engine := ledger.NewEngine(store,
		ledger.WithLogger(logg),
		ledger.WithObserver(ledgerMetrics),
		ledger.WithPublisher(publisher),
		ledger.WithRetryPolicy(cfg.Ledger.MaxAttempts, cfg.Ledger.AttemptTimeout, cfg.Ledger.WriteTimeout),
	)

	// Reports, read through Redis when configured
	var reporter reports.Reporter = reports.NewAggregator(store)
	if cfg.Redis.Enabled() {
		rdb, err := reports.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			logg.Error(ctx, "redis.unavailable", err)
		} else {
			defer rdb.Close()
			reporter = reports.NewCache(reporter, rdb, cfg.Redis.ReportTTL, logg)
		}
	}

	if cfg.JWT.Secret == "" && cfg.App.IsDev() {
		cfg.JWT.Secret = devSecret
		token, err := auth.Mint(cfg.JWT, time.Now(), auth.Actor{ID: "demo", OwnerID: "demo-store"})
		if err != nil {
			return err
		}
		logg.Warn(logg.WithField(ctx, "token", token), "auth.dev_token_issued")
	}

	handler := api.NewHandler(engine, reporter, store, logg)
	handler.AllowScenarios = cfg.App.IsDev()

	router := api.NewRouter(handler, api.RouterConfig{
		JWT:            cfg.JWT,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		Metrics:        promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		Ping:           store.Ping,
	})

	// Reconciliation scheduler
	scheduler := api.NewReconciliationScheduler(engine, logg, schedulerMetrics)
	scheduler.CheckInterval = cfg.Scheduler.Interval
	scheduler.Enabled = cfg.Scheduler.Enabled
	scheduler.Start()
	defer scheduler.Stop()

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"port":   cfg.App.Port,
			"driver": store.Driver(),
			"env":    cfg.App.Env,
		}), "server.starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	}

	logg.Info(ctx, "server.shutting_down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logg.Info(ctx, "server.stopped")
	return nil
}
