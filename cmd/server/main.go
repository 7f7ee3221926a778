/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the pay engine server. Handles configuration,
  dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env + environment, then flags)
  2. Build the zap logger
  3. Open the SQLite planning store (and PostgreSQL pay store if configured)
  4. Load the seed dataset, if any
  5. Build the distance resolver and the pay service
  6. Configure HTTP router and the draft scheduler
  7. Start server with graceful shutdown

COMMAND-LINE FLAGS (override the environment):
  -port    HTTP server port
  -db      SQLite database path; ":memory:" for an in-memory database
  -seed    Dataset file loaded at startup
  -env     Env file to load (default .env)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the draft scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connections
  5. Exit

EXAMPLES:
  # Demo with an in-memory database
  ./server -db=":memory:" -seed=./testdata/agency.yaml

  # Pay records in PostgreSQL
  PAY_STORE=postgres DATABASE_URL=postgres://pay@localhost/pay ./server

SEE ALSO:
  - config/config.go: Environment variables
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Planning store
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

	"go.uber.org/zap"

	"github.com/warp/pay-engine/api"
	"github.com/warp/pay-engine/config"
	"github.com/warp/pay-engine/factory"
	"github.com/warp/pay-engine/generic"
	"github.com/warp/pay-engine/pay"
	"github.com/warp/pay-engine/store/postgres"
	"github.com/warp/pay-engine/store/sqlite"
	"github.com/warp/pay-engine/transport"
)

func main() {
	// Flags
	envFile := flag.String("env", ".env", "Env file to load")
	port := flag.Int("port", 0, "HTTP server port (overrides APP_PORT)")
	dbPath := flag.String("db", "", "SQLite database path (overrides DB_PATH)")
	seedFile := flag.String("seed", "", "Dataset file loaded at startup (overrides SEED_FILE)")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.App.Port = *port
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}
	if *seedFile != "" {
		cfg.App.SeedFile = *seedFile
	}

	logger, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	zcfg := zap.NewDevelopmentConfig()
	if cfg.IsProduction() {
		zcfg = zap.NewProductionConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(cfg.Level())
	return zcfg.Build()
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx := context.Background()

	// Initialize store
	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer store.Close()

	var repo pay.Repository = store
	if cfg.Database.PayStore == config.StorePostgres {
		pg, err := postgres.Open(ctx, cfg.Database.URL)
		if err != nil {
			return fmt.Errorf("failed to connect to postgres: %w", err)
		}
		defer pg.Close()
		repo = pg
		logger.Info("pay records stored in postgres")
	}

	if cfg.App.SeedFile != "" {
		ds, err := factory.LoadFile(cfg.App.SeedFile)
		if err != nil {
			return err
		}
		if err := factory.Seed(ctx, ds, store); err != nil {
			return fmt.Errorf("failed to seed %s: %w", cfg.App.SeedFile, err)
		}
		logger.Info("dataset loaded",
			zap.String("file", cfg.App.SeedFile),
			zap.Int("workers", len(ds.Workers)),
			zap.Int("events", len(ds.Events)),
		)
	}

	resolver, err := newResolver(cfg, store, logger)
	if err != nil {
		return err
	}

	publicHolidays := generic.NewFrenchHolidays()
	svc := pay.NewService(store, repo, resolver, generic.Calendars{publicHolidays, store}, logger,
		pay.WithConcurrency(cfg.Pay.Concurrency))

	handler := api.NewHandler(svc, store, publicHolidays, cfg.Location(), logger)
	router := api.NewRouter(handler, api.RouterOptions{})

	scheduler := api.NewDraftScheduler(svc, cfg.Location(), logger)
	scheduler.Start()
	defer scheduler.Stop()

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.App.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.Int("port", cfg.App.Port),
			zap.String("env", cfg.App.Env),
			zap.String("timezone", cfg.App.Timezone),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serverErr:
		return err
	case <-quit:
	}

	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

// newResolver chains the Distance Matrix API, when a key is configured, with
// the straight-line estimate.
func newResolver(cfg *config.Config, store *sqlite.Store, logger *zap.Logger) (*transport.Resolver, error) {
	var chain transport.Chain
	if cfg.Distance.APIKey != "" {
		maps, err := transport.NewMapsProvider(cfg.Distance.APIKey, cfg.Distance.BaseURL)
		if err != nil {
			return nil, err
		}
		chain = append(chain, maps)
	} else {
		logger.Warn("DISTANCE_API_KEY not set, travel times are estimated")
	}
	chain = append(chain, transport.NewEstimateProvider())

	resolver := transport.NewResolver(chain, store, logger)
	resolver.Timeout = cfg.Distance.Timeout
	return resolver, nil
}
