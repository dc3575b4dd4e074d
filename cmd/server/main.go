// Package main is the entry point for the FinLens dashboard backend.
// The application ingests annual-report datasets, derives second-order
// metrics, and serves filtered, chart-ready views over a REST API and a
// websocket state stream.
//
// The application follows clean architecture principles:
// - Domain layer is pure (no infrastructure dependencies)
// - Repository pattern for data access
// - Service layer for business logic
// - HTTP handlers for API endpoints
package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/finlens/finlens/internal/charts"
	"github.com/finlens/finlens/internal/clientdata"
	"github.com/finlens/finlens/internal/clients/exchangerate"
	"github.com/finlens/finlens/internal/clients/extraction"
	"github.com/finlens/finlens/internal/config"
	"github.com/finlens/finlens/internal/database"
	"github.com/finlens/finlens/internal/dataset"
	"github.com/finlens/finlens/internal/derive"
	"github.com/finlens/finlens/internal/domain"
	"github.com/finlens/finlens/internal/filter"
	"github.com/finlens/finlens/internal/forecast"
	"github.com/finlens/finlens/internal/insights"
	"github.com/finlens/finlens/internal/orchestrator"
	"github.com/finlens/finlens/internal/scheduler"
	"github.com/finlens/finlens/internal/server"
	"github.com/finlens/finlens/pkg/logger"
)

// main orchestrates the system startup sequence:
// 1. Loads configuration from environment variables
// 2. Initializes logging
// 3. Opens the datasets and client_data databases
// 4. Wires repositories, external clients and the view orchestrator
// 5. Reloads the most recent dataset so the dashboard survives restarts
// 6. Starts the HTTP server and the maintenance scheduler
// 7. Waits for shutdown signal and performs graceful shutdown
//
// The application uses a 2-database architecture:
// - datasets.db: Uploaded annual-report datasets (durable)
// - client_data.db: Cache for exchange rates and extraction results (ephemeral)
func main() {
	// Load configuration first to get log level
	cfg, err := config.Load()
	if err != nil {
		// Use fallback logger if config fails
		fallbackLog := logger.New(logger.Config{
			Level:  "info",
			Pretty: true,
		})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	log.Info().Msg("Starting FinLens")

	// Datasets database: durable storage for uploaded reports.
	datasetsDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "datasets.db"),
		Profile: database.ProfileStandard,
		Name:    "datasets",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open datasets database")
	}
	defer datasetsDB.Close()

	// Client data database: ephemeral cache, safe to delete between runs.
	clientDataDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "client_data.db"),
		Profile: database.ProfileCache,
		Name:    "client_data",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open client data database")
	}
	defer clientDataDB.Close()

	datasetRepo, err := dataset.NewRepository(datasetsDB.Conn())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize dataset repository")
	}

	cacheRepo, err := clientdata.NewRepository(clientDataDB.Conn())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize client data repository")
	}

	// External collaborators. The extraction client stays disabled when no
	// service URL is configured; uploads are then limited to dataset JSON.
	rateClient := exchangerate.NewClient(cfg.ExchangeRateAPIURL, cacheRepo, log)
	extractionClient := extraction.NewClient(cfg.ExtractionServiceURL, cacheRepo, log)

	insightsGen := insights.New()
	chartService := charts.NewService(log)
	snapshotCache := derive.NewCache(derive.DefaultSnapshotTTL)

	orch := orchestrator.New(
		filter.New(),
		derive.New(),
		snapshotCache,
		chartService,
		rateClient,
		log,
	)

	// Reload the most recent dataset so a restart does not present an empty
	// dashboard. A failed reload is not fatal; the user can re-upload.
	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if latest, err := datasetRepo.Latest(); err != nil {
		log.Warn().Err(err).Msg("Failed to reload latest dataset")
	} else if latest != nil {
		if err := orch.SetDataset(startupCtx, latest); err != nil {
			log.Warn().Err(err).Str("dataset_id", latest.ID).Msg("Failed to activate reloaded dataset")
		} else {
			log.Info().
				Str("dataset_id", latest.ID).
				Str("company", latest.Company).
				Msg("Reloaded latest dataset")
		}
	}
	startupCancel()

	srv := server.New(server.Config{
		Log:          log,
		Config:       cfg,
		Port:         cfg.Port,
		DevMode:      cfg.DevMode,
		Orchestrator: orch,
		DatasetRepo:  datasetRepo,
		Charts:       chartService,
		Forecaster:   forecast.New(),
		Insights:     insightsGen,
		Extraction:   extractionClient,
		Rates:        rateClient,
		HealthCheck: func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return datasetsDB.HealthCheck(ctx)
		},
	})

	// Maintenance jobs: keep the native/USD rate warm, expire cached client
	// data, purge stale derived snapshots, and checkpoint the databases.
	sched := scheduler.New(log)

	rateJob := exchangerate.NewRefreshJob(rateClient, cfg.NativeCurrency, domain.CurrencyUSD, log)
	if err := sched.AddJob("@every 30m", rateJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to register exchange rate refresh job")
	}
	if err := sched.AddJob("0 0 3 * * *", clientdata.NewCleanupJob(cacheRepo, log)); err != nil {
		log.Fatal().Err(err).Msg("Failed to register client data cleanup job")
	}
	if err := sched.AddJob("@every 10m", derive.NewPurgeJob(snapshotCache, log)); err != nil {
		log.Fatal().Err(err).Msg("Failed to register snapshot cache purge job")
	}
	if err := sched.AddJob("0 30 3 * * *", database.NewMaintenanceJob(datasetsDB, log)); err != nil {
		log.Fatal().Err(err).Msg("Failed to register datasets maintenance job")
	}
	if err := sched.AddJob("0 45 3 * * *", database.NewMaintenanceJob(clientDataDB, log)); err != nil {
		log.Fatal().Err(err).Msg("Failed to register client data maintenance job")
	}

	sched.Start()
	defer sched.Stop()

	// Warm the rate cache in the background so the first currency switch
	// does not wait on the upstream API.
	go func() {
		if err := sched.RunNow(rateJob); err != nil {
			log.Warn().Err(err).Msg("Initial exchange rate warm-up failed")
		}
	}()

	// Start server in goroutine so the main thread can wait on signals.
	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown: in-flight requests get up to 10 seconds to finish.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
