package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"example.com/fleetops/services/payroll/config"
	"example.com/fleetops/services/payroll/internal/accounting"
	"example.com/fleetops/services/payroll/internal/api"
	"example.com/fleetops/services/payroll/internal/api/handlers"
	"example.com/fleetops/services/payroll/internal/cache"
	"example.com/fleetops/services/payroll/internal/ledger"
	"example.com/fleetops/services/payroll/internal/messaging"
	"example.com/fleetops/services/payroll/internal/metrics"
	"example.com/fleetops/services/payroll/internal/models"
	"example.com/fleetops/services/payroll/internal/search"
	"example.com/fleetops/services/payroll/internal/settlements"
	"example.com/fleetops/services/payroll/internal/tracing"
)

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Start the API server",
	Long:  `Start the HTTP API server for ledger and settlement operations`,
	RunE:  runAPI,
}

func init() {
	rootCmd.AddCommand(apiCmd)
}

func runAPI(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.LoadConfig(".")
	if err != nil {
		return err
	}

	// Configure logging
	if cfg.Environment == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	// Set up signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	// Initialize database connections
	db, readOnlyDB, err := initDatabases(cfg)
	if err != nil {
		return err
	}

	// Initialize cache
	redisCache, err := cache.NewRedisCache(cfg.Redis)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Redis cache, continuing without caching")
	}

	// Initialize tracer
	tracer, err := tracing.NewTracer(cfg.Tracing)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize tracer, continuing without tracing")
	}

	// Initialize Elasticsearch client
	elasticClient, err := search.NewElasticClient(cfg.Elastic)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Elasticsearch client, continuing without search functionality")
	}

	// Initialize Service Bus notifications, optional for local development
	var notifier settlements.Notifier
	azureBus, err := messaging.NewAzureServiceBus(cfg.ServiceBus, tracer)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Service Bus, continuing without notifications")
	} else {
		notifier = azureBus
		defer azureBus.Close()
	}

	// Initialize metrics
	metricsCollector := metrics.NewMetrics()

	// Initialize services
	ledgerService := ledger.NewService(db, readOnlyDB, redisCache, metricsCollector, tracer)
	accountingClient := accounting.NewHTTPClient(cfg.Accounting)

	var indexer settlements.Indexer
	var searcher handlers.SettlementSearcher
	if elasticClient != nil {
		indexer = elasticClient
		searcher = elasticClient
	}

	settlementService := settlements.NewService(db, readOnlyDB, redisCache, notifier, accountingClient, indexer, metricsCollector, tracer)

	// Initialize and start the server
	server := api.NewServer(cfg, ledgerService, settlementService, searcher, metricsCollector, tracer)

	// Start the server in a goroutine
	go func() {
		if err := server.Start(); err != nil {
			log.Error().Err(err).Msg("Server error")
		}
	}()

	// Wait for termination signal
	<-ctx.Done()

	// Shutdown the server
	if err := server.Shutdown(context.Background()); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
	}

	log.Info().Msg("Shutting down API server")
	return nil
}

func initDatabases(cfg config.Config) (*gorm.DB, *gorm.DB, error) {
	// Initialize write database
	db, err := gorm.Open(postgres.Open(cfg.DB.DSN), &gorm.Config{})
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to connect to write database")
	}

	// Initialize read-only database
	readOnlyDB, err := gorm.Open(postgres.Open(cfg.DB.ReadOnlyDSN), &gorm.Config{})
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to connect to read-only database")
	}

	// Auto-migrate only the write database
	if err := models.SetupModels(db); err != nil {
		return nil, nil, errors.Wrap(err, "failed to run migrations")
	}

	// Configure connection pools for both databases
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to get underlying write DB connection")
	}
	sqlDB.SetMaxIdleConns(cfg.DB.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.DB.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.DB.ConnMaxLifetime)

	// Higher limits on the read side, the pay ledger view is read heavy
	readSqlDB, err := readOnlyDB.DB()
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to get underlying read-only DB connection")
	}
	readSqlDB.SetMaxIdleConns(cfg.DB.MaxIdleConns * 2)
	readSqlDB.SetMaxOpenConns(cfg.DB.MaxOpenConns * 2)
	readSqlDB.SetConnMaxLifetime(time.Hour)

	return db, readOnlyDB, nil
}
