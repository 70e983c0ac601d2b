package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/fleetops/services/payroll/config"
	"example.com/fleetops/services/payroll/internal/api/handlers"
	"example.com/fleetops/services/payroll/internal/api/middleware"
	"example.com/fleetops/services/payroll/internal/ledger"
	"example.com/fleetops/services/payroll/internal/metrics"
	"example.com/fleetops/services/payroll/internal/settlements"
	"example.com/fleetops/services/payroll/internal/tracing"
)

// Server represents the HTTP server
type Server struct {
	config            config.Config
	router            *gin.Engine
	httpServer        *http.Server
	ledgerService     *ledger.Service
	settlementService *settlements.Service
	searcher          handlers.SettlementSearcher
	metrics           *metrics.Metrics
	tracer            tracing.Tracer
}

// NewServer creates a new HTTP server
func NewServer(
	cfg config.Config,
	ledgerService *ledger.Service,
	settlementService *settlements.Service,
	searcher handlers.SettlementSearcher,
	metricsCollector *metrics.Metrics,
	tracer tracing.Tracer,
) *Server {
	server := &Server{
		config:            cfg,
		ledgerService:     ledgerService,
		settlementService: settlementService,
		searcher:          searcher,
		metrics:           metricsCollector,
		tracer:            tracer,
	}

	router := server.setupRouter()
	server.router = router

	httpServer := &http.Server{
		Addr:    cfg.ServerAddress,
		Handler: router,
	}
	server.httpServer = httpServer

	return server
}

// setupRouter configures the HTTP router
func (s *Server) setupRouter() *gin.Engine {
	if s.config.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(s.metrics))

	// Metrics and health endpoints are unscoped
	metricsHandler := handlers.NewMetricsHandler(s.metrics, s.tracer)
	metricsHandler.RegisterRoutes(router)

	// Everything else requires a carrier scope
	v1 := router.Group("/v1")
	v1.Use(middleware.CarrierScope())

	ledgerHandler := handlers.NewLedgerHandler(s.ledgerService, s.tracer)
	ledgerHandler.RegisterRoutes(v1)

	settlementHandler := handlers.NewSettlementHandler(s.settlementService, s.searcher, s.tracer)
	settlementHandler.RegisterRoutes(v1)

	driverHandler := handlers.NewDriverHandler(s.ledgerService, s.settlementService, s.tracer)
	driverHandler.RegisterRoutes(v1)

	return router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	log.Info().Str("address", s.config.ServerAddress).Msg("Starting HTTP server")

	if err := s.httpServer.ListenAndServe(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "HTTP server error")
	}

	return nil
}

// Shutdown gracefully stops the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("Shutting down HTTP server")

	// Create a timeout context for shutdown
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "HTTP server shutdown error")
	}

	log.Info().Msg("HTTP server shut down successfully")
	return nil
}
