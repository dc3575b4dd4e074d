// Package server provides the HTTP server and routing for the dashboard
// backend.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/finlens/finlens/internal/charts"
	"github.com/finlens/finlens/internal/clients/extraction"
	"github.com/finlens/finlens/internal/config"
	"github.com/finlens/finlens/internal/dataset"
	"github.com/finlens/finlens/internal/forecast"
	"github.com/finlens/finlens/internal/insights"
	"github.com/finlens/finlens/internal/orchestrator"
)

// RateSource supplies currency conversion rates for the rate endpoint.
type RateSource interface {
	Rate(ctx context.Context, from, to string) (float64, error)
}

// Config holds server configuration.
type Config struct {
	Log          zerolog.Logger
	Config       *config.Config
	Port         int
	DevMode      bool
	Orchestrator *orchestrator.Orchestrator
	DatasetRepo  *dataset.Repository
	Charts       *charts.Service
	Forecaster   *forecast.Forecaster
	Insights     *insights.Generator
	Extraction   *extraction.Client
	Rates        RateSource
	// HealthCheck reports database health for the health endpoint.
	HealthCheck func() error
}

// Server represents the HTTP server.
type Server struct {
	router         *chi.Mux
	server         *http.Server
	log            zerolog.Logger
	cfg            *config.Config
	orch           *orchestrator.Orchestrator
	handlers       *Handlers
	systemHandlers *SystemHandlers
	streamHandler  *StreamHandler
	healthCheck    func() error
}

// New creates a new HTTP server.
func New(cfg Config) *Server {
	handlers := NewHandlers(
		cfg.Orchestrator,
		cfg.DatasetRepo,
		cfg.Charts,
		cfg.Forecaster,
		cfg.Insights,
		cfg.Extraction,
		cfg.Rates,
		cfg.Log,
	)

	s := &Server{
		router:         chi.NewRouter(),
		log:            cfg.Log.With().Str("component", "server").Logger(),
		cfg:            cfg.Config,
		orch:           cfg.Orchestrator,
		handlers:       handlers,
		systemHandlers: NewSystemHandlers(cfg.Log, cfg.Config.DataDir),
		streamHandler:  NewStreamHandler(cfg.Orchestrator, cfg.Log),
		healthCheck:    cfg.HealthCheck,
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Router exposes the router for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(devMode bool) {
	// Recovery from panics
	s.router.Use(middleware.Recoverer)

	// Request ID
	s.router.Use(middleware.RequestID)

	// Real IP
	s.router.Use(middleware.RealIP)

	// Logging
	s.router.Use(s.loggingMiddleware)

	// Timeout
	s.router.Use(middleware.Timeout(60 * time.Second))

	// CORS
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Compress responses
	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		// State stream must not go through the timeout middleware's
		// buffered writer, but chi applies middleware per-router; the
		// websocket upgrade hijacks the connection before the timeout
		// fires.
		r.Get("/state/stream", s.streamHandler.ServeHTTP)

		s.handlers.RegisterRoutes(r)
		s.systemHandlers.RegisterRoutes(r)
	})
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK

	if s.healthCheck != nil {
		if err := s.healthCheck(); err != nil {
			s.log.Error().Err(err).Msg("Health check failed")
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
	}

	writeJSON(w, code, map[string]interface{}{
		"status": status,
		"state":  s.orch.Current().State,
	})
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("Starting HTTP server")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	s.log.Info().Msg("Stopping HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
