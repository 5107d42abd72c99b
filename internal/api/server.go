package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/eshaffer321/reconcile-backend/internal/api/handlers"
	"github.com/eshaffer321/reconcile-backend/internal/api/middleware"
	"github.com/eshaffer321/reconcile-backend/internal/application/service"
)

// Config holds API server configuration.
type Config struct {
	Port int
	CORS middleware.CORSConfig
}

// DefaultConfig returns sensible defaults for the API server.
func DefaultConfig() Config {
	return Config{
		Port: 8085,
		CORS: middleware.DefaultCORSConfig(),
	}
}

// Server is the HTTP API server.
type Server struct {
	config     Config
	router     chi.Router
	httpServer *http.Server
	logger     *slog.Logger
	ws         *service.Workspace
	jobs       *service.JobRunner
}

// NewServer creates a new API server.
// If jobs is nil, background auto-match endpoints will not be available.
func NewServer(cfg Config, ws *service.Workspace, jobs *service.JobRunner, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		config: cfg,
		router: chi.NewRouter(),
		logger: logger,
		ws:     ws,
		jobs:   jobs,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// setupMiddleware configures global middleware.
func (s *Server) setupMiddleware() {
	s.router.Use(chimw.RequestID)
	s.router.Use(chimw.Recoverer)

	s.router.Use(middleware.CORS(s.config.CORS))

	// Request logging
	s.router.Use(middleware.Logging(s.logger))
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	// Health check (no /api prefix - for load balancers)
	var checker handlers.HealthChecker
	if s.ws != nil {
		checker = s.ws
	}
	healthHandler := handlers.NewHealthHandler(checker)
	s.router.Get("/health", healthHandler.ServeHTTP)

	s.router.Route("/api", func(r chi.Router) {
		// Feeds
		feedsHandler := handlers.NewFeedsHandler(s.ws, s.logger)
		r.Post("/feeds", feedsHandler.Load)
		r.Get("/bank-records", feedsHandler.BankRecords)
		r.Get("/obligations", feedsHandler.Obligations)

		// Counterparties and aliases
		aliasesHandler := handlers.NewAliasesHandler(s.ws, s.logger)
		r.Get("/counterparties", aliasesHandler.Counterparties)
		r.Get("/aliases", aliasesHandler.List)
		r.Post("/aliases", aliasesHandler.Create)
		r.Get("/aliases/conflicts", aliasesHandler.Conflicts)
		r.Post("/aliases/suggestions", aliasesHandler.Suggest)
		r.Get("/resolve", aliasesHandler.Resolve)

		// Matches
		matchesHandler := handlers.NewMatchesHandler(s.ws, s.logger)
		r.Get("/matches", matchesHandler.List)
		r.Post("/matches", matchesHandler.Commit)
		r.Get("/matches/{id}", matchesHandler.Get)
		r.Post("/matches/{id}/extend", matchesHandler.Extend)
		r.Post("/matches/{id}/reverse", matchesHandler.Reverse)
		r.Get("/matches/{id}/history", matchesHandler.History)
		r.Get("/history", matchesHandler.HistorySince)

		// Reports
		reportsHandler := handlers.NewReportsHandler(s.ws, s.logger)
		r.Get("/discrepancies", reportsHandler.Discrepancies)
		r.Get("/counterparties/{id}/balance", reportsHandler.Balance)
		r.Get("/invariants", reportsHandler.Invariants)
		r.Get("/stats", reportsHandler.Stats)

		// Auto-match
		autoHandler := handlers.NewAutoMatchHandler(s.ws, s.jobs, s.logger)
		r.Post("/auto-match", autoHandler.Run)
		if s.jobs != nil {
			r.Post("/auto-match/jobs", autoHandler.StartJob)
			r.Get("/auto-match/jobs", autoHandler.ListJobs)
			r.Get("/auto-match/jobs/{jobId}", autoHandler.GetJob)
			r.Delete("/auto-match/jobs/{jobId}", autoHandler.CancelJob)
		}
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting API server", "addr", addr)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down API server")

	if s.httpServer == nil {
		return nil
	}

	return s.httpServer.Shutdown(ctx)
}

// Router returns the chi router for testing.
func (s *Server) Router() chi.Router {
	return s.router
}
