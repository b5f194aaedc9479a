// Package http serves the operational endpoints of a running voxstitch
// instance: liveness, readiness, capabilities and in-flight imports.
package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/custodia-labs/voxstitch/internal/core/domain"
)

// Pinger is a simple health check interface
type Pinger interface {
	Ping(ctx context.Context) error
}

// JobLister reports imports currently holding a fingerprint
type JobLister interface {
	Running() []domain.ImportJob
}

// Config holds server configuration
type Config struct {
	Host    string
	Port    int
	Version string
	Logger  *slog.Logger
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Host:    "0.0.0.0",
		Port:    8090,
		Version: "dev",
	}
}

// Server represents the HTTP server
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	version    string
	logger     *slog.Logger

	runtime *domain.RuntimeConfig
	jobs    JobLister

	// Dependencies checked by /ready, keyed by name
	checks map[string]Pinger
}

// NewServer creates a new HTTP server
func NewServer(cfg Config, runtime *domain.RuntimeConfig, jobs JobLister, checks map[string]Pinger) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		router:  chi.NewRouter(),
		version: cfg.Version,
		logger:  logger,
		runtime: runtime,
		jobs:    jobs,
		checks:  checks,
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(s.logRequests)
	s.router.Use(s.recoverPanics)

	s.router.Get("/health", s.handleHealth)
	s.router.Get("/ready", s.handleReady)
	s.router.Get("/version", s.handleVersion)
	s.router.Get("/capabilities", s.handleCapabilities)
	s.router.Get("/imports/running", s.handleRunningImports)
}

// Handler exposes the router for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("ops server starting", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.logger.Info("ops server stopping")
	return s.httpServer.Shutdown(shutdownCtx)
}
