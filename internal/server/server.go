// Package server provides the HTTP API for umekomi.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/hyperjump/umekomi/internal/config"
	"github.com/hyperjump/umekomi/internal/executor"
)

// Server is the HTTP server for the umekomi API.
type Server struct {
	exec   *executor.Executor
	config *config.Config
	logger *zap.Logger
	server *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(exec *executor.Executor, cfg *config.Config, logger *zap.Logger) *Server {
	return &Server{
		exec:   exec,
		config: cfg,
		logger: logger,
	}
}

// Router builds the chi router with all routes mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Post("/api/v1/encode", s.handleEncode)
	r.Post("/api/v1/rank", s.handleRank)
	r.Get("/api/v1/status", s.handleStatus)
	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Router(),
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
