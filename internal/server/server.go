// Package server exposes the monitoring engine over HTTP: log queries, ping
// statistics, discovery snapshots, settings, an on-demand housekeeping
// trigger, Prometheus metrics, and a websocket live stream per topic.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/cfletcher/netwatch/internal/engine"
	"github.com/cfletcher/netwatch/internal/settings"
	"github.com/cfletcher/netwatch/internal/version"
)

// Server is the netwatch HTTP server.
type Server struct {
	httpServer *http.Server
	engine     *engine.Engine
	repo       settings.Repository
	logger     *zap.Logger
	mux        *http.ServeMux
}

// New creates a Server serving the given engine on addr.
func New(addr string, eng *engine.Engine, repo settings.Repository, logger *zap.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		engine: eng,
		repo:   repo,
		logger: logger,
		mux:    mux,
	}

	s.registerRoutes()
	return s
}

// Handler returns the route mux, primarily for tests.
func (s *Server) Handler() http.Handler { return s.mux }

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /api/v1/health", s.handleHealth)
	s.mux.HandleFunc("GET /api/v1/logs/{category}", s.handleLogsTail)
	s.mux.HandleFunc("GET /api/v1/logs/{category}/range", s.handleLogsRange)
	s.mux.HandleFunc("GET /api/v1/stats/{category}", s.handleStats)
	s.mux.HandleFunc("GET /api/v1/devices", s.handleDevices)
	s.mux.HandleFunc("POST /api/v1/housekeeping", s.handleHousekeeping)
	s.mux.HandleFunc("GET /api/v1/settings", s.handleGetSettings)
	s.mux.HandleFunc("PUT /api/v1/settings/{key}", s.handleSetSetting)
	s.mux.HandleFunc("GET /api/v1/live/{topic}", s.handleLive)
	s.mux.Handle("GET /metrics", promhttp.Handler())
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("HTTP server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Netwatch-Version", version.Short())
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "netwatch",
		"version": version.Map(),
	})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
