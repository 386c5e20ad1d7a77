// Package server exposes the engine's operations over HTTP for the
// product's route handlers and dashboard.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/dataglass/pattern-sentry/internal/config"
	"github.com/dataglass/pattern-sentry/internal/engine"
	"github.com/dataglass/pattern-sentry/internal/events"
	"github.com/dataglass/pattern-sentry/internal/logger"
)

// Server represents the pattern-sentry API server
type Server struct {
	config  *config.Config
	logger  *logger.Logger
	engine  *engine.Engine
	router  *mux.Router
	server  *http.Server
	hub     *events.Hub
	limiter *rateLimiter
}

// New creates a new API server instance
func New(cfg *config.Config, eng *engine.Engine, hub *events.Hub, log *logger.Logger) *Server {
	router := mux.NewRouter()

	server := &Server{
		config:  cfg,
		logger:  log.WithComponent("server"),
		engine:  eng,
		router:  router,
		hub:     hub,
		limiter: newRateLimiter(cfg.Server.RateLimit),
	}

	server.setupRoutes()

	server.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return server
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/info", s.handleInfo).Methods("GET")

	if s.config.Events.Enabled && s.hub != nil {
		s.router.HandleFunc(s.config.Events.Path, s.handleWebSocket).Methods("GET")
	}

	api := s.router.PathPrefix("/v1").Subrouter()
	api.Use(s.loggingMiddleware)
	api.Use(s.rateLimitMiddleware)

	api.HandleFunc("/learn", s.handleLearn).Methods("POST")
	api.HandleFunc("/scan", s.handleScan).Methods("POST")
	api.HandleFunc("/patterns", s.handleCreatePattern).Methods("POST")
	api.HandleFunc("/patterns", s.handleListPatterns).Methods("GET")
	api.HandleFunc("/patterns/{id}", s.handleGetPattern).Methods("GET")
	api.HandleFunc("/patterns/{id}", s.handleDeactivatePattern).Methods("DELETE")
	api.HandleFunc("/patterns/{id}/feedback", s.handleRecordFeedback).Methods("POST")
	api.HandleFunc("/patterns/{id}/accuracy", s.handleAccuracy).Methods("GET")
	api.HandleFunc("/patterns/{id}/refinements/suggest", s.handleSuggestRefinements).Methods("POST")
	api.HandleFunc("/patterns/{id}/refinements/apply", s.handleApplyRefinements).Methods("POST")
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("Starting pattern-sentry API server",
		zap.Int("port", s.config.Server.Port),
		zap.Bool("events_enabled", s.config.Events.Enabled),
		zap.Bool("rate_limit_enabled", s.config.Server.RateLimit.Enabled),
	)

	if s.hub != nil {
		go s.hub.Run()
	}
	s.limiter.StartCleanupRoutine()

	return s.server.ListenAndServe()
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping pattern-sentry API server")
	return s.server.Shutdown(ctx)
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"healthy","timestamp":"%s"}`, time.Now().Format(time.RFC3339))
}

// handleInfo handles info requests
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	patterns, err := s.engine.ListPatterns(r.Context(), true)
	activePatterns := 0
	if err == nil {
		activePatterns = len(patterns)
	}

	connected := 0
	if s.hub != nil {
		connected = s.hub.ActiveConnections()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{
		"name":"pattern-sentry",
		"version":"0.1.0",
		"active_patterns":%d,
		"connected_clients":%d
	}`, activePatterns, connected)
}

// handleWebSocket handles WebSocket connections for the dashboard
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.hub.HandleWebSocket(w, r)
}
