// Package server exposes the scan, rule and redaction APIs over HTTP and
// feeds the WebSocket event hub.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/raaihank/pii-sentry/internal/config"
	"github.com/raaihank/pii-sentry/internal/inference"
	"github.com/raaihank/pii-sentry/internal/logger"
	"github.com/raaihank/pii-sentry/internal/rules"
	"github.com/raaihank/pii-sentry/internal/scan"
	"github.com/raaihank/pii-sentry/internal/websocket"
)

// Server wires the orchestrator, rule store and event hub behind HTTP.
type Server struct {
	config       *config.Config
	logger       *logger.Logger
	store        *rules.Store
	repo         *rules.Repository
	orchestrator *scan.Orchestrator
	factory      *inference.Factory
	sessions     *sessionStore
	limiter      *RateLimiter
	router       *mux.Router
	server       *http.Server
	wsHub        *websocket.Hub

	startTime       time.Time
	totalScans      int64
	totalDetections int64
}

// Options carries the collaborators the server needs. Repo may be nil when
// rule persistence is disabled.
type Options struct {
	Config       *config.Config
	Logger       *logger.Logger
	Store        *rules.Store
	Repo         *rules.Repository
	Orchestrator *scan.Orchestrator
	Factory      *inference.Factory
}

// New creates a server instance.
func New(opts Options) *Server {
	wsHub := websocket.NewHub(&websocket.HubConfig{
		BroadcastScans:      opts.Config.WebSocket.BroadcastScans,
		BroadcastDetections: opts.Config.WebSocket.BroadcastDetections,
		BroadcastSystem:     opts.Config.WebSocket.BroadcastSystem,
		Username:            opts.Config.WebSocket.Username,
		Password:            opts.Config.WebSocket.Password,
	}, opts.Logger.WithComponent("websocket").Logger)

	s := &Server{
		config:       opts.Config,
		logger:       opts.Logger.WithComponent("server"),
		store:        opts.Store,
		repo:         opts.Repo,
		orchestrator: opts.Orchestrator,
		factory:      opts.Factory,
		sessions:     newSessionStore(),
		limiter:      NewRateLimiter(&opts.Config.RateLimit),
		router:       mux.NewRouter(),
		wsHub:        wsHub,
		startTime:    time.Now(),
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", opts.Config.Server.Port),
		Handler:      s.router,
		ReadTimeout:  opts.Config.Server.ReadTimeout,
		WriteTimeout: opts.Config.Server.WriteTimeout,
		IdleTimeout:  opts.Config.Server.IdleTimeout,
	}

	return s
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/info", s.handleInfo).Methods("GET")

	if s.config.WebSocket.Enabled {
		s.router.HandleFunc(s.config.WebSocket.Path, s.handleWebSocket).Methods("GET")
	}

	api := s.router.PathPrefix("/v1").Subrouter()
	api.Use(s.loggingMiddleware)
	api.Use(s.rateLimitMiddleware)

	api.HandleFunc("/scan", s.handleScan).Methods("POST")
	api.HandleFunc("/scan/{id}/render", s.handleRender).Methods("POST")

	api.HandleFunc("/rules", s.handleListRules).Methods("GET")
	api.HandleFunc("/rules", s.handleAddRule).Methods("POST")
	api.HandleFunc("/rules/{id}", s.handleUpdateRule).Methods("PUT")
	api.HandleFunc("/rules/{id}", s.handleRemoveRule).Methods("DELETE")
	api.HandleFunc("/rules/{id}/toggle", s.handleToggleRule).Methods("POST")

	api.HandleFunc("/models", s.handleListModels).Methods("GET")
}

// Start starts the HTTP server and the event hub.
func (s *Server) Start() error {
	s.logger.Info("Starting PII-Sentry server",
		zap.Int("port", s.config.Server.Port),
		zap.String("default_engine", string(s.config.Engines.Default)),
	)

	go s.wsHub.Run()
	go s.broadcastSystemStatus()
	s.limiter.StartCleanupRoutine()

	return s.server.ListenAndServe()
}

// broadcastSystemStatus periodically publishes a system_status event so
// dashboard clients can show uptime and counters without polling.
func (s *Server) broadcastSystemStatus() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		s.wsHub.BroadcastEvent(s.systemStatusEvent())
	}
}

func (s *Server) systemStatusEvent() websocket.Event {
	active := 0
	for _, rule := range s.store.List() {
		if rule.Enabled {
			active++
		}
	}
	stats := s.wsHub.GetStats()

	return websocket.Event{
		Type:      websocket.EventTypeSystemStatus,
		Timestamp: time.Now(),
		Data: websocket.SystemStatusEvent{
			Status:           "healthy",
			Uptime:           time.Since(s.startTime).Round(time.Second).String(),
			TotalScans:       atomic.LoadInt64(&s.totalScans),
			TotalDetections:  atomic.LoadInt64(&s.totalDetections),
			ActiveRules:      active,
			ConnectedClients: int(stats.ActiveConnections),
		},
	}
}

// Stop gracefully stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping PII-Sentry server")
	return s.server.Shutdown(ctx)
}

// handleWebSocket handles WebSocket connections for the dashboard.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.wsHub.HandleWebSocket(w, r)
}

// Hub returns the WebSocket hub for broadcasting events.
func (s *Server) Hub() *websocket.Hub {
	return s.wsHub
}
