// Package server exposes the assistant over HTTP: a WebSocket chat
// endpoint, JSON endpoints for every operation, /health and /metrics,
// plus an optional gRPC health service.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/becomeliminal/nim-assistant/assistant"
)

// Pinger reports whether the relational store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config holds listener settings.
type Config struct {
	Addr string

	// GRPCAddr serves grpc.health.v1. Empty disables it.
	GRPCAddr string

	// HealthInterval is how often the store is pinged to update the gRPC
	// health status.
	HealthInterval time.Duration

	ShutdownTimeout time.Duration
}

// Server is the HTTP front of the assistant.
type Server struct {
	cfg      Config
	svc      *assistant.Service
	pinger   Pinger
	gatherer prometheus.Gatherer
	logger   *slog.Logger
	upgrader websocket.Upgrader
	health   *health.Server

	mu   sync.Mutex
	http *http.Server
	grpc *grpc.Server
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithPinger sets the health check target.
func WithPinger(p Pinger) Option {
	return func(s *Server) { s.pinger = p }
}

// WithGatherer sets the registry served on /metrics. Defaults to the
// global Prometheus registry.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// New creates a Server.
func New(svc *assistant.Service, cfg Config, opts ...Option) *Server {
	if cfg.HealthInterval <= 0 {
		cfg.HealthInterval = 15 * time.Second
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	s := &Server{
		cfg:      cfg,
		svc:      svc,
		gatherer: prometheus.DefaultGatherer,
		logger:   slog.Default(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		health: health.NewServer(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "server")
	return s
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /ws", s.handleWebSocket)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	mux.HandleFunc("POST /v1/chat", s.handleChat)
	mux.HandleFunc("POST /v1/chat/confirm", s.handleConfirm)
	mux.HandleFunc("POST /v1/drafts", s.handleComposeDraft)
	mux.HandleFunc("POST /v1/priorities/recalculate", s.handleRecalculate)
	mux.HandleFunc("GET /v1/next-action", s.handleNextAction)
	mux.HandleFunc("POST /v1/deadlines/suggest", s.handleSuggestDeadlines)
	mux.HandleFunc("GET /v1/alerts", s.handleAlerts)

	mux.HandleFunc("POST /v1/memories", s.handleRemember)
	mux.HandleFunc("POST /v1/memories/search", s.handleSearchMemory)
	mux.HandleFunc("POST /v1/memories/reconcile", s.handleReconcile)

	mux.HandleFunc("POST /v1/tasks", s.handleCreateTask)
	mux.HandleFunc("GET /v1/tasks", s.handleListTasks)
	mux.HandleFunc("GET /v1/tasks/{id}", s.handleGetTask)
	mux.HandleFunc("PATCH /v1/tasks/{id}", s.handleUpdateTask)

	return s.withLogging(mux)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	httpSrv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	s.http = httpSrv
	s.mu.Unlock()

	errCh := make(chan error, 2)
	go func() {
		s.logger.Info("starting HTTP server", "addr", s.cfg.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("serve http: %w", err)
		}
	}()

	if s.cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", s.cfg.GRPCAddr)
		if err != nil {
			httpSrv.Close()
			return fmt.Errorf("listen grpc: %w", err)
		}
		gs := grpc.NewServer()
		healthpb.RegisterHealthServer(gs, s.health)
		s.mu.Lock()
		s.grpc = gs
		s.mu.Unlock()
		go func() {
			s.logger.Info("starting gRPC health server", "addr", s.cfg.GRPCAddr)
			if err := gs.Serve(lis); err != nil {
				errCh <- fmt.Errorf("serve grpc: %w", err)
			}
		}()
	}

	go s.watchHealth(ctx)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		s.shutdown()
		return err
	}
	return s.shutdown()
}

func (s *Server) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.health.Shutdown()
	s.mu.Lock()
	httpSrv, gs := s.http, s.grpc
	s.mu.Unlock()
	if gs != nil {
		gs.GracefulStop()
	}
	var err error
	if httpSrv != nil {
		err = httpSrv.Shutdown(ctx)
	}
	s.svc.Wait()
	s.logger.Info("server stopped")
	return err
}

// watchHealth keeps the gRPC health status in line with the store.
func (s *Server) watchHealth(ctx context.Context) {
	s.updateHealth(ctx)
	ticker := time.NewTicker(s.cfg.HealthInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.updateHealth(ctx)
		}
	}
}

func (s *Server) updateHealth(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING
	if err := s.ping(ctx); err != nil {
		s.logger.Warn("health check failed", "error", err)
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus("", status)
	return status
}

func (s *Server) ping(ctx context.Context) error {
	if s.pinger == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.pinger.Ping(ctx)
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
	})
}

// writeJSON encodes v as JSON with the given status.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("failed to write JSON response", "error", err)
	}
}
