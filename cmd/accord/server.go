package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/accordhq/accord/audit"
	"github.com/accordhq/accord/config"
	"github.com/accordhq/accord/execution"
	"github.com/accordhq/accord/internal/metrics"
	"github.com/accordhq/accord/internal/server"
	"github.com/accordhq/accord/internal/telemetry"
	"github.com/accordhq/accord/negotiation"
	"github.com/accordhq/accord/types"
)

// Server hosts the negotiation engine behind an HTTP API.
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	engine      *negotiation.Engine
	registry    *negotiation.Registry
	notifier    *negotiation.ChannelNotifier
	httpManager *server.Manager

	metricsCollector *metrics.Collector
	otelProviders    *telemetry.Providers
}

// NewServer wires the engine around the given store.
func NewServer(cfg *config.Config, conflictStore negotiation.ConflictStore, logger *zap.Logger, otelProviders *telemetry.Providers) *Server {
	collector := metrics.NewCollector("accord", logger)
	registry := negotiation.NewRegistry()
	notifier := negotiation.NewChannelNotifier(cfg.Engine.EscalationBuffer, logger)

	engineCfg := negotiation.EngineConfig{
		Orchestrator: negotiation.OrchestratorConfig{
			AgentCallTimeout: cfg.Engine.AgentCallTimeout,
			Consensus: negotiation.ConsensusPolicy{
				RequireFullQuorum: cfg.Engine.RequireFullQuorum,
			},
		},
		Scheduler: execution.Config{
			Workers:           cfg.Scheduler.Workers,
			QueueSize:         cfg.Scheduler.QueueSize,
			AttemptsPerWindow: cfg.Scheduler.AttemptsPerWindow,
			RateWindow:        cfg.Scheduler.RateWindow,
			MaxAttempts:       cfg.Scheduler.MaxAttempts,
			RetryDelay:        cfg.Scheduler.RetryDelay,
		},
	}

	notify := negotiation.MultiNotifier{notifier, negotiation.NewLogNotifier(logger)}
	engine := negotiation.NewEngine(engineCfg, conflictStore, registry, nil, nil,
		notify, audit.NewZapSink(logger), collector, logger)

	return &Server{
		cfg:              cfg,
		logger:           logger,
		engine:           engine,
		registry:         registry,
		notifier:         notifier,
		metricsCollector: collector,
		otelProviders:    otelProviders,
	}
}

// Engine exposes the negotiation engine for in-process agent registration.
func (s *Server) Engine() *negotiation.Engine { return s.engine }

// Registry exposes the agent registry for in-process agent registration.
func (s *Server) Registry() *negotiation.Registry { return s.registry }

// routes builds the HTTP handler tree with the middleware chain applied.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /version", s.handleVersion)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("POST /api/v1/conflicts", s.handleCreateConflict)
	mux.HandleFunc("GET /api/v1/conflicts", s.handleListConflicts)
	mux.HandleFunc("GET /api/v1/conflicts/{id}", s.handleGetConflict)
	mux.HandleFunc("POST /api/v1/conflicts/{id}/negotiate", s.handleNegotiate)
	mux.HandleFunc("POST /api/v1/conflicts/{id}/reopen", s.handleReopen)
	mux.HandleFunc("POST /api/v1/conflicts/{id}/resolve", s.handleResolve)

	return Chain(mux,
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		RequestLogger(s.logger),
		OTelTracing(),
	)
}

// Start launches the engine and the HTTP server.
func (s *Server) Start() error {
	s.engine.Start()
	handler := s.routes()

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     2 * s.cfg.Server.ReadTimeout,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}
	s.httpManager = server.NewManager(handler, serverConfig, s.logger)

	if err := s.httpManager.Start(); err != nil {
		return err
	}
	s.logger.Info("Server started", zap.Int("http_port", s.cfg.Server.HTTPPort))
	return nil
}

// WaitForShutdown blocks until a signal arrives, then shuts everything down.
func (s *Server) WaitForShutdown() {
	s.httpManager.WaitForShutdown()
	s.Shutdown()
}

// Shutdown drains the engine and flushes telemetry.
func (s *Server) Shutdown() {
	s.logger.Info("Starting graceful shutdown...")
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}
	if err := s.engine.Close(ctx); err != nil {
		s.logger.Error("Engine shutdown error", zap.Error(err))
	}
	if err := s.otelProviders.Shutdown(ctx); err != nil {
		s.logger.Error("Telemetry shutdown error", zap.Error(err))
	}
	s.logger.Info("Graceful shutdown completed")
}

// createConflictRequest is the conflict intake payload.
type createConflictRequest struct {
	Type        string            `json:"conflict_type"`
	Severity    string            `json:"severity"`
	Description string            `json:"description"`
	Agents      []string          `json:"agents_involved"`
	Positions   map[string]string `json:"conflicting_positions"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"version":    Version,
		"build_time": BuildTime,
		"git_commit": GitCommit,
	})
}

func (s *Server) handleCreateConflict(w http.ResponseWriter, r *http.Request) {
	var req createConflictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	conflict, _, err := s.engine.CreateConflict(r.Context(),
		negotiation.ConflictType(req.Type),
		negotiation.Severity(req.Severity),
		req.Description, req.Agents, req.Positions,
	)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, conflict)
}

func (s *Server) handleListConflicts(w http.ResponseWriter, r *http.Request) {
	status := negotiation.Status(r.URL.Query().Get("status"))
	conflicts, err := s.engine.List(r.Context(), status)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"conflicts": conflicts})
}

func (s *Server) handleGetConflict(w http.ResponseWriter, r *http.Request) {
	conflict, err := s.engine.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conflict)
}

func (s *Server) handleNegotiate(w http.ResponseWriter, r *http.Request) {
	handle, err := s.engine.Negotiate(r.Context(), r.PathValue("id"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"conflict_id": handle.ConflictID(),
		"state":       "enqueued",
	})
}

func (s *Server) handleReopen(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	handle, err := s.engine.Reopen(r.Context(), r.PathValue("id"), req.Reason)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"conflict_id": handle.ConflictID(),
		"state":       "reopened",
	})
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ResolvedBy string `json:"resolved_by"`
		Resolution string `json:"resolution"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	conflict, err := s.engine.Resolve(r.Context(), r.PathValue("id"), req.ResolvedBy, req.Resolution)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conflict)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeEngineError maps engine error codes onto HTTP statuses.
func writeEngineError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch types.GetErrorCode(err) {
	case types.ErrConflictNotFound:
		status = http.StatusNotFound
	case types.ErrInvalidTransition, types.ErrConflictTerminal:
		status = http.StatusConflict
	case types.ErrConflictInFlight:
		status = http.StatusConflict
	case types.ErrSchedulerClosed:
		status = http.StatusServiceUnavailable
	}
	writeError(w, status, err.Error())
}
