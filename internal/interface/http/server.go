// Package http exposes the liveness and readiness endpoints. The process has
// no other HTTP surface; the operator talks to it over Telegram.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bykc-hub/bykc-assistant/internal/infrastructure/persistence/postgres"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH SERVER
// ══════════════════════════════════════════════════════════════════════════════

// ServerConfig contains configuration for the health server.
type ServerConfig struct {
	// Addr is the listen address, e.g. ":8081".
	Addr string

	// CheckTimeout bounds each dependency probe.
	CheckTimeout time.Duration

	// Logger for structured logging.
	Logger *slog.Logger
}

// DefaultServerConfig returns sensible defaults.
func DefaultServerConfig(addr string) ServerConfig {
	return ServerConfig{
		Addr:         addr,
		CheckTimeout: 3 * time.Second,
	}
}

// Server serves /healthz and /readyz. Liveness answers as long as the process
// runs; readiness pings Postgres and Redis so an orchestrator can hold traffic
// off a half-started instance.
type Server struct {
	config ServerConfig
	db     *postgres.Connection
	redis  *redis.Client
	logger *slog.Logger
	server *http.Server
}

// NewServer creates the health server.
func NewServer(config ServerConfig, db *postgres.Connection, redisClient *redis.Client) *Server {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.CheckTimeout <= 0 {
		config.CheckTimeout = 3 * time.Second
	}

	s := &Server{
		config: config,
		db:     db,
		redis:  redisClient,
		logger: config.Logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleLiveness)
	mux.HandleFunc("/readyz", s.handleReadiness)

	s.server = &http.Server{
		Addr:         config.Addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Start listens in the background. Listener failures are logged, not fatal:
// losing the health endpoint must never take the rush path down with it.
func (s *Server) Start() {
	go func() {
		s.logger.Info("health server listening", "addr", s.config.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("health server failed", "error", err)
		}
	}()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// ──────────────────────────────────────────────────────────────────────────────
// Handlers
// ──────────────────────────────────────────────────────────────────────────────

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.config.CheckTimeout)
	defer cancel()

	checks := make(map[string]string, 2)
	healthy := true

	if err := s.db.Ping(ctx); err != nil {
		checks["postgres"] = err.Error()
		healthy = false
	} else {
		checks["postgres"] = "ok"
	}

	if err := s.redis.Ping(ctx).Err(); err != nil {
		checks["redis"] = err.Error()
		healthy = false
	} else {
		checks["redis"] = "ok"
	}

	if !healthy {
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable", Checks: checks})
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Checks: checks})
}

func writeJSON(w http.ResponseWriter, code int, body healthResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
