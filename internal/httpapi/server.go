// Package httpapi provides the ambient liveness/readiness/metrics surface
// carried over from the teacher's service pattern. It does not expose any
// control over the ingest pipeline itself — spec.md's "no network server is
// part of the core" still holds for the reconciler/worker/batcher loops.
//
// Dependencies:
//   - github.com/prometheus/client_golang/prometheus/promhttp: metrics endpoint
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server serves /healthz, /readyz, and /metrics.
type Server struct {
	mux    *http.ServeMux
	logger *zap.Logger
	pool   *pgxpool.Pool
}

// Config holds server configuration.
type Config struct {
	Logger *zap.Logger
	Pool   *pgxpool.Pool
}

// NewServer builds the ambient HTTP surface.
func NewServer(cfg Config) *Server {
	s := &Server{
		mux:    http.NewServeMux(),
		logger: cfg.Logger,
		pool:   cfg.Pool,
	}

	s.mux.HandleFunc("/healthz", healthzHandler)
	s.mux.HandleFunc("/readyz", s.readyzHandler)
	s.mux.Handle("/metrics", promhttp.Handler())

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func healthzHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// readyzHandler pings the shared connection pool.
func (s *Server) readyzHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := "healthy"
	code := http.StatusOK
	if s.pool == nil {
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	} else if err := s.pool.Ping(ctx); err != nil {
		status = "unhealthy"
		code = http.StatusServiceUnavailable
		s.logger.Debug("database health check failed", zap.Error(err))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}
