// Package httpapi exposes the engine's observable surface: health and
// readiness probes, Prometheus metrics, the learned polar, coverage stats,
// the latest status snapshot, a websocket status stream, and the explicit
// reset control.
package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/saltline/polar-engine/internal/engine"
	"github.com/saltline/polar-engine/internal/polar"
)

// ReadinessChecker reports whether the service is ready to serve traffic.
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// StatusProvider serves the latest status snapshot and live subscriptions.
type StatusProvider interface {
	Status() engine.Status
	Subscribe(fn func(engine.Status)) func()
}

// PolarStore is the queryable side of the aggregation store.
type PolarStore interface {
	Export() polar.Table
	Stats() polar.Stats
	Reset(ctx context.Context) error
}

// Server exposes the engine over HTTP.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer wires all routes onto a new HTTP server.
func NewServer(addr string, ready ReadinessChecker, status StatusProvider, store PolarStore, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:        addr,
			Handler:     mux,
			ReadTimeout: 10 * time.Second,
			// Write timeout would cut off long-lived websocket streams;
			// the ws handler manages its own deadlines.
			IdleTimeout: 60 * time.Second,
		},
		logger: logger,
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", handleReady(ready))
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /api/polar", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, store.Export())
	})
	mux.HandleFunc("GET /api/stats", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, store.Stats())
	})
	mux.HandleFunc("GET /api/status", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, status.Status())
	})
	mux.HandleFunc("POST /api/reset", s.handleReset(store))
	mux.HandleFunc("GET /ws/status", s.handleStatusStream(status))

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func handleReady(checker ReadinessChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := checker.CheckReadiness(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

// handleReset clears the learned table. Destroying months of accumulated
// data deserves an explicit confirmation from the caller.
func (s *Server) handleReset(store PolarStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("confirm") != "true" {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "reset is irreversible; repeat with ?confirm=true",
			})
			return
		}

		if err := store.Reset(r.Context()); err != nil {
			s.logger.Error("reset failed", "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		s.logger.Info("polar store reset")
		writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}
