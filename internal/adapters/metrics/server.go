package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// StatusFunc arma el documento de /status en cada request.
type StatusFunc func(ctx context.Context) any

// HealthFunc devuelve false mientras el bot esté degradado.
type HealthFunc func() bool

// Server sirve /metrics, /healthz y /status.
type Server struct {
	srv *http.Server
}

// NewServer crea el servidor. status y healthy pueden ser nil.
func NewServer(addr string, m *Prometheus, status StatusFunc, healthy HealthFunc) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           Routes(m, status, healthy),
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Routes monta el router. Exportado para poder probarlo con httptest.
func Routes(m *Prometheus, status StatusFunc, healthy HealthFunc) chi.Router {
	r := chi.NewRouter()

	r.Handle("/metrics", promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if healthy != nil && !healthy() {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/status", func(w http.ResponseWriter, req *http.Request) {
		if status == nil {
			writeJSON(w, http.StatusOK, map[string]any{})
			return
		}
		ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
		defer cancel()
		writeJSON(w, http.StatusOK, status(ctx))
	})

	return r
}

// Run sirve hasta que el contexto se cancele.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("status server listening", "addr", s.srv.Addr)
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("metrics.Server.Run: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics.Server.Run: shutdown: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode status response", "err", err)
	}
}
