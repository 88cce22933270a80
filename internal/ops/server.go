// Package ops exposes a local, read-only observability endpoint for the
// dashboard client itself: liveness, connection/cache status, and
// Prometheus metrics.
package ops

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/modelpulse/modelpulse/internal/errs"
	"github.com/modelpulse/modelpulse/internal/metrics"
	"github.com/modelpulse/modelpulse/internal/state"
	"github.com/modelpulse/modelpulse/internal/ws"
)

// Server is the local ops HTTP listener.
type Server struct {
	addr    string
	conn    *ws.Client
	store   *state.Store
	errors  *errs.Handler
	metrics *metrics.Set
	httpSrv *http.Server
	started time.Time
}

// NewServer wires the ops endpoint over the shared services.
func NewServer(addr string, conn *ws.Client, store *state.Store, eh *errs.Handler, m *metrics.Set) *Server {
	return &Server{addr: addr, conn: conn, store: store, errors: eh, metrics: m}
}

// statusResponse is the /status payload.
type statusResponse struct {
	Connection  ws.Info          `json:"connection"`
	Cache       state.CacheStats `json:"cache"`
	ErrorsTotal int              `json:"errors_total"`
	UptimeS     float64          `json:"uptime_seconds"`
}

// Start begins serving in the background.
func (s *Server) Start() {
	s.started = time.Now()
	s.httpSrv = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", s.addr).Msg("ops endpoint listening")
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("ops endpoint failed")
		}
	}()
}

// Shutdown stops the listener gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// Handler builds the router; exposed separately for tests.
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()
	router.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	router.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	if s.metrics != nil {
		router.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
	return router
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := statusResponse{
		UptimeS: time.Since(s.started).Seconds(),
	}
	if s.conn != nil {
		resp.Connection = s.conn.Info()
	}
	if s.store != nil {
		resp.Cache = s.store.CacheStats()
	}
	if s.errors != nil {
		resp.ErrorsTotal = s.errors.Total()
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
