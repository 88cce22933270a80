// Package metrics exposes the client's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Set bundles every collector the client registers. A nil *Set is valid and
// records nothing, so instrumentation stays optional in tests.
type Set struct {
	Registry *prometheus.Registry

	FramesTotal        *prometheus.CounterVec
	ParseErrorsTotal   prometheus.Counter
	ReconnectsTotal    prometheus.Counter
	ConnectionUp       prometheus.Gauge
	LatencyMS          prometheus.Gauge
	CacheHitsTotal     prometheus.Counter
	CacheMissesTotal   prometheus.Counter
	APIRequestsTotal   *prometheus.CounterVec
	APIErrorsTotal     *prometheus.CounterVec
	HandledErrorsTotal *prometheus.CounterVec
}

// NewSet builds and registers all collectors on a fresh registry.
func NewSet() *Set {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Set{
		Registry: reg,
		FramesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "modelpulse_ws_frames_total",
			Help: "Inbound event-stream frames by type.",
		}, []string{"type"}),
		ParseErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "modelpulse_ws_parse_errors_total",
			Help: "Inbound frames dropped as malformed.",
		}),
		ReconnectsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "modelpulse_ws_reconnects_total",
			Help: "Reconnect attempts scheduled.",
		}),
		ConnectionUp: factory.NewGauge(prometheus.GaugeOpts{
			Name: "modelpulse_ws_connection_up",
			Help: "1 while the event stream is connected.",
		}),
		LatencyMS: factory.NewGauge(prometheus.GaugeOpts{
			Name: "modelpulse_ws_latency_ms",
			Help: "Last measured heartbeat round trip in milliseconds.",
		}),
		CacheHitsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "modelpulse_cache_hits_total",
			Help: "State store cache hits.",
		}),
		CacheMissesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "modelpulse_cache_misses_total",
			Help: "State store cache misses.",
		}),
		APIRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "modelpulse_api_requests_total",
			Help: "REST calls by operation.",
		}, []string{"op"}),
		APIErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "modelpulse_api_errors_total",
			Help: "Failed REST calls by operation.",
		}, []string{"op"}),
		HandledErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "modelpulse_errors_total",
			Help: "Errors routed through the central handler.",
		}, []string{"category", "severity"}),
	}
}

// Frame records one inbound frame.
func (s *Set) Frame(eventType string) {
	if s == nil {
		return
	}
	s.FramesTotal.WithLabelValues(eventType).Inc()
}

// ParseError records one dropped frame.
func (s *Set) ParseError() {
	if s == nil {
		return
	}
	s.ParseErrorsTotal.Inc()
}

// Reconnect records one scheduled reconnect attempt.
func (s *Set) Reconnect() {
	if s == nil {
		return
	}
	s.ReconnectsTotal.Inc()
}

// Connected flips the connection gauge.
func (s *Set) Connected(up bool) {
	if s == nil {
		return
	}
	if up {
		s.ConnectionUp.Set(1)
	} else {
		s.ConnectionUp.Set(0)
	}
}

// Latency records the last heartbeat round trip.
func (s *Set) Latency(ms int64) {
	if s == nil {
		return
	}
	s.LatencyMS.Set(float64(ms))
}

// CacheHit records one cache hit.
func (s *Set) CacheHit() {
	if s == nil {
		return
	}
	s.CacheHitsTotal.Inc()
}

// CacheMiss records one cache miss.
func (s *Set) CacheMiss() {
	if s == nil {
		return
	}
	s.CacheMissesTotal.Inc()
}

// APIRequest records one REST call, failed or not.
func (s *Set) APIRequest(op string, failed bool) {
	if s == nil {
		return
	}
	s.APIRequestsTotal.WithLabelValues(op).Inc()
	if failed {
		s.APIErrorsTotal.WithLabelValues(op).Inc()
	}
}

// HandledError records one error routed through the central handler.
func (s *Set) HandledError(category, severity string) {
	if s == nil {
		return
	}
	s.HandledErrorsTotal.WithLabelValues(category, severity).Inc()
}
