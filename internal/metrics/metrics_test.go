package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilSetIsSafe(t *testing.T) {
	var s *Set
	s.Frame("system_metrics")
	s.ParseError()
	s.Reconnect()
	s.Connected(true)
	s.Latency(42)
	s.CacheHit()
	s.CacheMiss()
	s.APIRequest("models.list", true)
	s.HandledError("network", "medium")
}

func TestSetRecords(t *testing.T) {
	s := NewSet()

	s.Frame("system_metrics")
	s.Frame("system_metrics")
	s.Frame("activity_update")
	assert.Equal(t, float64(2), testutil.ToFloat64(s.FramesTotal.WithLabelValues("system_metrics")))
	assert.Equal(t, float64(1), testutil.ToFloat64(s.FramesTotal.WithLabelValues("activity_update")))

	s.Connected(true)
	assert.Equal(t, float64(1), testutil.ToFloat64(s.ConnectionUp))
	s.Connected(false)
	assert.Equal(t, float64(0), testutil.ToFloat64(s.ConnectionUp))

	s.Latency(37)
	assert.Equal(t, float64(37), testutil.ToFloat64(s.LatencyMS))

	s.APIRequest("models.list", false)
	s.APIRequest("models.list", true)
	assert.Equal(t, float64(2), testutil.ToFloat64(s.APIRequestsTotal.WithLabelValues("models.list")))
	assert.Equal(t, float64(1), testutil.ToFloat64(s.APIErrorsTotal.WithLabelValues("models.list")))

	s.HandledError("websocket", "high")
	assert.Equal(t, float64(1), testutil.ToFloat64(s.HandledErrorsTotal.WithLabelValues("websocket", "high")))
}

func TestTwoSetsUseIndependentRegistries(t *testing.T) {
	// Each set registers on its own registry, so building several in one
	// process must not panic with duplicate registration.
	a := NewSet()
	b := NewSet()
	require.NotSame(t, a.Registry, b.Registry)
	a.CacheHit()
	assert.Equal(t, float64(1), testutil.ToFloat64(a.CacheHitsTotal))
	assert.Equal(t, float64(0), testutil.ToFloat64(b.CacheHitsTotal))
}
