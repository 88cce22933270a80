package ops

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelpulse/modelpulse/internal/errs"
	"github.com/modelpulse/modelpulse/internal/metrics"
	"github.com/modelpulse/modelpulse/internal/state"
)

func TestHealthz(t *testing.T) {
	s := NewServer("127.0.0.1:0", nil, nil, nil, nil)
	s.started = time.Now()

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.NotEmpty(t, body["timestamp"])
}

func TestStatus(t *testing.T) {
	store := state.NewStore(nil, nil)
	defer store.Close()
	store.Set("warm", 1, state.SetOptions{Cache: true})
	store.Get("warm", nil)

	eh := errs.NewHandler()
	eh.Report(errs.New(errs.CategorySystem, errs.SeverityLow, "test.op", nil))

	s := NewServer("127.0.0.1:0", nil, store, eh, nil)
	s.started = time.Now().Add(-3 * time.Second)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(1), resp.Cache.TotalHits)
	assert.Equal(t, 1, resp.ErrorsTotal)
	assert.GreaterOrEqual(t, resp.UptimeS, 3.0)
	// No connection wired: the zero snapshot serializes as empty strings.
	assert.Empty(t, resp.Connection.Status)
}

func TestMetricsEndpoint(t *testing.T) {
	m := metrics.NewSet()
	m.CacheHit()

	s := NewServer("127.0.0.1:0", nil, nil, nil, m)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "modelpulse_cache_hits_total 1")
}

func TestMetricsRouteAbsentWithoutCollectors(t *testing.T) {
	s := NewServer("127.0.0.1:0", nil, nil, nil, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	s := NewServer("127.0.0.1:0", nil, nil, nil, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/healthz", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
