package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 5, cfg.WebSocket.MaxReconnectAttempts)
	assert.Equal(t, time.Second, cfg.WebSocket.ReconnectDelay)
	assert.Equal(t, 30*time.Second, cfg.WebSocket.MaxReconnectDelay)
	assert.Equal(t, 50*time.Millisecond, cfg.WebSocket.Latency.Excellent)
}

func TestParseLayersOverDefaults(t *testing.T) {
	yaml := `
api:
  base_url: http://api.internal:9000/api
  request_timeout_secs: 5
websocket:
  url: ws://api.internal:9000/ws
  reconnect_delay_ms: 250
  max_reconnect_attempts: 8
  latency:
    excellent_ms: 20
    good_ms: 80
    fair_ms: 200
cache:
  datasets_ttl_secs: 120
  redis_addr: localhost:6379
`
	cfg, err := Parse([]byte(yaml))
	require.NoError(t, err)

	// Explicit values land.
	assert.Equal(t, "http://api.internal:9000/api", cfg.API.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.API.RequestTimeout)
	assert.Equal(t, 250*time.Millisecond, cfg.WebSocket.ReconnectDelay)
	assert.Equal(t, 8, cfg.WebSocket.MaxReconnectAttempts)
	assert.Equal(t, 20*time.Millisecond, cfg.WebSocket.Latency.Excellent)
	assert.Equal(t, 120*time.Second, cfg.Cache.DatasetsTTL)
	assert.Equal(t, "localhost:6379", cfg.Cache.RedisAddr)

	// Omitted values keep defaults.
	assert.Equal(t, 30*time.Second, cfg.WebSocket.PingInterval)
	assert.Equal(t, 10*time.Second, cfg.Cache.MetricsTTL)
	assert.Equal(t, float64(10), cfg.API.RPS)
}

func TestParseRejectsMalformedYAML(t *testing.T) {
	_, err := Parse([]byte("websocket: ["))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config")
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty api url", func(c *Config) { c.API.BaseURL = "" }},
		{"empty ws url", func(c *Config) { c.WebSocket.URL = "" }},
		{"zero reconnect delay", func(c *Config) { c.WebSocket.ReconnectDelay = 0 }},
		{"ceiling below base", func(c *Config) { c.WebSocket.MaxReconnectDelay = 500 * time.Millisecond }},
		{"zero max attempts", func(c *Config) { c.WebSocket.MaxReconnectAttempts = 0 }},
		{"jitter above one", func(c *Config) { c.WebSocket.JitterFraction = 1.5 }},
		{"pong timeout above ping interval", func(c *Config) { c.WebSocket.PongTimeout = time.Minute }},
		{"non-increasing latency buckets", func(c *Config) { c.WebSocket.Latency.Good = 10 * time.Millisecond }},
		{"zero default ttl", func(c *Config) { c.Cache.DefaultTTL = 0 }},
		{"ops enabled without addr", func(c *Config) { c.Ops.Enabled = true; c.Ops.Addr = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/modelpulse.yaml")
	require.Error(t, err)
}

func TestTTLFor(t *testing.T) {
	cache := Default().Cache
	assert.Equal(t, 60*time.Second, cache.TTLFor("datasets"))
	assert.Equal(t, 30*time.Second, cache.TTLFor("models"))
	assert.Equal(t, 30*time.Second, cache.TTLFor("pipelines"))
	assert.Equal(t, 15*time.Second, cache.TTLFor("services"))
	assert.Equal(t, 10*time.Second, cache.TTLFor("metrics"))
	assert.Equal(t, 20*time.Second, cache.TTLFor("alerts"))
	assert.Equal(t, 30*time.Second, cache.TTLFor("something_else"))
}
