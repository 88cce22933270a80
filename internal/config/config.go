package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete client configuration. It is loaded once at startup
// and treated as read-only afterwards. The YAML file uses integer fields
// with unit suffixes (secs/ms); Load converts them over these defaults.
type Config struct {
	API       APIConfig
	WebSocket WebSocketConfig
	Cache     CacheConfig
	Refresh   RefreshConfig
	Ops       OpsConfig
}

// APIConfig configures the REST client.
type APIConfig struct {
	BaseURL        string        // Backend API base, e.g. http://localhost:8000/api
	RequestTimeout time.Duration // Per-request timeout
	RPS            float64       // Requests per second toward the backend
	Burst          int           // Rate limiter burst capacity
	Circuit        CircuitConfig // Circuit breaker settings
}

// CircuitConfig configures the breaker guarding REST calls.
type CircuitConfig struct {
	MaxRequests      uint32        // Probes allowed while half-open
	Interval         time.Duration // Count reset interval while closed
	Timeout          time.Duration // Open -> half-open transition delay
	FailureThreshold uint32        // Consecutive failures to open
}

// WebSocketConfig configures the real-time channel.
type WebSocketConfig struct {
	URL                  string        // ws:// or wss:// endpoint
	HandshakeTimeout     time.Duration // Dial timeout
	ReconnectDelay       time.Duration // Base backoff delay
	MaxReconnectDelay    time.Duration // Backoff ceiling
	MaxReconnectAttempts int           // Attempts before giving up
	JitterFraction       float64       // Random jitter, fraction of delay (0..1)
	PingInterval         time.Duration // Heartbeat send interval
	PongTimeout          time.Duration // Missing pong degrades quality
	Latency              LatencyConfig // Quality bucket boundaries
}

// LatencyConfig maps round-trip latency to connection quality buckets.
// A round trip at or under Excellent is "excellent", under Good is "good",
// under Fair is "fair", anything slower is "poor".
type LatencyConfig struct {
	Excellent time.Duration
	Good      time.Duration
	Fair      time.Duration
}

// CacheConfig carries per-resource TTLs. Faster-changing resources get
// shorter TTLs.
type CacheConfig struct {
	DefaultTTL   time.Duration
	DatasetsTTL  time.Duration
	ModelsTTL    time.Duration
	PipelinesTTL time.Duration
	ServicesTTL  time.Duration
	MetricsTTL   time.Duration
	AlertsTTL    time.Duration

	// Optional shared Redis tier. Empty address selects the in-process cache.
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	KeyPrefix     string
}

// RefreshConfig carries fallback polling intervals used when the event
// stream is unavailable.
type RefreshConfig struct {
	Metrics  time.Duration
	Services time.Duration
	Alerts   time.Duration
}

// OpsConfig configures the optional local observability endpoint.
type OpsConfig struct {
	Enabled bool
	Addr    string
}

// fileConfig is the YAML wire shape. Durations are plain integers with the
// unit in the field name; zero means "keep the default".
type fileConfig struct {
	API struct {
		BaseURL            string  `yaml:"base_url"`
		RequestTimeoutSecs int     `yaml:"request_timeout_secs"`
		RPS                float64 `yaml:"rps"`
		Burst              int     `yaml:"burst"`
		Circuit            struct {
			MaxRequests      uint32 `yaml:"max_requests"`
			IntervalSecs     int    `yaml:"interval_secs"`
			TimeoutSecs      int    `yaml:"timeout_secs"`
			FailureThreshold uint32 `yaml:"failure_threshold"`
		} `yaml:"circuit"`
	} `yaml:"api"`
	WebSocket struct {
		URL                  string  `yaml:"url"`
		HandshakeTimeoutSecs int     `yaml:"handshake_timeout_secs"`
		ReconnectDelayMS     int     `yaml:"reconnect_delay_ms"`
		MaxReconnectDelayMS  int     `yaml:"max_reconnect_delay_ms"`
		MaxReconnectAttempts int     `yaml:"max_reconnect_attempts"`
		JitterFraction       float64 `yaml:"jitter_fraction"`
		PingIntervalSecs     int     `yaml:"ping_interval_secs"`
		PongTimeoutSecs      int     `yaml:"pong_timeout_secs"`
		Latency              struct {
			ExcellentMS int `yaml:"excellent_ms"`
			GoodMS      int `yaml:"good_ms"`
			FairMS      int `yaml:"fair_ms"`
		} `yaml:"latency"`
	} `yaml:"websocket"`
	Cache struct {
		DefaultTTLSecs   int    `yaml:"default_ttl_secs"`
		DatasetsTTLSecs  int    `yaml:"datasets_ttl_secs"`
		ModelsTTLSecs    int    `yaml:"models_ttl_secs"`
		PipelinesTTLSecs int    `yaml:"pipelines_ttl_secs"`
		ServicesTTLSecs  int    `yaml:"services_ttl_secs"`
		MetricsTTLSecs   int    `yaml:"metrics_ttl_secs"`
		AlertsTTLSecs    int    `yaml:"alerts_ttl_secs"`
		RedisAddr        string `yaml:"redis_addr"`
		RedisPassword    string `yaml:"redis_password"`
		RedisDB          int    `yaml:"redis_db"`
		KeyPrefix        string `yaml:"key_prefix"`
	} `yaml:"cache"`
	Refresh struct {
		MetricsSecs  int `yaml:"metrics_secs"`
		ServicesSecs int `yaml:"services_secs"`
		AlertsSecs   int `yaml:"alerts_secs"`
	} `yaml:"refresh"`
	Ops struct {
		Enabled bool   `yaml:"enabled"`
		Addr    string `yaml:"addr"`
	} `yaml:"ops"`
}

// Default returns the built-in configuration. Values mirror the backend's
// documented defaults.
func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:        "http://localhost:8000/api",
			RequestTimeout: 10 * time.Second,
			RPS:            10,
			Burst:          20,
			Circuit: CircuitConfig{
				MaxRequests:      3,
				Interval:         60 * time.Second,
				Timeout:          30 * time.Second,
				FailureThreshold: 5,
			},
		},
		WebSocket: WebSocketConfig{
			URL:                  "ws://localhost:8000/ws",
			HandshakeTimeout:     10 * time.Second,
			ReconnectDelay:       time.Second,
			MaxReconnectDelay:    30 * time.Second,
			MaxReconnectAttempts: 5,
			JitterFraction:       0.3,
			PingInterval:         30 * time.Second,
			PongTimeout:          5 * time.Second,
			Latency: LatencyConfig{
				Excellent: 50 * time.Millisecond,
				Good:      150 * time.Millisecond,
				Fair:      300 * time.Millisecond,
			},
		},
		Cache: CacheConfig{
			DefaultTTL:   30 * time.Second,
			DatasetsTTL:  60 * time.Second,
			ModelsTTL:    30 * time.Second,
			PipelinesTTL: 30 * time.Second,
			ServicesTTL:  15 * time.Second,
			MetricsTTL:   10 * time.Second,
			AlertsTTL:    20 * time.Second,
			KeyPrefix:    "modelpulse:",
		},
		Refresh: RefreshConfig{
			Metrics:  5 * time.Second,
			Services: 15 * time.Second,
			Alerts:   20 * time.Second,
		},
		Ops: OpsConfig{
			Enabled: false,
			Addr:    "127.0.0.1:9290",
		},
	}
}

// Load reads a YAML configuration file, layered over the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML config bytes over the defaults.
func Parse(data []byte) (*Config, error) {
	var file fileConfig
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg := Default()
	file.apply(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// apply copies every explicitly-set file value onto cfg.
func (f *fileConfig) apply(cfg *Config) {
	setStr := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	setSecs := func(dst *time.Duration, v int) {
		if v > 0 {
			*dst = time.Duration(v) * time.Second
		}
	}
	setMS := func(dst *time.Duration, v int) {
		if v > 0 {
			*dst = time.Duration(v) * time.Millisecond
		}
	}

	setStr(&cfg.API.BaseURL, f.API.BaseURL)
	setSecs(&cfg.API.RequestTimeout, f.API.RequestTimeoutSecs)
	if f.API.RPS > 0 {
		cfg.API.RPS = f.API.RPS
	}
	if f.API.Burst > 0 {
		cfg.API.Burst = f.API.Burst
	}
	if f.API.Circuit.MaxRequests > 0 {
		cfg.API.Circuit.MaxRequests = f.API.Circuit.MaxRequests
	}
	setSecs(&cfg.API.Circuit.Interval, f.API.Circuit.IntervalSecs)
	setSecs(&cfg.API.Circuit.Timeout, f.API.Circuit.TimeoutSecs)
	if f.API.Circuit.FailureThreshold > 0 {
		cfg.API.Circuit.FailureThreshold = f.API.Circuit.FailureThreshold
	}

	setStr(&cfg.WebSocket.URL, f.WebSocket.URL)
	setSecs(&cfg.WebSocket.HandshakeTimeout, f.WebSocket.HandshakeTimeoutSecs)
	setMS(&cfg.WebSocket.ReconnectDelay, f.WebSocket.ReconnectDelayMS)
	setMS(&cfg.WebSocket.MaxReconnectDelay, f.WebSocket.MaxReconnectDelayMS)
	if f.WebSocket.MaxReconnectAttempts > 0 {
		cfg.WebSocket.MaxReconnectAttempts = f.WebSocket.MaxReconnectAttempts
	}
	if f.WebSocket.JitterFraction > 0 {
		cfg.WebSocket.JitterFraction = f.WebSocket.JitterFraction
	}
	setSecs(&cfg.WebSocket.PingInterval, f.WebSocket.PingIntervalSecs)
	setSecs(&cfg.WebSocket.PongTimeout, f.WebSocket.PongTimeoutSecs)
	setMS(&cfg.WebSocket.Latency.Excellent, f.WebSocket.Latency.ExcellentMS)
	setMS(&cfg.WebSocket.Latency.Good, f.WebSocket.Latency.GoodMS)
	setMS(&cfg.WebSocket.Latency.Fair, f.WebSocket.Latency.FairMS)

	setSecs(&cfg.Cache.DefaultTTL, f.Cache.DefaultTTLSecs)
	setSecs(&cfg.Cache.DatasetsTTL, f.Cache.DatasetsTTLSecs)
	setSecs(&cfg.Cache.ModelsTTL, f.Cache.ModelsTTLSecs)
	setSecs(&cfg.Cache.PipelinesTTL, f.Cache.PipelinesTTLSecs)
	setSecs(&cfg.Cache.ServicesTTL, f.Cache.ServicesTTLSecs)
	setSecs(&cfg.Cache.MetricsTTL, f.Cache.MetricsTTLSecs)
	setSecs(&cfg.Cache.AlertsTTL, f.Cache.AlertsTTLSecs)
	setStr(&cfg.Cache.RedisAddr, f.Cache.RedisAddr)
	setStr(&cfg.Cache.RedisPassword, f.Cache.RedisPassword)
	if f.Cache.RedisDB > 0 {
		cfg.Cache.RedisDB = f.Cache.RedisDB
	}
	setStr(&cfg.Cache.KeyPrefix, f.Cache.KeyPrefix)

	setSecs(&cfg.Refresh.Metrics, f.Refresh.MetricsSecs)
	setSecs(&cfg.Refresh.Services, f.Refresh.ServicesSecs)
	setSecs(&cfg.Refresh.Alerts, f.Refresh.AlertsSecs)

	cfg.Ops.Enabled = cfg.Ops.Enabled || f.Ops.Enabled
	setStr(&cfg.Ops.Addr, f.Ops.Addr)
}

// Validate ensures the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api base_url must not be empty")
	}
	if c.WebSocket.URL == "" {
		return fmt.Errorf("websocket url must not be empty")
	}
	if c.WebSocket.ReconnectDelay <= 0 {
		return fmt.Errorf("websocket reconnect_delay must be positive, got %s", c.WebSocket.ReconnectDelay)
	}
	if c.WebSocket.MaxReconnectDelay < c.WebSocket.ReconnectDelay {
		return fmt.Errorf("websocket max_reconnect_delay %s must not be below reconnect_delay %s",
			c.WebSocket.MaxReconnectDelay, c.WebSocket.ReconnectDelay)
	}
	if c.WebSocket.MaxReconnectAttempts <= 0 {
		return fmt.Errorf("websocket max_reconnect_attempts must be positive, got %d", c.WebSocket.MaxReconnectAttempts)
	}
	if c.WebSocket.JitterFraction < 0 || c.WebSocket.JitterFraction > 1 {
		return fmt.Errorf("websocket jitter_fraction must be between 0 and 1, got %f", c.WebSocket.JitterFraction)
	}
	if c.WebSocket.PingInterval <= 0 {
		return fmt.Errorf("websocket ping_interval must be positive, got %s", c.WebSocket.PingInterval)
	}
	if c.WebSocket.PongTimeout <= 0 || c.WebSocket.PongTimeout >= c.WebSocket.PingInterval {
		return fmt.Errorf("websocket pong_timeout must be positive and below ping_interval, got %s", c.WebSocket.PongTimeout)
	}
	lat := c.WebSocket.Latency
	if lat.Excellent <= 0 || lat.Good <= lat.Excellent || lat.Fair <= lat.Good {
		return fmt.Errorf("latency thresholds must be increasing: excellent=%s good=%s fair=%s",
			lat.Excellent, lat.Good, lat.Fair)
	}
	if c.Cache.DefaultTTL <= 0 {
		return fmt.Errorf("cache default_ttl must be positive, got %s", c.Cache.DefaultTTL)
	}
	if c.Ops.Enabled && c.Ops.Addr == "" {
		return fmt.Errorf("ops addr must be set when ops endpoint is enabled")
	}
	return nil
}

// TTLFor returns the cache TTL for a named resource family, falling back to
// the default TTL for anything unrecognized.
func (c *CacheConfig) TTLFor(resource string) time.Duration {
	switch resource {
	case "datasets":
		return c.DatasetsTTL
	case "models":
		return c.ModelsTTL
	case "pipelines":
		return c.PipelinesTTL
	case "services":
		return c.ServicesTTL
	case "metrics":
		return c.MetricsTTL
	case "alerts":
		return c.AlertsTTL
	default:
		return c.DefaultTTL
	}
}
