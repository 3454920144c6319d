package config

import (
	"fmt"
	"os"
	"time"

	"watchsync/pkg/validation"

	"gopkg.in/yaml.v2"
)

// PauseOverridePolicy decides how remote pause corrections interact with a
// very recent local play/pause intent.
type PauseOverridePolicy string

const (
	// PauseOverrideDeferOnce lets the local intent win for the whole
	// suppression window; disagreeing remote flags inside it are dropped and
	// the server's value applies only once the window has passed.
	PauseOverrideDeferOnce PauseOverridePolicy = "defer_once"
	// PauseOverrideAlways defers a single disagreeing frame; a second frame
	// still carrying the disagreement is applied even inside the window.
	PauseOverrideAlways PauseOverridePolicy = "always_apply"
)

type Config struct {
	Hub struct {
		URL              string        `yaml:"url"`
		HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
		PingInterval     time.Duration `yaml:"ping_interval"`
		PongTimeout      time.Duration `yaml:"pong_timeout"`
		WriteTimeout     time.Duration `yaml:"write_timeout"`
	} `yaml:"hub"`

	Session struct {
		HealthCheckInterval time.Duration `yaml:"health_check_interval"`
		Reconnect           struct {
			MaxAttempts  int           `yaml:"max_attempts"`
			InitialDelay time.Duration `yaml:"initial_delay"`
			MaxDelay     time.Duration `yaml:"max_delay"`
			Multiplier   float64       `yaml:"multiplier"`
			Jitter       bool          `yaml:"jitter"`
		} `yaml:"reconnect"`
		Outbound struct {
			MessagesPerSecond float64 `yaml:"messages_per_second"`
			Burst             int     `yaml:"burst"`
		} `yaml:"outbound"`
	} `yaml:"session"`

	Sync struct {
		SeekSettleWindow       time.Duration       `yaml:"seek_settle_window"`
		SeekPushDelay          time.Duration       `yaml:"seek_push_delay"`
		PlayPauseDebounce      time.Duration       `yaml:"play_pause_debounce"`
		ProgressPushInterval   time.Duration       `yaml:"progress_push_interval"`
		ProgressDeltaThreshold float64             `yaml:"progress_delta_threshold"`
		RemoteMinInterval      time.Duration       `yaml:"remote_min_interval"`
		DivergenceThreshold    float64             `yaml:"divergence_threshold"`
		LocalIntentWindow      time.Duration       `yaml:"local_intent_window"`
		ManualSeekEchoWindow   time.Duration       `yaml:"manual_seek_echo_window"`
		PauseOverride          PauseOverridePolicy `yaml:"pause_override"`
	} `yaml:"sync"`

	RoomsAPI struct {
		BaseURL  string        `yaml:"base_url"`
		Timeout  time.Duration `yaml:"timeout"`
		Token    string        `yaml:"token"`
		CacheTTL time.Duration `yaml:"cache_ttl"`
	} `yaml:"rooms_api"`

	Status struct {
		Enabled bool   `yaml:"enabled"`
		Address string `yaml:"address"`
	} `yaml:"status"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	Tracing struct {
		Enabled     bool    `yaml:"enabled"`
		ServiceName string  `yaml:"service_name"`
		JaegerURL   string  `yaml:"jaeger_url"`
		Environment string  `yaml:"environment"`
		SampleRate  float64 `yaml:"sample_rate"`
	} `yaml:"tracing"`
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	// Hub
	if err := validation.ValidateHubURL(c.Hub.URL); err != nil {
		return fmt.Errorf("hub.url: %w", err)
	}
	if c.Hub.PingInterval <= 0 {
		return fmt.Errorf("hub.ping_interval must be > 0")
	}
	if c.Hub.PongTimeout <= c.Hub.PingInterval {
		return fmt.Errorf("hub.pong_timeout must be > hub.ping_interval")
	}
	if c.Hub.WriteTimeout <= 0 {
		return fmt.Errorf("hub.write_timeout must be > 0")
	}

	// Session
	if c.Session.HealthCheckInterval <= 0 {
		return fmt.Errorf("session.health_check_interval must be > 0")
	}
	if c.Session.Reconnect.MaxAttempts <= 0 {
		return fmt.Errorf("session.reconnect.max_attempts must be > 0")
	}
	if c.Session.Reconnect.InitialDelay <= 0 {
		return fmt.Errorf("session.reconnect.initial_delay must be > 0")
	}
	if c.Session.Reconnect.MaxDelay < c.Session.Reconnect.InitialDelay {
		return fmt.Errorf("session.reconnect.max_delay must be >= initial_delay")
	}
	if c.Session.Reconnect.Multiplier < 1 {
		return fmt.Errorf("session.reconnect.multiplier must be >= 1")
	}
	if c.Session.Outbound.MessagesPerSecond <= 0 {
		return fmt.Errorf("session.outbound.messages_per_second must be > 0")
	}
	if c.Session.Outbound.Burst <= 0 {
		return fmt.Errorf("session.outbound.burst must be > 0")
	}

	// Sync policy
	if c.Sync.SeekSettleWindow <= 0 {
		return fmt.Errorf("sync.seek_settle_window must be > 0")
	}
	if c.Sync.SeekPushDelay <= 0 {
		return fmt.Errorf("sync.seek_push_delay must be > 0")
	}
	if c.Sync.PlayPauseDebounce <= 0 {
		return fmt.Errorf("sync.play_pause_debounce must be > 0")
	}
	if c.Sync.ProgressPushInterval <= 0 {
		return fmt.Errorf("sync.progress_push_interval must be > 0")
	}
	if c.Sync.ProgressDeltaThreshold <= 0 {
		return fmt.Errorf("sync.progress_delta_threshold must be > 0")
	}
	if c.Sync.RemoteMinInterval <= 0 {
		return fmt.Errorf("sync.remote_min_interval must be > 0")
	}
	if c.Sync.DivergenceThreshold < 3 || c.Sync.DivergenceThreshold > 5 {
		return fmt.Errorf("sync.divergence_threshold must be within [3, 5] seconds")
	}
	if c.Sync.LocalIntentWindow <= 0 {
		return fmt.Errorf("sync.local_intent_window must be > 0")
	}
	if c.Sync.ManualSeekEchoWindow <= 0 {
		return fmt.Errorf("sync.manual_seek_echo_window must be > 0")
	}
	switch c.Sync.PauseOverride {
	case PauseOverrideDeferOnce, PauseOverrideAlways:
	default:
		return fmt.Errorf("sync.pause_override must be %q or %q",
			PauseOverrideDeferOnce, PauseOverrideAlways)
	}

	// Rooms API
	if err := validation.ValidateAPIURL(c.RoomsAPI.BaseURL); err != nil {
		return fmt.Errorf("rooms_api.base_url: %w", err)
	}
	if c.RoomsAPI.Timeout <= 0 {
		return fmt.Errorf("rooms_api.timeout must be > 0")
	}
	if c.RoomsAPI.CacheTTL < 0 {
		return fmt.Errorf("rooms_api.cache_ttl must be >= 0")
	}

	// Status server
	if c.Status.Enabled && c.Status.Address == "" {
		return fmt.Errorf("status.address must not be empty when status.enabled=true")
	}

	// Logging
	if c.Logging.Level == "" {
		return fmt.Errorf("logging.level must not be empty")
	}

	// Tracing
	if c.Tracing.Enabled {
		if c.Tracing.JaegerURL == "" {
			return fmt.Errorf("tracing.jaeger_url must not be empty when tracing.enabled=true")
		}
		if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
			return fmt.Errorf("tracing.sample_rate must be within [0, 1]")
		}
	}

	return nil
}

// Load reads configuration from YAML file, applies defaults and env overrides.
func Load(configPath string) (*Config, error) {
	// If file does not exist, fall back to defaults
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns configuration with sane defaults.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Hub.URL = "ws://localhost:8081/hub"
	cfg.Hub.HandshakeTimeout = 10 * time.Second
	cfg.Hub.PingInterval = 30 * time.Second
	cfg.Hub.PongTimeout = 60 * time.Second
	cfg.Hub.WriteTimeout = 10 * time.Second

	cfg.Session.HealthCheckInterval = 30 * time.Second
	cfg.Session.Reconnect.MaxAttempts = 5
	cfg.Session.Reconnect.InitialDelay = time.Second
	cfg.Session.Reconnect.MaxDelay = 15 * time.Second
	cfg.Session.Reconnect.Multiplier = 2.0
	cfg.Session.Reconnect.Jitter = false
	cfg.Session.Outbound.MessagesPerSecond = 10
	cfg.Session.Outbound.Burst = 5

	cfg.Sync.SeekSettleWindow = 2 * time.Second
	cfg.Sync.SeekPushDelay = 1500 * time.Millisecond
	cfg.Sync.PlayPauseDebounce = 300 * time.Millisecond
	cfg.Sync.ProgressPushInterval = 1500 * time.Millisecond
	cfg.Sync.ProgressDeltaThreshold = 1.0
	cfg.Sync.RemoteMinInterval = time.Second
	cfg.Sync.DivergenceThreshold = 4.0
	cfg.Sync.LocalIntentWindow = 2 * time.Second
	cfg.Sync.ManualSeekEchoWindow = 5 * time.Second
	cfg.Sync.PauseOverride = PauseOverrideDeferOnce

	cfg.RoomsAPI.BaseURL = "http://localhost:8080"
	cfg.RoomsAPI.Timeout = 30 * time.Second
	cfg.RoomsAPI.CacheTTL = 15 * time.Second

	cfg.Status.Enabled = true
	cfg.Status.Address = ":9091"

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"

	cfg.Tracing.Enabled = false
	cfg.Tracing.ServiceName = "watchsync"
	cfg.Tracing.JaegerURL = "http://localhost:14268/api/traces"
	cfg.Tracing.Environment = "development"
	cfg.Tracing.SampleRate = 1.0

	return cfg
}

func (c *Config) applyEnvOverrides() {
	// Apply environment variable overrides
	if url := os.Getenv("WATCHSYNC_HUB_URL"); url != "" {
		c.Hub.URL = url
	}
	if base := os.Getenv("WATCHSYNC_ROOMS_API_URL"); base != "" {
		c.RoomsAPI.BaseURL = base
	}
	if token := os.Getenv("WATCHSYNC_API_TOKEN"); token != "" {
		c.RoomsAPI.Token = token
	}
	if level := os.Getenv("WATCHSYNC_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if addr := os.Getenv("WATCHSYNC_STATUS_ADDRESS"); addr != "" {
		c.Status.Address = addr
	}
}
