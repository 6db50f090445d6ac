// Package config loads the namespaced configuration surface of spec
// §6, grounded on go-server-3/internal/config's viper wiring.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration object. Every field group matches
// one namespace of the external configuration surface.
type Config struct {
	Connection  ConnectionConfig  `mapstructure:"connection"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Queue       QueueConfig       `mapstructure:"queue"`
	Performance PerformanceConfig `mapstructure:"performance"`
	Reconnect   ReconnectConfig   `mapstructure:"reconnection"`
	Alerts      AlertsConfig      `mapstructure:"alerts"`
	Buffering   BufferingConfig   `mapstructure:"buffering"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

type ConnectionConfig struct {
	URL                 string        `mapstructure:"url"`
	Reconnect           bool          `mapstructure:"reconnect"`
	ReconnectAttempts   int           `mapstructure:"reconnect_attempts"`
	ReconnectDelay      time.Duration `mapstructure:"reconnect_delay"`
	ReconnectDelayMax   time.Duration `mapstructure:"reconnect_delay_max"`
	RandomizationFactor float64       `mapstructure:"randomization_factor"`
	Timeout             time.Duration `mapstructure:"timeout"`
	HeartbeatInterval   time.Duration `mapstructure:"heartbeat_interval"`
	HeartbeatTimeout    time.Duration `mapstructure:"heartbeat_timeout"`
	Protocols           []string      `mapstructure:"protocols"`
	Compression         bool          `mapstructure:"compression"`
	Debug               bool          `mapstructure:"debug"`
}

type AuthConfig struct {
	Enabled              bool          `mapstructure:"enabled"`
	TokenRefreshThreshold time.Duration `mapstructure:"token_refresh_threshold"`
	AutoRefresh          bool          `mapstructure:"auto_refresh"`
}

type QueueConfig struct {
	MaxSize         int  `mapstructure:"max_size"`
	PersistOffline  bool `mapstructure:"persist_offline"`
	PriorityEnabled bool `mapstructure:"priority_enabled"`
}

type PerformanceConfig struct {
	EnableMetrics   bool          `mapstructure:"enable_metrics"`
	MetricsInterval time.Duration `mapstructure:"metrics_interval"`
	LatencyThreshold time.Duration `mapstructure:"latency_threshold"`
}

type ReconnectConfig struct {
	Strategy                string        `mapstructure:"strategy"`
	BaseDelay               time.Duration `mapstructure:"base_delay"`
	MaxDelay                time.Duration `mapstructure:"max_delay"`
	MaxAttempts             int           `mapstructure:"max_attempts"`
	Factor                  float64       `mapstructure:"factor"`
	JitterType              string        `mapstructure:"jitter_type"`
	JitterFactor            float64       `mapstructure:"jitter_factor"`
	ResetTimeout            time.Duration `mapstructure:"reset_timeout"`
	CircuitBreakerThreshold int           `mapstructure:"circuit_breaker_threshold"`
	CircuitBreakerTimeout   time.Duration `mapstructure:"circuit_breaker_timeout"`
	EnableTelemetry         bool          `mapstructure:"enable_telemetry"`
}

type AlertsConfig struct {
	BatchSize             int           `mapstructure:"batch_size"`
	BatchTimeout          time.Duration `mapstructure:"batch_timeout"`
	CompressionThreshold  int           `mapstructure:"compression_threshold"`
	MaxRetries            int           `mapstructure:"max_retries"`
	RetryBackoffMs        int           `mapstructure:"retry_backoff_ms"`
	SyncInterval          time.Duration `mapstructure:"sync_interval"`
	AcknowledgmentTimeout time.Duration `mapstructure:"acknowledgment_timeout"`
	ResyncOnReconnect     bool          `mapstructure:"resync_on_reconnect"`
	SubscribedPriorities  []string      `mapstructure:"subscribed_priorities"`
	AutoAcknowledgeInfo   bool          `mapstructure:"auto_acknowledge_info"`
	AdaptiveBatching      bool          `mapstructure:"adaptive_batching"`
	LowLatencyThreshold   time.Duration `mapstructure:"low_latency_threshold"`
	HighLatencyThreshold  time.Duration `mapstructure:"high_latency_threshold"`
}

type BufferingConfig struct {
	Enabled               bool          `mapstructure:"enabled"`
	DefaultWindowMs       int           `mapstructure:"default_window_ms"`
	DefaultOverflowStrategy string      `mapstructure:"default_overflow_strategy"`
	DefaultFlushTriggers  []string      `mapstructure:"default_flush_triggers"`
	EnablePersistence     bool          `mapstructure:"enable_persistence"`
	EnableStatistics      bool          `mapstructure:"enable_statistics"`
	StatisticsInterval    time.Duration `mapstructure:"statistics_interval"`
	AutoOptimize          bool          `mapstructure:"auto_optimize"`
	MemoryLimitBytes      int64         `mapstructure:"memory_limit_bytes"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from an optional file, environment
// variables (prefixed TELEMETRY_), and the defaults below, mirroring
// go-server-3/internal/config.Load.
func Load(configName string) (Config, error) {
	v := viper.New()

	v.SetDefault("connection.url", "wss://mission-control.local/telemetry")
	v.SetDefault("connection.reconnect", true)
	v.SetDefault("connection.reconnect_attempts", 10)
	v.SetDefault("connection.reconnect_delay", 1*time.Second)
	v.SetDefault("connection.reconnect_delay_max", 30*time.Second)
	v.SetDefault("connection.randomization_factor", 0.5)
	v.SetDefault("connection.timeout", 10*time.Second)
	v.SetDefault("connection.heartbeat_interval", 15*time.Second)
	v.SetDefault("connection.heartbeat_timeout", 5*time.Second)
	v.SetDefault("connection.protocols", []string{"json", "messagepack", "cbor"})
	v.SetDefault("connection.compression", true)
	v.SetDefault("connection.debug", false)

	v.SetDefault("auth.enabled", true)
	v.SetDefault("auth.token_refresh_threshold", 60*time.Second)
	v.SetDefault("auth.auto_refresh", true)

	v.SetDefault("queue.max_size", 10000)
	v.SetDefault("queue.persist_offline", true)
	v.SetDefault("queue.priority_enabled", true)

	v.SetDefault("performance.enable_metrics", true)
	v.SetDefault("performance.metrics_interval", 5*time.Second)
	v.SetDefault("performance.latency_threshold", 200*time.Millisecond)

	v.SetDefault("reconnection.strategy", "exponential")
	v.SetDefault("reconnection.base_delay", 100*time.Millisecond)
	v.SetDefault("reconnection.max_delay", 30*time.Second)
	v.SetDefault("reconnection.max_attempts", 10)
	v.SetDefault("reconnection.factor", 2.0)
	v.SetDefault("reconnection.jitter_type", "full")
	v.SetDefault("reconnection.jitter_factor", 0.5)
	v.SetDefault("reconnection.reset_timeout", 60*time.Second)
	v.SetDefault("reconnection.circuit_breaker_threshold", 5)
	v.SetDefault("reconnection.circuit_breaker_timeout", 30*time.Second)
	v.SetDefault("reconnection.enable_telemetry", true)

	v.SetDefault("alerts.batch_size", 20)
	v.SetDefault("alerts.batch_timeout", 2*time.Second)
	v.SetDefault("alerts.compression_threshold", 1024)
	v.SetDefault("alerts.max_retries", 5)
	v.SetDefault("alerts.retry_backoff_ms", 500)
	v.SetDefault("alerts.sync_interval", 30*time.Second)
	v.SetDefault("alerts.acknowledgment_timeout", 5*time.Second)
	v.SetDefault("alerts.resync_on_reconnect", true)
	v.SetDefault("alerts.subscribed_priorities", []string{"critical", "high", "medium", "low", "info"})
	v.SetDefault("alerts.auto_acknowledge_info", true)
	v.SetDefault("alerts.adaptive_batching", true)
	v.SetDefault("alerts.low_latency_threshold", 50*time.Millisecond)
	v.SetDefault("alerts.high_latency_threshold", 250*time.Millisecond)

	v.SetDefault("buffering.enabled", true)
	v.SetDefault("buffering.default_window_ms", 200)
	v.SetDefault("buffering.default_overflow_strategy", "fifo")
	v.SetDefault("buffering.default_flush_triggers", []string{"time_interval", "buffer_full"})
	v.SetDefault("buffering.enable_persistence", true)
	v.SetDefault("buffering.enable_statistics", true)
	v.SetDefault("buffering.statistics_interval", 5*time.Second)
	v.SetDefault("buffering.auto_optimize", false)
	v.SetDefault("buffering.memory_limit_bytes", int64(100*1024*1024))

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	if configName == "" {
		configName = "telemetry"
	}
	v.SetConfigName(configName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.SetEnvPrefix("TELEMETRY")
	v.AutomaticEnv()

	_ = v.ReadInConfig()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config unmarshal: %w", err)
	}

	if cfg.Queue.MaxSize <= 0 {
		cfg.Queue.MaxSize = 10000
	}
	if cfg.Reconnect.Factor <= 1 {
		cfg.Reconnect.Factor = 2.0
	}

	return cfg, nil
}

// Defaults returns a Config populated purely from defaults, useful for
// tests and for the facade's zero-value constructor.
func Defaults() Config {
	cfg, _ := Load("__defaults_only__")
	return cfg
}
