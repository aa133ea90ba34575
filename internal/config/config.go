// Package config loads and validates the service's nested configuration:
// viper binds defaults, a config file, and environment overrides into one
// struct, which is then checked with struct-tag validation before the
// caller ever sees it.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config is the service's complete runtime configuration.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Log         LogConfig         `mapstructure:"log"`
	Downloader  DownloaderConfig  `mapstructure:"downloader"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Workflow    WorkflowConfig    `mapstructure:"workflow"`
	RateLimit   RateLimitConfig   `mapstructure:"rate_limit"`
	Diagnostics DiagnosticsConfig `mapstructure:"diagnostics"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
}

// ServerConfig holds HTTP-front-end-related configuration.
type ServerConfig struct {
	Port                    int           `mapstructure:"port" validate:"min=1,max=65535"`
	Host                    string        `mapstructure:"host" validate:"required"`
	ReadTimeout             time.Duration `mapstructure:"read_timeout" validate:"min=0"`
	WriteTimeout            time.Duration `mapstructure:"write_timeout" validate:"min=0"`
	IdleTimeout             time.Duration `mapstructure:"idle_timeout" validate:"min=0"`
	GracefulShutdownTimeout time.Duration `mapstructure:"graceful_shutdown_timeout" validate:"min=0"`
}

// StorageConfig selects and configures the key-value backend
// (internal/kv): "memory" (single-process "lite" profile) or "redis"
// (shared, multi-replica "standard" profile).
type StorageConfig struct {
	Backend         string `mapstructure:"backend" validate:"oneof=memory redis"`
	MemoryMaxEntries int    `mapstructure:"memory_max_entries" validate:"min=0"`
	RedisAddr       string `mapstructure:"redis_addr"`
	RedisPassword   string `mapstructure:"redis_password"`
	RedisDB         int    `mapstructure:"redis_db" validate:"min=0"`
}

// LogConfig mirrors pkg/logger.Config field for field, so it can be
// unmarshalled straight from viper and passed to logger.NewLogger.
type LogConfig struct {
	Level      string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format     string `mapstructure:"format" validate:"oneof=json text"`
	Output     string `mapstructure:"output" validate:"oneof=stdout stderr file"`
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size" validate:"min=0"`
	MaxBackups int    `mapstructure:"max_backups" validate:"min=0"`
	MaxAge     int    `mapstructure:"max_age" validate:"min=0"`
	Compress   bool   `mapstructure:"compress"`
}

// DownloaderConfig bounds the source downloader's HTTP behavior.
type DownloaderConfig struct {
	Timeout         time.Duration `mapstructure:"timeout" validate:"min=0"`
	MaxResponseSize int64         `mapstructure:"max_response_size" validate:"min=0"`
	MaxRetries      int           `mapstructure:"max_retries" validate:"min=0"`
	RetryDelay      time.Duration `mapstructure:"retry_delay" validate:"min=0"`
}

// CacheConfig configures the compiled-result cache's retention.
type CacheConfig struct {
	TTL time.Duration `mapstructure:"ttl" validate:"min=0"`
}

// WorkflowConfig holds retry and event-log settings for the durable
// workflow engine. They are loaded and validated but not passed to the
// engine: its step retry policies and its 100-entry event log are fixed
// in internal/workflow.
type WorkflowConfig struct {
	DefaultRetryLimit int           `mapstructure:"default_retry_limit" validate:"min=0"`
	DefaultRetryDelay time.Duration `mapstructure:"default_retry_delay" validate:"min=0"`
	EventLogCapacity  int           `mapstructure:"event_log_capacity" validate:"min=1"`
}

// RateLimitConfig configures the per-client fixed-window limiter.
type RateLimitConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	RequestsLimit int           `mapstructure:"requests_limit" validate:"min=1"`
	Window        time.Duration `mapstructure:"window" validate:"min=0"`
}

// DiagnosticsConfig holds the diagnostic-trace retention setting. It is
// loaded and validated; nothing else reads it.
type DiagnosticsConfig struct {
	RetainEvents bool `mapstructure:"retain_events"`
}

// MetricsConfig configures the Prometheus registry namespace.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace" validate:"required"`
}

var validate = validator.New()

// Validate checks every struct tag constraint across the nested config,
// returning the first failure it finds.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	if c.Storage.Backend == "redis" && c.Storage.RedisAddr == "" {
		return fmt.Errorf("config validation failed: storage.redis_addr is required when storage.backend is \"redis\"")
	}
	return nil
}

// Load reads configuration from environment variables (SERVER_PORT,
// LOG_LEVEL, etc., "_" replacing "."), configPath (if non-empty and
// present), and built-in defaults, in that precedence order, then
// validates the result.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			v.SetConfigFile(configPath)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.graceful_shutdown_timeout", "30s")

	v.SetDefault("storage.backend", "memory")
	v.SetDefault("storage.memory_max_entries", 0)
	v.SetDefault("storage.redis_db", 0)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age", 28)

	v.SetDefault("downloader.timeout", "30s")
	v.SetDefault("downloader.max_response_size", 50<<20)
	v.SetDefault("downloader.max_retries", 2)
	v.SetDefault("downloader.retry_delay", "500ms")

	v.SetDefault("cache.ttl", "1h")

	v.SetDefault("workflow.default_retry_limit", 2)
	v.SetDefault("workflow.default_retry_delay", "1s")
	v.SetDefault("workflow.event_log_capacity", 100)

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_limit", 10)
	v.SetDefault("rate_limit.window", "1m")

	v.SetDefault("diagnostics.retain_events", true)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.namespace", "adblock_compiler")
}
