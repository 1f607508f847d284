// Package config loads fleetstat settings from defaults, an optional YAML
// file and FLEETSTAT_* environment variables.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/chargee-energy/chargee-developer-playground/pkg/logging"
)

// Default values.
const (
	DefaultAPITimeout        = 30 * time.Second
	DefaultAPIRateLimit      = 50.0
	DefaultAPIBurst          = 100
	DefaultRedisAddr         = "localhost:6379"
	DefaultCacheTTL          = time.Hour
	DefaultReadBatchSize     = 50
	DefaultWriteBatchSize    = 10
	DefaultSampleSize        = 100
	DefaultItemTimeout       = 30 * time.Second
	DefaultTelemetryInterval = time.Second
	DefaultServerAddr        = ":8080"
	DefaultLogLevel          = "info"
)

// Validation errors.
var (
	ErrMissingBaseURL      = errors.New("api.base_url is required")
	ErrInvalidRateLimit    = errors.New("api.rate_limit must not be negative")
	ErrInvalidBatchSize    = errors.New("pipeline batch sizes must be positive")
	ErrInvalidSampleSize   = errors.New("pipeline.sample_size must be positive")
	ErrInvalidCacheTTL     = errors.New("cache.ttl must be positive")
	ErrInvalidPollInterval = errors.New("telemetry.interval must be positive")
)

// Config is the top-level configuration.
// Field tags use mapstructure for viper unmarshalling.
type Config struct {
	API       APIConfig       `mapstructure:"api"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Log       LogConfig       `mapstructure:"log"`
	Server    ServerConfig    `mapstructure:"server"`
}

// APIConfig describes the remote fleet service.
type APIConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	Token     string        `mapstructure:"token"`
	UserAgent string        `mapstructure:"user_agent"`
	Timeout   time.Duration `mapstructure:"timeout"`
	RateLimit float64       `mapstructure:"rate_limit"`
	Burst     int           `mapstructure:"burst"`
}

// RedisConfig holds the cache backend connection.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// CacheConfig holds snapshot cache settings.
type CacheConfig struct {
	TTL       time.Duration `mapstructure:"ttl"`
	Namespace string        `mapstructure:"namespace"`
}

// PipelineConfig holds aggregation fan-out knobs.
type PipelineConfig struct {
	ReadBatchSize  int           `mapstructure:"read_batch_size"`
	WriteBatchSize int           `mapstructure:"write_batch_size"`
	SampleSize     int           `mapstructure:"sample_size"`
	ItemTimeout    time.Duration `mapstructure:"item_timeout"`
}

// TelemetryConfig holds live telemetry polling settings.
type TelemetryConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// ServerConfig holds the HTTP server settings.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return ErrMissingBaseURL
	}
	if c.API.RateLimit < 0 {
		return ErrInvalidRateLimit
	}
	if c.Pipeline.ReadBatchSize <= 0 || c.Pipeline.WriteBatchSize <= 0 {
		return ErrInvalidBatchSize
	}
	if c.Pipeline.SampleSize <= 0 {
		return ErrInvalidSampleSize
	}
	if c.Cache.TTL <= 0 {
		return ErrInvalidCacheTTL
	}
	if c.Telemetry.Interval <= 0 {
		return ErrInvalidPollInterval
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}

// LoggingConfig converts the log section for logging.Setup.
func (c *Config) LoggingConfig() logging.Config {
	cfg := logging.DefaultConfig()
	if level, err := logging.ParseLevel(c.Log.Level); err == nil {
		cfg.Level = level
	}
	cfg.Pretty = c.Log.Pretty
	return cfg
}
