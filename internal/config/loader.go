package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// configName is the config file name without extension.
const configName = ".fleetstat"

// configType is the config file format.
const configType = "yaml"

// envPrefix is the environment variable prefix for fleetstat settings.
const envPrefix = "FLEETSTAT"

// envKeySeparator is the nested key separator in environment variable names.
const envKeySeparator = "_"

// Load loads configuration from file, env vars, and defaults.
// If configPath is non-empty, it is used as the explicit config file path.
// Otherwise, the config file is searched in CWD and $HOME.
// Missing config file is not an error; defaults are used.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	applyDefaults(v)

	v.SetConfigType(configType)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", envKeySeparator))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName(configName)
		v.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(home)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// applyDefaults registers every key so AutomaticEnv can resolve it during
// Unmarshal, including keys without a meaningful default.
func applyDefaults(v *viper.Viper) {
	v.SetDefault("api.base_url", "")
	v.SetDefault("api.token", "")
	v.SetDefault("api.user_agent", "fleetstat/1.0")
	v.SetDefault("api.timeout", DefaultAPITimeout)
	v.SetDefault("api.rate_limit", DefaultAPIRateLimit)
	v.SetDefault("api.burst", DefaultAPIBurst)

	v.SetDefault("redis.addr", DefaultRedisAddr)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("cache.ttl", DefaultCacheTTL)
	v.SetDefault("cache.namespace", "")

	v.SetDefault("pipeline.read_batch_size", DefaultReadBatchSize)
	v.SetDefault("pipeline.write_batch_size", DefaultWriteBatchSize)
	v.SetDefault("pipeline.sample_size", DefaultSampleSize)
	v.SetDefault("pipeline.item_timeout", DefaultItemTimeout)

	v.SetDefault("telemetry.interval", DefaultTelemetryInterval)

	v.SetDefault("log.level", DefaultLogLevel)
	v.SetDefault("log.pretty", false)

	v.SetDefault("server.addr", DefaultServerAddr)
}
