// Package config provides centralized configuration for the portasync
// engine. Values come from an optional config file, environment variables
// prefixed PORTASYNC_, and documented defaults, in that order of
// precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all engine configuration values.
type Config struct {
	// CachePath is the SQLite cache database file.
	CachePath string `mapstructure:"cache_path"`

	// RemoteURL is the JSONSQL endpoint rows are mirrored from.
	RemoteURL string `mapstructure:"remote_url"`

	// RequestTimeout bounds each remote request.
	RequestTimeout time.Duration `mapstructure:"request_timeout"`

	// SchemaPath is a schema document (YAML or JSON) loaded into the
	// registry at startup. Empty means no preloaded schemas.
	SchemaPath string `mapstructure:"schema_path"`

	// MaxConcurrentSyncs bounds SyncAll fan-out.
	MaxConcurrentSyncs int `mapstructure:"max_concurrent_syncs"`

	// DefaultStrategy applies to tables whose schema names none.
	DefaultStrategy string `mapstructure:"default_strategy"`

	// HistoryRetention is how many sync history rows to keep.
	HistoryRetention int `mapstructure:"history_retention"`

	// LogLevel is a logrus level name (debug, info, warn, error).
	LogLevel string `mapstructure:"log_level"`
}

// Load reads configuration from path (optional; empty skips the file) plus
// PORTASYNC_* environment variables.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("cache_path", "portadata/cache.db")
	v.SetDefault("remote_url", "http://localhost:8080/jsonsql")
	v.SetDefault("request_timeout", 30*time.Second)
	v.SetDefault("schema_path", "")
	v.SetDefault("max_concurrent_syncs", 3)
	v.SetDefault("default_strategy", "full")
	v.SetDefault("history_retention", 1000)
	v.SetDefault("log_level", "info")

	v.SetEnvPrefix("portasync")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("reading config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.CachePath == "" {
		return fmt.Errorf("cache_path must not be empty")
	}
	if c.RemoteURL == "" {
		return fmt.Errorf("remote_url must not be empty")
	}
	if c.MaxConcurrentSyncs <= 0 {
		return fmt.Errorf("max_concurrent_syncs must be positive, got %d", c.MaxConcurrentSyncs)
	}
	if c.HistoryRetention < 0 {
		return fmt.Errorf("history_retention must not be negative, got %d", c.HistoryRetention)
	}
	switch c.DefaultStrategy {
	case "full", "incremental", "on_demand":
	default:
		return fmt.Errorf("unknown default_strategy %q", c.DefaultStrategy)
	}
	return nil
}
