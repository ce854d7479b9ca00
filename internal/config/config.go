// Package config loads CLI settings from a config file, the environment and
// defaults.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/meigma/prefixgz"
)

// Defaults.
const (
	DefaultEngine          = "forked"
	DefaultOrdering        = "strict"
	DefaultFormat          = "json"
	DefaultAddr            = ":8080"
	DefaultUpstream        = "https://hackage.haskell.org/01-index.tar.gz"
	DefaultMetricsPath     = "/metrics"
	DefaultShutdownTimeout = "10s"
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "text"
)

// Config is the top-level configuration.
// Field tags use mapstructure for viper unmarshalling.
type Config struct {
	Engine   string       `mapstructure:"engine"`
	Ordering string       `mapstructure:"ordering"`
	Format   string       `mapstructure:"format"`
	Verify   VerifyConfig `mapstructure:"verify"`
	Serve    ServeConfig  `mapstructure:"serve"`
	Log      LogConfig    `mapstructure:"log"`
}

// VerifyConfig holds verify settings.
type VerifyConfig struct {
	Concurrency int `mapstructure:"concurrency"`
}

// ServeConfig holds HTTP server settings.
type ServeConfig struct {
	Addr            string `mapstructure:"addr"`
	Upstream        string `mapstructure:"upstream"`
	Mirror          string `mapstructure:"mirror"`
	Floor           bool   `mapstructure:"floor"`
	Conditional     bool   `mapstructure:"conditional"`
	MetricsPath     string `mapstructure:"metrics_path"`
	ShutdownTimeout string `mapstructure:"shutdown_timeout"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Validate checks that every setting parses.
func (c *Config) Validate() error {
	var errs []error
	if _, err := c.EngineValue(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.OrderingValue(); err != nil {
		errs = append(errs, err)
	}
	if _, err := prefixgz.ParseRecordFormat(c.Format); err != nil {
		errs = append(errs, err)
	}
	if c.Verify.Concurrency < 0 {
		errs = append(errs, fmt.Errorf("verify.concurrency must be >= 0, got %d", c.Verify.Concurrency))
	}
	if c.Serve.ShutdownTimeout != "" {
		if _, err := time.ParseDuration(c.Serve.ShutdownTimeout); err != nil {
			errs = append(errs, fmt.Errorf("serve.shutdown_timeout: %w", err))
		}
	}
	if c.Serve.MetricsPath != "" && !strings.HasPrefix(c.Serve.MetricsPath, "/") {
		errs = append(errs, fmt.Errorf("serve.metrics_path %q must start with /", c.Serve.MetricsPath))
	}
	if _, err := c.LogLevel(); err != nil {
		errs = append(errs, err)
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log.format %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

// EngineValue returns the configured trailer engine.
func (c *Config) EngineValue() (prefixgz.Engine, error) {
	return prefixgz.ParseEngine(c.Engine)
}

// OrderingValue returns the configured mtime ordering.
func (c *Config) OrderingValue() (prefixgz.Ordering, error) {
	switch c.Ordering {
	case "", "strict":
		return prefixgz.OrderStrict, nil
	case "permissive":
		return prefixgz.OrderPermissive, nil
	default:
		return 0, fmt.Errorf("unknown ordering %q", c.Ordering)
	}
}

// ShutdownTimeout returns serve.shutdown_timeout, or zero if unset.
func (c *Config) ShutdownTimeout() time.Duration {
	d, err := time.ParseDuration(c.Serve.ShutdownTimeout)
	if err != nil {
		return 0
	}
	return d
}

// LogLevel returns the configured slog level.
func (c *Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if c.Log.Level == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}
