package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// configName is the config file name without extension.
const configName = ".prefixgz"

// configType is the config file format.
const configType = "yaml"

// envPrefix is the environment variable prefix, as in PREFIXGZ_SERVE_ADDR.
const envPrefix = "PREFIXGZ"

// LoadConfig loads configuration from file, env vars, and defaults.
// If configPath is non-empty, it is used as the explicit config file path.
// Otherwise, the config file is searched in CWD and $HOME.
// Missing config file is not an error; defaults are used.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	applyDefaults(v)

	v.SetConfigType(configType)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName(configName)
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
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

func applyDefaults(v *viper.Viper) {
	v.SetDefault("engine", DefaultEngine)
	v.SetDefault("ordering", DefaultOrdering)
	v.SetDefault("format", DefaultFormat)

	v.SetDefault("verify.concurrency", 0)

	v.SetDefault("serve.addr", DefaultAddr)
	v.SetDefault("serve.upstream", DefaultUpstream)
	v.SetDefault("serve.mirror", "")
	v.SetDefault("serve.floor", false)
	v.SetDefault("serve.conditional", false)
	v.SetDefault("serve.metrics_path", DefaultMetricsPath)
	v.SetDefault("serve.shutdown_timeout", DefaultShutdownTimeout)

	v.SetDefault("log.level", DefaultLogLevel)
	v.SetDefault("log.format", DefaultLogFormat)
}
