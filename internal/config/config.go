// Package config loads the aghpb command line configuration from flags,
// AGHPB_* environment variables and an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	aghpb "github.com/JohnPlummer/jp-go-aghpb"
)

// Config holds the command line configuration.
type Config struct {
	BaseURL        string        `mapstructure:"base_url"`
	UserAgent      string        `mapstructure:"user_agent"`
	MaxRetries     int           `mapstructure:"max_retries"`
	Timeout        time.Duration `mapstructure:"timeout"`
	RetryDelay     time.Duration `mapstructure:"retry_delay"`
	CircuitBreaker bool          `mapstructure:"circuit_breaker"`
}

// flagKeys maps flag names to configuration keys.
var flagKeys = map[string]string{
	"base-url":        "base_url",
	"user-agent":      "user_agent",
	"max-retries":     "max_retries",
	"timeout":         "timeout",
	"retry-delay":     "retry_delay",
	"circuit-breaker": "circuit_breaker",
}

// GetConfigDir returns the configuration directory path.
func GetConfigDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		home, _ := os.UserHomeDir()
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "aghpb")
}

// GetConfigPath returns the default config file path.
func GetConfigPath() string {
	return filepath.Join(GetConfigDir(), "config.yaml")
}

// RegisterFlags adds the configuration flags to flags.
func RegisterFlags(flags *pflag.FlagSet) {
	defaults := aghpb.DefaultClientConfig()

	flags.String("base-url", aghpb.DefaultBaseURL, "API base URL")
	flags.String("user-agent", defaults.UserAgent, "User-Agent header sent with every request")
	flags.Int("max-retries", defaults.MaxRetries, "retries after a transport failure")
	flags.Duration("timeout", defaults.Timeout, "per-request timeout")
	flags.Duration("retry-delay", defaults.RetryDelay, "delay between transport retries")
	flags.Bool("circuit-breaker", false, "stop sending after repeated transport failures")
}

// Load reads the configuration. Flags that were set win over AGHPB_*
// environment variables, which win over the config file. A missing default
// config file is not an error; a missing explicit cfgFile is.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	defaults := aghpb.DefaultClientConfig()
	v.SetDefault("base_url", aghpb.DefaultBaseURL)
	v.SetDefault("user_agent", defaults.UserAgent)
	v.SetDefault("max_retries", defaults.MaxRetries)
	v.SetDefault("timeout", defaults.Timeout)
	v.SetDefault("retry_delay", defaults.RetryDelay)
	v.SetDefault("circuit_breaker", false)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(GetConfigDir())
	}

	v.SetEnvPrefix("AGHPB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			if flag := flags.Lookup(name); flag != nil {
				if err := v.BindPFlag(key, flag); err != nil {
					return nil, fmt.Errorf("binding flag %s: %w", name, err)
				}
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("max_retries must not be negative, got %d", cfg.MaxRetries)
	}
	return cfg, nil
}

// ClientOptions translates the configuration into client options.
func (c *Config) ClientOptions() []aghpb.ClientOption {
	opts := []aghpb.ClientOption{
		aghpb.WithBaseURL(c.BaseURL),
		aghpb.WithMaxRetries(c.MaxRetries),
		aghpb.WithTimeout(c.Timeout),
		aghpb.WithRetryDelay(c.RetryDelay),
	}
	if c.UserAgent != "" {
		opts = append(opts, aghpb.WithUserAgent(c.UserAgent))
	}
	if c.CircuitBreaker {
		opts = append(opts, aghpb.WithCircuitBreaker())
	}
	return opts
}
