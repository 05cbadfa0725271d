// Package config loads static process configuration: listen address, log
// directory, database path, and the monitored target list. Runtime-tunable
// settings live in the settings repository, not here.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config wraps a viper instance with typed accessors.
type Config struct {
	v *viper.Viper
}

// New wraps an existing viper instance.
func New(v *viper.Viper) *Config {
	return &Config{v: v}
}

// Target is one monitored host from the static configuration.
type Target struct {
	Host     string
	Label    string
	Internal bool
}

// Load reads configuration from the given file path, or from ./netwatch.yaml
// and /etc/netwatch/netwatch.yaml when path is empty. Environment variables
// prefixed NETWATCH_ override file values. A missing file is not an error;
// defaults apply.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.addr", "0.0.0.0:8080")
	v.SetDefault("log.dir", "logs")
	v.SetDefault("db.path", "netwatch.db")
	v.SetDefault("targets", []map[string]any{
		{"host": "192.168.1.1", "label": "INTERNAL", "internal": true},
		{"host": "8.8.8.8", "label": "EXTERNAL_A"},
	})

	v.SetEnvPrefix("NETWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %q: %w", path, err)
		}
		return New(v), nil
	}

	v.SetConfigName("netwatch")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/netwatch")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return New(v), nil
}

// Targets decodes the configured target list.
func (c *Config) Targets() ([]Target, error) {
	var targets []Target
	if err := c.v.UnmarshalKey("targets", &targets); err != nil {
		return nil, fmt.Errorf("decode targets: %w", err)
	}
	for i, t := range targets {
		if t.Host == "" {
			return nil, fmt.Errorf("target %d: host is required", i)
		}
		if t.Label == "" {
			return nil, fmt.Errorf("target %d (%s): label is required", i, t.Host)
		}
	}
	return targets, nil
}

// GetString returns the string value for key.
func (c *Config) GetString(key string) string { return c.v.GetString(key) }

// GetInt returns the int value for key.
func (c *Config) GetInt(key string) int { return c.v.GetInt(key) }

// GetBool returns the bool value for key.
func (c *Config) GetBool(key string) bool { return c.v.GetBool(key) }

// GetDuration returns the duration value for key.
func (c *Config) GetDuration(key string) time.Duration { return c.v.GetDuration(key) }

// IsSet reports whether key has a value.
func (c *Config) IsSet(key string) bool { return c.v.IsSet(key) }

// Sub returns the configuration subtree under key, or nil if absent.
func (c *Config) Sub(key string) *Config {
	sub := c.v.Sub(key)
	if sub == nil {
		return nil
	}
	return New(sub)
}
