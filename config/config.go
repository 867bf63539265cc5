// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads taskwatch settings from a YAML file, TASKWATCH_*
// environment variables and built-in defaults, in increasing order of
// precedence for the first two.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "TASKWATCH"

// Config holds all taskwatch configuration.
type Config struct {
	API     APIConfig     `mapstructure:"api"`
	Channel ChannelConfig `mapstructure:"channel"`
	Polling PollingConfig `mapstructure:"polling"`
	Monitor MonitorConfig `mapstructure:"monitor"`
	Log     LogConfig     `mapstructure:"log"`
}

// APIConfig configures the task HTTP API.
type APIConfig struct {
	BaseURL   string        `mapstructure:"base_url" validate:"required,url"`
	Token     string        `mapstructure:"token"`
	Timeout   time.Duration `mapstructure:"timeout" validate:"gte=0"`
	UserAgent string        `mapstructure:"user_agent" validate:"required"`
}

// ChannelConfig configures the real-time channel.
type ChannelConfig struct {
	// URL overrides the channel base derived from the API base URL.
	URL               string        `mapstructure:"url" validate:"omitempty,url"`
	LivenessTimeout   time.Duration `mapstructure:"liveness_timeout" validate:"gt=0"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval" validate:"gte=0"`
	HandshakeTimeout  time.Duration `mapstructure:"handshake_timeout" validate:"gt=0"`
}

// PollingConfig configures the polling fallback.
type PollingConfig struct {
	InitialDelay time.Duration `mapstructure:"initial_delay" validate:"gt=0"`
	MaxDelay     time.Duration `mapstructure:"max_delay" validate:"gtefield=InitialDelay"`
}

// MonitorConfig configures a monitoring session.
type MonitorConfig struct {
	Deadline time.Duration `mapstructure:"deadline" validate:"gt=0"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=text json"`
}

// Default returns the default configuration. Its BaseURL is empty, so it
// does not validate on its own.
func Default() *Config {
	return &Config{
		API: APIConfig{
			Timeout:   30 * time.Second,
			UserAgent: "taskwatch/1.0",
		},
		Channel: ChannelConfig{
			LivenessTimeout:   10 * time.Second,
			HeartbeatInterval: 15 * time.Second,
			HandshakeTimeout:  10 * time.Second,
		},
		Polling: PollingConfig{
			InitialDelay: 2 * time.Second,
			MaxDelay:     30 * time.Second,
		},
		Monitor: MonitorConfig{
			Deadline: 600 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// SetDefaults registers default values with v.
func SetDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("api.base_url", d.API.BaseURL)
	v.SetDefault("api.token", d.API.Token)
	v.SetDefault("api.timeout", d.API.Timeout)
	v.SetDefault("api.user_agent", d.API.UserAgent)

	v.SetDefault("channel.url", d.Channel.URL)
	v.SetDefault("channel.liveness_timeout", d.Channel.LivenessTimeout)
	v.SetDefault("channel.heartbeat_interval", d.Channel.HeartbeatInterval)
	v.SetDefault("channel.handshake_timeout", d.Channel.HandshakeTimeout)

	v.SetDefault("polling.initial_delay", d.Polling.InitialDelay)
	v.SetDefault("polling.max_delay", d.Polling.MaxDelay)

	v.SetDefault("monitor.deadline", d.Monitor.Deadline)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

// Load reads the configuration into v and validates it.
//
// With an empty path Load looks for an optional taskwatch.yaml in the working
// directory and in $HOME/.config/taskwatch. A path that is given must exist.
func Load(v *viper.Viper, path string) (*Config, error) {
	if v == nil {
		v = viper.New()
	}
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("taskwatch")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/taskwatch")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks cfg against its constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// ChannelBaseURL returns the base URL channels are opened under.
func (c *Config) ChannelBaseURL() string {
	if c.Channel.URL != "" {
		return c.Channel.URL
	}
	return c.API.BaseURL
}
