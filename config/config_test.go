// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyoapp/taskwatch/config"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("TASKWATCH_API_BASE_URL", "https://api.lyo.app/v1")

	cfg, err := config.Load(viper.New(), "")
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "https://api.lyo.app/v1", cfg.API.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.API.Timeout)
	assert.Equal(t, 10*time.Second, cfg.Channel.LivenessTimeout)
	assert.Equal(t, 15*time.Second, cfg.Channel.HeartbeatInterval)
	assert.Equal(t, 2*time.Second, cfg.Polling.InitialDelay)
	assert.Equal(t, 30*time.Second, cfg.Polling.MaxDelay)
	assert.Equal(t, 600*time.Second, cfg.Monitor.Deadline)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, "https://api.lyo.app/v1", cfg.ChannelBaseURL())
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("TASKWATCH_API_BASE_URL", "https://api.lyo.app")
	t.Setenv("TASKWATCH_API_TOKEN", "secret")
	t.Setenv("TASKWATCH_CHANNEL_URL", "wss://rt.lyo.app")
	t.Setenv("TASKWATCH_POLLING_MAX_DELAY", "45s")
	t.Setenv("TASKWATCH_LOG_LEVEL", "debug")

	cfg, err := config.Load(viper.New(), "")
	require.NoError(t, err)

	assert.Equal(t, "secret", cfg.API.Token)
	assert.Equal(t, 45*time.Second, cfg.Polling.MaxDelay)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "wss://rt.lyo.app", cfg.ChannelBaseURL())
}

func TestLoad_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "taskwatch.yaml")
	data := []byte(`
api:
  base_url: http://localhost:8080
  timeout: 5s
channel:
  liveness_timeout: 3s
  heartbeat_interval: 0s
monitor:
  deadline: 2m
log:
  format: json
`)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	cfg, err := config.Load(viper.New(), path)
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8080", cfg.API.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.API.Timeout)
	assert.Equal(t, 3*time.Second, cfg.Channel.LivenessTimeout)
	assert.Equal(t, time.Duration(0), cfg.Channel.HeartbeatInterval)
	assert.Equal(t, 2*time.Minute, cfg.Monitor.Deadline)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "taskwatch.yaml")
	require.NoError(t, os.WriteFile(path, []byte("api:\n  base_url: http://from-file\n"), 0o600))
	t.Setenv("TASKWATCH_API_BASE_URL", "http://from-env")

	cfg, err := config.Load(viper.New(), path)
	require.NoError(t, err)
	assert.Equal(t, "http://from-env", cfg.API.BaseURL)
}

func TestLoad_Invalid(t *testing.T) {
	tests := map[string]map[string]string{
		"missing base url": {},
		"bad base url": {
			"TASKWATCH_API_BASE_URL": "not a url",
		},
		"unknown log level": {
			"TASKWATCH_API_BASE_URL": "https://api.lyo.app",
			"TASKWATCH_LOG_LEVEL":    "loud",
		},
		"max delay below initial": {
			"TASKWATCH_API_BASE_URL":          "https://api.lyo.app",
			"TASKWATCH_POLLING_INITIAL_DELAY": "10s",
			"TASKWATCH_POLLING_MAX_DELAY":     "5s",
		},
		"zero deadline": {
			"TASKWATCH_API_BASE_URL":     "https://api.lyo.app",
			"TASKWATCH_MONITOR_DEADLINE": "0s",
		},
	}

	for name, env := range tests {
		t.Run(name, func(t *testing.T) {
			t.Setenv("TASKWATCH_API_BASE_URL", "")
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := config.Load(viper.New(), "")
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(viper.New(), filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
