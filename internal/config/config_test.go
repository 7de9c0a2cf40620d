// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// validConfig returns a config with every default applied
func validConfig(t *testing.T) *Config {
	t.Helper()
	cfg, err := Load(writeConfig(t, "serial:\n  port: /dev/ttyUSB0\n"))
	require.NoError(t, err)
	return cfg
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
serial:
  port: /dev/ttyUSB0
  baud: 19200
  readTimeout: 250ms
bridge:
  url: wss://bridge.local/serial
  username: admin
device:
  settleDelay: 150ms
  repollDelay: 1s
  unavailableThreshold: 5
poll:
  schedule: "*/1 * * * *"
  temperatureFile: /run/room_temperature
  temperatureSensor: sensor.cabin
metrics:
  listen: 127.0.0.1:9000
logging:
  logFormat: JSON
  logLevel: Debug
  file:
    filename: /var/log/autoterm.log
    maxSizeMB: 5
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/dev/ttyUSB0", cfg.Serial.Port)
	assert.Equal(t, 19200, cfg.Serial.Baud)
	assert.Equal(t, 250*time.Millisecond, cfg.Serial.ReadTimeout)
	assert.Equal(t, "wss://bridge.local/serial", cfg.Bridge.URL)
	assert.Equal(t, "admin", cfg.Bridge.Username)
	assert.Equal(t, 150*time.Millisecond, cfg.Device.SettleDelay)
	assert.Equal(t, time.Second, cfg.Device.RepollDelay)
	assert.Equal(t, 5, cfg.Device.UnavailableThreshold)
	assert.Equal(t, "*/1 * * * *", cfg.Poll.Schedule)
	assert.Equal(t, "/run/room_temperature", cfg.Poll.TemperatureFile)
	assert.Equal(t, "sensor.cabin", cfg.Poll.TemperatureSensor)
	assert.Equal(t, "127.0.0.1:9000", cfg.Metrics.Listen)
	assert.Equal(t, "/var/log/autoterm.log", cfg.Logging.File.Filename)
	assert.Equal(t, 5, cfg.Logging.File.MaxSizeMB)

	// Normalized by Validate
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_Defaults(t *testing.T) {
	cfg := validConfig(t)

	assert.Equal(t, 9600, cfg.Serial.Baud)
	assert.Equal(t, 100*time.Millisecond, cfg.Serial.ReadTimeout)
	assert.Equal(t, 100*time.Millisecond, cfg.Device.SettleDelay)
	assert.Equal(t, 500*time.Millisecond, cfg.Device.RepollDelay)
	assert.Equal(t, 10*time.Millisecond, cfg.Device.IdleBackoff)
	assert.Equal(t, time.Second, cfg.Device.ErrorBackoff)
	assert.Equal(t, 30*time.Second, cfg.Device.MaxErrorBackoff)
	assert.Equal(t, 3, cfg.Device.UnavailableThreshold)
	assert.Equal(t, "@every 30s", cfg.Poll.Schedule)
	assert.Equal(t, "@every 60s", cfg.Poll.TemperatureSchedule)
	assert.Equal(t, ":9464", cfg.Metrics.Listen)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.Equal(t, "console", cfg.Logging.Format)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Empty(t, cfg.Logging.File.Filename)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("AUTOTERM_SERIAL_PORT", "/dev/ttyACM1")
	t.Setenv("AUTOTERM_PASSWORD", "secret")
	t.Setenv("AUTOTERM_LOG_LEVEL", "warn")

	cfg := validConfig(t)
	assert.Equal(t, "/dev/ttyACM1", cfg.Serial.Port)
	assert.Equal(t, "secret", cfg.Bridge.Password)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("AUTOTERM_BRIDGE_URL", "ws://10.0.0.5/serial")
	t.Setenv("AUTOTERM_POLL_SCHEDULE", "@every 10s")

	cfg, err := LoadEnv()
	require.NoError(t, err)
	assert.Equal(t, "ws://10.0.0.5/serial", cfg.Bridge.URL)
	assert.Equal(t, "@every 10s", cfg.Poll.Schedule)
	assert.Equal(t, 9600, cfg.Serial.Baud)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"zero baud", func(c *Config) { c.Serial.Baud = 0 }},
		{"zero read timeout", func(c *Config) { c.Serial.ReadTimeout = 0 }},
		{"http bridge url", func(c *Config) { c.Bridge.URL = "http://bridge.local" }},
		{"zero settle delay", func(c *Config) { c.Device.SettleDelay = 0 }},
		{"backoff above max", func(c *Config) { c.Device.ErrorBackoff = time.Minute }},
		{"zero threshold", func(c *Config) { c.Device.UnavailableThreshold = 0 }},
		{"bad poll schedule", func(c *Config) { c.Poll.Schedule = "every thirty seconds" }},
		{"bad temperature schedule", func(c *Config) { c.Poll.TemperatureSchedule = "* *" }},
		{"relative metrics path", func(c *Config) { c.Metrics.Path = "metrics" }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestDeviceOptions(t *testing.T) {
	cfg := validConfig(t)
	opts := cfg.DeviceOptions(nil)

	assert.Equal(t, cfg.Device.SettleDelay, opts.SettleDelay)
	assert.Equal(t, cfg.Device.RepollDelay, opts.RepollDelay)
	assert.Equal(t, cfg.Serial.ReadTimeout, opts.ReadTimeout)
	assert.Equal(t, cfg.Device.UnavailableThreshold, opts.UnavailableThreshold)
}

func TestNewLogger(t *testing.T) {
	for _, format := range []string{"console", "json"} {
		t.Run(format, func(t *testing.T) {
			cfg := validConfig(t)
			cfg.Logging.Format = format
			cfg.Logging.Level = "debug"

			logger, err := cfg.NewLogger()
			require.NoError(t, err)
			assert.True(t, logger.Core().Enabled(-1), "debug enabled")
		})
	}
}

func TestNewLogger_File(t *testing.T) {
	cfg := validConfig(t)
	cfg.Logging.Format = "json"
	cfg.Logging.File.Filename = filepath.Join(t.TempDir(), "autoterm.log")

	logger, err := cfg.NewLogger()
	require.NoError(t, err)
	logger.Info("heater connected")
	_ = logger.Sync()

	data, err := os.ReadFile(cfg.Logging.File.Filename)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"heater connected"`)
	assert.Contains(t, string(data), `"level":"INFO"`)
}

func TestNewFileLogger(t *testing.T) {
	cfg := validConfig(t)

	_, err := cfg.NewFileLogger()
	assert.Error(t, err, "no file configured")

	cfg.Logging.File.Filename = filepath.Join(t.TempDir(), "monitor.log")
	logger, err := cfg.NewFileLogger()
	require.NoError(t, err)
	logger.Warn("link lost")
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(cfg.Logging.File.Filename)
	require.NoError(t, err)
	assert.Contains(t, string(data), "WARN")
	assert.Contains(t, string(data), "link lost")
	assert.NotContains(t, string(data), "\x1b[", "no color codes in the file")
}
