// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads the autoterm configuration from YAML and the
// environment and builds the logger.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Thermoquad/autoterm/pkg/heater"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config represents the application configuration
type Config struct {
	Serial  SerialConfig  `yaml:"serial"`
	Bridge  BridgeConfig  `yaml:"bridge"`
	Device  DeviceConfig  `yaml:"device"`
	Poll    PollConfig    `yaml:"poll"`
	Metrics MetricsConfig `yaml:"metrics"`
	Logging LoggingConfig `yaml:"logging"`
}

// SerialConfig contains the direct serial connection settings
type SerialConfig struct {
	Port        string        `yaml:"port" env:"AUTOTERM_SERIAL_PORT"`
	Baud        int           `yaml:"baud" env:"AUTOTERM_SERIAL_BAUD" env-default:"9600"`
	ReadTimeout time.Duration `yaml:"readTimeout" env:"AUTOTERM_SERIAL_READ_TIMEOUT" env-default:"100ms"`
}

// BridgeConfig contains the WebSocket serial bridge settings
type BridgeConfig struct {
	URL         string `yaml:"url" env:"AUTOTERM_BRIDGE_URL"`
	Username    string `yaml:"username" env:"AUTOTERM_BRIDGE_USERNAME"`
	Password    string `yaml:"password" env:"AUTOTERM_PASSWORD"`
	NoSSLVerify bool   `yaml:"noSslVerify" env:"AUTOTERM_BRIDGE_NO_SSL_VERIFY" env-default:"false"`
}

// DeviceConfig contains the link timing
type DeviceConfig struct {
	SettleDelay          time.Duration `yaml:"settleDelay" env:"AUTOTERM_SETTLE_DELAY" env-default:"100ms"`
	RepollDelay          time.Duration `yaml:"repollDelay" env:"AUTOTERM_REPOLL_DELAY" env-default:"500ms"`
	IdleBackoff          time.Duration `yaml:"idleBackoff" env:"AUTOTERM_IDLE_BACKOFF" env-default:"10ms"`
	ErrorBackoff         time.Duration `yaml:"errorBackoff" env:"AUTOTERM_ERROR_BACKOFF" env-default:"1s"`
	MaxErrorBackoff      time.Duration `yaml:"maxErrorBackoff" env:"AUTOTERM_MAX_ERROR_BACKOFF" env-default:"30s"`
	UnavailableThreshold int           `yaml:"unavailableThreshold" env:"AUTOTERM_UNAVAILABLE_THRESHOLD" env-default:"3"`
}

// PollConfig contains the periodic jobs of the serve command
type PollConfig struct {
	Schedule            string `yaml:"schedule" env:"AUTOTERM_POLL_SCHEDULE" env-default:"@every 30s"`
	TemperatureSchedule string `yaml:"temperatureSchedule" env:"AUTOTERM_TEMPERATURE_SCHEDULE" env-default:"@every 60s"`
	// File holding a room temperature in °C, forwarded to the heater
	TemperatureFile string `yaml:"temperatureFile" env:"AUTOTERM_TEMPERATURE_FILE"`
	// Identifier reported for the forwarded reading
	TemperatureSensor string `yaml:"temperatureSensor" env:"AUTOTERM_TEMPERATURE_SENSOR"`
}

// MetricsConfig contains the Prometheus endpoint settings
type MetricsConfig struct {
	Listen string `yaml:"listen" env:"AUTOTERM_METRICS_LISTEN" env-default:":9464"`
	Path   string `yaml:"path" env:"AUTOTERM_METRICS_PATH" env-default:"/metrics"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Format string     `yaml:"logFormat" env:"AUTOTERM_LOG_FORMAT" env-default:"console"`
	Level  string     `yaml:"logLevel" env:"AUTOTERM_LOG_LEVEL" env-default:"info"`
	File   FileConfig `yaml:"file"`
}

// FileConfig enables a rotated log file next to the console output
type FileConfig struct {
	Filename   string `yaml:"filename" env:"AUTOTERM_LOG_FILE"`
	MaxSizeMB  int    `yaml:"maxSizeMB" env-default:"10"`
	MaxBackups int    `yaml:"maxBackups" env-default:"3"`
	MaxAgeDays int    `yaml:"maxAgeDays" env-default:"28"`
	Compress   bool   `yaml:"compress" env-default:"false"`
}

// Load loads configuration from a YAML file with environment variable overrides
func Load(configPath string) (*Config, error) {
	var cfg Config

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// LoadEnv loads configuration from the environment only
func LoadEnv() (*Config, error) {
	var cfg Config

	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate validates the configuration and normalizes the logging options
func (c *Config) Validate() error {
	if c.Serial.Baud < 1 {
		return fmt.Errorf("baud rate must be positive, got %d", c.Serial.Baud)
	}
	if c.Serial.ReadTimeout <= 0 {
		return fmt.Errorf("read timeout must be positive")
	}
	if c.Bridge.URL != "" && !strings.HasPrefix(c.Bridge.URL, "ws://") && !strings.HasPrefix(c.Bridge.URL, "wss://") {
		return fmt.Errorf("bridge URL must start with ws:// or wss://, got: %s", c.Bridge.URL)
	}

	if c.Device.SettleDelay <= 0 || c.Device.RepollDelay <= 0 || c.Device.IdleBackoff <= 0 {
		return fmt.Errorf("device delays must be positive")
	}
	if c.Device.ErrorBackoff <= 0 || c.Device.MaxErrorBackoff < c.Device.ErrorBackoff {
		return fmt.Errorf("error backoff must be positive and not above max error backoff")
	}
	if c.Device.UnavailableThreshold < 1 {
		return fmt.Errorf("unavailable threshold must be at least 1")
	}

	if _, err := cron.ParseStandard(c.Poll.Schedule); err != nil {
		return fmt.Errorf("poll schedule %q: %w", c.Poll.Schedule, err)
	}
	if _, err := cron.ParseStandard(c.Poll.TemperatureSchedule); err != nil {
		return fmt.Errorf("temperature schedule %q: %w", c.Poll.TemperatureSchedule, err)
	}

	if c.Metrics.Path != "" && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics path must start with /, got: %s", c.Metrics.Path)
	}

	c.Logging.Format = strings.ToLower(c.Logging.Format)
	if c.Logging.Format != "console" && c.Logging.Format != "json" {
		return fmt.Errorf("log format must be 'console' or 'json', got: %s", c.Logging.Format)
	}

	c.Logging.Level = strings.ToLower(c.Logging.Level)
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("log level must be one of: debug, info, warn, error, got: %s", c.Logging.Level)
	}

	return nil
}

// DeviceOptions returns the heater link options for this configuration
func (c *Config) DeviceOptions(logger *zap.Logger) heater.Options {
	return heater.Options{
		Logger:               logger,
		SettleDelay:          c.Device.SettleDelay,
		RepollDelay:          c.Device.RepollDelay,
		IdleBackoff:          c.Device.IdleBackoff,
		ReadTimeout:          c.Serial.ReadTimeout,
		ErrorBackoff:         c.Device.ErrorBackoff,
		MaxErrorBackoff:      c.Device.MaxErrorBackoff,
		UnavailableThreshold: c.Device.UnavailableThreshold,
	}
}

// NewLogger builds a zap logger writing to stderr and, if configured, a
// rotated log file
func (c *Config) NewLogger() (*zap.Logger, error) {
	return c.buildLogger(true)
}

// NewFileLogger builds a logger that writes to the rotated log file only,
// for commands that own the terminal
func (c *Config) NewFileLogger() (*zap.Logger, error) {
	if c.Logging.File.Filename == "" {
		return nil, fmt.Errorf("no log file configured")
	}
	return c.buildLogger(false)
}

func (c *Config) buildLogger(stderr bool) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("failed to parse log level: %w", err)
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "ts"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	var encoder zapcore.Encoder
	if c.Logging.Format == "json" {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		if stderr {
			encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		}
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	// stdout carries frame dumps and reports, so logs go to stderr
	var syncers []zapcore.WriteSyncer
	if stderr {
		syncers = append(syncers, zapcore.AddSync(os.Stderr))
	}
	if f := c.Logging.File; f.Filename != "" {
		syncers = append(syncers, zapcore.AddSync(&lumberjack.Logger{
			Filename:   f.Filename,
			MaxSize:    f.MaxSizeMB,
			MaxBackups: f.MaxBackups,
			MaxAge:     f.MaxAgeDays,
			Compress:   f.Compress,
		}))
	}

	return zap.New(zapcore.NewCore(encoder, zapcore.NewMultiWriteSyncer(syncers...), level)), nil
}

// PrintConfig logs the configuration (masking sensitive fields)
func (c *Config) PrintConfig(logger *zap.Logger) {
	logger.Info("configuration loaded",
		zap.String("serial_port", c.Serial.Port),
		zap.Int("baud", c.Serial.Baud),
		zap.String("bridge_url", c.Bridge.URL),
		zap.String("bridge_username", c.Bridge.Username),
		zap.Bool("bridge_password_set", c.Bridge.Password != ""),
		zap.Duration("settle_delay", c.Device.SettleDelay),
		zap.Duration("repoll_delay", c.Device.RepollDelay),
		zap.String("poll_schedule", c.Poll.Schedule),
		zap.String("temperature_file", c.Poll.TemperatureFile),
		zap.String("metrics_listen", c.Metrics.Listen),
		zap.String("log_format", c.Logging.Format),
		zap.String("log_level", c.Logging.Level),
		zap.String("log_file", c.Logging.File.Filename),
	)
}
