package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// DeviceConfig selects the peripheral and how long to wait for it.
type DeviceConfig struct {
	Address        string `yaml:"address"`
	ConnectTimeout string `yaml:"connect_timeout" default:"30s"`
}

// SessionConfig tunes the GATT session controller.
type SessionConfig struct {
	RequireProperties bool   `yaml:"require_properties"`
	EventBuffer       int    `yaml:"event_buffer" default:"64"`
	TimeZone          string `yaml:"time_zone" default:"Local"`
}

// Config holds application configuration
type Config struct {
	LogLevel  string        `yaml:"log_level" default:"info"`
	LogFormat string        `yaml:"log_format" default:"text"`
	Device    DeviceConfig  `yaml:"device"`
	Session   SessionConfig `yaml:"session"`
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load reads a YAML file over the defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs []error
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log_format: unsupported format %q (want text or json)", c.LogFormat))
	}
	if d, err := time.ParseDuration(c.Device.ConnectTimeout); err != nil {
		errs = append(errs, fmt.Errorf("device.connect_timeout: %w", err))
	} else if d <= 0 {
		errs = append(errs, fmt.Errorf("device.connect_timeout: must be positive, got %s", d))
	}
	if c.Session.EventBuffer <= 0 {
		errs = append(errs, fmt.Errorf("session.event_buffer: must be positive, got %d", c.Session.EventBuffer))
	}
	if _, err := time.LoadLocation(c.Session.TimeZone); err != nil {
		errs = append(errs, fmt.Errorf("session.time_zone: %w", err))
	}
	return errors.Join(errs...)
}

// ConnectTimeout returns the parsed connect timeout, falling back to 30s.
func (c *Config) ConnectTimeout() time.Duration {
	d, err := time.ParseDuration(c.Device.ConnectTimeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// Location resolves the session time zone; unknown names fall back to time.Local.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Session.TimeZone)
	if err != nil {
		return time.Local
	}
	return loc
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if strings.EqualFold(c.LogFormat, "json") {
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
		return logger
	}

	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})
	return logger
}
