// Package config loads runtime settings from an optional YAML file and
// LF_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	DBPath   string         `yaml:"db_path"`
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	Tracking TrackingConfig `yaml:"tracking"`
	Variants VariantsConfig `yaml:"variants"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json or console
}

type TrackingConfig struct {
	// AbandonAfter is how long an active session may stay idle before the
	// reaper marks it abandoned.
	AbandonAfter time.Duration `yaml:"abandon_after"`
	ReapInterval time.Duration `yaml:"reap_interval"`
}

type VariantsConfig struct {
	// Sticky keeps a visitor on the same variant for repeat views within a session.
	Sticky bool `yaml:"sticky"`
}

func Default() *Config {
	return &Config{
		DBPath: "./leadfunnel.db",
		Server: ServerConfig{Port: 8080},
		Log:    LogConfig{Level: "info", Format: "json"},
		Tracking: TrackingConfig{
			AbandonAfter: 30 * time.Minute,
			ReapInterval: time.Minute,
		},
		Variants: VariantsConfig{Sticky: true},
	}
}

// Load returns defaults overlaid with the YAML file at path (skipped when
// path is empty) and then the environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv("LF_DB_PATH"); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv("LF_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid LF_PORT: %w", err)
		}
		c.Server.Port = port
	}
	if v := os.Getenv("LF_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("LF_LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
	if v := os.Getenv("LF_ABANDON_AFTER"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid LF_ABANDON_AFTER: %w", err)
		}
		c.Tracking.AbandonAfter = d
	}
	if v := os.Getenv("LF_STICKY_VARIANTS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid LF_STICKY_VARIANTS: %w", err)
		}
		c.Variants.Sticky = b
	}
	return nil
}

func (c *Config) Validate() error {
	if c.DBPath == "" {
		return errors.New("db_path must not be empty")
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Server.Port)
	}
	if c.Tracking.AbandonAfter <= 0 {
		return errors.New("tracking.abandon_after must be positive")
	}
	if c.Tracking.ReapInterval <= 0 {
		return errors.New("tracking.reap_interval must be positive")
	}
	return nil
}
