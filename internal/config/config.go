// Package config handles configuration loading for dispatch.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for dispatch.
type Config struct {
	Store   StoreConfig   `mapstructure:"store"`
	Gateway GatewayConfig `mapstructure:"gateway"`
	Monitor MonitorConfig `mapstructure:"monitor"`
	Health  HealthConfig  `mapstructure:"health"`
	Queue   QueueConfig   `mapstructure:"queue"`
	Report  ReportConfig  `mapstructure:"report"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Log     LogConfig     `mapstructure:"log"`
}

// StoreConfig selects and configures the persistence backend.
type StoreConfig struct {
	// Backend is one of sqlite, postgres, or memory.
	Backend string `mapstructure:"backend"`
	// Path is the SQLite database file path. Empty means the XDG default.
	Path string `mapstructure:"path"`
	// DSN is the Postgres connection string.
	DSN string `mapstructure:"dsn"`
}

// GatewayConfig holds execution gateway settings.
type GatewayConfig struct {
	// URL is the base URL of the execution gateway.
	URL string `mapstructure:"url"`
	// Timeout bounds each gateway HTTP request.
	Timeout time.Duration `mapstructure:"timeout"`
}

// MonitorConfig holds session monitoring settings.
type MonitorConfig struct {
	// PollInterval is how often each active session is polled.
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// HealthConfig holds agent health sweep settings.
type HealthConfig struct {
	// Threshold is how long an agent may stay silent before it is marked offline.
	Threshold time.Duration `mapstructure:"threshold"`
	// SweepInterval is how often the health sweep runs.
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// QueueConfig holds pending-queue drain settings.
type QueueConfig struct {
	// DrainInterval is how often a queue pass runs independent of completions.
	DrainInterval time.Duration `mapstructure:"drain_interval"`
}

// ReportConfig holds periodic report settings.
type ReportConfig struct {
	// Interval is how often the daemon logs an activity report. Zero disables it.
	Interval time.Duration `mapstructure:"interval"`
}

// HTTPConfig holds admin API settings.
type HTTPConfig struct {
	// Addr is the listen address for the admin HTTP server.
	Addr string `mapstructure:"addr"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string `mapstructure:"level"`
}

// Load loads configuration from XDG paths, project overrides, and environment
// variables.
// Precedence (highest to lowest):
// 1. Environment variables (DATABASE_URL, GATEWAY_URL, LOG_LEVEL)
// 2. Project config (.dispatch.yaml in current directory or parent)
// 3. User config (~/.config/dispatch/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(getUserConfigDir())

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	if projectConfig := findProjectConfig(); projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.AutomaticEnv()
	v.BindEnv("store.dsn", "DATABASE_URL")
	v.BindEnv("gateway.url", "GATEWAY_URL")
	v.BindEnv("log.level", "LOG_LEVEL")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	cfg.Store.DSN = os.ExpandEnv(cfg.Store.DSN)
	return cfg, nil
}

// LoadFromPath loads configuration from a specific file.
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	cfg.Store.DSN = os.ExpandEnv(cfg.Store.DSN)
	return cfg, nil
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("store.backend", "sqlite")
	v.SetDefault("store.path", "")
	v.SetDefault("store.dsn", "")

	v.SetDefault("gateway.url", "http://localhost:8700")
	v.SetDefault("gateway.timeout", "30s")

	v.SetDefault("monitor.poll_interval", "10s")

	v.SetDefault("health.threshold", "5m")
	v.SetDefault("health.sweep_interval", "1m")

	v.SetDefault("queue.drain_interval", "30s")

	v.SetDefault("report.interval", "1h")

	v.SetDefault("http.addr", ":8710")

	v.SetDefault("log.level", "info")
}

// getUserConfigDir returns the XDG config directory for dispatch.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "dispatch")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "dispatch")
	}
	return filepath.Join(home, ".config", "dispatch")
}

// findProjectConfig searches for .dispatch.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		configPath := filepath.Join(cwd, ".dispatch.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}
	return ""
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			Backend: "sqlite",
		},
		Gateway: GatewayConfig{
			URL:     "http://localhost:8700",
			Timeout: 30 * time.Second,
		},
		Monitor: MonitorConfig{
			PollInterval: 10 * time.Second,
		},
		Health: HealthConfig{
			Threshold:     5 * time.Minute,
			SweepInterval: time.Minute,
		},
		Queue: QueueConfig{
			DrainInterval: 30 * time.Second,
		},
		Report: ReportConfig{
			Interval: time.Hour,
		},
		HTTP: HTTPConfig{
			Addr: ":8710",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}
