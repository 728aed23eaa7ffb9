// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: MIT

// Package config loads and persists the gateway's TOML configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Values holds every setting the gateway reads from config/env/flags.
type Values struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`

	DatabasePath string `mapstructure:"databasePath"`

	MetricsHost          string `mapstructure:"metricsHost"`
	MetricsPort          int    `mapstructure:"metricsPort"`
	MetricsBasicAuthUser string `mapstructure:"metricsBasicAuthUsers"`

	CachePersist bool `mapstructure:"cachePersist"`

	LogLevel      string `mapstructure:"logLevel"`
	LogPath       string `mapstructure:"logPath"`
	LogMaxSize    int    `mapstructure:"logMaxSize"`
	LogMaxBackups int    `mapstructure:"logMaxBackups"`
}

// AppConfig wraps the loaded Values along with the path they were read from,
// so settings changed at runtime can be persisted back in place.
type AppConfig struct {
	Config     Values
	configPath string
}

const envPrefix = "QUACKGATE"

// New loads configuration from configPath, applying defaults and then
// environment-variable overrides: one explicitly bound variable per setting,
// named QUACKGATE__ plus the setting in SCREAMING_SNAKE case (for example
// QUACKGATE__DATABASE_PATH).
func New(configPath string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("toml")

	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("port", 3000)
	v.SetDefault("logLevel", "INFO")
	v.SetDefault("logMaxSize", 50)
	v.SetDefault("logMaxBackups", 3)
	v.SetDefault("metricsPort", 0)

	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	// Explicit bindings: QUACKGATE__ + SCREAMING_SNAKE key name. AutomaticEnv
	// alone would only recognize QUACKGATE_DATABASEPATH (no word separators),
	// so every externally documented setting gets an explicit BindEnv.
	_ = v.BindEnv("databasePath", envPrefix+"__DATABASE_PATH")
	_ = v.BindEnv("host", envPrefix+"__HOST")
	_ = v.BindEnv("port", envPrefix+"__PORT")
	_ = v.BindEnv("metricsHost", envPrefix+"__METRICS_HOST")
	_ = v.BindEnv("metricsPort", envPrefix+"__METRICS_PORT")
	_ = v.BindEnv("metricsBasicAuthUsers", envPrefix+"__METRICS_BASIC_AUTH_USERS")
	_ = v.BindEnv("cachePersist", envPrefix+"__CACHE_PERSIST")
	_ = v.BindEnv("logLevel", envPrefix+"__LOG_LEVEL")
	_ = v.BindEnv("logPath", envPrefix+"__LOG_PATH")
	_ = v.BindEnv("logMaxSize", envPrefix+"__LOG_MAX_SIZE")
	_ = v.BindEnv("logMaxBackups", envPrefix+"__LOG_MAX_BACKUPS")

	if _, err := os.Stat(configPath); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configPath, err)
		}
	}

	var values Values
	if err := v.Unmarshal(&values); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if values.DatabasePath == "" {
		values.DatabasePath = filepath.Join(filepath.Dir(configPath), "quackgate.db")
	}

	return &AppConfig{Config: values, configPath: configPath}, nil
}

// GetDatabasePath returns the effective engine database path.
func (c *AppConfig) GetDatabasePath() string {
	return c.Config.DatabasePath
}

// ConfigPath returns the path the configuration was loaded from.
func (c *AppConfig) ConfigPath() string {
	return c.configPath
}
