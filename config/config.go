// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Gateway  GatewayConfig  `yaml:"gateway"`
	Database DatabaseConfig `yaml:"database"`
	Admin    AdminConfig    `yaml:"admin"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// GatewayConfig configures the upstream billing service.
// Use "local" to run against the embedded database only, or "remote" to
// consume an upstream billing API.
type GatewayConfig struct {
	Mode    string            `yaml:"mode"` // "local" or "remote"
	URL     string            `yaml:"url,omitempty"`
	APIKey  string            `yaml:"api_key,omitempty"`
	Timeout time.Duration     `yaml:"timeout,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
}

// DatabaseConfig configures the database.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // "sqlite"
	DSN    string `yaml:"dsn"`
}

// AdminConfig configures the admin console surface.
type AdminConfig struct {
	Email        string `yaml:"email"`
	PasswordHash string `yaml:"password_hash,omitempty"` // bcrypt hash
	APIKey       string `yaml:"api_key,omitempty"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "console"
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // Enable /metrics endpoint
	Path    string `yaml:"path"`    // Custom path (default: /metrics)
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variables
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(&cfg)

	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// LoadFromEnv creates configuration entirely from environment variables.
// This is useful for Docker deployments where no config file is needed.
//
// Environment variables:
//
//	TILLSTACK_SERVER_HOST         - Server host (default: 0.0.0.0)
//	TILLSTACK_SERVER_PORT         - Server port (default: 8080)
//	TILLSTACK_GATEWAY_MODE        - Gateway mode: local or remote (default: local)
//	TILLSTACK_GATEWAY_URL         - Upstream billing API URL (required in remote mode)
//	TILLSTACK_GATEWAY_API_KEY     - Upstream billing API key
//	TILLSTACK_DATABASE_DSN        - Database path (default: tillstack.db)
//	TILLSTACK_ADMIN_EMAIL         - Admin login email
//	TILLSTACK_ADMIN_PASSWORD_HASH - Bcrypt hash of the admin password
//	TILLSTACK_ADMIN_API_KEY       - Admin API key
//	TILLSTACK_LOG_LEVEL           - Log level: debug, info, warn, error (default: info)
//	TILLSTACK_LOG_FORMAT          - Log format: json or console (default: json)
//	TILLSTACK_METRICS_ENABLED     - Enable /metrics endpoint (default: true)
func LoadFromEnv() (*Config, error) {
	var cfg Config

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// LoadWithFallback tries to load from file, falls back to environment
// variables.
func LoadWithFallback(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	return LoadFromEnv()
}

// applyEnvOverrides applies TILLSTACK_* environment variables to the config.
// Environment variables always override file-based configuration.
func applyEnvOverrides(cfg *Config) {
	// Server configuration
	if v := os.Getenv("TILLSTACK_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("TILLSTACK_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("TILLSTACK_SERVER_READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.ReadTimeout = d
		}
	}
	if v := os.Getenv("TILLSTACK_SERVER_WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.WriteTimeout = d
		}
	}

	// Gateway configuration
	if v := os.Getenv("TILLSTACK_GATEWAY_MODE"); v != "" {
		cfg.Gateway.Mode = v
	}
	if v := os.Getenv("TILLSTACK_GATEWAY_URL"); v != "" {
		cfg.Gateway.URL = v
	}
	if v := os.Getenv("TILLSTACK_GATEWAY_API_KEY"); v != "" {
		cfg.Gateway.APIKey = v
	}
	if v := os.Getenv("TILLSTACK_GATEWAY_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Gateway.Timeout = d
		}
	}

	// Database configuration
	if v := os.Getenv("TILLSTACK_DATABASE_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("TILLSTACK_DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}

	// Admin configuration
	if v := os.Getenv("TILLSTACK_ADMIN_EMAIL"); v != "" {
		cfg.Admin.Email = v
	}
	if v := os.Getenv("TILLSTACK_ADMIN_PASSWORD_HASH"); v != "" {
		cfg.Admin.PasswordHash = v
	}
	if v := os.Getenv("TILLSTACK_ADMIN_API_KEY"); v != "" {
		cfg.Admin.APIKey = v
	}

	// Logging configuration
	if v := os.Getenv("TILLSTACK_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("TILLSTACK_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	// Metrics configuration
	if v := os.Getenv("TILLSTACK_METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = parseBool(v)
	}
	if v := os.Getenv("TILLSTACK_METRICS_PATH"); v != "" {
		cfg.Metrics.Path = v
	}
}

// parseBool parses a boolean from common string values.
func parseBool(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "true" || v == "1" || v == "yes" || v == "on"
}

func setDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 60 * time.Second
	}

	if cfg.Gateway.Mode == "" {
		cfg.Gateway.Mode = "local"
	}
	if cfg.Gateway.Timeout == 0 {
		cfg.Gateway.Timeout = 10 * time.Second
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.DSN == "" {
		cfg.Database.DSN = "tillstack.db"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
}

func validate(cfg *Config) error {
	validGatewayModes := map[string]bool{"local": true, "remote": true}
	if !validGatewayModes[cfg.Gateway.Mode] {
		return fmt.Errorf("gateway.mode must be 'local' or 'remote', got %q", cfg.Gateway.Mode)
	}
	if cfg.Gateway.Mode == "remote" && cfg.Gateway.URL == "" {
		return fmt.Errorf("gateway.url is required when gateway.mode is 'remote'")
	}

	if cfg.Database.Driver != "sqlite" {
		return fmt.Errorf("database.driver must be 'sqlite', got %q", cfg.Database.Driver)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}

	if cfg.Admin.PasswordHash == "" && cfg.Admin.APIKey == "" {
		return fmt.Errorf("admin.password_hash or admin.api_key is required")
	}

	return nil
}
