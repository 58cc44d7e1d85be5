// Package config provides configuration management for the diode service.
//
// Configuration is loaded from a YAML file, then overridden by DIODE_*
// environment variables so deployments can inject API keys without touching
// the file.
//
// Config file locations (priority order):
//  1. $DIODE_CONFIG
//  2. ./diode.yaml
//  3. /etc/diode/config.yaml
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v10"
	"gopkg.in/yaml.v3"
)

// Config is the full service configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
}

// ServerConfig configures the HTTP listener
type ServerConfig struct {
	Addr         string        `yaml:"addr" env:"DIODE_ADDR"`
	ReadTimeout  time.Duration `yaml:"read_timeout" env:"DIODE_READ_TIMEOUT"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"DIODE_WRITE_TIMEOUT"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" env:"DIODE_IDLE_TIMEOUT"`
}

// DatabaseConfig configures the sqlite store
type DatabaseConfig struct {
	Path string `yaml:"path" env:"DIODE_DATABASE_PATH"`
}

// AuthConfig holds the two shared API keys. Either may be given as a bcrypt
// hash instead of plaintext.
type AuthConfig struct {
	// DiodeToNetBoxKey authorizes producers to ingest and read
	DiodeToNetBoxKey string `yaml:"diode_to_netbox_api_key" env:"DIODE_TO_NETBOX_API_KEY"`

	// NetBoxToDiodeKey authorizes read-only reconciliation access
	NetBoxToDiodeKey string `yaml:"netbox_to_diode_api_key" env:"NETBOX_TO_DIODE_API_KEY"`
}

// Load finds and loads the config file, or returns defaults if none found.
// Environment variables override file values either way.
func Load() (*Config, string, error) {
	path := FindConfigPath()

	if path == "" {
		cfg := DefaultConfig()
		if err := env.Parse(cfg); err != nil {
			return nil, "", fmt.Errorf("parse environment: %w", err)
		}
		return cfg, "", nil
	}

	return LoadFromPath(path)
}

// LoadFromPath loads config from a specific path
func LoadFromPath(path string) (*Config, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, path, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, path, fmt.Errorf("parse config: %w", err)
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, path, fmt.Errorf("parse environment: %w", err)
	}

	cfg.applyDefaults()

	return &cfg, path, nil
}

// DefaultConfig returns sensible defaults for a new installation
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// applyDefaults fills in missing values with defaults
func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 10 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 30 * time.Second
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 60 * time.Second
	}
	if c.Database.Path == "" {
		c.Database.Path = "./diode.db"
	}
}
