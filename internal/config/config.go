package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the top-level server configuration
type Config struct {
	Log       LogConfig        `yaml:"log"`
	Admin     AdminConfig      `yaml:"admin"`
	GeoIPDB   string           `yaml:"geoip_db"`
	Listeners []ListenerConfig `yaml:"listeners"`
}

// LogConfig configures the structured logger
type LogConfig struct {
	Level  string `yaml:"level"`
	Output string `yaml:"output"`
}

// AdminConfig configures the admin API; empty Addr disables it
type AdminConfig struct {
	Addr string `yaml:"addr"`
}

// ListenerConfig configures one TLS listener
type ListenerConfig struct {
	Addrs []string `yaml:"addrs"`
	Cert  string   `yaml:"cert"`
	Key   string   `yaml:"key"`
}

// Load reads and validates a YAML configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the configuration for missing or conflicting values
func (c *Config) Validate() error {
	if len(c.Listeners) == 0 {
		return fmt.Errorf("at least one listener must be configured")
	}

	for i, l := range c.Listeners {
		if len(l.Addrs) == 0 {
			return fmt.Errorf("listener %d: at least one bind address is required", i)
		}
		if l.Cert == "" || l.Key == "" {
			return fmt.Errorf("listener %d: cert and key are required", i)
		}
	}

	return nil
}
