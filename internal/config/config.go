package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the server configuration.
type Config struct {
	// Addr is the HTTP/websocket listen address.
	Addr string `yaml:"addr"`

	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
}

// DatabaseConfig selects the durable store. Driver is "sqlite3" or
// "postgres".
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// AuthConfig holds token signing settings.
type AuthConfig struct {
	TokenSecret string `yaml:"token_secret"`
}

func Default() *Config {
	return &Config{
		Addr: ":8080",
		Database: DatabaseConfig{
			Driver: "sqlite3",
			DSN:    "pairtalk.db",
		},
	}
}

// Load reads the YAML file at path over the defaults. A missing file is not
// an error; the defaults apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}
