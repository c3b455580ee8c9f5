// Package config loads the service configuration from YAML with environment
// variable overrides for deployment-sensitive values.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration for tradeboard.
type Config struct {
	Server  Server  `yaml:"server"`
	Engine  Engine  `yaml:"engine"`
	Storage Storage `yaml:"storage"`
	Logging Logging `yaml:"logging"`
	Session Session `yaml:"session"`
}

// Server holds the dashboard listener configuration.
type Server struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Engine holds endpoints of the remote strategy engine. Transport selects
// how session events arrive: "websocket" (interactive runs) or "amqp"
// (asynchronous batch runs via the broker).
type Engine struct {
	BaseURL   string `yaml:"base_url"`
	StreamURL string `yaml:"stream_url"`
	Transport string `yaml:"transport"`
	AMQPURI   string `yaml:"amqp_uri"`
}

// Storage holds persistence settings. An empty SQLitePath selects the
// in-memory mirror store; an empty PostgresDSN disables the run recorder.
type Storage struct {
	SQLitePath  string `yaml:"sqlite_path"`
	PostgresDSN string `yaml:"postgres_dsn"`
}

// Logging configures the application logger.
type Logging struct {
	Level string `yaml:"level"`
}

// Session tunes the reducer.
type Session struct {
	LogBuffer       int `yaml:"log_buffer"`
	MaxExportPoints int `yaml:"max_export_points"`
	BroadcastMs     int `yaml:"broadcast_ms"`
}

// Load reads the YAML configuration at path, applies defaults and env
// overrides, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	applyDefaults(cfg)
	applyEnvOverrides(cfg)

	if cfg.Engine.BaseURL == "" {
		return nil, fmt.Errorf("config %s: engine.base_url is required", path)
	}
	switch cfg.Engine.Transport {
	case "websocket":
		if cfg.Engine.StreamURL == "" {
			return nil, fmt.Errorf("config %s: engine.stream_url is required for websocket transport", path)
		}
	case "amqp":
		if cfg.Engine.AMQPURI == "" {
			return nil, fmt.Errorf("config %s: engine.amqp_uri is required for amqp transport", path)
		}
	default:
		return nil, fmt.Errorf("config %s: unknown engine.transport %q", path, cfg.Engine.Transport)
	}

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Engine.Transport == "" {
		cfg.Engine.Transport = "websocket"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Session.BroadcastMs == 0 {
		cfg.Session.BroadcastMs = 1000
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ENGINE_BASE_URL"); v != "" {
		cfg.Engine.BaseURL = v
	}
	if v := os.Getenv("ENGINE_STREAM_URL"); v != "" {
		cfg.Engine.StreamURL = v
	}
	if v := os.Getenv("ENGINE_AMQP_URI"); v != "" {
		cfg.Engine.AMQPURI = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		cfg.Storage.PostgresDSN = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}
