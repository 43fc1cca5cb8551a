package config

import (
	"time"

	"github.com/raaihank/pii-sentry/internal/cache"
	"github.com/raaihank/pii-sentry/internal/inference"
	"github.com/raaihank/pii-sentry/internal/rules"
)

// Config represents the main configuration structure.
type Config struct {
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Engines   EnginesConfig   `yaml:"engines" mapstructure:"engines"`
	Rules     RulesConfig     `yaml:"rules" mapstructure:"rules"`
	Cache     cache.Config    `yaml:"cache" mapstructure:"cache"`
	Logging   LoggingConfig   `yaml:"logging" mapstructure:"logging"`
	WebSocket WebSocketConfig `yaml:"websocket" mapstructure:"websocket"`
	RateLimit RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port         int           `yaml:"port" mapstructure:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`
}

// EnginesConfig contains the inference backend defaults. Per-scan settings
// in API requests override these.
type EnginesConfig struct {
	Default inference.EngineKind    `yaml:"default" mapstructure:"default"`
	Timeout time.Duration           `yaml:"timeout" mapstructure:"timeout"`
	Cloud   inference.CloudSettings `yaml:"cloud" mapstructure:"cloud"`
	Local   inference.LocalSettings `yaml:"local" mapstructure:"local"`
}

// RulesConfig controls optional rule persistence.
type RulesConfig struct {
	Persist  bool                   `yaml:"persist" mapstructure:"persist"`
	Database rules.RepositoryConfig `yaml:"database" mapstructure:"database"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"` // json or console
	File   struct {
		Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
		Path    string `yaml:"path" mapstructure:"path"`
	} `yaml:"file" mapstructure:"file"`
}

// WebSocketConfig contains event hub configuration.
type WebSocketConfig struct {
	Enabled             bool   `yaml:"enabled" mapstructure:"enabled"`
	Path                string `yaml:"path" mapstructure:"path"`
	BroadcastDetections bool   `yaml:"broadcast_detections" mapstructure:"broadcast_detections"`
	BroadcastScans      bool   `yaml:"broadcast_scans" mapstructure:"broadcast_scans"`
	BroadcastSystem     bool   `yaml:"broadcast_system" mapstructure:"broadcast_system"`
	Username            string `yaml:"username" mapstructure:"username"`
	Password            string `yaml:"password" mapstructure:"password"`
}

// RateLimitConfig contains per-client rate limiting configuration.
type RateLimitConfig struct {
	Enabled        bool `yaml:"enabled" mapstructure:"enabled"`
	RequestsPerMin int  `yaml:"requests_per_min" mapstructure:"requests_per_min"`
	Burst          int  `yaml:"burst" mapstructure:"burst"`
}

// GetDefaults returns a configuration with sensible defaults.
func GetDefaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Engines: EnginesConfig{
			Default: inference.LocalEngine,
			Timeout: 30 * time.Second,
			Cloud: inference.CloudSettings{
				Model: "gemini-2.0-flash",
			},
			Local: inference.LocalSettings{
				BaseURL:     "http://localhost:11434",
				Model:       "llama3.2",
				Temperature: 0.1,
			},
		},
		Rules: RulesConfig{
			Persist: false,
			Database: rules.RepositoryConfig{
				MaxOpenConns:    10,
				MaxIdleConns:    2,
				ConnMaxLifetime: time.Hour,
			},
		},
		Cache: cache.Config{
			Enabled:        false,
			RedisURL:       "redis://localhost:6379",
			MaxConnections: 10,
			MinIdleConns:   2,
			DefaultTTL:     time.Hour,
			KeyPrefix:      "sentry:payload:",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		WebSocket: WebSocketConfig{
			Enabled:             true,
			Path:                "/ws",
			BroadcastDetections: true,
			BroadcastScans:      true,
			BroadcastSystem:     true,
		},
		RateLimit: RateLimitConfig{
			Enabled:        true,
			RequestsPerMin: 120,
			Burst:          20,
		},
	}
}
