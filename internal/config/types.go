package config

import (
	"time"

	"github.com/dataglass/pattern-sentry/internal/cache"
	"github.com/dataglass/pattern-sentry/internal/engine"
	"github.com/dataglass/pattern-sentry/internal/events"
	"github.com/dataglass/pattern-sentry/internal/refine"
	"github.com/dataglass/pattern-sentry/internal/store"
)

// Config represents the main configuration structure
type Config struct {
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Engine  engine.Config `yaml:"engine" mapstructure:"engine"`
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Cache   CacheConfig   `yaml:"cache" mapstructure:"cache"`
	Events  EventsConfig  `yaml:"events" mapstructure:"events"`
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port         int           `yaml:"port" mapstructure:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`
	RateLimit    RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// RateLimitConfig contains per-client request rate limiting configuration
type RateLimitConfig struct {
	Enabled        bool    `yaml:"enabled" mapstructure:"enabled"`
	RequestsPerSec float64 `yaml:"requests_per_sec" mapstructure:"requests_per_sec"`
	Burst          int     `yaml:"burst" mapstructure:"burst"`
}

// StoreConfig selects and configures the pattern store. When DatabaseURL is
// empty the engine runs on the in-memory store.
type StoreConfig struct {
	Postgres store.Config `yaml:"postgres" mapstructure:"postgres"`
}

// CacheConfig configures the optional accuracy snapshot cache
type CacheConfig struct {
	Enabled bool         `yaml:"enabled" mapstructure:"enabled"`
	Redis   cache.Config `yaml:"redis" mapstructure:"redis"`
}

// EventsConfig configures the dashboard WebSocket hub
type EventsConfig struct {
	Enabled   bool          `yaml:"enabled" mapstructure:"enabled"`
	Path      string        `yaml:"path" mapstructure:"path"`
	Broadcast events.Config `yaml:"broadcast" mapstructure:"broadcast"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"` // json or console
	File   struct {
		Enabled  bool   `yaml:"enabled" mapstructure:"enabled"`
		Path     string `yaml:"path" mapstructure:"path"`
		MaxSize  int    `yaml:"max_size" mapstructure:"max_size"`
		MaxAge   int    `yaml:"max_age" mapstructure:"max_age"`
		Compress bool   `yaml:"compress" mapstructure:"compress"`
	} `yaml:"file" mapstructure:"file"`
}

// GetDefaults returns a configuration with sensible defaults
func GetDefaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
			RateLimit: RateLimitConfig{
				Enabled:        true,
				RequestsPerSec: 20,
				Burst:          40,
			},
		},
		Engine: engine.Config{
			DefaultConfidenceThreshold: 0.6,
			AutoRefineThreshold:        3,
			AssumedRecall:              0.8,
			MinSampleSize:              5,
			Refine:                     refine.DefaultConfig(),
		},
		Store: StoreConfig{
			Postgres: store.Config{
				MaxOpenConns:    10,
				MaxIdleConns:    5,
				ConnMaxLifetime: 30 * time.Minute,
				ConnMaxIdleTime: 5 * time.Minute,
			},
		},
		Cache: CacheConfig{
			Enabled: false,
			Redis: cache.Config{
				RedisURL:       "redis://localhost:6379/0",
				MaxConnections: 10,
				MinIdleConns:   2,
				DefaultTTL:     5 * time.Minute,
				KeyPrefix:      "sentry",
			},
		},
		Events: EventsConfig{
			Enabled: true,
			Path:    "/ws",
			Broadcast: events.Config{
				BroadcastScans:       true,
				BroadcastFeedback:    true,
				BroadcastRefinements: true,
				BroadcastConnections: false,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
