// Package config loads unitview settings from YAML with environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all unitview configuration.
type Config struct {
	// HTTP listener
	Server ServerConfig `yaml:"server"`

	// Upstream CMS site
	Upstream UpstreamConfig `yaml:"upstream"`

	// Visitor session storage
	Session SessionConfig `yaml:"session"`

	// Interaction tracking
	Tracking TrackingConfig `yaml:"tracking"`

	// Doorway action URLs keyed by action name
	Doorway map[string]string `yaml:"doorway"`

	// Location used to interpret CMS dates, e.g. "America/Chicago"
	Timezone string `yaml:"timezone"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Addr            string `yaml:"addr"`
	ShutdownTimeout string `yaml:"shutdown_timeout"`
	// FilterTimeout bounds how long a filter request waits for the grid
	FilterTimeout string `yaml:"filter_timeout"`
	// DocsDir holds the OpenAPI spec served at /docs
	DocsDir string `yaml:"docs_dir"`
}

// UpstreamConfig configures page fetching and caching.
type UpstreamConfig struct {
	BaseURL  string `yaml:"base_url"`
	Timeout  string `yaml:"timeout"`
	CacheTTL string `yaml:"cache_ttl"`
	// FeedURL is the collection RSS feed used to discover pages to warm
	FeedURL string `yaml:"feed_url"`
	// WarmPaths are warmed on every pass in addition to the feed items
	WarmPaths    []string `yaml:"warm_paths"`
	WarmInterval string   `yaml:"warm_interval"`
}

// SessionConfig selects and configures the session backend.
type SessionConfig struct {
	Backend       string `yaml:"backend"` // memory, sql, redis
	DatabaseURL   string `yaml:"database_url"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	TTL           string `yaml:"ttl"`
}

// TrackingConfig configures event publishing. An empty URL disables it.
type TrackingConfig struct {
	AMQPURL string `yaml:"amqp_url"`
	Prefix  string `yaml:"prefix"`
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
}

// Session backends.
const (
	BackendMemory = "memory"
	BackendSQL    = "sql"
	BackendRedis  = "redis"
)

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: "15s",
			FilterTimeout:   "5s",
			DocsDir:         "docs",
		},
		Upstream: UpstreamConfig{
			Timeout:      "10s",
			CacheTTL:     "5m",
			WarmPaths:    []string{"/", "/favorites"},
			WarmInterval: "15m",
		},
		Session: SessionConfig{
			Backend:     BackendMemory,
			DatabaseURL: "unitview.db",
			RedisAddr:   "localhost:6379",
			TTL:         "24h",
		},
		Tracking: TrackingConfig{
			Prefix: "unitview",
		},
		Doorway:  map[string]string{},
		Timezone: "Local",
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults. Environment overrides are applied in both cases.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		case !os.IsNotExist(err):
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, cfg.Validate()
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies UNITVIEW_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("UNITVIEW_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("UNITVIEW_UPSTREAM_URL"); v != "" {
		c.Upstream.BaseURL = v
	}
	if v := os.Getenv("UNITVIEW_FEED_URL"); v != "" {
		c.Upstream.FeedURL = v
	}
	if v := os.Getenv("UNITVIEW_SESSION_BACKEND"); v != "" {
		c.Session.Backend = v
	}
	if v := os.Getenv("UNITVIEW_DATABASE_URL"); v != "" {
		c.Session.DatabaseURL = v
	}
	if v := os.Getenv("UNITVIEW_REDIS_ADDR"); v != "" {
		c.Session.RedisAddr = v
	}
	if v := os.Getenv("UNITVIEW_REDIS_PASSWORD"); v != "" {
		c.Session.RedisPassword = v
	}
	if v := os.Getenv("UNITVIEW_REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Session.RedisDB = n
		}
	}
	if v := os.Getenv("UNITVIEW_AMQP_URL"); v != "" {
		c.Tracking.AMQPURL = v
	}
	if v := os.Getenv("UNITVIEW_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("UNITVIEW_TIMEZONE"); v != "" {
		c.Timezone = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch c.Session.Backend {
	case BackendMemory, BackendSQL, BackendRedis:
	default:
		return fmt.Errorf("unknown session backend %q", c.Session.Backend)
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return nil
}

// Location returns the timezone CMS dates are read in.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}

func duration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// GetShutdownTimeout returns the graceful shutdown budget.
func (c *Config) GetShutdownTimeout() time.Duration {
	return duration(c.Server.ShutdownTimeout, 15*time.Second)
}

// GetFilterTimeout returns how long a filter request waits for the grid.
func (c *Config) GetFilterTimeout() time.Duration {
	return duration(c.Server.FilterTimeout, 5*time.Second)
}

// GetUpstreamTimeout returns the upstream request timeout.
func (c *Config) GetUpstreamTimeout() time.Duration {
	return duration(c.Upstream.Timeout, 10*time.Second)
}

// GetCacheTTL returns how long a fetched page is served without refetching.
func (c *Config) GetCacheTTL() time.Duration {
	return duration(c.Upstream.CacheTTL, 5*time.Minute)
}

// GetWarmInterval returns the warm interval used when no database holds one.
func (c *Config) GetWarmInterval() time.Duration {
	return duration(c.Upstream.WarmInterval, 15*time.Minute)
}

// GetSessionTTL returns the session TTL as a duration.
func (c *Config) GetSessionTTL() time.Duration {
	return duration(c.Session.TTL, 24*time.Hour)
}
