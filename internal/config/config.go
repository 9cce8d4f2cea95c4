// Package config loads console configuration from userdeck.json with
// environment-variable overrides. Precedence is defaults, then file, then
// environment.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

const (
	// FileName is the name of the configuration file.
	FileName = "userdeck.json"

	// DefaultListenAddr is where the console serves its own HTTP API.
	DefaultListenAddr = ":7420"

	// DefaultPageSize is the user page size requested from the service.
	DefaultPageSize = 50
)

// Config is the complete console configuration.
type Config struct {
	// API is the upstream user service.
	API APIConfig `json:"api"`

	// Server is the console's own HTTP surface.
	Server ServerConfig `json:"server"`

	// List controls the virtualized user list.
	List ListConfig `json:"list"`

	// Mutations controls mutation pacing.
	Mutations MutationConfig `json:"mutations"`

	// Redis enables the shared page cache when an address is set.
	Redis RedisConfig `json:"redis"`

	// Export configures GDPR archive storage.
	Export ExportConfig `json:"export"`

	// Debug enables verbose logging.
	Debug bool `json:"debug" env:"USERDECK_DEBUG"`

	configPath string
}

// APIConfig points at the remote user service.
type APIConfig struct {
	BaseURL  string `json:"baseUrl" env:"USERDECK_API_URL"`
	LiveURL  string `json:"liveUrl" env:"USERDECK_LIVE_URL"`
	PageSize int    `json:"pageSize" env:"USERDECK_PAGE_SIZE"`
}

// ServerConfig is the console's HTTP listener.
type ServerConfig struct {
	ListenAddr string `json:"listenAddr" env:"USERDECK_LISTEN_ADDR"`
}

// ListConfig holds virtualization geometry.
type ListConfig struct {
	ItemHeight int `json:"itemHeight" env:"USERDECK_ITEM_HEIGHT"`
	Overscan   int `json:"overscan" env:"USERDECK_OVERSCAN"`
}

// MutationConfig paces remote mutation calls.
type MutationConfig struct {
	// BulkDelayMS is the pause between sequential bulk-delete calls.
	BulkDelayMS int `json:"bulkDelayMs" env:"USERDECK_BULK_DELAY_MS"`
}

// RedisConfig configures the optional page cache.
type RedisConfig struct {
	Addr       string `json:"addr" env:"USERDECK_REDIS_ADDR"`
	Password   string `json:"password" env:"USERDECK_REDIS_PASSWORD"`
	DB         int    `json:"db" env:"USERDECK_REDIS_DB"`
	TTLSeconds int    `json:"ttlSeconds" env:"USERDECK_REDIS_TTL_SECONDS"`
}

// ExportConfig configures subject-access archive storage.
type ExportConfig struct {
	Bucket string `json:"bucket" env:"USERDECK_EXPORT_BUCKET"`
	Prefix string `json:"prefix" env:"USERDECK_EXPORT_PREFIX"`
}

// New returns a Config with defaults applied.
func New() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:  "http://localhost:8080",
			PageSize: DefaultPageSize,
		},
		Server: ServerConfig{
			ListenAddr: DefaultListenAddr,
		},
		List: ListConfig{
			ItemHeight: 80,
			Overscan:   5,
		},
		Mutations: MutationConfig{
			BulkDelayMS: 100,
		},
		Redis: RedisConfig{
			TTLSeconds: 30,
		},
		Export: ExportConfig{
			Prefix: "gdpr/",
		},
	}
}

// Load reads userdeck.json from dir, then applies environment overrides.
// A missing file is not an error; defaults and environment still apply.
// A .env file in the working directory is loaded first when present.
func Load(dir string) (*Config, error) {
	godotenv.Load()

	cfg := New()
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		cfg.configPath = path
	case os.IsNotExist(err):
		// File is optional.
	default:
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("environment overrides: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Path returns where the config file was loaded from, or "" when none was.
func (c *Config) Path() string {
	return c.configPath
}

// applyDefaults fills in defaults for fields the file or environment zeroed.
func (c *Config) applyDefaults() {
	if c.API.PageSize <= 0 {
		c.API.PageSize = DefaultPageSize
	}
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = DefaultListenAddr
	}
	if c.List.ItemHeight <= 0 {
		c.List.ItemHeight = 80
	}
	if c.List.Overscan < 0 {
		c.List.Overscan = 0
	}
	if c.Mutations.BulkDelayMS < 0 {
		c.Mutations.BulkDelayMS = 0
	}
	if c.Redis.TTLSeconds <= 0 {
		c.Redis.TTLSeconds = 30
	}
	if c.Export.Prefix == "" {
		c.Export.Prefix = "gdpr/"
	}
	if c.API.LiveURL == "" {
		c.API.LiveURL = deriveLiveURL(c.API.BaseURL)
	}
}

// Validate checks the configuration for unusable values.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.baseUrl must be set")
	}
	return nil
}

// BulkDelay returns the configured bulk pacing as a duration.
func (c *Config) BulkDelay() time.Duration {
	return time.Duration(c.Mutations.BulkDelayMS) * time.Millisecond
}

// CacheTTL returns the configured page cache TTL.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Redis.TTLSeconds) * time.Second
}

// CacheEnabled reports whether the Redis page cache is configured.
func (c *Config) CacheEnabled() bool {
	return c.Redis.Addr != ""
}

// deriveLiveURL maps the REST base URL to the default WebSocket endpoint.
func deriveLiveURL(baseURL string) string {
	switch {
	case len(baseURL) > 8 && baseURL[:8] == "https://":
		return "wss://" + baseURL[8:] + "/ws/users"
	case len(baseURL) > 7 && baseURL[:7] == "http://":
		return "ws://" + baseURL[7:] + "/ws/users"
	default:
		return ""
	}
}
