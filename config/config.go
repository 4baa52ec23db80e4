// Package config provides configuration management for the application.
//
// Configuration is built in layers: hard defaults, then an optional
// config.yaml (with ${VAR} and ${VAR:-default} expansion), then environment
// variables. A .env file, when present, is loaded into the environment first
// and never overrides variables that are already set.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultBodySizeLimit is the default maximum request body size (1MB)
	DefaultBodySizeLimit int64 = 1 << 20

	minBodySizeLimit int64 = 1 << 10
	maxBodySizeLimit int64 = 100 << 20
)

// StorageTypes lists the accepted storage.type values.
var StorageTypes = []string{"memory", "sqlite", "postgresql", "mongodb", "redis"}

// Config holds the application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Search    SearchConfig    `yaml:"search"`
	Routes    RoutesConfig    `yaml:"routes"`
	Sessions  SessionsConfig  `yaml:"sessions"`
	Storage   StorageConfig   `yaml:"storage"`
	Providers ProvidersConfig `yaml:"providers"`
	HTTP      HTTPConfig      `yaml:"http"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port string `yaml:"port"`
	// MasterKey, when set, is required as a bearer token on every API route
	MasterKey string `yaml:"master_key"`
	// BodySizeLimit accepts a byte count or a K/M/G suffixed size ("1M")
	BodySizeLimit string `yaml:"body_size_limit"`
}

// SearchConfig holds spatial result cache settings. Durations are seconds.
type SearchConfig struct {
	CacheTTL           int  `yaml:"cache_ttl"`
	SweepInterval      int  `yaml:"sweep_interval"`
	PreloadEnabled     bool `yaml:"preload_enabled"`
	PreloadPrecision   int  `yaml:"preload_precision"`
	PreloadConcurrency int  `yaml:"preload_concurrency"`
	PreloadTimeout     int  `yaml:"preload_timeout"`
}

// RoutesConfig holds route cache settings. Durations are seconds.
type RoutesConfig struct {
	SweepInterval int `yaml:"sweep_interval"`
}

// SessionsConfig holds search session settings.
type SessionsConfig struct {
	// IdleTTL is in seconds
	IdleTTL           int    `yaml:"idle_ttl"`
	SweepInterval     int    `yaml:"sweep_interval"`
	AutoSearchDelayMs int    `yaml:"auto_search_delay_ms"`
	SearchPath        string `yaml:"search_path"`
}

// StorageConfig selects the persistence backend
type StorageConfig struct {
	// Type is one of memory, sqlite, postgresql, mongodb, redis
	Type       string           `yaml:"type"`
	SQLite     SQLiteConfig     `yaml:"sqlite"`
	PostgreSQL PostgreSQLConfig `yaml:"postgresql"`
	MongoDB    MongoDBConfig    `yaml:"mongodb"`
	Redis      RedisConfig      `yaml:"redis"`
}

// SQLiteConfig holds SQLite settings
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// PostgreSQLConfig holds PostgreSQL settings
type PostgreSQLConfig struct {
	URL      string `yaml:"url"`
	MaxConns int    `yaml:"max_conns"`
}

// MongoDBConfig holds MongoDB settings
type MongoDBConfig struct {
	URL      string `yaml:"url"`
	Database string `yaml:"database"`
}

// RedisConfig holds Redis settings
type RedisConfig struct {
	URL    string `yaml:"url"`
	Prefix string `yaml:"prefix"`
	// TTL in seconds for persisted keys; 0 keeps them forever
	TTL int `yaml:"ttl"`
}

// ProvidersConfig points the collaborators at their upstream services
type ProvidersConfig struct {
	SearchURL  string `yaml:"search_url"`
	RoutingURL string `yaml:"routing_url"`
	UserAgent  string `yaml:"user_agent"`
	MaxRetries int    `yaml:"max_retries"`
	// GeoIPDatabase is an optional MaxMind City database for IP geolocation
	GeoIPDatabase string `yaml:"geoip_database"`
}

// HTTPConfig holds outbound HTTP client timeouts in seconds
type HTTPConfig struct {
	Timeout               int `yaml:"timeout"`
	ResponseHeaderTimeout int `yaml:"response_header_timeout"`
}

// MetricsConfig holds prometheus exposition settings
type MetricsConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
}

// LogConfig holds logging settings
type LogConfig struct {
	// Level is debug, info, warn or error
	Level string `yaml:"level"`
	// Format is text, json, or empty to pick by terminal
	Format string `yaml:"format"`
}

// configPaths are searched in order for a YAML file when CONFIG_FILE is unset.
var configPaths = []string{"config/config.yaml", "config.yaml"}

// Load builds the configuration from defaults, the first config file found
// and the environment.
func Load() (*Config, error) {
	path := os.Getenv("CONFIG_FILE")
	if path == "" {
		for _, p := range configPaths {
			if _, err := os.Stat(p); err == nil {
				path = p
				break
			}
		}
	}
	return LoadFile(path)
}

// LoadFile is Load with an explicit config file. An empty path skips the
// file layer.
func LoadFile(path string) (*Config, error) {
	// Optional; real environment variables take precedence.
	_ = godotenv.Load()

	cfg := buildDefaultConfig()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal([]byte(expandString(string(raw))), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func buildDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8080",
		},
		Search: SearchConfig{
			CacheTTL:           300,
			SweepInterval:      60,
			PreloadEnabled:     true,
			PreloadPrecision:   6,
			PreloadConcurrency: 2,
			PreloadTimeout:     10,
		},
		Routes: RoutesConfig{
			SweepInterval: 300,
		},
		Sessions: SessionsConfig{
			IdleTTL:           1800,
			SweepInterval:     60,
			AutoSearchDelayMs: 1000,
			SearchPath:        "/search",
		},
		Storage: StorageConfig{
			Type: "sqlite",
			SQLite: SQLiteConfig{
				Path: "data/placemap.db",
			},
			PostgreSQL: PostgreSQLConfig{
				MaxConns: 10,
			},
			MongoDB: MongoDBConfig{
				Database: "placemap",
			},
			Redis: RedisConfig{
				Prefix: "placemap:",
			},
		},
		Providers: ProvidersConfig{
			SearchURL:  "https://nominatim.openstreetmap.org",
			RoutingURL: "https://router.project-osrm.org",
			UserAgent:  "placemap/1.0",
			MaxRetries: 2,
		},
		HTTP: HTTPConfig{
			Timeout:               30,
			ResponseHeaderTimeout: 20,
		},
		Metrics: MetricsConfig{
			Enabled:  true,
			Endpoint: "/metrics",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

var placeholder = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// expandString replaces ${VAR} and ${VAR:-default} with environment values.
// An empty or unset variable uses the default when one is given and is
// otherwise left as written.
func expandString(s string) string {
	return placeholder.ReplaceAllStringFunc(s, func(m string) string {
		parts := placeholder.FindStringSubmatch(m)
		if v := os.Getenv(parts[1]); v != "" {
			return v
		}
		if parts[2] != "" {
			return parts[3]
		}
		return m
	})
}

// applyEnvOverrides applies every documented environment variable on top of cfg.
func applyEnvOverrides(cfg *Config) error {
	var errs []error
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		v := os.Getenv(key)
		if v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid %s: %q is not an integer", key, v))
			return
		}
		*dst = n
	}
	flag := func(key string, dst *bool) {
		v := os.Getenv(key)
		if v == "" {
			return
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid %s: %q is not a boolean", key, v))
			return
		}
		*dst = b
	}

	str("PORT", &cfg.Server.Port)
	str("PLACEMAP_MASTER_KEY", &cfg.Server.MasterKey)
	str("BODY_SIZE_LIMIT", &cfg.Server.BodySizeLimit)

	num("SEARCH_CACHE_TTL", &cfg.Search.CacheTTL)
	num("SEARCH_SWEEP_INTERVAL", &cfg.Search.SweepInterval)
	flag("SEARCH_PRELOAD_ENABLED", &cfg.Search.PreloadEnabled)
	num("SEARCH_PRELOAD_PRECISION", &cfg.Search.PreloadPrecision)
	num("SEARCH_PRELOAD_CONCURRENCY", &cfg.Search.PreloadConcurrency)
	num("SEARCH_PRELOAD_TIMEOUT", &cfg.Search.PreloadTimeout)

	num("ROUTES_SWEEP_INTERVAL", &cfg.Routes.SweepInterval)

	num("SESSION_IDLE_TTL", &cfg.Sessions.IdleTTL)
	num("SESSION_SWEEP_INTERVAL", &cfg.Sessions.SweepInterval)
	num("SESSION_AUTO_SEARCH_DELAY_MS", &cfg.Sessions.AutoSearchDelayMs)
	str("SESSION_SEARCH_PATH", &cfg.Sessions.SearchPath)

	str("STORAGE_TYPE", &cfg.Storage.Type)
	str("SQLITE_PATH", &cfg.Storage.SQLite.Path)
	str("POSTGRES_URL", &cfg.Storage.PostgreSQL.URL)
	num("POSTGRES_MAX_CONNS", &cfg.Storage.PostgreSQL.MaxConns)
	str("MONGODB_URL", &cfg.Storage.MongoDB.URL)
	str("MONGODB_DATABASE", &cfg.Storage.MongoDB.Database)
	str("REDIS_URL", &cfg.Storage.Redis.URL)
	str("REDIS_KEY_PREFIX", &cfg.Storage.Redis.Prefix)
	num("REDIS_TTL", &cfg.Storage.Redis.TTL)

	str("SEARCH_PROVIDER_URL", &cfg.Providers.SearchURL)
	str("ROUTING_PROVIDER_URL", &cfg.Providers.RoutingURL)
	str("PROVIDER_USER_AGENT", &cfg.Providers.UserAgent)
	num("PROVIDER_MAX_RETRIES", &cfg.Providers.MaxRetries)
	str("GEOIP_DATABASE", &cfg.Providers.GeoIPDatabase)

	num("HTTP_TIMEOUT", &cfg.HTTP.Timeout)
	num("HTTP_RESPONSE_HEADER_TIMEOUT", &cfg.HTTP.ResponseHeaderTimeout)

	flag("METRICS_ENABLED", &cfg.Metrics.Enabled)
	str("METRICS_ENDPOINT", &cfg.Metrics.Endpoint)

	str("LOG_LEVEL", &cfg.Log.Level)
	str("LOG_FORMAT", &cfg.Log.Format)

	return errors.Join(errs...)
}

// Validate rejects settings the application cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if !slices.Contains(StorageTypes, c.Storage.Type) {
		errs = append(errs, fmt.Errorf("unknown storage type %q (valid: %s)", c.Storage.Type, strings.Join(StorageTypes, ", ")))
	}
	if c.Search.CacheTTL <= 0 {
		errs = append(errs, errors.New("search.cache_ttl must be positive"))
	}
	if c.Sessions.IdleTTL <= 0 {
		errs = append(errs, errors.New("sessions.idle_ttl must be positive"))
	}
	if c.Search.PreloadPrecision < 1 || c.Search.PreloadPrecision > 12 {
		errs = append(errs, errors.New("search.preload_precision must be between 1 and 12"))
	}
	if c.Providers.MaxRetries < 0 {
		errs = append(errs, errors.New("providers.max_retries must not be negative"))
	}
	if _, err := c.Server.BodySizeLimitBytes(); err != nil {
		errs = append(errs, err)
	}
	if c.Storage.Type == "postgresql" && c.Storage.PostgreSQL.URL == "" {
		errs = append(errs, errors.New("storage.postgresql.url is required for postgresql storage"))
	}
	if c.Storage.Type == "mongodb" && c.Storage.MongoDB.URL == "" {
		errs = append(errs, errors.New("storage.mongodb.url is required for mongodb storage"))
	}
	if c.Storage.Type == "redis" && c.Storage.Redis.URL == "" {
		errs = append(errs, errors.New("storage.redis.url is required for redis storage"))
	}
	return errors.Join(errs...)
}

// BodySizeLimitBytes parses BodySizeLimit. Empty means DefaultBodySizeLimit.
func (s ServerConfig) BodySizeLimitBytes() (int64, error) {
	return ParseBodySizeLimit(s.BodySizeLimit)
}

// ParseBodySizeLimit parses "512", "64K", "1M" or "1G" (case-insensitive,
// optional trailing B) into bytes, bounded to [1KB, 100MB].
func ParseBodySizeLimit(s string) (int64, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return DefaultBodySizeLimit, nil
	}
	s = strings.TrimSuffix(s, "B")

	multiplier := int64(1)
	switch {
	case strings.HasSuffix(s, "K"):
		multiplier, s = 1<<10, strings.TrimSuffix(s, "K")
	case strings.HasSuffix(s, "M"):
		multiplier, s = 1<<20, strings.TrimSuffix(s, "M")
	case strings.HasSuffix(s, "G"):
		multiplier, s = 1<<30, strings.TrimSuffix(s, "G")
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid body size limit %q", s)
	}
	size := n * multiplier
	if size < minBodySizeLimit || size > maxBodySizeLimit {
		return 0, fmt.Errorf("body size limit %d out of range [%d, %d]", size, minBodySizeLimit, maxBodySizeLimit)
	}
	return size, nil
}
