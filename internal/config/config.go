package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const apiKeyPlaceholder = "your_api_key_here"

// Backends accepted by trending.backend.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendMongo    = "mongo"
	BackendRedis    = "redis"
)

// Config represents the application configuration
type Config struct {
	TMDB      TMDBConfig      `yaml:"tmdb"`
	Search    SearchConfig    `yaml:"search"`
	Trending  TrendingConfig  `yaml:"trending"`
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// TMDBConfig holds TMDB API configuration
type TMDBConfig struct {
	APIKey            string  `yaml:"api_key"`
	BaseURL           string  `yaml:"base_url"`
	Language          string  `yaml:"language"`
	TimeoutSeconds    int     `yaml:"timeout_seconds"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	MaxAttempts       int     `yaml:"max_attempts"`
	InitialBackoffMs  int     `yaml:"initial_backoff_ms"`
}

type SearchConfig struct {
	DebounceMs int `yaml:"debounce_ms"`
}

// TrendingConfig selects the counter store and shelf behavior
type TrendingConfig struct {
	Backend                string `yaml:"backend"`
	Limit                  int    `yaml:"limit"`
	RefreshIntervalSeconds int    `yaml:"refresh_interval_seconds"`
	RecordTimeoutSeconds   int    `yaml:"record_timeout_seconds"`
	SQLitePath             string `yaml:"sqlite_path"`
	PostgresDSN            string `yaml:"postgres_dsn"`
	MongoURI               string `yaml:"mongo_uri"`
	MongoDatabase          string `yaml:"mongo_database"`
	RedisURL               string `yaml:"redis_url"`
}

// ServerConfig holds HTTP listener settings
type ServerConfig struct {
	Addr           string  `yaml:"addr"`
	RateLimitRPS   float64 `yaml:"rate_limit_rps"`
	RateLimitBurst int     `yaml:"rate_limit_burst"`
	PreviewWorkers int     `yaml:"preview_workers"`
	PreviewSize    int     `yaml:"preview_size"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type TelemetryConfig struct {
	OTLPEndpoint string  `yaml:"otlp_endpoint"`
	SampleRate   float64 `yaml:"sample_rate"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	path, err := ExpandPath(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse expands environment variables in data, decodes it and applies
// defaults. TMDB_API_KEY fills in a missing api key.
func Parse(data []byte) (*Config, error) {
	expandedData := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if strings.TrimSpace(cfg.TMDB.APIKey) == "" {
		cfg.TMDB.APIKey = os.Getenv("TMDB_API_KEY")
	}
	cfg.TMDB.APIKey = strings.TrimSpace(cfg.TMDB.APIKey)

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ExpandPath expands a leading ~ to the home directory
func ExpandPath(path string) (string, error) {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

func (c *Config) applyDefaults() {
	if c.TMDB.BaseURL == "" {
		c.TMDB.BaseURL = "https://api.themoviedb.org/3"
	}
	if c.TMDB.Language == "" {
		c.TMDB.Language = "en-US"
	}
	if c.TMDB.TimeoutSeconds <= 0 {
		c.TMDB.TimeoutSeconds = 10
	}
	if c.TMDB.RequestsPerSecond <= 0 {
		c.TMDB.RequestsPerSecond = 20
	}
	// one attempt unless retries are asked for
	if c.TMDB.MaxAttempts <= 0 {
		c.TMDB.MaxAttempts = 1
	}
	if c.TMDB.InitialBackoffMs <= 0 {
		c.TMDB.InitialBackoffMs = 500
	}

	if c.Search.DebounceMs <= 0 {
		c.Search.DebounceMs = 500
	}

	c.Trending.Backend = strings.ToLower(strings.TrimSpace(c.Trending.Backend))
	if c.Trending.Backend == "" {
		c.Trending.Backend = BackendSQLite
	}
	if c.Trending.Limit <= 0 {
		c.Trending.Limit = 5
	}
	if c.Trending.RefreshIntervalSeconds <= 0 {
		c.Trending.RefreshIntervalSeconds = 60
	}
	if c.Trending.RecordTimeoutSeconds <= 0 {
		c.Trending.RecordTimeoutSeconds = 5
	}
	if c.Trending.SQLitePath == "" {
		c.Trending.SQLitePath = "./data/trending.db"
	}
	if c.Trending.MongoDatabase == "" {
		c.Trending.MongoDatabase = "moviefinder"
	}

	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.RateLimitRPS <= 0 {
		c.Server.RateLimitRPS = 20
	}
	if c.Server.RateLimitBurst <= 0 {
		c.Server.RateLimitBurst = 40
	}
	if c.Server.PreviewWorkers <= 0 {
		c.Server.PreviewWorkers = 4
	}
	if c.Server.PreviewSize <= 0 {
		c.Server.PreviewSize = 6
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}

	if c.Telemetry.SampleRate <= 0 {
		c.Telemetry.SampleRate = 0.1
	}
}

// Validate checks required fields and enumerations
func (c *Config) Validate() error {
	if c.TMDB.APIKey == "" || c.TMDB.APIKey == apiKeyPlaceholder {
		return fmt.Errorf("TMDB API key is required. Get one from https://www.themoviedb.org/settings/api")
	}

	switch c.Trending.Backend {
	case BackendSQLite:
	case BackendPostgres:
		if c.Trending.PostgresDSN == "" {
			return fmt.Errorf("trending.postgres_dsn is required for the postgres backend")
		}
	case BackendMongo:
		if c.Trending.MongoURI == "" {
			return fmt.Errorf("trending.mongo_uri is required for the mongo backend")
		}
	case BackendRedis:
		if c.Trending.RedisURL == "" {
			return fmt.Errorf("trending.redis_url is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown trending backend %q (want sqlite, postgres, mongo or redis)", c.Trending.Backend)
	}

	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q (want text or json)", c.Log.Format)
	}

	if c.Telemetry.SampleRate > 1 {
		return fmt.Errorf("telemetry.sample_rate must be between 0 and 1, got %v", c.Telemetry.SampleRate)
	}
	return nil
}

// ParseLevel parses a slog level name such as "debug" or "warn".
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return level, nil
}

func (c TMDBConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c SearchConfig) DebounceDelay() time.Duration {
	return time.Duration(c.DebounceMs) * time.Millisecond
}

func (c TrendingConfig) RefreshInterval() time.Duration {
	return time.Duration(c.RefreshIntervalSeconds) * time.Second
}

func (c TrendingConfig) RecordTimeout() time.Duration {
	return time.Duration(c.RecordTimeoutSeconds) * time.Second
}
