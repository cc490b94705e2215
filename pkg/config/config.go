package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// DefaultPath is the configuration file read when no --config flag is given.
const DefaultPath = "config.yaml"

// Config holds all configuration for the glossary sync worker.
// Configuration can come from a YAML file or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords) must only come from environment variables.
type Config struct {
	// Operational HTTP endpoints (/health, /ping, /metrics)
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"9464"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`

	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Sync     SyncConfig     `yaml:"sync"`
	Queue    QueueConfig    `yaml:"queue"`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"inventory"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"inventory"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"10"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`

	// MigrateOnStart applies pending migrations before the worker starts.
	MigrateOnStart bool `yaml:"migrate_on_start" env:"DB_MIGRATE_ON_START" env-default:"false"`
}

// RedisConfig configures the optional cross-process unique-job lock.
// An empty host disables Redis and the worker relies on its in-process dedup
// plus PostgreSQL advisory locks.
type RedisConfig struct {
	Host     string `yaml:"host" env:"REDIS_HOST" env-default:""`
	Port     int    `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string `yaml:"-" env:"REDIS_PASSWORD"` // Secret - not in YAML
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

// SyncConfig holds spelling synchronization settings.
type SyncConfig struct {
	// ChunkSize is the number of rows read per page while scanning candidates.
	ChunkSize int `yaml:"chunk_size" env:"SYNC_CHUNK_SIZE" env-default:"100"`
	// Listen enables the LISTEN/NOTIFY bridge in the worker command.
	Listen bool `yaml:"listen" env:"SYNC_LISTEN" env-default:"true"`
	// PatternCacheTTL is how long a compiled spelling pattern stays cached after its last use.
	PatternCacheTTL time.Duration `yaml:"pattern_cache_ttl" env:"SYNC_PATTERN_CACHE_TTL" env-default:"10m"`
}

// QueueConfig holds work queue settings.
type QueueConfig struct {
	// Concurrency is the number of sync tasks allowed to run at once.
	Concurrency int `yaml:"concurrency" env:"QUEUE_CONCURRENCY" env-default:"4"`
	// MaxRetries is the number of retries for transient failures.
	MaxRetries int `yaml:"max_retries" env:"QUEUE_MAX_RETRIES" env-default:"5"`
	// UniqueLockTTL bounds how long a cross-process unique lock may be held.
	UniqueLockTTL time.Duration `yaml:"unique_lock_ttl" env:"QUEUE_UNIQUE_LOCK_TTL" env-default:"10m"`
	// Retention is the number of finished tasks kept for progress reporting.
	Retention int `yaml:"retention" env:"QUEUE_RETENTION" env-default:"1000"`
}

// Load reads configuration from the YAML file at path with environment variable overrides.
// A missing file is not an error: the configuration then comes from the environment alone.
// The version parameter is injected at build time and set on the returned Config.
func Load(path, version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if path == "" {
		path = DefaultPath
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	} else if err := cleanenv.ReadConfig(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Sync.ChunkSize < 1 {
		return fmt.Errorf("sync.chunk_size must be positive, got %d", c.Sync.ChunkSize)
	}
	if c.Queue.Concurrency < 1 {
		return fmt.Errorf("queue.concurrency must be positive, got %d", c.Queue.Concurrency)
	}
	if c.Queue.MaxRetries < 0 {
		return fmt.Errorf("queue.max_retries must not be negative, got %d", c.Queue.MaxRetries)
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	return nil
}

// ZapLevel returns the configured log level.
func (c *Config) ZapLevel() zap.AtomicLevel {
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return zap.NewAtomicLevelAt(level)
}

// ListenAddr returns the address for the operational HTTP server.
func (c *Config) ListenAddr() string {
	return c.BindAddr + ":" + c.Port
}

// URL returns a PostgreSQL connection URL.
// Localhost is rewritten when running inside Docker.
func (c *DatabaseConfig) URL() string {
	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", ResolveHostForDocker(c.Host), c.Port),
		Path:     "/" + c.Database,
		RawQuery: url.Values{"sslmode": []string{c.SSLMode}}.Encode(),
	}
	return u.String()
}

// Enabled reports whether a Redis host is configured.
func (c *RedisConfig) Enabled() bool {
	return c.Host != ""
}

// Addr returns the Redis address.
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", ResolveHostForDocker(c.Host), c.Port)
}
