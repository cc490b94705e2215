package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Sample returns a configuration populated with the documented defaults.
func Sample() Config {
	return Config{
		BindAddr: "127.0.0.1",
		Port:     "9464",
		Env:      "local",
		LogLevel: "info",
		Database: DatabaseConfig{
			Host:           "localhost",
			Port:           5432,
			User:           "inventory",
			Database:       "inventory",
			MaxConnections: 10,
			SSLMode:        "disable",
		},
		Redis: RedisConfig{
			Port: 6379,
		},
		Sync: SyncConfig{
			ChunkSize:       100,
			Listen:          true,
			PatternCacheTTL: 10 * time.Minute,
		},
		Queue: QueueConfig{
			Concurrency:   4,
			MaxRetries:    5,
			UniqueLockTTL: 10 * time.Minute,
			Retention:     1000,
		},
	}
}

// WriteSample writes the sample configuration as YAML to path.
// Secrets are never written; they come from PGPASSWORD and REDIS_PASSWORD.
func WriteSample(path string) error {
	sample := Sample()
	raw, err := yaml.Marshal(&sample)
	if err != nil {
		return fmt.Errorf("could not marshal sample config: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return fmt.Errorf("could not write sample config file: %w", err)
	}
	return nil
}
