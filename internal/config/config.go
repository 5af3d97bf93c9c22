package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the eromap server.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Compute  ComputeConfig
	Storage  StorageConfig
	Rusle    RusleConfig
}

type ServerConfig struct {
	Port              int
	Env               string
	RequestsPerMinute int
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

// ComputeConfig points at the external GEE compute sidecar.
type ComputeConfig struct {
	BaseURL string
	Timeout time.Duration
}

type StorageConfig struct {
	// TileRoot is the directory holding the precomputed tile trees,
	// shared with the compute worker.
	TileRoot string
}

type RusleConfig struct {
	// StartYear/EndYear bound the years accepted for computation.
	StartYear int
	EndYear   int
	// JobDuration is the assumed wall-clock cost of one precompute job,
	// used only for the planner's completion estimate.
	JobDuration time.Duration
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:              envInt("EROMAP_PORT", 8080),
			Env:               envString("EROMAP_ENV", "development"),
			RequestsPerMinute: envInt("EROMAP_RATE_LIMIT_PER_MIN", 120),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Compute: ComputeConfig{
			BaseURL: os.Getenv("COMPUTE_BASE_URL"),
			// The engine queues work and answers fast; raster generation
			// itself happens out-of-band behind the task callbacks.
			Timeout: envDuration("COMPUTE_TIMEOUT", 30*time.Second),
		},
		Storage: StorageConfig{
			TileRoot: os.Getenv("TILE_STORAGE_PATH"),
		},
		Rusle: RusleConfig{
			StartYear:   envInt("RUSLE_START_YEAR", 1993),
			EndYear:     envInt("RUSLE_END_YEAR", time.Now().Year()),
			JobDuration: envDurationSecs("PRECOMPUTE_JOB_SECS", 120*time.Second),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.Compute.BaseURL == "" {
		return fmt.Errorf("COMPUTE_BASE_URL is required")
	}
	if !strings.HasPrefix(c.Compute.BaseURL, "http://") && !strings.HasPrefix(c.Compute.BaseURL, "https://") {
		return fmt.Errorf("COMPUTE_BASE_URL must start with http:// or https://, got %q", c.Compute.BaseURL)
	}

	if c.Storage.TileRoot == "" {
		return fmt.Errorf("TILE_STORAGE_PATH is required")
	}

	if c.Rusle.EndYear < c.Rusle.StartYear {
		return fmt.Errorf("RUSLE_END_YEAR (%d) must not precede RUSLE_START_YEAR (%d)",
			c.Rusle.EndYear, c.Rusle.StartYear)
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envDurationSecs(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return time.Duration(secs) * time.Second
}
