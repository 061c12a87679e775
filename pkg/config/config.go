// Package config provides environment-based configuration for the log platform.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the API server and the jobs worker.
type Config struct {
	// Database configuration
	DatabaseDSN string
	StoreDriver string // "postgres" or "memory"

	// Authentication
	JWTSecret string
	JWTExpiry time.Duration

	// Server configuration
	APIHost string
	APIPort int

	// MetricsPort is where the worker exposes /metrics. The API server
	// serves metrics on its own port.
	MetricsPort int

	// Graceful shutdown timeout
	ShutdownTimeout time.Duration

	// Ingest configuration
	Ingest IngestConfig

	// Retention configuration
	Retention RetentionConfig

	// Jobs configuration
	Jobs JobsConfig
}

// IngestConfig holds ingestion pipeline configuration.
type IngestConfig struct {
	// MaxEventsPerCall caps how many events one webhook call may produce,
	// counting flagged derivations. Events beyond the cap are reported as
	// skipped.
	MaxEventsPerCall int
	// MaxBodyBytes bounds the raw webhook body size.
	MaxBodyBytes int64
}

// RetentionConfig holds retention sweeper configuration.
type RetentionConfig struct {
	// NormalWindow is how long non-error records are kept.
	NormalWindow time.Duration
	// ErrorWindow is how long error records are kept.
	ErrorWindow time.Duration
	// SweepBatchSize bounds deletions per category per sweep invocation.
	SweepBatchSize int
	// MetricsWindow is how long pre-aggregated metrics buckets are kept.
	MetricsWindow time.Duration
}

// JobsConfig holds the periodic job intervals for the worker.
type JobsConfig struct {
	AlertCheckInterval   time.Duration
	SweepInterval        time.Duration
	AggregationInterval  time.Duration
	MetricsSweepInterval time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := defaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadWithDefaults loads configuration with defaults for development.
// It does not validate required fields, useful for testing.
func LoadWithDefaults() *Config {
	cfg := defaults()
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = "development-secret-key-min-32-chars"
	}
	return cfg
}

func defaults() *Config {
	return &Config{
		DatabaseDSN:     getEnv("DATABASE_URL", "postgres://localhost:5432/logpeak?sslmode=disable"),
		StoreDriver:     getEnv("STORE_DRIVER", "postgres"),
		JWTSecret:       getEnv("JWT_SECRET", ""),
		JWTExpiry:       getDurationEnv("JWT_EXPIRY", 24*time.Hour),
		APIHost:         getEnv("API_HOST", "0.0.0.0"),
		APIPort:         getIntEnv("API_PORT", 8080),
		MetricsPort:     getIntEnv("METRICS_PORT", 9090),
		ShutdownTimeout: getDurationEnv("SHUTDOWN_TIMEOUT", 30*time.Second),
		Ingest: IngestConfig{
			MaxEventsPerCall: getIntEnv("INGEST_MAX_EVENTS", 100),
			MaxBodyBytes:     int64(getIntEnv("INGEST_MAX_BODY_BYTES", 1<<20)),
		},
		Retention: RetentionConfig{
			NormalWindow:   getDurationEnv("RETENTION_NORMAL_WINDOW", 72*time.Hour),
			ErrorWindow:    getDurationEnv("RETENTION_ERROR_WINDOW", 14*24*time.Hour),
			SweepBatchSize: getIntEnv("RETENTION_SWEEP_BATCH", 50),
			MetricsWindow:  getDurationEnv("RETENTION_METRICS_WINDOW", 90*24*time.Hour),
		},
		Jobs: JobsConfig{
			AlertCheckInterval:   getDurationEnv("JOB_ALERT_INTERVAL", 5*time.Minute),
			SweepInterval:        getDurationEnv("JOB_SWEEP_INTERVAL", 6*time.Hour),
			AggregationInterval:  getDurationEnv("JOB_AGGREGATION_INTERVAL", time.Hour),
			MetricsSweepInterval: getDurationEnv("JOB_METRICS_SWEEP_INTERVAL", 24*time.Hour),
		},
	}
}

// Validate checks that required configuration values are set.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters")
	}
	if c.StoreDriver != "postgres" && c.StoreDriver != "memory" {
		return fmt.Errorf("STORE_DRIVER must be postgres or memory, got %q", c.StoreDriver)
	}
	if c.Ingest.MaxEventsPerCall <= 0 {
		return fmt.Errorf("INGEST_MAX_EVENTS must be positive")
	}
	if c.Retention.SweepBatchSize <= 0 {
		return fmt.Errorf("RETENTION_SWEEP_BATCH must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
