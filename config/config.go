// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

// AppConfig holds all configuration for the service.
type AppConfig struct {
	Port        int
	DBDriver    string // sqlite3 or postgres
	DatabaseURL string
	LogLevel    string
	Environment string

	RedisAddr string // empty = in-process per-config lock

	PubSubProjectID    string
	PubSubTopic        string
	PubSubSubscription string

	CronSpecCatchUp string

	MaxIterations  int
	RunTimeout     time.Duration
	TriggerWorkers int
}

// UsePubSub reports whether triggers travel through Cloud Pub/Sub.
func (c *AppConfig) UsePubSub() bool {
	return c.PubSubProjectID != "" && c.PubSubTopic != ""
}

// Load reads configuration from environment variables and .env file (if present).
func Load() (*AppConfig, error) {
	// godotenv.Load does not override variables that are already set.
	_ = godotenv.Load()

	cfg := &AppConfig{
		DBDriver:           envOr("DB_DRIVER", "sqlite3"),
		DatabaseURL:        envOr("DATABASE_URL", "payroll.db"),
		LogLevel:           strings.ToLower(envOr("LOG_LEVEL", "info")),
		Environment:        strings.ToLower(envOr("ENVIRONMENT", "development")),
		RedisAddr:          os.Getenv("REDIS_ADDR"),
		PubSubProjectID:    os.Getenv("PUBSUB_PROJECT_ID"),
		PubSubTopic:        os.Getenv("PUBSUB_TOPIC"),
		PubSubSubscription: os.Getenv("PUBSUB_SUBSCRIPTION"),
		CronSpecCatchUp:    envOr("CRON_SPEC_CATCH_UP", "15 0 * * *"), // 00:15 daily
	}

	var err error
	if cfg.Port, err = envInt("PORT", 8080); err != nil {
		return nil, err
	}
	if cfg.MaxIterations, err = envInt("MAX_ITERATIONS", 16); err != nil {
		return nil, err
	}
	if cfg.TriggerWorkers, err = envInt("TRIGGER_WORKERS", 4); err != nil {
		return nil, err
	}
	if cfg.RunTimeout, err = envDuration("RUN_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail late at startup.
func (c *AppConfig) Validate() error {
	if c.DBDriver != "sqlite3" && c.DBDriver != "postgres" {
		return fmt.Errorf("DB_DRIVER must be sqlite3 or postgres, got %q", c.DBDriver)
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is not set")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT %d", c.Port)
	}
	if c.MaxIterations <= 0 {
		return fmt.Errorf("MAX_ITERATIONS must be positive, got %d", c.MaxIterations)
	}
	if c.TriggerWorkers <= 0 {
		return fmt.Errorf("TRIGGER_WORKERS must be positive, got %d", c.TriggerWorkers)
	}
	if c.RunTimeout <= 0 {
		return fmt.Errorf("RUN_TIMEOUT must be positive, got %s", c.RunTimeout)
	}
	if _, err := cron.ParseStandard(c.CronSpecCatchUp); err != nil {
		return fmt.Errorf("invalid CRON_SPEC_CATCH_UP %q: %w", c.CronSpecCatchUp, err)
	}
	if c.PubSubSubscription != "" && c.PubSubProjectID == "" {
		return fmt.Errorf("PUBSUB_SUBSCRIPTION requires PUBSUB_PROJECT_ID")
	}
	return nil
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
