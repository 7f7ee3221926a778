/*
Package config loads the pay engine's runtime configuration.

PURPOSE:
  Reads environment variables, after loading an optional .env file, into a
  typed Config. The server binary lets flags override a few of them.

ENVIRONMENT:
  APP_PORT           HTTP port (default 8080)
  APP_ENV            development | production (default development)
  LOG_LEVEL          debug | info | warn | error (default info)
  APP_TIMEZONE       Location of request periods and dataset dates (default UTC)
  PAY_STORE          sqlite | postgres: where pay records are kept (default sqlite)
  DB_PATH            SQLite database path (default pay.db)
  DATABASE_URL       PostgreSQL DSN, required when PAY_STORE=postgres
  DISTANCE_API_KEY   Distance Matrix API key; empty disables the remote provider
  DISTANCE_API_URL   Distance Matrix base URL override
  DISTANCE_TIMEOUT   Per-lookup timeout (default 5s)
  PAY_CONCURRENCY    Workers computed in parallel (default 4)
  SEED_FILE          Dataset loaded into the store at startup

SEE ALSO:
  - cmd/server/main.go: Flags and wiring
*/
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"go.uber.org/zap/zapcore"
)

type Store string

const (
	StoreSQLite   Store = "sqlite"
	StorePostgres Store = "postgres"
)

type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Distance DistanceConfig
	Pay      PayConfig
}

// AppConfig holds application configuration
type AppConfig struct {
	Port     int
	Env      string
	LogLevel string
	Timezone string
	SeedFile string
}

type DatabaseConfig struct {
	PayStore Store
	Path     string
	URL      string
}

// DistanceConfig configures the distance matrix provider.
type DistanceConfig struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

type PayConfig struct {
	Concurrency int
}

// Load reads the configuration. A missing .env file is not an error.
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load env file: %w", err)
	}
	return FromEnv()
}

// FromEnv reads the configuration from the process environment only.
func FromEnv() (*Config, error) {
	cfg := &Config{}

	appPort, err := strconv.Atoi(getEnv("APP_PORT", "8080"))
	if err != nil {
		return nil, fmt.Errorf("invalid APP_PORT: %w", err)
	}
	cfg.App = AppConfig{
		Port:     appPort,
		Env:      getEnv("APP_ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Timezone: getEnv("APP_TIMEZONE", "UTC"),
		SeedFile: getEnv("SEED_FILE", ""),
	}

	cfg.Database = DatabaseConfig{
		PayStore: Store(strings.ToLower(getEnv("PAY_STORE", string(StoreSQLite)))),
		Path:     getEnv("DB_PATH", "pay.db"),
		URL:      getEnv("DATABASE_URL", ""),
	}

	timeout, err := time.ParseDuration(getEnv("DISTANCE_TIMEOUT", "5s"))
	if err != nil {
		return nil, fmt.Errorf("invalid DISTANCE_TIMEOUT: %w", err)
	}
	cfg.Distance = DistanceConfig{
		APIKey:  getEnv("DISTANCE_API_KEY", ""),
		BaseURL: getEnv("DISTANCE_API_URL", ""),
		Timeout: timeout,
	}

	concurrency, err := strconv.Atoi(getEnv("PAY_CONCURRENCY", "4"))
	if err != nil {
		return nil, fmt.Errorf("invalid PAY_CONCURRENCY: %w", err)
	}
	cfg.Pay = PayConfig{Concurrency: concurrency}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.App.Port <= 0 || c.App.Port > 65535 {
		return fmt.Errorf("APP_PORT %d out of range", c.App.Port)
	}
	if _, err := zapcore.ParseLevel(c.App.LogLevel); err != nil {
		return fmt.Errorf("LOG_LEVEL: %w", err)
	}
	if _, err := time.LoadLocation(c.App.Timezone); err != nil {
		return fmt.Errorf("APP_TIMEZONE: %w", err)
	}
	switch c.Database.PayStore {
	case StoreSQLite:
		if c.Database.Path == "" {
			return fmt.Errorf("DB_PATH is required")
		}
	case StorePostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required when PAY_STORE=postgres")
		}
	default:
		return fmt.Errorf("unknown PAY_STORE %q", c.Database.PayStore)
	}
	if c.Distance.Timeout <= 0 {
		return fmt.Errorf("DISTANCE_TIMEOUT must be positive")
	}
	if c.Pay.Concurrency <= 0 {
		return fmt.Errorf("PAY_CONCURRENCY must be positive")
	}
	return nil
}

// IsProduction reports whether the app runs with production logging.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.App.Env, "production")
}

// Level returns the configured log level.
func (c *Config) Level() zapcore.Level {
	level, err := zapcore.ParseLevel(c.App.LogLevel)
	if err != nil {
		return zapcore.InfoLevel
	}
	return level
}

// Location returns the configured timezone.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.App.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
