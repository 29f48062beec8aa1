package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog/log"
)

// Config holds the configuration for the shard directory service.
// Environment variables are parsed from the SHARD_DIRECTORY_ prefix,
// e.g. SHARD_DIRECTORY_DB_DRIVER, SHARD_DIRECTORY_HTTP_PORT.
type Config struct {
	// DBDriver selects the backing store: sqlite (local/dev) or postgres.
	DBDriver string `envconfig:"DB_DRIVER" default:"sqlite"`

	// Postgres configuration (required when DBDriver is postgres)
	PostgresDSN string `envconfig:"POSTGRES_DSN" default:""`

	// SQLite configuration
	SQLitePath string `envconfig:"SQLITE_PATH" default:"shard-directory.db"`

	// HTTP configuration
	HTTPPort int `envconfig:"HTTP_PORT" default:"8080"`

	// Health checking
	HealthIntervalSeconds     int `envconfig:"HEALTH_INTERVAL_SECONDS" default:"30"`
	HealthProbeTimeoutSeconds int `envconfig:"HEALTH_PROBE_TIMEOUT_SECONDS" default:"2"`
}

// ResolveDefaults validates the driver selection and its required knobs.
func (c *Config) ResolveDefaults() error {
	switch c.DBDriver {
	case "sqlite":
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH must be set for the sqlite driver")
		}
	case "postgres":
		if c.PostgresDSN == "" {
			return fmt.Errorf("POSTGRES_DSN must be set for the postgres driver")
		}
	default:
		return fmt.Errorf("unsupported DB_DRIVER: %s", c.DBDriver)
	}
	return nil
}

// New creates a Config by parsing SHARD_DIRECTORY_-prefixed environment
// variables.
func New() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("SHARD_DIRECTORY", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	if err := cfg.ResolveDefaults(); err != nil {
		return nil, err
	}

	log.Info().
		Str("db_driver", cfg.DBDriver).
		Int("port", cfg.HTTPPort).
		Str("postgres_dsn_present", func() string {
			if cfg.PostgresDSN != "" {
				return "true"
			}
			return "false"
		}()).
		Msg("Configuration loaded")

	return &cfg, nil
}

// GetHTTPAddr returns the HTTP server address.
func (c *Config) GetHTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}
