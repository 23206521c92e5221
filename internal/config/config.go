// Package config loads process-level configuration for filterstream.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the ingest service.
type Config struct {
	// Service identity
	ServiceName string `envconfig:"SERVICE_NAME" default:"filterstream"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`

	// Database
	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`

	// Reconciler / Batcher / Counter periods
	ReloadEvery time.Duration `envconfig:"RELOAD_EVERY" default:"10s"`
	SaveEvery   time.Duration `envconfig:"SAVE_EVERY" default:"1s"`
	CountEvery  time.Duration `envconfig:"COUNT_EVERY" default:"60s"`

	// Worker backoff
	BackoffCap time.Duration `envconfig:"BACKOFF_CAP" default:"320s"`

	// Upstream
	UpstreamURL string `envconfig:"UPSTREAM_URL" default:"https://stream.twitter.com/1.1/statuses/filter.json"`

	// Logging
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	LogFile  string `envconfig:"LOG_FILE"`

	// Observability
	TelemetryEndpoint string `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	TelemetryProtocol string `envconfig:"OTEL_EXPORTER_OTLP_PROTOCOL" default:"grpc"`
	TelemetryInsecure bool   `envconfig:"OTEL_EXPORTER_OTLP_INSECURE" default:"true"`

	// Ambient HTTP surface (healthz/readyz/metrics)
	HTTPAddr string `envconfig:"HTTP_ADDR" default:":8090"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// MustLoad loads configuration and panics on error.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.ReloadEvery <= 0 {
		return fmt.Errorf("RELOAD_EVERY must be positive, got %s", c.ReloadEvery)
	}
	if c.SaveEvery <= 0 {
		return fmt.Errorf("SAVE_EVERY must be positive, got %s", c.SaveEvery)
	}
	if c.CountEvery <= 0 {
		return fmt.Errorf("COUNT_EVERY must be positive, got %s", c.CountEvery)
	}
	if c.BackoffCap <= 0 {
		return fmt.Errorf("BACKOFF_CAP must be positive, got %s", c.BackoffCap)
	}
	return nil
}
