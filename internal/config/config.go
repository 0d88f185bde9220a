// Package config holds the bridge's process-level configuration (broker
// defaults, logging, metrics) and the declarative subscription descriptor
// loader.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Config is the process-level configuration, read from the environment
// with sensible defaults. Only KAFKA_BROKERS and KAFKA_SECURITY_PROTOCOL
// are named by the core spec (§6); the rest is ambient (logging, metrics,
// AWS) carried the way the teacher's config.go carries it.
type Config struct {
	KafkaBrokers          string `env:"KAFKA_BROKERS" envDefault:"127.0.0.1:9092"`
	KafkaSecurityProtocol string `env:"KAFKA_SECURITY_PROTOCOL" envDefault:"plaintext"`

	// AWSLambdaEndpoint overrides the Lambda service endpoint, for use
	// against local emulators (e.g. LocalStack) in development.
	AWSLambdaEndpoint string `env:"AWS_LAMBDA_ENDPOINT" envDefault:""`
	AWSRegion         string `env:"AWS_REGION" envDefault:"us-east-1"`

	// PollRateLimit caps broker polls per second per subscriber (0 disables
	// pacing). See internal/kafka.Pacer.
	PollRateLimit int `env:"MALKA_POLL_RATE_LIMIT" envDefault:"0"`

	MetricsAddr     string        `env:"MALKA_METRICS_ADDR" envDefault:":9090"`
	MetricsInterval time.Duration `env:"MALKA_METRICS_INTERVAL" envDefault:"15s"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	Environment string `env:"ENVIRONMENT" envDefault:"development"`
}

// Load reads configuration from an optional .env file and the process
// environment. Priority: env vars > .env file > defaults.
func Load(logger *zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		if logger != nil {
			logger.Info().Msg("no .env file found, using environment variables only")
		}
	} else if logger != nil {
		logger.Info().Msg("loaded configuration from .env file")
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.LogLevel] {
		return fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error (got %q)", c.LogLevel)
	}
	validFormats := map[string]bool{"json": true, "pretty": true}
	if !validFormats[c.LogFormat] {
		return fmt.Errorf("LOG_FORMAT must be one of json, pretty (got %q)", c.LogFormat)
	}
	if c.KafkaBrokers == "" {
		return fmt.Errorf("KAFKA_BROKERS must not be empty")
	}
	return nil
}

// LogConfig logs the resolved configuration at startup, Loki-friendly.
func (c *Config) LogConfig(logger zerolog.Logger) {
	logger.Info().
		Str("environment", c.Environment).
		Str("kafka_brokers", c.KafkaBrokers).
		Str("kafka_security_protocol", c.KafkaSecurityProtocol).
		Str("aws_region", c.AWSRegion).
		Int("poll_rate_limit", c.PollRateLimit).
		Str("metrics_addr", c.MetricsAddr).
		Dur("metrics_interval", c.MetricsInterval).
		Str("log_level", c.LogLevel).
		Str("log_format", c.LogFormat).
		Msg("configuration loaded")
}
