// Biblioteka Platform - Event-Driven Library Services
// Copyright 2026 Biblioteka Platform Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/biblioteka/eventsvc

// Package config provides layered configuration for the notifier and
// recommender services using Koanf v2.
//
// Sources are applied in order of increasing priority:
//
//  1. Built-in defaults
//  2. Optional YAML config file (CONFIG_PATH or the default search paths)
//  3. Environment variables (SMTP_HOST, BROKER_URL, EMBEDDING_API_KEY, ...)
//
// Both services share the same Config shape; sections that do not apply to
// a service (SMTP for the recommender, Embedding for the notifier) are
// simply ignored by it.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the root configuration shared by both services.
type Config struct {
	Broker    BrokerConfig    `koanf:"broker"`
	Database  DatabaseConfig  `koanf:"database"`
	Server    ServerConfig    `koanf:"server"`
	SMTP      SMTPConfig      `koanf:"smtp"`
	Embedding EmbeddingConfig `koanf:"embedding"`
	Notifier  NotifierConfig  `koanf:"notifier"`
	Recommend RecommendConfig `koanf:"recommend"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// BrokerConfig holds message broker connection and topology settings.
//
// The exchange is a subject prefix on a durable JetStream stream; routing
// keys are subject suffixes beneath it. Each service owns one durable
// consumer (its queue) with strictly sequential delivery (prefetch 1).
type BrokerConfig struct {
	URL string `koanf:"url" validate:"required"`

	// EmbeddedServer runs an in-process NATS server with JetStream.
	// Intended for development and tests.
	EmbeddedServer bool   `koanf:"embedded_server"`
	StoreDir       string `koanf:"store_dir"`

	// Exchange is the topic exchange name, used as the subject prefix
	// and stream identity.
	Exchange string `koanf:"exchange" validate:"required"`

	// Queue is the service's durable queue name. The dead-letter queue is
	// derived as "<queue>.dlq".
	Queue string `koanf:"queue" validate:"required"`

	// DLQRoutingKey is the routing key used on the dead-letter exchange.
	DLQRoutingKey string `koanf:"dlq_routing_key"`

	// MessageTTL is the maximum message lifetime on the primary queue.
	MessageTTL time.Duration `koanf:"message_ttl"`

	// Bounded connect retry: attempts grow exponentially from
	// ConnectBackoffMin up to ConnectBackoffMax; exhaustion is fatal.
	ConnectMaxAttempts int           `koanf:"connect_max_attempts" validate:"min=1"`
	ConnectBackoffMin  time.Duration `koanf:"connect_backoff_min"`
	ConnectBackoffMax  time.Duration `koanf:"connect_backoff_max"`

	// ReconnectWait is the pause before restarting the receive loop after
	// a mid-loop connection loss. The outer loop never gives up.
	ReconnectWait time.Duration `koanf:"reconnect_wait"`

	// AckWait is how long the broker waits for an ack before redelivery.
	AckWait time.Duration `koanf:"ack_wait"`

	// CloseTimeout bounds graceful shutdown of the subscriber.
	CloseTimeout time.Duration `koanf:"close_timeout"`
}

// DatabaseConfig holds DuckDB settings. Each service owns its own file.
type DatabaseConfig struct {
	Path      string `koanf:"path" validate:"required"`
	MaxMemory string `koanf:"max_memory"`
	Threads   int    `koanf:"threads"`
}

// ServerConfig holds the HTTP read API settings.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port" validate:"min=1,max=65535"`
	Timeout time.Duration `koanf:"timeout"`
}

// SMTPConfig holds outbound mail transport settings (notifier only).
type SMTPConfig struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	From     string `koanf:"from"`
	FromName string `koanf:"from_name"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`
	TLS      bool   `koanf:"tls"`
}

// EmbeddingConfig holds embedding provider settings (recommender only).
// An empty APIKey disables the provider; callers then skip embedding
// generation silently.
type EmbeddingConfig struct {
	APIKey          string        `koanf:"api_key"`
	Endpoint        string        `koanf:"endpoint"`
	Model           string        `koanf:"model"`
	Dimensions      int           `koanf:"dimensions" validate:"min=1"`
	MaxInputChars   int           `koanf:"max_input_chars" validate:"min=1"`
	MaxRetries      int           `koanf:"max_retries" validate:"min=0"`
	RetryBackoff    time.Duration `koanf:"retry_backoff"`
	RetryBackoffMax time.Duration `koanf:"retry_backoff_max"`
	RequestTimeout  time.Duration `koanf:"request_timeout"`

	// RequestsPerSecond throttles outbound provider calls (0 = unlimited).
	RequestsPerSecond float64 `koanf:"requests_per_second"`

	// BreakerEnabled wraps provider calls in a circuit breaker.
	BreakerEnabled bool `koanf:"breaker_enabled"`
}

// NotifierConfig holds notification pipeline settings.
type NotifierConfig struct {
	// DedupWindow is the trailing window within which a repeated
	// fingerprint with a SENT or PENDING outcome is skipped.
	DedupWindow time.Duration `koanf:"dedup_window"`
}

// RecommendConfig holds recommendation query settings.
type RecommendConfig struct {
	// SimilarityThreshold filters out low-similarity results.
	SimilarityThreshold float64 `koanf:"similarity_threshold" validate:"min=0,max=1"`

	DefaultLimit int `koanf:"default_limit" validate:"min=1"`
	MaxLimit     int `koanf:"max_limit" validate:"min=1"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"omitempty,oneof=trace debug info warn warning error fatal disabled"`
	Format string `koanf:"format" validate:"omitempty,oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// Validate checks the configuration for invalid or inconsistent values.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if c.Broker.ConnectBackoffMin > c.Broker.ConnectBackoffMax {
		return fmt.Errorf("broker.connect_backoff_min (%s) exceeds broker.connect_backoff_max (%s)",
			c.Broker.ConnectBackoffMin, c.Broker.ConnectBackoffMax)
	}
	if c.Recommend.DefaultLimit > c.Recommend.MaxLimit {
		return fmt.Errorf("recommend.default_limit (%d) exceeds recommend.max_limit (%d)",
			c.Recommend.DefaultLimit, c.Recommend.MaxLimit)
	}
	if c.SMTP.Host != "" && c.SMTP.From == "" {
		return fmt.Errorf("smtp.from is required when smtp.host is set")
	}
	return nil
}
