// Biblioteka Platform - Event-Driven Library Services
// Copyright 2026 Biblioteka Platform Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/biblioteka/eventsvc

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths searched for a config file, in order.
// The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/biblioteka/config.yaml",
	"/etc/biblioteka/config.yml",
}

// ConfigPathEnvVar overrides the config file search path.
const ConfigPathEnvVar = "CONFIG_PATH"

// envPrefixes lists the config sections recognized in environment variable
// names. Variables outside these prefixes are ignored.
var envPrefixes = []string{
	"BROKER_", "DATABASE_", "SERVER_", "SMTP_",
	"EMBEDDING_", "NOTIFIER_", "RECOMMEND_", "LOGGING_",
}

// NotifierDefaults returns the default configuration for the notification
// dispatcher service.
func NotifierDefaults() *Config {
	cfg := baseDefaults()
	cfg.Broker.Queue = "notification_service"
	cfg.Database.Path = "/data/notifications.duckdb"
	cfg.Server.Port = 8081
	return cfg
}

// RecommenderDefaults returns the default configuration for the
// recommendation engine service.
func RecommenderDefaults() *Config {
	cfg := baseDefaults()
	cfg.Broker.Queue = "recommendation_service"
	cfg.Database.Path = "/data/recommendations.duckdb"
	cfg.Server.Port = 8082
	return cfg
}

func baseDefaults() *Config {
	return &Config{
		Broker: BrokerConfig{
			URL:                "nats://127.0.0.1:4222",
			EmbeddedServer:     false,
			StoreDir:           "/data/nats/jetstream",
			Exchange:           "biblioteka.events",
			DLQRoutingKey:      "notification.dead",
			MessageTTL:         24 * time.Hour,
			ConnectMaxAttempts: 10,
			ConnectBackoffMin:  2 * time.Second,
			ConnectBackoffMax:  30 * time.Second,
			ReconnectWait:      5 * time.Second,
			AckWait:            30 * time.Second,
			CloseTimeout:       30 * time.Second,
		},
		Database: DatabaseConfig{
			MaxMemory: "1GB",
			Threads:   0, // 0 = runtime.NumCPU()
		},
		Server: ServerConfig{
			Host:    "0.0.0.0",
			Timeout: 30 * time.Second,
		},
		SMTP: SMTPConfig{
			Host:     "",
			Port:     587,
			FromName: "Twoja Biblioteka",
			TLS:      true,
		},
		Embedding: EmbeddingConfig{
			Endpoint:          "https://api.openai.com/v1/embeddings",
			Model:             "text-embedding-3-small",
			Dimensions:        1536,
			MaxInputChars:     8000,
			MaxRetries:        3,
			RetryBackoff:      time.Second,
			RetryBackoffMax:   10 * time.Second,
			RequestTimeout:    30 * time.Second,
			RequestsPerSecond: 5,
			BreakerEnabled:    true,
		},
		Notifier: NotifierConfig{
			DedupWindow: 6 * time.Hour,
		},
		Recommend: RecommendConfig{
			SimilarityThreshold: 0.3,
			DefaultLimit:        10,
			MaxLimit:            50,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Load builds the configuration for a service from layered sources:
// defaults, optional YAML file, then environment variables.
func Load(defaults *Config) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	// SMTP_HOST -> smtp.host, BROKER_CONNECT_MAX_ATTEMPTS -> broker.connect_max_attempts
	if err := k.Load(env.Provider("", ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// envTransform maps an environment variable name to a koanf path.
// The first underscore-delimited segment selects the config section; the
// remainder is the key. Unrecognized variables map to "" and are dropped.
func envTransform(name string) string {
	for _, prefix := range envPrefixes {
		if strings.HasPrefix(name, prefix) {
			section := strings.ToLower(strings.TrimSuffix(prefix, "_"))
			key := strings.ToLower(strings.TrimPrefix(name, prefix))
			return section + "." + key
		}
	}
	return ""
}

// findConfigFile returns the first existing config file path, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
