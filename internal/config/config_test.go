// Biblioteka Platform - Event-Driven Library Services
// Copyright 2026 Biblioteka Platform Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/biblioteka/eventsvc

package config

import (
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	t.Run("notifier", func(t *testing.T) {
		cfg := NotifierDefaults()
		if cfg.Broker.Queue != "notification_service" {
			t.Errorf("Expected queue notification_service, got %s", cfg.Broker.Queue)
		}
		if cfg.Broker.Exchange != "biblioteka.events" {
			t.Errorf("Expected exchange biblioteka.events, got %s", cfg.Broker.Exchange)
		}
		if cfg.Notifier.DedupWindow != 6*time.Hour {
			t.Errorf("Expected 6h dedup window, got %s", cfg.Notifier.DedupWindow)
		}
		if cfg.Broker.MessageTTL != 24*time.Hour {
			t.Errorf("Expected 24h message TTL, got %s", cfg.Broker.MessageTTL)
		}
		if err := cfg.Validate(); err != nil {
			t.Fatalf("Default notifier config should validate: %v", err)
		}
	})

	t.Run("recommender", func(t *testing.T) {
		cfg := RecommenderDefaults()
		if cfg.Broker.Queue != "recommendation_service" {
			t.Errorf("Expected queue recommendation_service, got %s", cfg.Broker.Queue)
		}
		if cfg.Embedding.MaxInputChars != 8000 {
			t.Errorf("Expected 8000 max input chars, got %d", cfg.Embedding.MaxInputChars)
		}
		if cfg.Embedding.Dimensions != 1536 {
			t.Errorf("Expected 1536 dimensions, got %d", cfg.Embedding.Dimensions)
		}
		if err := cfg.Validate(); err != nil {
			t.Fatalf("Default recommender config should validate: %v", err)
		}
	})
}

func TestEnvTransform(t *testing.T) {
	cases := []struct {
		name string
		env  string
		want string
	}{
		{"smtp host", "SMTP_HOST", "smtp.host"},
		{"broker url", "BROKER_URL", "broker.url"},
		{"multi-word key", "BROKER_CONNECT_MAX_ATTEMPTS", "broker.connect_max_attempts"},
		{"embedding api key", "EMBEDDING_API_KEY", "embedding.api_key"},
		{"notifier dedup window", "NOTIFIER_DEDUP_WINDOW", "notifier.dedup_window"},
		{"unrelated variable", "PATH", ""},
		{"unrelated with underscore", "XDG_CONFIG_HOME", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := envTransform(tc.env); got != tc.want {
				t.Errorf("envTransform(%q) = %q, want %q", tc.env, got, tc.want)
			}
		})
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("SMTP_HOST", "mail.example.com")
	t.Setenv("SMTP_FROM", "biblioteka@example.com")
	t.Setenv("BROKER_RECONNECT_WAIT", "10s")

	cfg, err := Load(NotifierDefaults())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.SMTP.Host != "mail.example.com" {
		t.Errorf("Expected SMTP host override, got %s", cfg.SMTP.Host)
	}
	if cfg.Broker.ReconnectWait != 10*time.Second {
		t.Errorf("Expected reconnect wait 10s, got %s", cfg.Broker.ReconnectWait)
	}
}

func TestValidate(t *testing.T) {
	t.Run("backoff ordering", func(t *testing.T) {
		cfg := NotifierDefaults()
		cfg.Broker.ConnectBackoffMin = time.Minute
		cfg.Broker.ConnectBackoffMax = time.Second
		if err := cfg.Validate(); err == nil {
			t.Error("Expected error for inverted backoff bounds")
		}
	})

	t.Run("smtp from required with host", func(t *testing.T) {
		cfg := NotifierDefaults()
		cfg.SMTP.Host = "mail.example.com"
		cfg.SMTP.From = ""
		if err := cfg.Validate(); err == nil {
			t.Error("Expected error for missing smtp.from")
		}
	})

	t.Run("limit ordering", func(t *testing.T) {
		cfg := RecommenderDefaults()
		cfg.Recommend.DefaultLimit = 100
		cfg.Recommend.MaxLimit = 50
		if err := cfg.Validate(); err == nil {
			t.Error("Expected error for default_limit above max_limit")
		}
	})

	t.Run("missing queue", func(t *testing.T) {
		cfg := NotifierDefaults()
		cfg.Broker.Queue = ""
		if err := cfg.Validate(); err == nil {
			t.Error("Expected error for missing broker.queue")
		}
	})
}
