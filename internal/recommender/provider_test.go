// Biblioteka Platform - Event-Driven Library Services
// Copyright 2026 Biblioteka Platform Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/biblioteka/eventsvc

package recommender

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/goccy/go-json"

	"github.com/biblioteka/eventsvc/internal/config"
)

func providerConfig(endpoint string) config.EmbeddingConfig {
	return config.EmbeddingConfig{
		APIKey:          "test-key",
		Endpoint:        endpoint,
		Model:           "text-embedding-3-small",
		Dimensions:      3,
		MaxInputChars:   8000,
		MaxRetries:      2,
		RetryBackoff:    time.Millisecond,
		RetryBackoffMax: 5 * time.Millisecond,
		RequestTimeout:  time.Second,
	}
}

func writeEmbedding(w http.ResponseWriter, vec []float32) {
	resp := embeddingResponse{}
	resp.Data = append(resp.Data, struct {
		Embedding []float32 `json:"embedding"`
	}{vec})
	_ = json.NewEncoder(w).Encode(resp)
}

func embeddingHandler(t *testing.T, vec []float32) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		var req embeddingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Model != "text-embedding-3-small" {
			t.Errorf("model = %q", req.Model)
		}
		writeEmbedding(w, vec)
	}
}

func TestProviderEmbed(t *testing.T) {
	t.Run("returns vector", func(t *testing.T) {
		srv := httptest.NewServer(embeddingHandler(t, []float32{0.1, 0.2, 0.3}))
		defer srv.Close()

		p := NewProvider(providerConfig(srv.URL))
		vec, err := p.Embed(context.Background(), "Lalka")
		if err != nil {
			t.Fatalf("Embed() error = %v", err)
		}
		if len(vec) != 3 {
			t.Fatalf("len(vec) = %d, want 3", len(vec))
		}
	})

	t.Run("truncates long input on rune boundaries", func(t *testing.T) {
		var mu sync.Mutex
		var gotInput string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var req embeddingRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Errorf("decode request: %v", err)
			}
			mu.Lock()
			gotInput = req.Input
			mu.Unlock()
			writeEmbedding(w, []float32{0, 0, 0})
		}))
		defer srv.Close()

		cfg := providerConfig(srv.URL)
		cfg.MaxInputChars = 10
		p := NewProvider(cfg)
		if _, err := p.Embed(context.Background(), strings.Repeat("ż", 24)); err != nil {
			t.Fatalf("Embed() error = %v", err)
		}

		mu.Lock()
		defer mu.Unlock()
		if !utf8.ValidString(gotInput) {
			t.Errorf("input is not valid UTF-8: %q", gotInput)
		}
		if got := utf8.RuneCountInString(gotInput); got != 10 {
			t.Errorf("input length = %d runes, want 10", got)
		}
		if want := strings.Repeat("ż", 10); gotInput != want {
			t.Errorf("input = %q, want %q", gotInput, want)
		}
	})

	t.Run("retries server errors", func(t *testing.T) {
		var calls atomic.Int64
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) < 3 {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			embeddingHandler(t, []float32{0.5, 0.5, 0.5})(w, r)
		}))
		defer srv.Close()

		p := NewProvider(providerConfig(srv.URL))
		if _, err := p.Embed(context.Background(), "text"); err != nil {
			t.Fatalf("Embed() error = %v", err)
		}
		if calls.Load() != 3 {
			t.Errorf("calls = %d, want 3", calls.Load())
		}
	})

	t.Run("does not retry client errors", func(t *testing.T) {
		var calls atomic.Int64
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer srv.Close()

		p := NewProvider(providerConfig(srv.URL))
		if _, err := p.Embed(context.Background(), "text"); err == nil {
			t.Fatal("expected error")
		}
		if calls.Load() != 1 {
			t.Errorf("calls = %d, want 1", calls.Load())
		}
	})

	t.Run("rejects wrong dimensions", func(t *testing.T) {
		srv := httptest.NewServer(embeddingHandler(t, []float32{0.1, 0.2}))
		defer srv.Close()

		p := NewProvider(providerConfig(srv.URL))
		if _, err := p.Embed(context.Background(), "text"); err == nil {
			t.Fatal("expected dimension mismatch error")
		}
	})
}

func TestDisabledProvider(t *testing.T) {
	p := NewProvider(config.EmbeddingConfig{})
	if p.Available() {
		t.Error("provider without API key reports available")
	}
	if _, err := p.Embed(context.Background(), "text"); !errors.Is(err, ErrProviderUnavailable) {
		t.Errorf("Embed() error = %v, want ErrProviderUnavailable", err)
	}
}

func TestCentroid(t *testing.T) {
	t.Run("averages vectors", func(t *testing.T) {
		got := centroid([][]float32{{1, 2}, {3, 4}})
		want := []float32{2, 3}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("centroid[%d] = %f, want %f", i, got[i], want[i])
			}
		}
	})

	t.Run("empty input", func(t *testing.T) {
		if got := centroid(nil); got != nil {
			t.Errorf("centroid(nil) = %v, want nil", got)
		}
	})
}
