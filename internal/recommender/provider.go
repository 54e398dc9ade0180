// Biblioteka Platform - Event-Driven Library Services
// Copyright 2026 Biblioteka Platform Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/biblioteka/eventsvc

package recommender

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/biblioteka/eventsvc/internal/config"
	"github.com/biblioteka/eventsvc/internal/logging"
	"github.com/biblioteka/eventsvc/internal/metrics"
)

// ErrProviderUnavailable is returned when no embedding provider is
// configured or the circuit breaker is open.
var ErrProviderUnavailable = errors.New("embedding provider unavailable")

// Provider turns text into an embedding vector.
type Provider interface {
	// Embed returns the embedding for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Available reports whether the provider can serve requests at all.
	Available() bool
}

// NewProvider builds a provider from configuration. Without an API key
// the returned provider is permanently unavailable and the services
// operate on stale or absent vectors.
func NewProvider(cfg config.EmbeddingConfig) Provider {
	if cfg.APIKey == "" {
		return disabledProvider{}
	}
	return newHTTPProvider(cfg)
}

type disabledProvider struct{}

func (disabledProvider) Embed(context.Context, string) ([]float32, error) {
	return nil, ErrProviderUnavailable
}

func (disabledProvider) Available() bool { return false }

// httpProvider calls an OpenAI-compatible embeddings endpoint with
// bounded retries, client-side rate limiting and an optional circuit
// breaker.
type httpProvider struct {
	cfg     config.EmbeddingConfig
	client  *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[[]float32]
}

func newHTTPProvider(cfg config.EmbeddingConfig) *httpProvider {
	p := &httpProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.RequestTimeout},
	}
	if cfg.RequestsPerSecond > 0 {
		p.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	if cfg.BreakerEnabled {
		p.breaker = gobreaker.NewCircuitBreaker[[]float32](gobreaker.Settings{
			Name:    "embedding-provider",
			Timeout: 30 * time.Second,
		})
	}
	return p
}

func (p *httpProvider) Available() bool { return true }

// Embed requests a vector for the text, truncated to the configured
// input limit. Transient failures are retried with exponential backoff
// up to the configured attempt count.
func (p *httpProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	// Truncate by characters, not bytes, so multi-byte runes in titles
	// are never split into invalid UTF-8.
	if runes := []rune(text); len(runes) > p.cfg.MaxInputChars {
		text = string(runes[:p.cfg.MaxInputChars])
	}

	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	if p.breaker != nil {
		vec, err := p.breaker.Execute(func() ([]float32, error) {
			return p.embedWithRetry(ctx, text)
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
		}
		return vec, err
	}
	return p.embedWithRetry(ctx, text)
}

func (p *httpProvider) embedWithRetry(ctx context.Context, text string) ([]float32, error) {
	backoff := p.cfg.RetryBackoff
	var lastErr error
	for attempt := 0; attempt <= p.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > p.cfg.RetryBackoffMax {
				backoff = p.cfg.RetryBackoffMax
			}
		}

		vec, retryable, err := p.request(ctx, text)
		if err == nil {
			metrics.EmbeddingRequests.WithLabelValues("success").Inc()
			return vec, nil
		}
		lastErr = err
		metrics.EmbeddingRequests.WithLabelValues("failure").Inc()
		if !retryable {
			break
		}
		logging.Warn().
			Err(err).
			Int("attempt", attempt+1).
			Msg("Embedding request failed")
	}
	return nil, lastErr
}

type embeddingRequest struct {
	Input string `json:"input"`
	Model string `json:"model"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// request performs one API call. The second return reports whether the
// failure is worth retrying.
func (p *httpProvider) request(ctx context.Context, text string) ([]float32, bool, error) {
	body, err := json.Marshal(embeddingRequest{Input: text, Model: p.cfg.Model})
	if err != nil {
		return nil, false, fmt.Errorf("marshal embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, false, fmt.Errorf("build embedding request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("embedding request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		return nil, retryable, fmt.Errorf("embedding request returned %d: %s", resp.StatusCode, snippet)
	}

	var parsed embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, false, fmt.Errorf("decode embedding response: %w", err)
	}
	if len(parsed.Data) == 0 || len(parsed.Data[0].Embedding) == 0 {
		return nil, false, fmt.Errorf("embedding response contains no vector")
	}

	vec := parsed.Data[0].Embedding
	if p.cfg.Dimensions > 0 && len(vec) != p.cfg.Dimensions {
		return nil, false, fmt.Errorf("embedding has %d dimensions, expected %d", len(vec), p.cfg.Dimensions)
	}
	return vec, false, nil
}
