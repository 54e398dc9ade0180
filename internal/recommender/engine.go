// Biblioteka Platform - Event-Driven Library Services
// Copyright 2026 Biblioteka Platform Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/biblioteka/eventsvc

package recommender

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/biblioteka/eventsvc/internal/store"
)

// ErrNoEmbedding is returned when the requested book has no vector yet,
// or none of a user's books do.
var ErrNoEmbedding = errors.New("no embedding available")

// Strategies reported by ForUser.
const (
	StrategyPopular      = "popular"
	StrategyContentBased = "content_based"
)

// UserRecommendations is the result of a personalized query. Exactly one
// of Popular and Similar is set, per Strategy.
type UserRecommendations struct {
	UserID    int64
	Strategy  string
	BooksUsed int
	Popular   []store.PopularBook
	Similar   []store.SimilarBook
}

// Engine answers recommendation queries over the embedding cache and
// interaction history.
type Engine struct {
	books        *store.EmbeddingStore
	interactions *store.InteractionStore
	provider     Provider
	threshold    float64
}

// NewEngine wires the query side of the recommendation service.
// Results scoring below threshold are dropped.
func NewEngine(books *store.EmbeddingStore, interactions *store.InteractionStore, provider Provider, threshold float64) *Engine {
	return &Engine{
		books:        books,
		interactions: interactions,
		provider:     provider,
		threshold:    threshold,
	}
}

// Similar returns the books nearest to the given book by cosine
// similarity, excluding the book itself.
func (e *Engine) Similar(ctx context.Context, bookID int64, limit int) ([]store.SimilarBook, error) {
	rec, err := e.books.Get(ctx, bookID)
	if err != nil {
		return nil, err
	}
	if len(rec.Embedding) == 0 {
		return nil, fmt.Errorf("book %d: %w", bookID, ErrNoEmbedding)
	}

	results, err := e.books.SimilarToVector(ctx, rec.Embedding, []int64{bookID}, limit)
	if err != nil {
		return nil, err
	}
	return e.filter(results), nil
}

// ForUser returns personalized recommendations. Users without any
// interaction history get globally popular books; users with history
// get books nearest to the centroid of the embeddings of the books they
// interacted with, excluding those books.
func (e *Engine) ForUser(ctx context.Context, userID int64, limit int) (*UserRecommendations, error) {
	bookIDs, err := e.interactions.BookIDsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	if len(bookIDs) == 0 {
		popular, err := e.books.Popular(ctx, limit)
		if err != nil {
			return nil, err
		}
		return &UserRecommendations{
			UserID:   userID,
			Strategy: StrategyPopular,
			Popular:  popular,
		}, nil
	}

	vectors, err := e.books.VectorsByIDs(ctx, bookIDs)
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("user %d: %w", userID, ErrNoEmbedding)
	}

	results, err := e.books.SimilarToVector(ctx, centroid(vectors), bookIDs, limit)
	if err != nil {
		return nil, err
	}
	return &UserRecommendations{
		UserID:    userID,
		Strategy:  StrategyContentBased,
		BooksUsed: len(vectors),
		Similar:   e.filter(results),
	}, nil
}

// Search embeds the query text and returns the nearest books. It fails
// with ErrProviderUnavailable when no embedding provider is configured.
func (e *Engine) Search(ctx context.Context, query string, limit int) ([]store.SimilarBook, error) {
	if !e.provider.Available() {
		return nil, ErrProviderUnavailable
	}
	vec, err := e.provider.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	results, err := e.books.SimilarToVector(ctx, vec, nil, limit)
	if err != nil {
		return nil, err
	}
	return e.filter(results), nil
}

// filter drops results under the similarity threshold and rounds
// similarities to four decimal places.
func (e *Engine) filter(results []store.SimilarBook) []store.SimilarBook {
	filtered := make([]store.SimilarBook, 0, len(results))
	for _, r := range results {
		if r.Similarity < e.threshold {
			continue
		}
		r.Similarity = math.Round(r.Similarity*10000) / 10000
		filtered = append(filtered, r)
	}
	return filtered
}

// centroid averages a set of equal-length vectors.
func centroid(vectors [][]float32) []float32 {
	if len(vectors) == 0 {
		return nil
	}
	sum := make([]float64, len(vectors[0]))
	for _, vec := range vectors {
		for i, v := range vec {
			sum[i] += float64(v)
		}
	}
	out := make([]float32, len(sum))
	for i, v := range sum {
		out[i] = float32(v / float64(len(vectors)))
	}
	return out
}
