// Biblioteka Platform - Event-Driven Library Services
// Copyright 2026 Biblioteka Platform Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/biblioteka/eventsvc

// Package recommender keeps the local book embedding cache and the
// interaction history in sync with catalog events, and answers
// similarity queries over them.
package recommender

import (
	"context"
	"strings"

	"github.com/biblioteka/eventsvc/internal/dispatch"
	"github.com/biblioteka/eventsvc/internal/event"
	"github.com/biblioteka/eventsvc/internal/logging"
	"github.com/biblioteka/eventsvc/internal/store"
)

// interactionKinds maps routing keys to the interaction type recorded
// in the history.
var interactionKinds = map[string]string{
	"loan.borrowed":  "borrow",
	"loan.returned":  "return",
	"rating.created": "rate",
	"favorite.added": "favorite",
}

// Executor applies catalog and interaction events to the local stores.
type Executor struct {
	books        *store.EmbeddingStore
	interactions *store.InteractionStore
	provider     Provider
}

// NewExecutor wires the event side of the recommendation service.
func NewExecutor(books *store.EmbeddingStore, interactions *store.InteractionStore, provider Provider) *Executor {
	return &Executor{
		books:        books,
		interactions: interactions,
		provider:     provider,
	}
}

// Registry returns the routing keys this service binds, each mapped to
// its handler.
func (e *Executor) Registry() *dispatch.Registry {
	r := dispatch.NewRegistry()
	r.Register("book.created", e.handleBookUpsert)
	r.Register("book.updated", e.handleBookUpsert)
	r.Register("book.embedding_updated", e.handleBookUpsert)
	r.Register("book.deleted", e.handleBookDeleted)
	for key, kind := range interactionKinds {
		r.Register(key, e.interactionHandler(kind))
	}
	return r
}

// handleBookUpsert stores the book's descriptive fields and, when the
// event carries text and the provider can serve, regenerates its
// vector. A provider failure keeps the previous vector; the metadata
// update stands either way.
func (e *Executor) handleBookUpsert(ctx context.Context, p event.Payload) error {
	bookID, err := p.RequireInt("book_id")
	if err != nil {
		return err
	}

	rec := &store.EmbeddingRecord{
		ID:          bookID,
		Title:       p.StringOr("title", ""),
		Author:      p.StringOr("author", ""),
		Category:    p.StringOr("category", ""),
		Description: p.StringOr("description", ""),
	}
	if err := e.books.UpsertMetadata(ctx, rec); err != nil {
		return err
	}

	text := strings.TrimSpace(rec.Title + "\n\n" + rec.Description)
	if text == "" || !e.provider.Available() {
		return nil
	}

	vec, err := e.provider.Embed(ctx, text)
	if err != nil {
		logging.Warn().
			Err(err).
			Int64("book_id", bookID).
			Msg("Embedding generation failed, keeping previous vector")
		return nil
	}
	if err := e.books.SetVector(ctx, bookID, vec); err != nil {
		return err
	}

	logging.Info().Int64("book_id", bookID).Msg("Book embedding upserted")
	return nil
}

func (e *Executor) handleBookDeleted(ctx context.Context, p event.Payload) error {
	bookID, err := p.RequireInt("book_id")
	if err != nil {
		return err
	}
	return e.books.Delete(ctx, bookID)
}

// interactionHandler records one user-book interaction of the given
// kind. The rating field is only meaningful on rating events.
func (e *Executor) interactionHandler(kind string) dispatch.HandlerFunc {
	return func(ctx context.Context, p event.Payload) error {
		userID, err := p.RequireInt("user_id")
		if err != nil {
			return err
		}
		bookID, err := p.RequireInt("book_id")
		if err != nil {
			return err
		}

		rec := &store.InteractionRecord{
			UserID:          userID,
			BookID:          bookID,
			InteractionType: kind,
		}
		if kind == "rate" {
			rec.Rating = p.FloatPtr("rating")
		}
		return e.interactions.Append(ctx, rec)
	}
}
