// Biblioteka Platform - Event-Driven Library Services
// Copyright 2026 Biblioteka Platform Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/biblioteka/eventsvc

package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/biblioteka/eventsvc/internal/config"
	"github.com/biblioteka/eventsvc/internal/metrics"
	"github.com/biblioteka/eventsvc/internal/recommender"
	"github.com/biblioteka/eventsvc/internal/store"
)

// RecommenderRoutes mounts the recommendation query API.
func RecommenderRoutes(engine *recommender.Engine, cfg config.RecommendConfig) func(chi.Router) {
	h := &recommenderHandlers{engine: engine, cfg: cfg}
	return func(r chi.Router) {
		r.Get("/similar/{book_id}", h.similar)
		r.Get("/for-user/{user_id}", h.forUser)
		r.Get("/search", h.search)
	}
}

type recommenderHandlers struct {
	engine *recommender.Engine
	cfg    config.RecommendConfig
}

func (h *recommenderHandlers) limit(r *http.Request) int {
	return clampLimit(r, h.cfg.DefaultLimit, h.cfg.MaxLimit)
}

func (h *recommenderHandlers) similar(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(metrics.RecommendationLatency.WithLabelValues("similar"))
	defer timer.ObserveDuration()

	bookID, err := pathInt64(chi.URLParam(r, "book_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid book_id")
		return
	}

	results, err := h.engine.Similar(r.Context(), bookID, h.limit(r))
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, recommender.ErrNoEmbedding):
		writeError(w, http.StatusNotFound, "Book embedding not found")
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"source_book_id":  bookID,
		"recommendations": results,
	})
}

func (h *recommenderHandlers) forUser(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(metrics.RecommendationLatency.WithLabelValues("for_user"))
	defer timer.ObserveDuration()

	userID, err := pathInt64(chi.URLParam(r, "user_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user_id")
		return
	}

	recs, err := h.engine.ForUser(r.Context(), userID, h.limit(r))
	switch {
	case errors.Is(err, recommender.ErrNoEmbedding):
		writeError(w, http.StatusNotFound, "No embeddings for user's books")
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}

	resp := map[string]any{
		"user_id":  recs.UserID,
		"strategy": recs.Strategy,
	}
	if recs.Strategy == recommender.StrategyPopular {
		resp["recommendations"] = recs.Popular
	} else {
		resp["books_used"] = recs.BooksUsed
		resp["recommendations"] = recs.Similar
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *recommenderHandlers) search(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(metrics.RecommendationLatency.WithLabelValues("semantic_search"))
	defer timer.ObserveDuration()

	query := r.URL.Query().Get("q")
	if len(query) < 2 {
		writeError(w, http.StatusBadRequest, "query must be at least 2 characters")
		return
	}

	results, err := h.engine.Search(r.Context(), query, h.limit(r))
	switch {
	case errors.Is(err, recommender.ErrProviderUnavailable):
		writeError(w, http.StatusServiceUnavailable, "Embedding service unavailable")
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"query":   query,
		"results": results,
	})
}
