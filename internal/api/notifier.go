// Biblioteka Platform - Event-Driven Library Services
// Copyright 2026 Biblioteka Platform Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/biblioteka/eventsvc

package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/biblioteka/eventsvc/internal/store"
)

// NotifierRoutes mounts the notification log read API.
func NotifierRoutes(log *store.OutcomeLog) func(chi.Router) {
	h := &notifierHandlers{log: log}
	return func(r chi.Router) {
		r.Get("/logs", h.listLogs)
		r.Get("/stats", h.stats)
	}
}

type notifierHandlers struct {
	log *store.OutcomeLog
}

// listLogs returns notification outcomes newest first, optionally
// filtered by user, event type, or status.
func (h *notifierHandlers) listLogs(w http.ResponseWriter, r *http.Request) {
	filter := store.OutcomeFilter{
		EventKind: r.URL.Query().Get("type"),
		Status:    strings.ToUpper(r.URL.Query().Get("status")),
		Limit:     clampLimit(r, 50, 200),
		Offset:    queryInt(r, "offset", 0),
	}
	if raw := r.URL.Query().Get("user_id"); raw != "" {
		userID, err := pathInt64(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid user_id")
			return
		}
		filter.UserID = userID
	}

	items, total, err := h.log.List(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"total": total,
		"items": items,
	})
}

// stats returns per-status counts plus the overall total.
func (h *notifierHandlers) stats(w http.ResponseWriter, r *http.Request) {
	counts, err := h.log.StatusCounts(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}

	var total int64
	result := make(map[string]int64, len(counts)+1)
	for status, count := range counts {
		result[status] = count
		total += count
	}
	result["total"] = total
	writeJSON(w, http.StatusOK, result)
}
