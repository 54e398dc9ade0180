// Biblioteka Platform - Event-Driven Library Services
// Copyright 2026 Biblioteka Platform Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/biblioteka/eventsvc

// Package api exposes each service's read model over HTTP.
package api

import (
	"net/http"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/biblioteka/eventsvc/internal/logging"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.Error().Err(err).Msg("Response encoding failed")
	}
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

// queryInt parses an optional integer query parameter, returning def
// when absent or unparsable.
func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

// pathInt64 parses a chi URL parameter as int64.
func pathInt64(raw string) (int64, error) {
	return strconv.ParseInt(raw, 10, 64)
}

// clampLimit bounds a requested page size to [1, max], falling back to
// def when the request omits or mangles it.
func clampLimit(r *http.Request, def, max int) int {
	limit := queryInt(r, "limit", def)
	if limit < 1 {
		limit = def
	}
	if limit > max {
		limit = max
	}
	return limit
}
