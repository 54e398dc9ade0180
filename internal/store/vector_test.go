// Biblioteka Platform - Event-Driven Library Services
// Copyright 2026 Biblioteka Platform Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/biblioteka/eventsvc

package store

import (
	"testing"
)

func TestVectorLiteral(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		vec := []float32{0.5, -1.25, 0, 3.75}
		parsed, err := parseVectorLiteral(vectorLiteral(vec))
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if len(parsed) != len(vec) {
			t.Fatalf("Expected %d elements, got %d", len(vec), len(parsed))
		}
		for i := range vec {
			if parsed[i] != vec[i] {
				t.Errorf("Element %d: expected %f, got %f", i, vec[i], parsed[i])
			}
		}
	})

	t.Run("empty vector", func(t *testing.T) {
		if got := vectorLiteral(nil); got != "[]" {
			t.Errorf("Expected [], got %s", got)
		}
		parsed, err := parseVectorLiteral("[]")
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if parsed != nil {
			t.Errorf("Expected nil for empty literal, got %v", parsed)
		}
	})

	t.Run("not a literal", func(t *testing.T) {
		if _, err := parseVectorLiteral("0.5, 1.0"); err == nil {
			t.Error("Expected error for missing brackets")
		}
	})

	t.Run("bad element", func(t *testing.T) {
		if _, err := parseVectorLiteral("[0.5, oops]"); err == nil {
			t.Error("Expected error for non-numeric element")
		}
	})
}
