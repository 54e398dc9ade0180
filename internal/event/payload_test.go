// Biblioteka Platform - Event-Driven Library Services
// Copyright 2026 Biblioteka Platform Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/biblioteka/eventsvc

package event

import (
	"errors"
	"testing"
)

func TestParsePayload(t *testing.T) {
	t.Run("valid object", func(t *testing.T) {
		p, err := ParsePayload([]byte(`{"loan_id": 42, "user_email": "a@b.com"}`))
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if n, ok := p.Int("loan_id"); !ok || n != 42 {
			t.Errorf("Expected loan_id=42, got %d (ok=%v)", n, ok)
		}
	})

	t.Run("malformed body", func(t *testing.T) {
		_, err := ParsePayload([]byte(`{not json`))
		if !errors.Is(err, ErrMalformed) {
			t.Errorf("Expected ErrMalformed, got %v", err)
		}
	})

	t.Run("null body", func(t *testing.T) {
		_, err := ParsePayload([]byte(`null`))
		if !errors.Is(err, ErrMalformed) {
			t.Errorf("Expected ErrMalformed for null, got %v", err)
		}
	})
}

func TestPayloadAccessors(t *testing.T) {
	p, err := ParsePayload([]byte(`{
		"loan_id": 42,
		"days_late": 3,
		"rating": 4.5,
		"user_name": "Anna",
		"due_date": "2024-06-01"
	}`))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	t.Run("require int present", func(t *testing.T) {
		n, err := p.RequireInt("loan_id")
		if err != nil || n != 42 {
			t.Errorf("Expected 42, got %d (err=%v)", n, err)
		}
	})

	t.Run("require int missing", func(t *testing.T) {
		if _, err := p.RequireInt("fine_id"); err == nil {
			t.Error("Expected error for missing field")
		}
	})

	t.Run("require int non-integral", func(t *testing.T) {
		if _, err := p.RequireInt("rating"); err == nil {
			t.Error("Expected error for non-integral value")
		}
	})

	t.Run("string fallback", func(t *testing.T) {
		if got := p.StringOr("user_name", "Czytelniku"); got != "Anna" {
			t.Errorf("Expected Anna, got %s", got)
		}
		if got := p.StringOr("book_title", ""); got != "" {
			t.Errorf("Expected empty fallback, got %s", got)
		}
	})

	t.Run("int fallback", func(t *testing.T) {
		if got := p.IntOr("days_late", 1); got != 3 {
			t.Errorf("Expected 3, got %d", got)
		}
		if got := p.IntOr("missing", 1); got != 1 {
			t.Errorf("Expected fallback 1, got %d", got)
		}
	})

	t.Run("float pointer", func(t *testing.T) {
		if r := p.FloatPtr("rating"); r == nil || *r != 4.5 {
			t.Errorf("Expected rating pointer to 4.5, got %v", r)
		}
		if r := p.FloatPtr("missing"); r != nil {
			t.Errorf("Expected nil for missing rating, got %v", r)
		}
	})

	t.Run("raw round trip", func(t *testing.T) {
		raw := p.Raw()
		decoded, err := ParsePayload(raw)
		if err != nil {
			t.Fatalf("Raw() produced unparseable JSON: %v", err)
		}
		if got := decoded.StringOr("due_date", ""); got != "2024-06-01" {
			t.Errorf("Expected due_date to survive round trip, got %s", got)
		}
	})
}
