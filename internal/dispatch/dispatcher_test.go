// Biblioteka Platform - Event-Driven Library Services
// Copyright 2026 Biblioteka Platform Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/biblioteka/eventsvc

package dispatch

import (
	"context"
	"errors"
	"testing"

	"github.com/biblioteka/eventsvc/internal/event"
)

func TestDispatch(t *testing.T) {
	ctx := context.Background()

	t.Run("known key invokes handler and acks", func(t *testing.T) {
		registry := NewRegistry()
		var got event.Payload
		registry.Register("loan.borrowed", func(_ context.Context, p event.Payload) error {
			got = p
			return nil
		})
		d := NewDispatcher(registry, Instrumentation{})

		decision := d.Dispatch(ctx, "loan.borrowed", []byte(`{"loan_id": 7}`))
		if decision != Ack {
			t.Errorf("Expected Ack, got %s", decision)
		}
		if got == nil {
			t.Fatal("Handler was not invoked")
		}
		if n, _ := got.Int("loan_id"); n != 7 {
			t.Errorf("Expected loan_id=7, got %d", n)
		}
	})

	t.Run("unknown key acks without side effect", func(t *testing.T) {
		registry := NewRegistry()
		invoked := false
		registry.Register("loan.borrowed", func(context.Context, event.Payload) error {
			invoked = true
			return nil
		})
		d := NewDispatcher(registry, Instrumentation{})

		decision := d.Dispatch(ctx, "loan.unknown", []byte(`{}`))
		if decision != Ack {
			t.Errorf("Expected Ack for unknown key, got %s", decision)
		}
		if invoked {
			t.Error("Handler must not run for an unknown key")
		}
	})

	t.Run("malformed body dead-letters", func(t *testing.T) {
		registry := NewRegistry()
		invoked := false
		registry.Register("loan.borrowed", func(context.Context, event.Payload) error {
			invoked = true
			return nil
		})
		d := NewDispatcher(registry, Instrumentation{})

		decision := d.Dispatch(ctx, "loan.borrowed", []byte(`{broken`))
		if decision != DeadLetter {
			t.Errorf("Expected DeadLetter for malformed body, got %s", decision)
		}
		if invoked {
			t.Error("Handler must not run for a malformed body")
		}
	})

	t.Run("handler error dead-letters", func(t *testing.T) {
		registry := NewRegistry()
		registry.Register("fine.created", func(context.Context, event.Payload) error {
			return errors.New("database unavailable")
		})
		d := NewDispatcher(registry, Instrumentation{})

		decision := d.Dispatch(ctx, "fine.created", []byte(`{"fine_id": 1}`))
		if decision != DeadLetter {
			t.Errorf("Expected DeadLetter on handler error, got %s", decision)
		}
	})

	t.Run("handler panic dead-letters without crashing", func(t *testing.T) {
		registry := NewRegistry()
		registry.Register("user.blocked", func(context.Context, event.Payload) error {
			panic("boom")
		})
		d := NewDispatcher(registry, Instrumentation{})

		decision := d.Dispatch(ctx, "user.blocked", []byte(`{"user_id": 1}`))
		if decision != DeadLetter {
			t.Errorf("Expected DeadLetter on panic, got %s", decision)
		}
	})
}

func TestRegistryKeys(t *testing.T) {
	registry := NewRegistry()
	registry.Register("reservation.created", nil)
	registry.Register("loan.borrowed", nil)
	registry.Register("fine.created", nil)

	keys := registry.Keys()
	want := []string{"fine.created", "loan.borrowed", "reservation.created"}
	if len(keys) != len(want) {
		t.Fatalf("Expected %d keys, got %d", len(want), len(keys))
	}
	for i, k := range want {
		if keys[i] != k {
			t.Errorf("Expected keys[%d]=%s, got %s", i, k, keys[i])
		}
	}
}
