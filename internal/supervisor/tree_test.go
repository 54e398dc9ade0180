// Biblioteka Platform - Event-Driven Library Services
// Copyright 2026 Biblioteka Platform Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/biblioteka/eventsvc

package supervisor

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestTreeRunsServices(t *testing.T) {
	tree := NewTree("test", testLogger(), DefaultTreeConfig())

	var started atomic.Int64
	for _, layer := range []func(svc *Service){
		func(svc *Service) { tree.AddBrokerService(svc) },
		func(svc *Service) { tree.AddAPIService(svc) },
	} {
		layer(NewService("probe", func(ctx context.Context) error {
			started.Add(1)
			<-ctx.Done()
			return ctx.Err()
		}))
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tree.Serve(ctx) }()

	deadline := time.After(5 * time.Second)
	for started.Load() < 2 {
		select {
		case <-deadline:
			t.Fatalf("only %d services started", started.Load())
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("tree did not stop after cancellation")
	}
}

func TestTreeRestartsFailedService(t *testing.T) {
	cfg := DefaultTreeConfig()
	cfg.FailureBackoff = 10 * time.Millisecond
	tree := NewTree("test", testLogger(), cfg)

	var runs atomic.Int64
	tree.AddBrokerService(NewService("flaky", func(ctx context.Context) error {
		if runs.Add(1) == 1 {
			return io.ErrUnexpectedEOF
		}
		<-ctx.Done()
		return ctx.Err()
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- tree.Serve(ctx) }()

	deadline := time.After(4 * time.Second)
	for runs.Load() < 2 {
		select {
		case <-deadline:
			t.Fatalf("service ran %d times, want restart", runs.Load())
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	<-done
}

func TestServiceName(t *testing.T) {
	svc := NewService("consumer-loop", func(context.Context) error { return nil })
	if svc.String() != "consumer-loop" {
		t.Errorf("String() = %q", svc.String())
	}
}
