// Biblioteka Platform - Event-Driven Library Services
// Copyright 2026 Biblioteka Platform Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/biblioteka/eventsvc

package broker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/biblioteka/eventsvc/internal/config"
)

type stopRecorder struct {
	once    sync.Once
	stopped chan struct{}
}

func newStopRecorder() *stopRecorder {
	return &stopRecorder{stopped: make(chan struct{})}
}

func (r *stopRecorder) Stop() {
	r.once.Do(func() { close(r.stopped) })
}

func (r *stopRecorder) wasStopped() bool {
	select {
	case <-r.stopped:
		return true
	default:
		return false
	}
}

func TestIteratorWatcher(t *testing.T) {
	newWatcher := func(t *testing.T, c *Connector, ctx context.Context) (*stopRecorder, chan struct{}, chan struct{}) {
		t.Helper()
		rec := newStopRecorder()
		done := make(chan struct{})
		exited := make(chan struct{})
		go func() {
			c.stopIteratorOn(ctx, done, rec)
			close(exited)
		}()
		return rec, done, exited
	}

	waitExit := func(t *testing.T, exited chan struct{}) {
		t.Helper()
		select {
		case <-exited:
		case <-time.After(5 * time.Second):
			t.Fatal("watcher goroutine did not exit")
		}
	}

	t.Run("exits when the consume cycle ends", func(t *testing.T) {
		c := NewConnector(config.BrokerConfig{}, testTopology())
		rec, done, exited := newWatcher(t, c, context.Background())

		close(done)
		waitExit(t, exited)
		if rec.wasStopped() {
			t.Error("iterator stopped on normal cycle end")
		}
	})

	t.Run("stops the iterator on connector stop", func(t *testing.T) {
		c := NewConnector(config.BrokerConfig{}, testTopology())
		rec, _, exited := newWatcher(t, c, context.Background())

		c.Stop()
		waitExit(t, exited)
		if !rec.wasStopped() {
			t.Error("iterator not stopped after connector stop")
		}
	})

	t.Run("stops the iterator on context cancellation", func(t *testing.T) {
		c := NewConnector(config.BrokerConfig{}, testTopology())
		ctx, cancel := context.WithCancel(context.Background())
		rec, _, exited := newWatcher(t, c, ctx)

		cancel()
		waitExit(t, exited)
		if !rec.wasStopped() {
			t.Error("iterator not stopped after context cancellation")
		}
	})
}
