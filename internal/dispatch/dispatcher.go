// Biblioteka Platform - Event-Driven Library Services
// Copyright 2026 Biblioteka Platform Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/biblioteka/eventsvc

// Package dispatch routes received integration events to registered
// handlers and converts handler outcomes into broker decisions.
//
// A Registry is built at startup with one handler per routing key and
// handed to the Dispatcher. Dispatch never panics and never returns an
// error: every outcome is expressed as an Ack or DeadLetter decision for
// the broker connector to carry out.
package dispatch

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/biblioteka/eventsvc/internal/event"
	"github.com/biblioteka/eventsvc/internal/logging"
)

// Decision tells the broker connector what to do with a delivered message.
type Decision int

const (
	// Ack acknowledges the message; it is removed from the queue.
	Ack Decision = iota

	// DeadLetter rejects the message without requeue, sending it to the
	// dead-letter queue.
	DeadLetter
)

// String returns the decision name for logging.
func (d Decision) String() string {
	switch d {
	case Ack:
		return "ack"
	case DeadLetter:
		return "dead_letter"
	default:
		return "unknown"
	}
}

// HandlerFunc processes one integration event.
// A returned error is an unexpected fault: the message is dead-lettered.
// Expected failures (a rejected email, a provider outage already recorded
// in the outcome log) are handled inside the handler and return nil.
type HandlerFunc func(ctx context.Context, payload event.Payload) error

// Registry maps exact routing keys to handlers. It is constructed once at
// startup and not mutated afterwards.
type Registry struct {
	handlers map[string]HandlerFunc
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]HandlerFunc)}
}

// Register binds a handler to a routing key, replacing any previous one.
func (r *Registry) Register(routingKey string, h HandlerFunc) {
	r.handlers[routingKey] = h
}

// Keys returns the registered routing keys in sorted order. The broker
// connector binds the queue to exactly these keys.
func (r *Registry) Keys() []string {
	keys := make([]string, 0, len(r.handlers))
	for k := range r.handlers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// lookup returns the handler for a routing key, if any.
func (r *Registry) lookup(routingKey string) (HandlerFunc, bool) {
	h, ok := r.handlers[routingKey]
	return h, ok
}

// Instrumentation carries the per-service Prometheus collectors the
// dispatcher updates. Nil fields are skipped.
type Instrumentation struct {
	Received  *prometheus.CounterVec   // labeled event_type
	Processed *prometheus.CounterVec   // labeled event_type
	Failed    *prometheus.CounterVec   // labeled event_type
	Duration  *prometheus.HistogramVec // labeled event_type
}

// Dispatcher routes messages to handlers and maps outcomes to decisions.
type Dispatcher struct {
	registry *Registry
	metrics  Instrumentation
}

// NewDispatcher creates a dispatcher over the given registry.
func NewDispatcher(registry *Registry, metrics Instrumentation) *Dispatcher {
	return &Dispatcher{registry: registry, metrics: metrics}
}

// Registry returns the dispatcher's handler registry.
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// Dispatch processes one delivered message and returns the broker decision.
//
// Unknown routing keys are acknowledged without side effects; unparseable
// bodies and handler faults are dead-lettered. No fault propagates to the
// caller.
func (d *Dispatcher) Dispatch(ctx context.Context, routingKey string, body []byte) Decision {
	d.inc(d.metrics.Received, routingKey)

	payload, err := event.ParsePayload(body)
	if err != nil {
		logging.Warn().Err(err).Str("routing_key", routingKey).Msg("Rejecting unparseable message")
		d.inc(d.metrics.Failed, routingKey)
		return DeadLetter
	}

	handler, ok := d.registry.lookup(routingKey)
	if !ok {
		logging.Warn().Str("routing_key", routingKey).Msg("No handler for event type")
		d.inc(d.metrics.Processed, routingKey)
		return Ack
	}

	start := time.Now()
	err = d.invoke(ctx, handler, payload)
	elapsed := time.Since(start)

	if d.metrics.Duration != nil {
		d.metrics.Duration.WithLabelValues(routingKey).Observe(elapsed.Seconds())
	}

	if err != nil {
		logging.Error().Err(err).
			Str("routing_key", routingKey).
			Dur("elapsed", elapsed).
			Msg("Failed to process event")
		d.inc(d.metrics.Failed, routingKey)
		return DeadLetter
	}

	logging.Debug().
		Str("routing_key", routingKey).
		Dur("elapsed", elapsed).
		Msg("Event processed")
	d.inc(d.metrics.Processed, routingKey)
	return Ack
}

// invoke runs the handler, converting panics into errors so a poison
// message cannot take down the receive loop.
func (d *Dispatcher) invoke(ctx context.Context, handler HandlerFunc, payload event.Payload) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return handler(ctx, payload)
}

func (d *Dispatcher) inc(c *prometheus.CounterVec, routingKey string) {
	if c != nil {
		c.WithLabelValues(routingKey).Inc()
	}
}
