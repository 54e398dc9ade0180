// Biblioteka Platform - Event-Driven Library Services
// Copyright 2026 Biblioteka Platform Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/biblioteka/eventsvc

// Package broker manages the durable connection to the message broker.
//
// The platform's AMQP-style topology is mapped onto NATS JetStream:
//
//   - The topic exchange ("biblioteka.events") is a subject prefix backed
//     by one durable stream; a routing key is the subject suffix beneath
//     it ("biblioteka.events.loan.borrowed").
//   - A service's queue is a durable pull consumer on that stream,
//     filtered to the routing keys the service binds, with at most one
//     unacknowledged message in flight (prefetch 1).
//   - The dead-letter exchange ("biblioteka.events.dlx") is a second
//     stream; rejecting a message without requeue publishes it there
//     under the configured dead-letter routing key and acknowledges the
//     original.
//
// The primary stream carries a maximum message age equal to the queue
// message TTL.
package broker

import (
	"strings"
	"time"
)

// Topology names the broker resources a service declares and binds.
type Topology struct {
	// Exchange is the topic exchange name and subject prefix.
	Exchange string

	// Queue is the service's durable queue (consumer) name.
	Queue string

	// RoutingKeys are the keys the queue is bound to.
	RoutingKeys []string

	// DLQRoutingKey is the routing key used on the dead-letter exchange.
	DLQRoutingKey string

	// MessageTTL is the maximum message lifetime on the primary queue.
	MessageTTL time.Duration
}

// StreamName returns the JetStream stream backing the exchange.
// Stream names cannot contain dots.
func (t Topology) StreamName() string {
	return streamNameFor(t.Exchange)
}

// DLXName returns the dead-letter exchange name.
func (t Topology) DLXName() string {
	return t.Exchange + ".dlx"
}

// DLXStreamName returns the JetStream stream backing the dead-letter
// exchange.
func (t Topology) DLXStreamName() string {
	return streamNameFor(t.DLXName())
}

// DLQName returns the service's dead-letter queue (consumer) name.
func (t Topology) DLQName() string {
	return t.Queue + "_dlq"
}

// Subject returns the full subject for a routing key.
func (t Topology) Subject(routingKey string) string {
	return t.Exchange + "." + routingKey
}

// DeadLetterSubject returns the subject dead-lettered messages are
// published to.
func (t Topology) DeadLetterSubject() string {
	return t.DLXName() + "." + t.DLQRoutingKey
}

// FilterSubjects returns the concrete subjects the queue consumer binds.
func (t Topology) FilterSubjects() []string {
	subjects := make([]string, len(t.RoutingKeys))
	for i, key := range t.RoutingKeys {
		subjects[i] = t.Subject(key)
	}
	return subjects
}

// RoutingKey recovers the routing key from a concrete subject, or ""
// when the subject does not belong to the exchange.
func (t Topology) RoutingKey(subject string) string {
	prefix := t.Exchange + "."
	if !strings.HasPrefix(subject, prefix) {
		return ""
	}
	return strings.TrimPrefix(subject, prefix)
}

func streamNameFor(exchange string) string {
	return strings.ToUpper(strings.ReplaceAll(exchange, ".", "_"))
}
