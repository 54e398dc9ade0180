// Biblioteka Platform - Event-Driven Library Services
// Copyright 2026 Biblioteka Platform Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/biblioteka/eventsvc

// Package metrics provides Prometheus instrumentation for the event
// pipeline and read APIs. Collectors are registered on the default
// registry via promauto and served on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Notification pipeline

	NotificationEventsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_events_received_total",
			Help: "Total integration events received from the broker",
		},
		[]string{"event_type"},
	)

	NotificationEventsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_events_processed_total",
			Help: "Total integration events successfully processed",
		},
		[]string{"event_type"},
	)

	NotificationEventsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_events_failed_total",
			Help: "Total integration events that failed processing",
		},
		[]string{"event_type"},
	)

	NotificationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "notification_processing_seconds",
			Help:    "Time spent processing a notification event",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"event_type"},
	)

	// Recommendation pipeline

	RecommendationEventsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommendation_events_received_total",
			Help: "Total integration events received from the broker",
		},
		[]string{"event_type"},
	)

	RecommendationEventsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommendation_events_failed_total",
			Help: "Total integration events that failed processing",
		},
		[]string{"event_type"},
	)

	RecommendationLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "recommendation_request_latency_seconds",
			Help:    "Latency of recommendation requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	// Embedding provider

	EmbeddingRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "embedding_provider_requests_total",
			Help: "Total embedding provider requests by outcome",
		},
		[]string{"outcome"}, // success, failure
	)

	// Dead letters

	DeadLetteredMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dead_lettered_messages_total",
			Help: "Total messages rejected to the dead-letter queue",
		},
		[]string{"routing_key"},
	)
)
