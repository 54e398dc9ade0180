// Biblioteka Platform - Event-Driven Library Services
// Copyright 2026 Biblioteka Platform Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/biblioteka/eventsvc

package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	natsgo "github.com/nats-io/nats.go"

	"github.com/biblioteka/eventsvc/internal/event"
	"github.com/biblioteka/eventsvc/internal/logging"
)

// Publisher publishes events to the platform exchange and forwards
// rejected messages to the dead-letter exchange.
type Publisher struct {
	publisher message.Publisher
	topo      Topology

	mu     sync.RWMutex
	closed bool
}

// NewPublisher creates a JetStream publisher for the exchange topology.
// Streams are pre-created by the connector, and message IDs are tracked
// so broker-side deduplication applies on redelivery.
func NewPublisher(url string, topo Topology) (*Publisher, error) {
	logger := logging.NewWatermillGlobalAdapter()

	natsOpts := []natsgo.Option{
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(2 * time.Second),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				logger.Error("Broker publisher disconnected", err, nil)
			}
		}),
	}

	cfg := wmNats.PublisherConfig{
		URL:         url,
		NatsOptions: natsOpts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			Disabled:      false,
			AutoProvision: false,
			TrackMsgId:    true,
			PublishOptions: []natsgo.PubOpt{
				natsgo.RetryAttempts(3),
				natsgo.RetryWait(100 * time.Millisecond),
			},
		},
	}

	pub, err := wmNats.NewPublisher(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("create publisher: %w", err)
	}

	return &Publisher{publisher: pub, topo: topo}, nil
}

// Publish sends a message body to the exchange under the given routing
// key. The message UUID doubles as the broker deduplication ID.
func (p *Publisher) Publish(ctx context.Context, routingKey string, body []byte) error {
	msg := message.NewMessage(uuid.NewString(), body)
	msg.Metadata.Set(event.MetadataRoutingKey, routingKey)
	return p.publish(p.topo.Subject(routingKey), msg)
}

// PublishDead forwards a rejected message to the dead-letter exchange,
// recording the routing key it originally carried.
func (p *Publisher) PublishDead(ctx context.Context, originalRoutingKey string, body []byte) error {
	msg := message.NewMessage(uuid.NewString(), body)
	msg.Metadata.Set(event.MetadataRoutingKey, originalRoutingKey)
	return p.publish(p.topo.DeadLetterSubject(), msg)
}

func (p *Publisher) publish(subject string, msg *message.Message) error {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return fmt.Errorf("publisher is closed")
	}
	p.mu.RUnlock()

	if msg.Metadata.Get(natsgo.MsgIdHdr) == "" {
		msg.Metadata.Set(natsgo.MsgIdHdr, msg.UUID)
	}
	return p.publisher.Publish(subject, msg)
}

// Close shuts the publisher down. It is safe to call more than once.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.publisher.Close()
}
