// Biblioteka Platform - Event-Driven Library Services
// Copyright 2026 Biblioteka Platform Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/biblioteka/eventsvc

package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/biblioteka/eventsvc/internal/config"
	"github.com/biblioteka/eventsvc/internal/dispatch"
	"github.com/biblioteka/eventsvc/internal/event"
	"github.com/biblioteka/eventsvc/internal/logging"
	"github.com/biblioteka/eventsvc/internal/metrics"
)

// Handler processes one delivered message and decides its fate.
type Handler func(ctx context.Context, routingKey string, body []byte) dispatch.Decision

// Connector owns the broker connection for one service: it declares the
// topology, consumes the service queue strictly sequentially, and
// dead-letters rejected messages.
//
// Connect establishes the first connection with bounded retries and is
// fatal on exhaustion. Run consumes until Stop or context cancellation,
// reconnecting indefinitely after connection loss.
type Connector struct {
	cfg  config.BrokerConfig
	topo Topology

	mu        sync.Mutex
	nc        *nats.Conn
	js        jetstream.JetStream
	consumer  jetstream.Consumer
	publisher *Publisher

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewConnector returns an unconnected Connector for the given topology.
func NewConnector(cfg config.BrokerConfig, topo Topology) *Connector {
	return &Connector{
		cfg:    cfg,
		topo:   topo,
		stopCh: make(chan struct{}),
	}
}

// Connect dials the broker and declares the topology, retrying with
// exponential backoff up to the configured attempt limit. Exhausting the
// limit returns an error; callers treat that as fatal at startup.
func (c *Connector) Connect(ctx context.Context) error {
	var lastErr error
	backoff := c.cfg.ConnectBackoffMin
	for attempt := 1; attempt <= c.cfg.ConnectMaxAttempts; attempt++ {
		if err := c.connectOnce(ctx); err != nil {
			lastErr = err
			logging.Warn().
				Err(err).
				Int("attempt", attempt).
				Int("max_attempts", c.cfg.ConnectMaxAttempts).
				Dur("backoff", backoff).
				Msg("Broker connection failed")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-c.stopCh:
				return errors.New("connector stopped")
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > c.cfg.ConnectBackoffMax {
				backoff = c.cfg.ConnectBackoffMax
			}
			continue
		}
		logging.Info().
			Str("url", c.cfg.URL).
			Str("queue", c.topo.Queue).
			Strs("routing_keys", c.topo.RoutingKeys).
			Msg("Broker connected")
		return nil
	}
	return fmt.Errorf("broker unreachable after %d attempts: %w", c.cfg.ConnectMaxAttempts, lastErr)
}

// connectOnce performs a single dial plus topology declaration.
func (c *Connector) connectOnce(ctx context.Context) error {
	nc, err := nats.Connect(c.cfg.URL,
		nats.Name(c.topo.Queue),
		nats.MaxReconnects(0),
		nats.Timeout(10*time.Second),
	)
	if err != nil {
		return fmt.Errorf("dial broker: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return fmt.Errorf("jetstream context: %w", err)
	}

	if err := c.declareTopology(ctx, js); err != nil {
		nc.Close()
		return err
	}

	consumer, err := c.createConsumer(ctx, js)
	if err != nil {
		nc.Close()
		return err
	}

	publisher, err := NewPublisher(c.cfg.URL, c.topo)
	if err != nil {
		nc.Close()
		return fmt.Errorf("create publisher: %w", err)
	}

	c.mu.Lock()
	c.closeLocked()
	c.nc = nc
	c.js = js
	c.consumer = consumer
	c.publisher = publisher
	c.mu.Unlock()
	return nil
}

// declareTopology ensures the primary and dead-letter streams exist with
// the configured retention. Declaration is idempotent and updates stream
// limits in place when they drift from configuration.
func (c *Connector) declareTopology(ctx context.Context, js jetstream.JetStream) error {
	primary := jetstream.StreamConfig{
		Name:      c.topo.StreamName(),
		Subjects:  []string{c.topo.Exchange + ".>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    c.topo.MessageTTL,
	}
	if err := ensureStream(ctx, js, primary); err != nil {
		return fmt.Errorf("declare exchange %s: %w", c.topo.Exchange, err)
	}

	dlx := jetstream.StreamConfig{
		Name:      c.topo.DLXStreamName(),
		Subjects:  []string{c.topo.DLXName() + ".>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
	}
	if err := ensureStream(ctx, js, dlx); err != nil {
		return fmt.Errorf("declare dead-letter exchange %s: %w", c.topo.DLXName(), err)
	}
	return nil
}

func ensureStream(ctx context.Context, js jetstream.JetStream, cfg jetstream.StreamConfig) error {
	_, err := js.Stream(ctx, cfg.Name)
	if errors.Is(err, jetstream.ErrStreamNotFound) {
		_, err = js.CreateStream(ctx, cfg)
		return err
	}
	if err != nil {
		return err
	}
	_, err = js.UpdateStream(ctx, cfg)
	return err
}

// createConsumer declares the service queue: a durable pull consumer
// filtered to the bound routing keys, with at most one message in
// flight so events are processed strictly in publication order.
func (c *Connector) createConsumer(ctx context.Context, js jetstream.JetStream) (jetstream.Consumer, error) {
	cfg := jetstream.ConsumerConfig{
		Durable:        c.topo.Queue,
		FilterSubjects: c.topo.FilterSubjects(),
		AckPolicy:      jetstream.AckExplicitPolicy,
		AckWait:        c.cfg.AckWait,
		MaxAckPending:  1,
		DeliverPolicy:  jetstream.DeliverAllPolicy,
	}
	consumer, err := js.CreateOrUpdateConsumer(ctx, c.topo.StreamName(), cfg)
	if err != nil {
		return nil, fmt.Errorf("declare queue %s: %w", c.topo.Queue, err)
	}
	return consumer, nil
}

// Run consumes the service queue until ctx is cancelled or Stop is
// called. A lost connection is re-established indefinitely, waiting the
// configured interval between cycles; only Connect at startup is
// allowed to give up.
func (c *Connector) Run(ctx context.Context, handle Handler) error {
	for {
		if err := c.consume(ctx, handle); err != nil {
			logging.Warn().Err(err).Msg("Broker consume interrupted, reconnecting")
		}
		select {
		case <-ctx.Done():
			return nil
		case <-c.stopCh:
			return nil
		case <-time.After(c.cfg.ReconnectWait):
		}
		if err := c.reconnect(ctx); err != nil {
			logging.Warn().Err(err).Msg("Broker reconnect failed")
		}
	}
}

// reconnect re-dials without an attempt bound; Run keeps calling it
// until it succeeds or the connector stops.
func (c *Connector) reconnect(ctx context.Context) error {
	return c.connectOnce(ctx)
}

// consume pulls messages one at a time and routes each through the
// handler, acknowledging or dead-lettering per its decision.
func (c *Connector) consume(ctx context.Context, handle Handler) error {
	c.mu.Lock()
	consumer := c.consumer
	c.mu.Unlock()
	if consumer == nil {
		return errors.New("not connected")
	}

	iter, err := consumer.Messages(jetstream.PullMaxMessages(1))
	if err != nil {
		return fmt.Errorf("open message iterator: %w", err)
	}
	defer iter.Stop()

	done := make(chan struct{})
	defer close(done)
	go c.stopIteratorOn(ctx, done, iter)

	for {
		msg, err := iter.Next()
		if err != nil {
			if errors.Is(err, jetstream.ErrMsgIteratorClosed) {
				return nil
			}
			return fmt.Errorf("next message: %w", err)
		}
		c.handleMessage(ctx, handle, msg)
		select {
		case <-ctx.Done():
			return nil
		case <-c.stopCh:
			return nil
		default:
		}
	}
}

// stopIteratorOn unblocks a pending iter.Next when the connector shuts
// down. done is closed when the consume cycle returns, so the watcher
// never outlives its cycle; the outer reconnect loop would otherwise
// accumulate one blocked goroutine per connection loss.
func (c *Connector) stopIteratorOn(ctx context.Context, done <-chan struct{}, iter interface{ Stop() }) {
	select {
	case <-ctx.Done():
	case <-c.stopCh:
	case <-done:
		return
	}
	iter.Stop()
}

func (c *Connector) handleMessage(ctx context.Context, handle Handler, msg jetstream.Msg) {
	routingKey := c.topo.RoutingKey(msg.Subject())
	if routingKey == "" {
		routingKey = msg.Headers().Get(event.MetadataRoutingKey)
	}

	decision := handle(ctx, routingKey, msg.Data())
	switch decision {
	case dispatch.DeadLetter:
		if err := c.deadLetter(ctx, routingKey, msg.Data()); err != nil {
			logging.Error().
				Err(err).
				Str("routing_key", routingKey).
				Msg("Dead-letter publish failed, message will be redelivered")
			if nakErr := msg.NakWithDelay(c.cfg.ReconnectWait); nakErr != nil {
				logging.Error().Err(nakErr).Msg("Message nak failed")
			}
			return
		}
		metrics.DeadLetteredMessages.WithLabelValues(routingKey).Inc()
	case dispatch.Ack:
	}
	if err := msg.Ack(); err != nil {
		logging.Error().
			Err(err).
			Str("routing_key", routingKey).
			Msg("Message ack failed")
	}
}

// deadLetter forwards a rejected message to the dead-letter exchange,
// preserving the original routing key in the message metadata.
func (c *Connector) deadLetter(ctx context.Context, routingKey string, body []byte) error {
	c.mu.Lock()
	publisher := c.publisher
	c.mu.Unlock()
	if publisher == nil {
		return errors.New("not connected")
	}
	return publisher.PublishDead(ctx, routingKey, body)
}

// Publisher returns the connection's publisher, or nil before Connect.
func (c *Connector) Publisher() *Publisher {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.publisher
}

// Stop shuts the connector down. It is safe to call concurrently and
// more than once.
func (c *Connector) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
	})
	c.mu.Lock()
	c.closeLocked()
	c.mu.Unlock()
}

func (c *Connector) closeLocked() {
	if c.publisher != nil {
		if err := c.publisher.Close(); err != nil {
			logging.Warn().Err(err).Msg("Publisher close failed")
		}
		c.publisher = nil
	}
	if c.nc != nil {
		c.nc.Close()
		c.nc = nil
	}
	c.js = nil
	c.consumer = nil
}
