// Biblioteka Platform - Event-Driven Library Services
// Copyright 2026 Biblioteka Platform Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/biblioteka/eventsvc

// The notifier consumes library integration events and sends email
// notifications, deduplicated against its append-only notification log.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/biblioteka/eventsvc/internal/api"
	"github.com/biblioteka/eventsvc/internal/broker"
	"github.com/biblioteka/eventsvc/internal/config"
	"github.com/biblioteka/eventsvc/internal/dispatch"
	"github.com/biblioteka/eventsvc/internal/logging"
	"github.com/biblioteka/eventsvc/internal/metrics"
	"github.com/biblioteka/eventsvc/internal/notifier"
	"github.com/biblioteka/eventsvc/internal/store"
	"github.com/biblioteka/eventsvc/internal/supervisor"
)

func main() {
	cfg, err := config.Load(config.NotifierDefaults())
	if err != nil {
		logging.Fatal().Err(err).Msg("Configuration load failed")
	}
	if err := cfg.Validate(); err != nil {
		logging.Fatal().Err(err).Msg("Configuration invalid")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logging.Fatal().Err(err).Msg("Notifier failed")
	}
	logging.Info().Msg("Notifier stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	if cfg.Broker.EmbeddedServer {
		embedded, err := broker.StartEmbeddedServer(cfg.Broker.URL, cfg.Broker.StoreDir)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Broker.CloseTimeout)
			defer cancel()
			_ = embedded.Shutdown(shutdownCtx)
		}()
		cfg.Broker.URL = embedded.ClientURL()
	}

	db, err := store.Open(&cfg.Database)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()
	if err := db.InitNotifierSchema(ctx); err != nil {
		return err
	}

	outcomes := store.NewOutcomeLog(db)
	mailer := notifier.NewSMTPMailer(cfg.SMTP)
	handlers := notifier.NewHandlers(outcomes, mailer, cfg.Notifier.DedupWindow)
	registry := handlers.Registry()

	dispatcher := dispatch.NewDispatcher(registry, dispatch.Instrumentation{
		Received:  metrics.NotificationEventsReceived,
		Processed: metrics.NotificationEventsProcessed,
		Failed:    metrics.NotificationEventsFailed,
		Duration:  metrics.NotificationDuration,
	})

	topo := broker.Topology{
		Exchange:      cfg.Broker.Exchange,
		Queue:         cfg.Broker.Queue,
		RoutingKeys:   registry.Keys(),
		DLQRoutingKey: cfg.Broker.DLQRoutingKey,
		MessageTTL:    cfg.Broker.MessageTTL,
	}
	connector := broker.NewConnector(cfg.Broker, topo)
	if err := connector.Connect(ctx); err != nil {
		return err
	}
	defer connector.Stop()

	server := api.NewServer(cfg.Server, api.NotifierRoutes(outcomes))

	tree := supervisor.NewTree("notifier", logging.Slog(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Broker.CloseTimeout,
	})
	tree.AddBrokerService(supervisor.NewService("consumer-loop", func(ctx context.Context) error {
		return connector.Run(ctx, dispatcher.Dispatch)
	}))
	tree.AddAPIService(supervisor.NewService("http-server", server.Serve))

	logging.Info().
		Str("queue", cfg.Broker.Queue).
		Dur("dedup_window", cfg.Notifier.DedupWindow).
		Msg("Notifier started")
	err = tree.Serve(ctx)
	if report, reportErr := tree.UnstoppedServiceReport(); reportErr == nil {
		for _, svc := range report {
			logging.Warn().Str("service", svc.Name).Msg("Service did not stop in time")
		}
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
