// Biblioteka Platform - Event-Driven Library Services
// Copyright 2026 Biblioteka Platform Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/biblioteka/eventsvc

// The recommender keeps a local cache of book embeddings and user
// interactions in sync with catalog events, and serves similarity-based
// recommendation queries over them.
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
	"github.com/biblioteka/eventsvc/internal/recommender"
	"github.com/biblioteka/eventsvc/internal/store"
	"github.com/biblioteka/eventsvc/internal/supervisor"
)

func main() {
	cfg, err := config.Load(config.RecommenderDefaults())
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
		logging.Fatal().Err(err).Msg("Recommender failed")
	}
	logging.Info().Msg("Recommender stopped")
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
	if err := db.InitRecommenderSchema(ctx, cfg.Embedding.Dimensions); err != nil {
		return err
	}

	books := store.NewEmbeddingStore(db, cfg.Embedding.Dimensions)
	interactions := store.NewInteractionStore(db)
	provider := recommender.NewProvider(cfg.Embedding)
	if !provider.Available() {
		logging.Warn().Msg("No embedding API key configured, vectors will not be generated")
	}

	executor := recommender.NewExecutor(books, interactions, provider)
	registry := executor.Registry()

	dispatcher := dispatch.NewDispatcher(registry, dispatch.Instrumentation{
		Received: metrics.RecommendationEventsReceived,
		Failed:   metrics.RecommendationEventsFailed,
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

	engine := recommender.NewEngine(books, interactions, provider, cfg.Recommend.SimilarityThreshold)
	server := api.NewServer(cfg.Server, api.RecommenderRoutes(engine, cfg.Recommend))

	tree := supervisor.NewTree("recommender", logging.Slog(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Broker.CloseTimeout,
	})
	tree.AddBrokerService(supervisor.NewService("consumer-loop", func(ctx context.Context) error {
		return connector.Run(ctx, dispatcher.Dispatch)
	}))
	tree.AddAPIService(supervisor.NewService("http-server", server.Serve))

	logging.Info().
		Str("queue", cfg.Broker.Queue).
		Float64("similarity_threshold", cfg.Recommend.SimilarityThreshold).
		Msg("Recommender started")
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
