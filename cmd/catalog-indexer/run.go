package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/beckn-labs/catalog-indexer/internal/catalog"
	"github.com/beckn-labs/catalog-indexer/internal/pipeline"
	"github.com/beckn-labs/catalog-indexer/internal/store/postgres"
	"github.com/beckn-labs/catalog-indexer/pkg/kafka"
	"github.com/beckn-labs/catalog-indexer/pkg/metrics"
	"github.com/beckn-labs/catalog-indexer/pkg/utils"

	confluentKafka "github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

const flushTimeoutOnClose = 15 * time.Second

func run(c *cli.Context) error {
	// Build configuration from CLI flags
	cfg, err := buildConfig(c)
	if err != nil {
		return fmt.Errorf("failed to build config: %w", err)
	}

	sugar, err := utils.NewSugaredLogger(cfg.Verbose)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer sugar.Desugar().Sync() //nolint:errcheck // best-effort flush; ignore sync errors

	sugar.Infow("config",
		"verbose", cfg.Verbose,
		"bootstrapServers", cfg.BootstrapServers,
		"inputTopic", cfg.InputTopic,
		"outputTopic", cfg.OutputTopic,
		"dltTopic", cfg.DLTTopic,
		"groupID", cfg.GroupID,
		"catalogInputTopic", cfg.CatalogInputTopic,
		"catalogOutputTopic", cfg.CatalogOutputTopic,
		"catalogDLTTopic", cfg.CatalogDLTTopic,
		"catalogGroupID", cfg.CatalogGroupID,
		"partitions", cfg.NumPartitions,
		"replicationFactor", cfg.ReplicationFactor,
		"publishTimeout", cfg.PublishTimeout,
		"keySpread", cfg.KeySpread,
		"offsetCommitInterval", cfg.OffsetCommitInterval,
		"metricsAddr", cfg.MetricsAddr,
	)

	// Initialize Prometheus metrics
	registry := prometheus.NewRegistry()
	m, err := metrics.New(registry)
	if err != nil {
		return fmt.Errorf("failed to create metrics: %w", err)
	}

	// Start metrics server
	metricsServer := metrics.NewServer(cfg.MetricsAddr, registry)
	metricsErrCh := metricsServer.Start()
	sugar.Infof("metrics server listening on http://%s/metrics", cfg.MetricsAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Ensure all topics exist before wiring consumers and producers
	adminConfig := confluentKafka.ConfigMap{"bootstrap.servers": cfg.BootstrapServers}
	kafkaAdminClient, err := confluentKafka.NewAdminClient(&adminConfig)
	if err != nil {
		return fmt.Errorf("failed to create kafka admin client: %w", err)
	}
	defer kafkaAdminClient.Close()

	if err := kafka.EnsureTopics(ctx, kafkaAdminClient, cfg.Topics(), sugar); err != nil {
		return fmt.Errorf("failed to ensure kafka topics exist: %w", err)
	}

	// Connect to Postgres
	pgCfg, err := postgres.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load postgres config: %w", err)
	}
	pool, err := postgres.Connect(ctx, pgCfg, sugar)
	if err != nil {
		return fmt.Errorf("failed to connect to postgres: %w", err)
	}
	defer pool.Close()
	repo := postgres.NewRepo(pool)

	// One delivery-confirmed producer shared by both pipelines
	producer, err := kafka.NewProducer(ctx, cfg.ProducerConfig(), sugar)
	if err != nil {
		return fmt.Errorf("failed to create kafka producer: %w", err)
	}
	defer producer.Close(flushTimeoutOnClose)

	// Generic event pipeline: validate, then forward byte-for-byte
	forwarder, err := pipeline.NewForwarder(producer, pipeline.ForwarderConfig{
		OutputTopic:    cfg.OutputTopic,
		PublishTimeout: cfg.PublishTimeout,
		KeySpread:      cfg.KeySpread,
	}, m, sugar)
	if err != nil {
		return fmt.Errorf("failed to create forwarder: %w", err)
	}
	eventConsumer, err := kafka.NewConsumer(ctx, sugar, cfg.ConsumerConfig(), forwarder, m)
	if err != nil {
		return fmt.Errorf("failed to create event consumer: %w", err)
	}

	// Catalog pipeline: extract items, upsert, fan out stored-item events
	service := catalog.NewService(repo, producer, catalog.ServiceConfig{
		OutputTopic:    cfg.CatalogOutputTopic,
		PublishTimeout: cfg.PublishTimeout,
	}, nil, m, sugar)
	catalogConsumer, err := kafka.NewConsumer(ctx, sugar, cfg.CatalogConsumerConfig(), service, m)
	if err != nil {
		return fmt.Errorf("failed to create catalog consumer: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return eventConsumer.Start(gctx)
	})
	g.Go(func() error {
		return catalogConsumer.Start(gctx)
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case err := <-metricsErrCh:
			if err != nil {
				return fmt.Errorf("metrics server failed: %w", err)
			}
			return nil
		}
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
			return gctx.Err()
		case err := <-producer.Errors():
			return err
		}
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		sugar.Infow("exiting due to context cancellation")
		err = nil
	} else if err != nil {
		sugar.Errorw("run failed", "error", err)
	}

	// Gracefully shutdown metrics server
	sugar.Info("shutting down metrics server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		sugar.Warnw("metrics server shutdown error", "error", err)
	}

	sugar.Info("shutdown complete")
	return err
}
