package main

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/beckn-labs/catalog-indexer/pkg/kafka"

	confluentKafka "github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

const messageMaxBytes = 20971521 // 20MB

// Config holds all configuration for the catalog-indexer application
type Config struct {
	// Application settings
	Verbose bool

	// Kafka settings
	BootstrapServers     string
	NumPartitions        int
	ReplicationFactor    int
	OffsetCommitInterval time.Duration

	// Generic event pipeline
	InputTopic  string
	OutputTopic string
	DLTTopic    string
	GroupID     string

	// Catalog pipeline
	CatalogInputTopic  string
	CatalogOutputTopic string
	CatalogDLTTopic    string
	CatalogGroupID     string

	// Publishing
	PublishTimeout time.Duration
	KeySpread      int64

	// Metrics settings
	MetricsAddr string

	// consumerBase carries the env-loaded consumer tuning (auto offset
	// reset, partition buffer, flush timeout); per-pipeline identity fields
	// are overlaid from flags.
	consumerBase kafka.ConsumerConfig
}

// ProducerConfig builds the shared output producer ConfigMap.
func (c *Config) ProducerConfig() *confluentKafka.ConfigMap {
	return &confluentKafka.ConfigMap{
		"bootstrap.servers": c.BootstrapServers,

		// Reliability: wait for all replicas to acknowledge
		"acks": "all",

		// Performance tuning
		"linger.ms":        5,
		"batch.size":       16384,
		"compression.type": "lz4",

		"enable.idempotence": true,
		"message.max.bytes":  messageMaxBytes,
	}
}

// ConsumerConfig builds the consumer config for the generic event pipeline.
func (c *Config) ConsumerConfig() kafka.ConsumerConfig {
	return c.pipelineConsumerConfig(c.InputTopic, c.DLTTopic, c.GroupID)
}

// CatalogConsumerConfig builds the consumer config for the catalog pipeline.
func (c *Config) CatalogConsumerConfig() kafka.ConsumerConfig {
	return c.pipelineConsumerConfig(c.CatalogInputTopic, c.CatalogDLTTopic, c.CatalogGroupID)
}

// pipelineConsumerConfig overlays one pipeline's identity on the env-loaded
// tuning base. Both pipelines consume primary topics, so failures always
// re-route to the dead-letter topic regardless of what the environment says.
func (c *Config) pipelineConsumerConfig(topic, dlqTopic, groupID string) kafka.ConsumerConfig {
	cfg := c.consumerBase
	cfg.Topic = topic
	cfg.DLQTopic = dlqTopic
	cfg.BootstrapServers = c.BootstrapServers
	cfg.GroupID = groupID
	cfg.OffsetCommitInterval = c.OffsetCommitInterval
	cfg.IsDLQConsumer = false
	return cfg.WithDefaults()
}

// Topics lists every topic the application ensures at startup.
func (c *Config) Topics() []kafka.TopicConfig {
	names := []string{
		c.InputTopic, c.OutputTopic, c.DLTTopic,
		c.CatalogInputTopic, c.CatalogOutputTopic, c.CatalogDLTTopic,
	}
	configs := make([]kafka.TopicConfig, 0, len(names))
	for _, name := range names {
		configs = append(configs, kafka.TopicConfig{
			Name:              name,
			NumPartitions:     c.NumPartitions,
			ReplicationFactor: c.ReplicationFactor,
		})
	}
	return configs
}

// buildConfig builds a Config from CLI context flags and the environment.
func buildConfig(c *cli.Context) (*Config, error) {
	base, err := kafka.LoadConsumerConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load consumer config from env: %w", err)
	}

	cfg := &Config{
		consumerBase: base,

		Verbose:              c.Bool("verbose"),
		BootstrapServers:     c.String("bootstrap-servers"),
		NumPartitions:        c.Int("partitions"),
		ReplicationFactor:    c.Int("replication-factor"),
		OffsetCommitInterval: c.Duration("offset-commit-interval"),
		InputTopic:           c.String("input-topic"),
		OutputTopic:          c.String("output-topic"),
		DLTTopic:             c.String("dlt-topic"),
		GroupID:              c.String("group-id"),
		CatalogInputTopic:    c.String("catalog-input-topic"),
		CatalogOutputTopic:   c.String("catalog-output-topic"),
		CatalogDLTTopic:      c.String("catalog-dlt-topic"),
		CatalogGroupID:       c.String("catalog-group-id"),
		PublishTimeout:       c.Duration("publish-timeout"),
		KeySpread:            c.Int64("key-spread"),
		MetricsAddr:          c.String("metrics-addr"),
	}

	if err := cfg.ConsumerConfig().Validate(); err != nil {
		return nil, fmt.Errorf("invalid event pipeline config: %w", err)
	}
	if err := cfg.CatalogConsumerConfig().Validate(); err != nil {
		return nil, fmt.Errorf("invalid catalog pipeline config: %w", err)
	}
	if cfg.OutputTopic == "" || cfg.CatalogOutputTopic == "" {
		return nil, fmt.Errorf("output topics cannot be empty")
	}
	if cfg.KeySpread <= 0 {
		return nil, fmt.Errorf("key-spread must be > 0, got %d", cfg.KeySpread)
	}
	return cfg, nil
}
