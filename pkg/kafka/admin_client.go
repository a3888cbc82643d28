package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"go.uber.org/zap"
)

// metadataTimeout bounds Kafka metadata operations.
const metadataTimeout = 10 * time.Second

// TopicConfig describes a topic to ensure at startup.
type TopicConfig struct {
	Name              string
	NumPartitions     int
	ReplicationFactor int
}

// Validate checks if the TopicConfig is usable for topic creation.
func (tc TopicConfig) Validate() error {
	if tc.Name == "" {
		return errors.New("topic name cannot be empty")
	}
	if tc.NumPartitions <= 0 {
		return fmt.Errorf("number of partitions must be > 0, got %d", tc.NumPartitions)
	}
	if tc.ReplicationFactor <= 0 {
		return fmt.Errorf("replication factor must be > 0, got %d", tc.ReplicationFactor)
	}
	return nil
}

// TopicExists returns the topic's metadata if it exists, nil if it doesn't.
func TopicExists(admin *kafka.AdminClient, topicName string) (*kafka.TopicMetadata, error) {
	metadata, err := admin.GetMetadata(&topicName, false, int(metadataTimeout.Milliseconds()))
	if err != nil {
		return nil, fmt.Errorf("failed to get metadata for topic %q: %w", topicName, err)
	}

	topicMetadata, exists := metadata.Topics[topicName]
	if !exists || topicMetadata.Error.Code() == kafka.ErrUnknownTopicOrPart {
		return nil, nil
	}

	if topicMetadata.Error.Code() != kafka.ErrNoError {
		return nil, fmt.Errorf("topic %q has error: %w", topicName, topicMetadata.Error)
	}

	return &topicMetadata, nil
}

// EnsureTopic creates the topic if it does not exist. If the topic already
// exists its current partition count and replication factor are retained;
// differences from the desired config are logged, not reconciled, since
// Kafka cannot shrink partitions or change replication automatically.
func EnsureTopic(
	ctx context.Context,
	admin *kafka.AdminClient,
	config TopicConfig,
	log *zap.SugaredLogger,
) error {
	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid topic config: %w", err)
	}

	topicMetadata, err := TopicExists(admin, config.Name)
	if err != nil {
		return fmt.Errorf("failed to check topic existence: %w", err)
	}

	if topicMetadata != nil {
		currentPartitions := len(topicMetadata.Partitions)
		if currentPartitions != config.NumPartitions {
			log.Warnw("topic exists with a different partition count",
				"topic", config.Name,
				"current", currentPartitions,
				"desired", config.NumPartitions,
			)
		}
		return nil
	}

	spec := kafka.TopicSpecification{
		Topic:             config.Name,
		NumPartitions:     config.NumPartitions,
		ReplicationFactor: config.ReplicationFactor,
	}

	results, err := admin.CreateTopics(ctx, []kafka.TopicSpecification{spec})
	if err != nil {
		return fmt.Errorf("failed to create topic %q: %w", config.Name, err)
	}

	for _, result := range results {
		if result.Error.Code() != kafka.ErrNoError && result.Error.Code() != kafka.ErrTopicAlreadyExists {
			return fmt.Errorf("failed to create topic %q: %w", result.Topic, result.Error)
		}
		log.Infow("ensured topic",
			"topic", result.Topic,
			"partitions", config.NumPartitions,
			"replicationFactor", config.ReplicationFactor,
		)
	}

	return nil
}

// EnsureTopics ensures every topic in configs, failing on the first error.
func EnsureTopics(
	ctx context.Context,
	admin *kafka.AdminClient,
	configs []TopicConfig,
	log *zap.SugaredLogger,
) error {
	for _, cfg := range configs {
		if err := EnsureTopic(ctx, admin, cfg, log); err != nil {
			return err
		}
	}
	return nil
}
