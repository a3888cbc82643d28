//go:build integration
// +build integration

package kafka

import (
	"context"
	"fmt"
	"testing"
	"time"

	cKafka "github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	testKafka "github.com/testcontainers/testcontainers-go/modules/kafka"
)

const integrationTestTimeout = 30 * time.Second

// setupKafka starts a Kafka container and returns the bootstrap servers.
func setupKafka(t *testing.T, ctx context.Context) (string, func()) {
	kafkaContainer, err := testKafka.Run(ctx,
		"confluentinc/confluent-local:7.5.0",
		testKafka.WithClusterID("test-cluster"),
	)
	require.NoError(t, err)

	bootstrapServers, err := kafkaContainer.Brokers(ctx)
	require.NoError(t, err)

	cleanup := func() {
		if err := testcontainers.TerminateContainer(kafkaContainer); err != nil {
			t.Logf("failed to terminate kafka container: %s", err)
		}
	}

	return bootstrapServers[0], cleanup
}

func newAdminClient(t *testing.T, brokers string) *cKafka.AdminClient {
	admin, err := cKafka.NewAdminClient(&cKafka.ConfigMap{
		"bootstrap.servers": brokers,
	})
	require.NoError(t, err)
	require.NotNil(t, admin)
	return admin
}

func createTopic(t *testing.T, brokers, topic string, partitions int) {
	admin := newAdminClient(t, brokers)
	defer admin.Close()

	ctx, cancel := context.WithTimeout(context.Background(), integrationTestTimeout)
	defer cancel()

	results, err := admin.CreateTopics(ctx, []cKafka.TopicSpecification{{
		Topic:             topic,
		NumPartitions:     partitions,
		ReplicationFactor: 1,
	}})
	require.NoError(t, err)
	for _, result := range results {
		if result.Error.Code() != cKafka.ErrNoError && result.Error.Code() != cKafka.ErrTopicAlreadyExists {
			t.Fatalf("failed to create topic %s: %v", result.Topic, result.Error)
		}
	}
}

// produceTestMessages synchronously produces count JSON records to topic.
func produceTestMessages(t *testing.T, brokers, topic string, count int) {
	producer, err := cKafka.NewProducer(&cKafka.ConfigMap{
		"bootstrap.servers": brokers,
		"acks":              "all",
	})
	require.NoError(t, err)
	defer producer.Close()

	deliveryCh := make(chan cKafka.Event, count)
	for i := 0; i < count; i++ {
		value := []byte(fmt.Sprintf(`{"seq":%d}`, i))
		err := producer.Produce(&cKafka.Message{
			TopicPartition: cKafka.TopicPartition{Topic: &topic, Partition: cKafka.PartitionAny},
			Key:            []byte(fmt.Sprintf("key-%d", i)),
			Value:          value,
		}, deliveryCh)
		require.NoError(t, err)
	}

	for i := 0; i < count; i++ {
		ev := <-deliveryCh
		msg, ok := ev.(*cKafka.Message)
		require.True(t, ok)
		require.NoError(t, msg.TopicPartition.Error)
	}
}

// consumeOne reads a single record from topic with a fresh group, failing
// the test on timeout.
func consumeOne(t *testing.T, brokers, topic, groupID string, timeout time.Duration) *cKafka.Message {
	consumer, err := cKafka.NewConsumer(&cKafka.ConfigMap{
		"bootstrap.servers": brokers,
		"group.id":          groupID,
		"auto.offset.reset": "earliest",
	})
	require.NoError(t, err)
	defer consumer.Close()

	require.NoError(t, consumer.Subscribe(topic, nil))

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		ev := consumer.Poll(200)
		if msg, ok := ev.(*cKafka.Message); ok {
			return msg
		}
	}
	t.Fatalf("no record received from %s within %s", topic, timeout)
	return nil
}
