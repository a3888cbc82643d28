package kafka

import (
	"context"
	"fmt"
	"strconv"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"go.uber.org/zap"
)

// Header keys attached to every dead-lettered record so downstream triage
// can attribute the failure without re-reading the input topic.
const (
	HeaderError             = "x-error"
	HeaderErrorClass        = "x-error-class"
	HeaderOriginalTopic     = "x-original-topic"
	HeaderOriginalPartition = "x-original-partition"
	HeaderOriginalOffset    = "x-original-offset"
)

// DeadLetterRouter publishes failed records to a dead-letter topic with the
// original key/value untouched and the failure context as record headers.
//
// The router never routes its own failures anywhere: a dead-letter publish
// that fails is logged and dropped, by contract.
type deadLetterPublisher interface {
	Produce(ctx context.Context, msg Msg) error
}

type DeadLetterRouter struct {
	producer deadLetterPublisher
	topic    string
	log      *zap.SugaredLogger
}

// NewDeadLetterRouter creates a router targeting topic.
func NewDeadLetterRouter(producer *Producer, topic string, log *zap.SugaredLogger) (*DeadLetterRouter, error) {
	if topic == "" {
		return nil, fmt.Errorf("dead-letter topic not configured")
	}
	return &DeadLetterRouter{producer: producer, topic: topic, log: log}, nil
}

// Route publishes the failed record's original payload to the dead-letter
// topic, annotated with error provenance. The returned error reports a
// failed dead-letter publish; callers log it and move on.
func (r *DeadLetterRouter) Route(ctx context.Context, msg *kafka.Message, errMessage, errClass string) error {
	headers := map[string]string{
		HeaderError:             errMessage,
		HeaderErrorClass:        errClass,
		HeaderOriginalPartition: strconv.FormatInt(int64(msg.TopicPartition.Partition), 10),
		HeaderOriginalOffset:    strconv.FormatInt(int64(msg.TopicPartition.Offset), 10),
	}
	originalTopic := ""
	if msg.TopicPartition.Topic != nil {
		originalTopic = *msg.TopicPartition.Topic
	}
	headers[HeaderOriginalTopic] = originalTopic

	err := r.producer.Produce(ctx, Msg{
		Topic:   r.topic,
		Key:     msg.Key,
		Value:   msg.Value,
		Headers: headers,
	})
	if err != nil {
		return fmt.Errorf("failed to produce to dead-letter topic %q: %w", r.topic, err)
	}

	r.log.Infow("routed message to dead-letter topic",
		"originalTopic", originalTopic,
		"originalPartition", msg.TopicPartition.Partition,
		"originalOffset", msg.TopicPartition.Offset,
		"errorClass", errClass,
		"dlqTopic", r.topic,
	)
	return nil
}

// Topic returns the dead-letter topic name.
func (r *DeadLetterRouter) Topic() string {
	return r.topic
}
