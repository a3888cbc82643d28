// Package pipeline implements the generic validate-and-forward path: each
// record is schema-validated, structurally decoded, forwarded unchanged to
// the output topic, and only then acknowledged.
package pipeline

import (
	"context"
	"strconv"
	"time"

	cKafka "github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"go.uber.org/zap"

	"github.com/beckn-labs/catalog-indexer/internal/event"
	"github.com/beckn-labs/catalog-indexer/pkg/kafka"
	"github.com/beckn-labs/catalog-indexer/pkg/metrics"
)

// DefaultKeySpread matches the historical partition-count assumption for
// synthesized keys on keyless records.
const DefaultKeySpread = 3

// Publisher publishes a single message and confirms delivery before
// returning. *kafka.Producer satisfies it.
type Publisher interface {
	Produce(ctx context.Context, msg kafka.Msg) error
}

// ForwarderConfig configures the generic forward processor.
type ForwarderConfig struct {
	OutputTopic    string
	PublishTimeout time.Duration
	// KeySpread is the modulus used to synthesize a key for keyless
	// records, spreading them across partitions. It should track the output
	// topic's partition count.
	KeySpread int64
}

// Forwarder is the Processor for the generic event pipeline.
type Forwarder struct {
	validator *Validator
	publisher Publisher
	cfg       ForwarderConfig
	now       func() time.Time
	log       *zap.SugaredLogger
	metrics   *metrics.Metrics
}

// NewForwarder creates a Forwarder. The validator's schema is compiled once
// here, before any record is processed.
func NewForwarder(
	publisher Publisher,
	cfg ForwarderConfig,
	m *metrics.Metrics,
	log *zap.SugaredLogger,
) (*Forwarder, error) {
	validator, err := NewValidator()
	if err != nil {
		return nil, err
	}
	if cfg.KeySpread <= 0 {
		cfg.KeySpread = DefaultKeySpread
	}
	return &Forwarder{
		validator: validator,
		publisher: publisher,
		cfg:       cfg,
		now:       time.Now,
		log:       log,
		metrics:   m,
	}, nil
}

// Process validates and forwards one record. Returning an error sends the
// record to the dead-letter route; the consumer acknowledges either way.
func (f *Forwarder) Process(ctx context.Context, msg *cKafka.Message) error {
	start := f.now()
	f.metrics.IncMessageReceived(msg.TopicPartition.Partition)

	err := f.process(ctx, msg)
	f.metrics.ObserveProcessed(metrics.PipelineForward, time.Since(start), err)
	return err
}

func (f *Forwarder) process(ctx context.Context, msg *cKafka.Message) error {
	if err := f.validator.Validate(msg.Value); err != nil {
		f.metrics.IncValidationFailures()
		return err
	}

	ev, err := event.Decode(msg.Value)
	if err != nil {
		return err
	}

	key := msg.Key
	if len(key) == 0 {
		key = f.synthesizeKey()
	}

	pubCtx, cancel := context.WithTimeout(ctx, f.cfg.PublishTimeout)
	defer cancel()
	if err := f.publisher.Produce(pubCtx, kafka.Msg{
		Topic: f.cfg.OutputTopic,
		Key:   key,
		Value: msg.Value,
	}); err != nil {
		return &PublishError{Topic: f.cfg.OutputTopic, Cause: err}
	}

	f.log.Infow("forwarded event",
		"eventID", ev.ID,
		"eventType", ev.Type,
		"partition", msg.TopicPartition.Partition,
		"offset", msg.TopicPartition.Offset,
	)
	return nil
}

// synthesizeKey derives a key from a monotonic clock reading so keyless
// traffic spreads across partitions without favoring any single one.
func (f *Forwarder) synthesizeKey() []byte {
	n := f.now().UnixNano() % f.cfg.KeySpread
	return strconv.AppendInt(nil, n, 10)
}
