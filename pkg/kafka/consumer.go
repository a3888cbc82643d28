package kafka

import (
	"context"
	"fmt"
	"sync"

	cKafka "github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"go.uber.org/zap"

	"github.com/beckn-labs/catalog-indexer/pkg/kafka/processor"
	"github.com/beckn-labs/catalog-indexer/pkg/metrics"
)

const (
	defaultSessionTimeout  = 240_000
	defaultMaxPollInterval = 3_400_000
)

// Consumer consumes records from a single topic and dispatches each one to a
// Processor, one worker per assigned partition.
//
// Within a partition, records are processed strictly in arrival order, one
// at a time; across partitions, workers run in parallel. A record's offset
// is handed to the offset manager only after the processor has either fully
// applied its side effects or the failure was routed to the dead-letter
// topic, so no record is acknowledged before its outcome is externally
// visible.
type Consumer struct {
	processor   processor.Processor
	consumer    *cKafka.Consumer
	dlqProducer *Producer
	dlq         *DeadLetterRouter
	offsets     *OffsetManager
	log         *zap.SugaredLogger
	cfg         ConsumerConfig
	metrics     *metrics.Metrics

	workersMu sync.Mutex
	workers   map[int32]*partitionWorker

	errCh chan error
}

// partitionWorker serializes processing for one assigned partition. Closing
// ch drains the remaining records; done is closed when the worker exits.
type partitionWorker struct {
	ch   chan *cKafka.Message
	done chan struct{}
}

// NewConsumer creates a Consumer. Unless cfg.IsDLQConsumer is set, failed
// records are republished to cfg.DLQTopic via a dedicated idempotent
// producer.
func NewConsumer(
	ctx context.Context,
	log *zap.SugaredLogger,
	cfg ConsumerConfig,
	proc processor.Processor,
	m *metrics.Metrics,
) (*Consumer, error) {
	cfg = cfg.WithDefaults()

	consumerConfig := cKafka.ConfigMap{
		"bootstrap.servers":             cfg.BootstrapServers,
		"group.id":                      cfg.GroupID,
		"auto.offset.reset":             cfg.AutoOffsetReset,
		"enable.auto.commit":            false,
		"session.timeout.ms":            defaultSessionTimeout,
		"max.poll.interval.ms":          defaultMaxPollInterval,
		"partition.assignment.strategy": "roundrobin",
	}
	consumer, err := cKafka.NewConsumer(&consumerConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka consumer: %w", err)
	}

	c := &Consumer{
		consumer:  consumer,
		processor: proc,
		log:       log,
		cfg:       cfg,
		metrics:   m,
		workers:   make(map[int32]*partitionWorker),
		errCh:     make(chan error, 1),
	}

	if !cfg.IsDLQConsumer {
		dlqProducerConfig := cKafka.ConfigMap{
			"bootstrap.servers":  cfg.BootstrapServers,
			"acks":               "all",
			"linger.ms":          5,
			"batch.size":         16384,
			"compression.type":   "lz4",
			"enable.idempotence": true,
		}
		c.dlqProducer, err = NewProducer(ctx, &dlqProducerConfig, log)
		if err != nil {
			return nil, fmt.Errorf("failed to create DLQ producer: %w", err)
		}
		c.dlq, err = NewDeadLetterRouter(c.dlqProducer, cfg.DLQTopic, log)
		if err != nil {
			return nil, err
		}
	}

	c.offsets = NewOffsetManager(
		ctx,
		consumer,
		cfg.OffsetCommitInterval,
		cfg.AutoOffsetReset,
		false,
		log,
	)

	return c, nil
}

// Start runs the poll loop until the context is canceled or a fatal error
// occurs. It blocks; run it in its own goroutine or errgroup.
func (c *Consumer) Start(ctx context.Context) error {
	ctxWithCancel, cancel := context.WithCancel(ctx)
	defer cancel()

	if c.cfg.IsDLQConsumer {
		c.log.Warnw("consumer is subscribed to a dead-letter topic, failures will NOT be re-routed",
			"topic", c.cfg.Topic,
		)
	}

	if err := c.consumer.SubscribeTopics([]string{c.cfg.Topic}, c.rebalanceCallback(ctxWithCancel)); err != nil {
		return fmt.Errorf("failed to subscribe to topic %q: %w", c.cfg.Topic, err)
	}

	var dlqErrors <-chan error
	if c.dlqProducer != nil {
		dlqErrors = c.dlqProducer.Errors()
	}

	run := true
	for run {
		select {
		case <-ctx.Done():
			c.log.Info("context done, shutting down consumer")
			run = false
			continue
		case err := <-dlqErrors:
			c.log.Errorw("fatal error from DLQ producer, shutting down consumer", "error", err)
			run = false
			continue
		case err := <-c.errCh:
			c.log.Errorw("fatal consumer error, shutting down", "error", err)
			run = false
			continue
		default:
			ev := c.consumer.Poll(100)
			if ev == nil {
				continue
			}

			switch msg := ev.(type) {
			case *cKafka.Message:
				c.dispatch(ctxWithCancel, msg)
			case cKafka.Error:
				if msg.IsFatal() {
					c.log.Errorw("fatal kafka error", "error", msg)
					run = false
					continue
				}
				c.log.Warnw("kafka error (non-fatal)", "error", msg)
			default:
				c.log.Debugw("ignoring kafka event", "event", msg)
			}
		}
	}

	err := c.close(ctx)
	if err != nil {
		c.log.Errorw("failed to close consumer", "error", err)
	}

	c.log.Info("consumer shutdown complete")
	return err
}

// dispatch routes a record to its partition's worker. The send blocks when
// the worker's buffer is full, which backpressures the poll loop and keeps
// per-partition ordering intact.
func (c *Consumer) dispatch(ctx context.Context, msg *cKafka.Message) {
	c.workersMu.Lock()
	w, ok := c.workers[msg.TopicPartition.Partition]
	c.workersMu.Unlock()
	if !ok {
		// Assignment raced with a rebalance; the record will be redelivered
		// to whichever consumer now owns the partition.
		c.log.Warnw("no worker for partition, dropping record",
			"partition", msg.TopicPartition.Partition,
			"offset", msg.TopicPartition.Offset,
		)
		return
	}

	select {
	case w.ch <- msg:
	case <-ctx.Done():
	}
}

// handle processes a single record end-to-end: process, dead-letter on
// terminal failure, then acknowledge. Called only from partition workers,
// one record at a time per partition.
func (c *Consumer) handle(ctx context.Context, msg *cKafka.Message) {
	err := c.processor.Process(ctx, msg)
	if err != nil {
		if ctx.Err() != nil {
			// Shutdown or revocation mid-record. Leave the record
			// unacknowledged; the group will redeliver it.
			return
		}

		if c.dlq != nil {
			errClass := processor.ClassOf(err)
			if routeErr := c.dlq.Route(ctx, msg, err.Error(), errClass); routeErr != nil {
				c.log.Errorw("failed to route record to dead-letter topic",
					"error", routeErr,
					"processingError", err,
					"partition", msg.TopicPartition.Partition,
					"offset", msg.TopicPartition.Offset,
				)
			} else {
				c.metrics.IncDeadLettered(errClass)
			}
		} else {
			c.log.Errorw("processing failed on dead-letter consumer, acknowledging without re-route",
				"error", err,
				"partition", msg.TopicPartition.Partition,
				"offset", msg.TopicPartition.Offset,
			)
		}
	}

	c.offsets.InsertOffsetWithRetry(ctx, msg)
}

func (c *Consumer) runWorker(ctx context.Context, partition int32, w *partitionWorker) {
	defer close(w.done)
	c.log.Debugw("partition worker started", "partition", partition)
	for msg := range w.ch {
		c.handle(ctx, msg)
	}
	c.log.Debugw("partition worker stopped", "partition", partition)
}

// rebalanceCallback creates and tears down partition workers as the group
// assigns and revokes partitions. On revocation, each worker drains its
// in-flight records before the assignment is released.
func (c *Consumer) rebalanceCallback(ctx context.Context) cKafka.RebalanceCb {
	return func(kc *cKafka.Consumer, event cKafka.Event) error {
		switch ev := event.(type) {
		case cKafka.AssignedPartitions:
			c.log.Infow("partitions assigned",
				"protocol", kc.GetRebalanceProtocol(),
				"count", len(ev.Partitions),
				"partitions", ev.Partitions,
			)
			c.workersMu.Lock()
			for _, partition := range ev.Partitions {
				if _, exists := c.workers[partition.Partition]; exists {
					continue
				}
				w := &partitionWorker{
					ch:   make(chan *cKafka.Message, c.cfg.PartitionBuffer),
					done: make(chan struct{}),
				}
				c.workers[partition.Partition] = w
				go c.runWorker(ctx, partition.Partition, w)
			}
			c.workersMu.Unlock()

		case cKafka.RevokedPartitions:
			c.log.Infow("partitions revoked",
				"protocol", kc.GetRebalanceProtocol(),
				"count", len(ev.Partitions),
				"partitions", ev.Partitions,
			)
			if kc.AssignmentLost() {
				c.log.Error("assignment lost involuntarily, commit may fail")
			}
			c.stopWorkers(partitionNumbers(ev.Partitions))
		default:
			c.log.Warnw("unexpected rebalance event", "event", event)
		}
		return c.offsets.RebalanceCb(kc, event)
	}
}

// stopWorkers closes the given partitions' workers and waits for each to
// finish its current record and drain its buffer.
func (c *Consumer) stopWorkers(partitions []int32) {
	c.workersMu.Lock()
	stopping := make([]*partitionWorker, 0, len(partitions))
	for _, p := range partitions {
		if w, ok := c.workers[p]; ok {
			close(w.ch)
			stopping = append(stopping, w)
			delete(c.workers, p)
		}
	}
	c.workersMu.Unlock()

	for _, w := range stopping {
		<-w.done
	}
}

func (c *Consumer) close(ctx context.Context) error {
	c.workersMu.Lock()
	remaining := make([]int32, 0, len(c.workers))
	for p := range c.workers {
		remaining = append(remaining, p)
	}
	c.workersMu.Unlock()
	c.stopWorkers(remaining)

	if c.dlqProducer != nil {
		c.dlqProducer.Close(c.cfg.FlushTimeout)
	}
	return c.consumer.Close()
}

func partitionNumbers(tps []cKafka.TopicPartition) []int32 {
	out := make([]int32, len(tps))
	for i, tp := range tps {
		out[i] = tp.Partition
	}
	return out
}
