package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	cKafka "github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"go.uber.org/zap"

	"github.com/beckn-labs/catalog-indexer/pkg/kafka"
	"github.com/beckn-labs/catalog-indexer/pkg/metrics"
)

// StoreError reports a batch upsert whose transaction could not commit. No
// partial state is retained; the error is terminal for the record.
type StoreError struct {
	Cause error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("failed to store catalog items: %v", e.Cause)
}

func (e *StoreError) Unwrap() error { return e.Cause }

// Class implements the dead-letter error class contract.
func (e *StoreError) Class() string { return "StoreFailure" }

// Publisher publishes a single message and confirms delivery before
// returning. *kafka.Producer satisfies it.
type Publisher interface {
	Produce(ctx context.Context, msg kafka.Msg) error
}

// ServiceConfig configures the catalog materialization processor.
type ServiceConfig struct {
	OutputTopic    string
	PublishTimeout time.Duration
}

// Service is the Processor for the catalog path: extract nested items,
// upsert them in one transaction, then fan out one materialized event per
// stored item. On failure it publishes exactly one error event before
// reporting the failure for dead-lettering.
type Service struct {
	extractor *Extractor
	store     ItemStore
	publisher Publisher
	cfg       ServiceConfig
	now       func() time.Time
	log       *zap.SugaredLogger
	metrics   *metrics.Metrics
}

// NewService creates a catalog Service using the given clock. A nil clock
// defaults to time.Now.
func NewService(
	store ItemStore,
	publisher Publisher,
	cfg ServiceConfig,
	now func() time.Time,
	m *metrics.Metrics,
	log *zap.SugaredLogger,
) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{
		extractor: NewExtractor(now, log),
		store:     store,
		publisher: publisher,
		cfg:       cfg,
		now:       now,
		log:       log,
		metrics:   m,
	}
}

// Process handles one catalog event record. On success the stored items'
// events are fanned out best-effort and nil is returned. On failure one
// error event is published, then the error is returned so the consumer
// routes the original record to the dead-letter topic; either way the
// record is acknowledged by the caller.
func (s *Service) Process(ctx context.Context, msg *cKafka.Message) error {
	start := s.now()
	s.metrics.IncMessageReceived(msg.TopicPartition.Partition)

	stored, err := s.materialize(ctx, msg.Value)
	s.metrics.ObserveProcessed(metrics.PipelineCatalog, time.Since(start), err)
	if err == nil {
		s.fanOut(ctx, stored)
		return nil
	}

	if ctx.Err() != nil {
		// Shutdown mid-record: no error event, no dead-letter; the broker
		// redelivers.
		return err
	}

	s.publishErrorEvent(ctx, RecoverProviderID(msg.Value), err, msg.Value)
	return err
}

// materialize extracts and durably stores the event's items, returning the
// stored records.
func (s *Service) materialize(ctx context.Context, raw []byte) ([]Item, error) {
	extraction, err := s.extractor.Extract(raw)
	if err != nil {
		return nil, err
	}

	s.metrics.AddItemsExtracted(len(extraction.Items))
	s.metrics.AddItemsSkipped(len(extraction.Skipped))

	if len(extraction.Items) == 0 {
		s.log.Warnw("no items extracted from catalog event", "skipped", len(extraction.Skipped))
		return nil, nil
	}

	stored, err := s.store.UpsertBatch(ctx, extraction.Items)
	if err != nil {
		return nil, &StoreError{Cause: err}
	}

	s.metrics.AddItemsStored(len(stored))
	s.log.Infow("stored catalog items",
		"count", len(stored),
		"skipped", len(extraction.Skipped),
		"providerID", stored[0].ProviderID,
	)
	return stored, nil
}

// fanOut publishes one materialized event per stored item, keyed by item id.
// Publishes are best-effort: a failure is logged per item and never rolls
// back the already-committed store write.
func (s *Service) fanOut(ctx context.Context, stored []Item) {
	for _, item := range stored {
		payload, err := json.Marshal(NewItemStoredEvent(item, s.now()))
		if err != nil {
			s.metrics.IncFanoutPublished(err)
			s.log.Errorw("failed to encode item event", "itemID", item.ItemID, "error", err)
			continue
		}

		pubCtx, cancel := context.WithTimeout(ctx, s.cfg.PublishTimeout)
		err = s.publisher.Produce(pubCtx, kafka.Msg{
			Topic: s.cfg.OutputTopic,
			Key:   []byte(item.ItemID),
			Value: payload,
		})
		cancel()
		s.metrics.IncFanoutPublished(err)
		if err != nil {
			s.log.Errorw("failed to publish item event", "itemID", item.ItemID, "error", err)
			continue
		}
		s.log.Debugw("published item event", "itemID", item.ItemID)
	}
}

// publishErrorEvent publishes the single error event for a failed record,
// keyed by the best-available provider id. Failures here are logged, not
// escalated: the dead-letter route still captures the original record.
func (s *Service) publishErrorEvent(ctx context.Context, providerID string, procErr error, original []byte) {
	payload, err := json.Marshal(NewProcessingErrorEvent(providerID, procErr.Error(), original, s.now()))
	if err != nil {
		s.log.Errorw("failed to encode error event", "providerID", providerID, "error", err)
		return
	}

	pubCtx, cancel := context.WithTimeout(ctx, s.cfg.PublishTimeout)
	defer cancel()
	if err := s.publisher.Produce(pubCtx, kafka.Msg{
		Topic: s.cfg.OutputTopic,
		Key:   []byte(providerID),
		Value: payload,
	}); err != nil {
		s.log.Errorw("failed to publish error event", "providerID", providerID, "error", err)
		return
	}

	s.metrics.IncErrorEvents()
	s.log.Infow("published catalog processing error event",
		"providerID", providerID,
		"error", procErr.Error(),
	)
}
