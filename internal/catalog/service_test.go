package catalog_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beckn-labs/catalog-indexer/internal/catalog"
	"github.com/beckn-labs/catalog-indexer/internal/store/memory"
	"github.com/beckn-labs/catalog-indexer/pkg/kafka"
	"github.com/beckn-labs/catalog-indexer/pkg/kafka/processor"
	"github.com/beckn-labs/catalog-indexer/pkg/kafka/testutils"
	"github.com/beckn-labs/catalog-indexer/pkg/metrics"
)

type fakePublisher struct {
	produced []kafka.Msg
	err      error
}

func (p *fakePublisher) Produce(_ context.Context, msg kafka.Msg) error {
	if p.err != nil {
		return p.err
	}
	p.produced = append(p.produced, msg)
	return nil
}

type fixture struct {
	service *catalog.Service
	store   *memory.Store
	pub     *fakePublisher
	clock   time.Time
}

func newFixture(t *testing.T) *fixture {
	m, err := metrics.New(prometheus.NewRegistry())
	require.NoError(t, err)

	f := &fixture{
		store: memory.New(),
		pub:   &fakePublisher{},
		clock: time.Date(2025, 1, 15, 10, 30, 0, 0, time.UTC),
	}
	f.service = catalog.NewService(f.store, f.pub, catalog.ServiceConfig{
		OutputTopic:    "catalog-items",
		PublishTimeout: time.Second,
	}, func() time.Time { return f.clock }, m, testutils.NewTestLogger(t))
	return f
}

const validCatalogEvent = `{
	"context": {"domain": "retail", "action": "on_search"},
	"message": {
		"catalog": {
			"providers": [
				{
					"id": "provider-1",
					"items": [
						{"id": "item-1", "descriptor": {"name": "Rice 1kg"}, "price": {"currency": "INR", "value": "120"}},
						{"id": "item-2", "descriptor": {"name": "Wheat 1kg"}, "price": {"currency": "INR", "value": "80"}}
					]
				}
			]
		}
	}
}`

func TestService_StoresItemsAndFansOut(t *testing.T) {
	f := newFixture(t)

	msg := testutils.NewTestMessage("catalog-events", 0, 1, nil, []byte(validCatalogEvent))
	require.NoError(t, f.service.Process(context.Background(), msg))

	assert.Equal(t, 2, f.store.Len())
	stored, err := f.store.FindByID(context.Background(), "item-1")
	require.NoError(t, err)
	assert.Equal(t, "Rice 1kg", stored.ItemName)
	assert.Equal(t, "provider-1", stored.ProviderID)

	require.Len(t, f.pub.produced, 2, "one event per stored item")
	for i, itemID := range []string{"item-1", "item-2"} {
		out := f.pub.produced[i]
		assert.Equal(t, "catalog-items", out.Topic)
		assert.Equal(t, []byte(itemID), out.Key, "fan-out events are keyed by item id")

		var ev catalog.ItemStoredEvent
		require.NoError(t, json.Unmarshal(out.Value, &ev))
		assert.Equal(t, catalog.EventTypeItemStored, ev.EventType)
		assert.Equal(t, itemID, ev.ItemID)
	}
}

// Reprocessing the same event must overwrite, never duplicate, and keep the
// original creation metadata.
func TestService_ReplayIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	msg := testutils.NewTestMessage("catalog-events", 0, 1, nil, []byte(validCatalogEvent))
	require.NoError(t, f.service.Process(ctx, msg))
	firstClock := f.clock

	f.clock = f.clock.Add(time.Hour)
	require.NoError(t, f.service.Process(ctx, msg))

	assert.Equal(t, 2, f.store.Len(), "replay must not duplicate items")

	stored, err := f.store.FindByID(ctx, "item-1")
	require.NoError(t, err)
	assert.Equal(t, firstClock, stored.CreatedAt, "creation time survives replay")
	assert.Equal(t, f.clock, stored.UpdatedAt, "update time moves forward")
}

func TestService_PartialExtractionStoresTheRest(t *testing.T) {
	f := newFixture(t)

	doc := `{
		"context": {"domain": "retail", "action": "on_search"},
		"message": {
			"catalog": {
				"providers": [
					{"id": "provider-1", "items": [
						{"id": "item-1"},
						{"descriptor": {"name": "no id"}},
						{"id": "item-3"}
					]}
				]
			}
		}
	}`

	msg := testutils.NewTestMessage("catalog-events", 0, 1, nil, []byte(doc))
	require.NoError(t, f.service.Process(context.Background(), msg),
		"a skipped item is a diagnostic, not a record failure")

	assert.Equal(t, 2, f.store.Len())
	assert.Len(t, f.pub.produced, 2)
}

// An event whose items all fail extraction stores nothing and is still
// acknowledged as handled.
func TestService_NoItemsExtracted(t *testing.T) {
	f := newFixture(t)

	doc := `{
		"context": {"domain": "retail", "action": "on_search"},
		"message": {"catalog": {"providers": []}}
	}`

	msg := testutils.NewTestMessage("catalog-events", 0, 1, nil, []byte(doc))
	require.NoError(t, f.service.Process(context.Background(), msg))

	assert.Zero(t, f.store.Len())
	assert.Empty(t, f.pub.produced, "no stored items, no fan-out, no error event")
}

func TestService_StructuralFailurePublishesOneErrorEvent(t *testing.T) {
	f := newFixture(t)

	doc := `{"context": {"domain": "retail", "action": "on_search"}, "message": {}}`
	msg := testutils.NewTestMessage("catalog-events", 0, 1, nil, []byte(doc))

	err := f.service.Process(context.Background(), msg)
	require.Error(t, err)
	assert.Equal(t, "InvalidFormat", processor.ClassOf(err))

	require.Len(t, f.pub.produced, 1, "exactly one error event per failed record")
	out := f.pub.produced[0]
	assert.Equal(t, []byte(catalog.UnknownProvider), out.Key)

	var ev catalog.ProcessingErrorEvent
	require.NoError(t, json.Unmarshal(out.Value, &ev))
	assert.Equal(t, catalog.EventTypeProcessingError, ev.EventType)
	assert.Equal(t, catalog.UnknownProvider, ev.ProviderID)
	assert.Contains(t, ev.ErrorMessage, "missing catalog in message")
	assert.Equal(t, doc, ev.OriginalEvent, "original payload is carried for replay")
}

// When the structure is intact enough to name a provider, the error event is
// attributed to it.
func TestService_StoreFailureAttributesProvider(t *testing.T) {
	f := newFixture(t)
	f.store.FailUpserts = errors.New("connection reset")

	msg := testutils.NewTestMessage("catalog-events", 0, 1, nil, []byte(validCatalogEvent))
	err := f.service.Process(context.Background(), msg)
	require.Error(t, err)

	var se *catalog.StoreError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "StoreFailure", processor.ClassOf(err))

	require.Len(t, f.pub.produced, 1)
	var ev catalog.ProcessingErrorEvent
	require.NoError(t, json.Unmarshal(f.pub.produced[0].Value, &ev))
	assert.Equal(t, "provider-1", ev.ProviderID)
	assert.Equal(t, []byte("provider-1"), f.pub.produced[0].Key)
}

// Shutdown mid-record: the failure is reported for redelivery but no error
// event is published.
func TestService_CanceledContextSkipsErrorEvent(t *testing.T) {
	f := newFixture(t)
	f.store.FailUpserts = errors.New("connection reset")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	msg := testutils.NewTestMessage("catalog-events", 0, 1, nil, []byte(validCatalogEvent))
	err := f.service.Process(ctx, msg)
	require.Error(t, err)
	assert.Empty(t, f.pub.produced)
}

// A fan-out publish failure never fails the record: the store write is
// already committed.
func TestService_FanOutFailureIsBestEffort(t *testing.T) {
	f := newFixture(t)
	f.pub.err = errors.New("broker down")

	msg := testutils.NewTestMessage("catalog-events", 0, 1, nil, []byte(validCatalogEvent))
	require.NoError(t, f.service.Process(context.Background(), msg))

	assert.Equal(t, 2, f.store.Len(), "items stay stored despite publish failures")
}
