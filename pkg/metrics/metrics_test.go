package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func newTestMetrics(t *testing.T) *Metrics {
	m, err := New(prometheus.NewRegistry())
	require.NoError(t, err)
	return m
}

func TestNewRejectsDoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()

	_, err := New(reg)
	require.NoError(t, err)

	_, err = New(reg)
	require.Error(t, err)
	var are prometheus.AlreadyRegisteredError
	require.ErrorAs(t, err, &are)
}

func TestMessagesReceivedByPartition(t *testing.T) {
	m := newTestMetrics(t)

	m.IncMessageReceived(0)
	m.IncMessageReceived(0)
	m.IncMessageReceived(3)

	require.Equal(t, float64(2), testutil.ToFloat64(m.messagesReceived.WithLabelValues("0")))
	require.Equal(t, float64(1), testutil.ToFloat64(m.messagesReceived.WithLabelValues("3")))
	require.Equal(t, float64(0), testutil.ToFloat64(m.messagesReceived.WithLabelValues("1")))
}

func TestObserveProcessedSplitsByPipelineAndStatus(t *testing.T) {
	m := newTestMetrics(t)

	m.ObserveProcessed(PipelineForward, 10*time.Millisecond, nil)
	m.ObserveProcessed(PipelineForward, 10*time.Millisecond, errors.New("boom"))
	m.ObserveProcessed(PipelineCatalog, 10*time.Millisecond, nil)

	require.Equal(t, float64(1),
		testutil.ToFloat64(m.messagesProcessed.WithLabelValues(PipelineForward, StatusSuccess)))
	require.Equal(t, float64(1),
		testutil.ToFloat64(m.messagesProcessed.WithLabelValues(PipelineForward, StatusError)))
	require.Equal(t, float64(1),
		testutil.ToFloat64(m.messagesProcessed.WithLabelValues(PipelineCatalog, StatusSuccess)))
	require.Equal(t, float64(0),
		testutil.ToFloat64(m.messagesProcessed.WithLabelValues(PipelineCatalog, StatusError)))

	// One duration series per pipeline, success or not.
	require.Equal(t, 2, testutil.CollectAndCount(m.processingDuration))
}

func TestDeadLetteredByErrorClass(t *testing.T) {
	m := newTestMetrics(t)

	m.IncDeadLettered("SchemaValidationError")
	m.IncDeadLettered("SchemaValidationError")
	m.IncDeadLettered("StoreFailure")

	require.Equal(t, float64(2),
		testutil.ToFloat64(m.deadLettered.WithLabelValues("SchemaValidationError")))
	require.Equal(t, float64(1),
		testutil.ToFloat64(m.deadLettered.WithLabelValues("StoreFailure")))
	require.Equal(t, float64(0),
		testutil.ToFloat64(m.deadLettered.WithLabelValues("UnknownError")))
}

func TestCatalogCounters(t *testing.T) {
	m := newTestMetrics(t)

	m.AddItemsExtracted(3)
	m.AddItemsSkipped(1)
	m.AddItemsStored(3)
	m.AddItemsStored(2)
	m.IncErrorEvents()
	m.IncValidationFailures()
	m.IncValidationFailures()

	require.Equal(t, float64(3), testutil.ToFloat64(m.itemsExtracted))
	require.Equal(t, float64(1), testutil.ToFloat64(m.itemsSkipped))
	require.Equal(t, float64(5), testutil.ToFloat64(m.itemsStored))
	require.Equal(t, float64(1), testutil.ToFloat64(m.errorEvents))
	require.Equal(t, float64(2), testutil.ToFloat64(m.validationFailures))
}

func TestFanoutPublishedByStatus(t *testing.T) {
	m := newTestMetrics(t)

	m.IncFanoutPublished(nil)
	m.IncFanoutPublished(nil)
	m.IncFanoutPublished(errors.New("publish failed"))

	require.Equal(t, float64(2), testutil.ToFloat64(m.fanoutEvents.WithLabelValues(StatusSuccess)))
	require.Equal(t, float64(1), testutil.ToFloat64(m.fanoutEvents.WithLabelValues(StatusError)))
}
