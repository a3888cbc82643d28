package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	Namespace = "catalog_indexer"

	// Status label values for success/error metrics
	StatusSuccess = "success"
	StatusError   = "error"

	// Pipeline label values
	PipelineForward = "forward"
	PipelineCatalog = "catalog"
)

// Metrics holds all Prometheus instruments for the ingestion pipelines.
type Metrics struct {
	// Consumer message flow
	messagesReceived   *prometheus.CounterVec // by partition
	messagesProcessed  *prometheus.CounterVec // by pipeline, status
	processingDuration *prometheus.HistogramVec

	// Failure routing
	deadLettered       *prometheus.CounterVec // by error class
	errorEvents        prometheus.Counter
	validationFailures prometheus.Counter

	// Catalog materialization
	itemsExtracted prometheus.Counter
	itemsSkipped   prometheus.Counter
	itemsStored    prometheus.Counter
	fanoutEvents   *prometheus.CounterVec // by status
}

// New creates a Metrics instance and registers all instruments with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		messagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "messages_received_total",
			Help:      "Total records received from the input topic, by partition",
		}, []string{"partition"}),
		messagesProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "messages_processed_total",
			Help:      "Total records processed, by pipeline and status",
		}, []string{"pipeline", "status"}),
		processingDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "message_processing_duration_seconds",
			Help:      "Time to process a single record end-to-end",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"pipeline"}),
		deadLettered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "dead_lettered_total",
			Help:      "Total records routed to the dead-letter topic, by error class",
		}, []string{"error_class"}),
		errorEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "error_events_total",
			Help:      "Total catalog processing error events published",
		}),
		validationFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "schema_validation_failures_total",
			Help:      "Total records that failed schema validation",
		}),
		itemsExtracted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "items_extracted_total",
			Help:      "Total catalog items extracted from catalog events",
		}),
		itemsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "items_skipped_total",
			Help:      "Total catalog items or providers skipped during extraction",
		}),
		itemsStored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "items_stored_total",
			Help:      "Total catalog items durably upserted",
		}),
		fanoutEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "fanout_events_total",
			Help:      "Total materialized item events published, by status",
		}, []string{"status"}),
	}

	collectors := []prometheus.Collector{
		m.messagesReceived,
		m.messagesProcessed,
		m.processingDuration,
		m.deadLettered,
		m.errorEvents,
		m.validationFailures,
		m.itemsExtracted,
		m.itemsSkipped,
		m.itemsStored,
		m.fanoutEvents,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) IncMessageReceived(partition int32) {
	m.messagesReceived.WithLabelValues(strconv.FormatInt(int64(partition), 10)).Inc()
}

func (m *Metrics) ObserveProcessed(pipeline string, d time.Duration, err error) {
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	m.messagesProcessed.WithLabelValues(pipeline, status).Inc()
	m.processingDuration.WithLabelValues(pipeline).Observe(d.Seconds())
}

func (m *Metrics) IncDeadLettered(errorClass string) {
	m.deadLettered.WithLabelValues(errorClass).Inc()
}

func (m *Metrics) IncErrorEvents() {
	m.errorEvents.Inc()
}

func (m *Metrics) IncValidationFailures() {
	m.validationFailures.Inc()
}

func (m *Metrics) AddItemsExtracted(n int) {
	m.itemsExtracted.Add(float64(n))
}

func (m *Metrics) AddItemsSkipped(n int) {
	m.itemsSkipped.Add(float64(n))
}

func (m *Metrics) AddItemsStored(n int) {
	m.itemsStored.Add(float64(n))
}

func (m *Metrics) IncFanoutPublished(err error) {
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	m.fanoutEvents.WithLabelValues(status).Inc()
}
