package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	Namespace = "eventqueue"

	// Status label values for success/error metrics
	StatusSuccess = "success"
	StatusError   = "error"

	Directory = "directory"
	Publisher = "publisher"
	Consumer  = "consumer"

	// Lookup results for the queue directory
	LookupHit    = "hit"
	LookupMiss   = "miss"
	LookupAbsent = "absent"
)

// Labels holds constant labels applied to all metrics.
// These are useful for distinguishing metrics from multiple dispatcher instances.
type Labels struct {
	Backend       string // Queue backend (e.g., "sqs", "redis", "memory")
	Environment   string // Deployment environment (e.g., "production", "staging", "development")
	Region        string // Cloud region (e.g., "us-east-1", "eu-west-1")
	CloudProvider string // Cloud provider (e.g., "aws", "oci", "gcp")
}

// toPrometheusLabels converts Labels to prometheus.Labels map.
// Only non-empty labels are included to avoid empty label values.
func (l Labels) toPrometheusLabels() prometheus.Labels {
	labels := prometheus.Labels{}
	if l.Backend != "" {
		labels["backend"] = l.Backend
	}
	if l.Environment != "" {
		labels["environment"] = l.Environment
	}
	if l.Region != "" {
		labels["region"] = l.Region
	}
	if l.CloudProvider != "" {
		labels["cloud_provider"] = l.CloudProvider
	}
	return labels
}

type Metrics struct {
	// Queue directory
	lookups       *prometheus.CounterVec // by result
	queuesCreated *prometheus.CounterVec // by status

	// Publishing
	published       *prometheus.CounterVec   // by queue, status
	publishDuration *prometheus.HistogramVec // by queue

	// Consuming
	receives           *prometheus.CounterVec   // by queue, status
	emptyReceives      *prometheus.CounterVec   // by queue
	malformed          *prometheus.CounterVec   // by queue
	messagesProcessed  *prometheus.CounterVec   // by queue, status
	processingDuration *prometheus.HistogramVec // by queue
	deletes            *prometheus.CounterVec   // by queue, status
	messagesInFlight   prometheus.Gauge
	activeListeners    prometheus.Gauge
}

// New creates a new Metrics instance and registers all metrics with the provided registerer.
// Returns an error if any metric registration fails.
// For metrics with constant labels (e.g., region), use NewWithLabels instead.
func New(reg prometheus.Registerer) (*Metrics, error) {
	return NewWithLabels(reg, Labels{})
}

// NewWithLabels creates a new Metrics instance with constant labels applied to all metrics.
func NewWithLabels(reg prometheus.Registerer, labels Labels) (*Metrics, error) {
	promLabels := labels.toPrometheusLabels()
	if len(promLabels) > 0 {
		reg = prometheus.WrapRegistererWith(promLabels, reg)
	}

	return newMetrics(reg)
}

func newMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Directory,
			Name:      "lookups_total",
			Help:      "Queue URL resolutions by result (cache hit, service miss, absent)",
		}, []string{"result"}),
		queuesCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Directory,
			Name:      "queues_created_total",
			Help:      "Queue creation attempts by status",
		}, []string{"status"}),
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Publisher,
			Name:      "messages_total",
			Help:      "Messages published by queue and status",
		}, []string{"queue", "status"}),
		publishDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: Publisher,
			Name:      "duration_seconds",
			Help:      "Time to resolve the queue and submit a message",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"queue"}),
		receives: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Consumer,
			Name:      "receives_total",
			Help:      "Receive requests issued by queue and status",
		}, []string{"queue", "status"}),
		emptyReceives: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Consumer,
			Name:      "empty_receives_total",
			Help:      "Long polls that returned no message",
		}, []string{"queue"}),
		malformed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Consumer,
			Name:      "malformed_messages_total",
			Help:      "Messages left unacknowledged because the body is not valid JSON",
		}, []string{"queue"}),
		messagesProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Consumer,
			Name:      "messages_processed_total",
			Help:      "Handler invocations by queue and status",
		}, []string{"queue", "status"}),
		processingDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: Consumer,
			Name:      "message_processing_duration_seconds",
			Help:      "Handler duration including acknowledgement",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"queue"}),
		deletes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Consumer,
			Name:      "deletes_total",
			Help:      "Message acknowledgements by queue and status",
		}, []string{"queue", "status"}),
		messagesInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: Consumer,
			Name:      "messages_in_flight",
			Help:      "Number of messages currently being handled",
		}),
		activeListeners: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: Consumer,
			Name:      "active_listeners",
			Help:      "Number of subscriptions currently polling",
		}),
	}

	err := errors.Join(
		reg.Register(m.lookups),
		reg.Register(m.queuesCreated),
		reg.Register(m.published),
		reg.Register(m.publishDuration),
		reg.Register(m.receives),
		reg.Register(m.emptyReceives),
		reg.Register(m.malformed),
		reg.Register(m.messagesProcessed),
		reg.Register(m.processingDuration),
		reg.Register(m.deletes),
		reg.Register(m.messagesInFlight),
		reg.Register(m.activeListeners),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

func status(err error) string {
	if err != nil {
		return StatusError
	}
	return StatusSuccess
}

// RecordLookup records a queue directory resolution with its result.
func (m *Metrics) RecordLookup(result string) {
	if m == nil {
		return
	}
	m.lookups.WithLabelValues(result).Inc()
}

// RecordQueueCreated records a queue creation attempt.
func (m *Metrics) RecordQueueCreated(err error) {
	if m == nil {
		return
	}
	m.queuesCreated.WithLabelValues(status(err)).Inc()
}

// RecordPublish records a publish outcome with duration.
func (m *Metrics) RecordPublish(queue string, err error, durationSeconds float64) {
	if m == nil {
		return
	}
	m.published.WithLabelValues(queue, status(err)).Inc()
	m.publishDuration.WithLabelValues(queue).Observe(durationSeconds)
}

// RecordReceive records a receive request outcome.
func (m *Metrics) RecordReceive(queue string, err error) {
	if m == nil {
		return
	}
	m.receives.WithLabelValues(queue, status(err)).Inc()
}

// IncEmptyReceive records a long poll that returned no message.
func (m *Metrics) IncEmptyReceive(queue string) {
	if m == nil {
		return
	}
	m.emptyReceives.WithLabelValues(queue).Inc()
}

// IncMalformed records a message whose body could not be parsed.
func (m *Metrics) IncMalformed(queue string) {
	if m == nil {
		return
	}
	m.malformed.WithLabelValues(queue).Inc()
}

// RecordMessageProcessed records a handler outcome with duration.
// Pass nil error for successful processing, non-nil for failures.
func (m *Metrics) RecordMessageProcessed(queue string, err error, durationSeconds float64) {
	if m == nil {
		return
	}
	m.messagesProcessed.WithLabelValues(queue, status(err)).Inc()
	m.processingDuration.WithLabelValues(queue).Observe(durationSeconds)
}

// RecordDelete records an acknowledgement attempt.
func (m *Metrics) RecordDelete(queue string, err error) {
	if m == nil {
		return
	}
	m.deletes.WithLabelValues(queue, status(err)).Inc()
}

// IncMessagesInFlight increments the in-flight message gauge.
func (m *Metrics) IncMessagesInFlight() {
	if m == nil {
		return
	}
	m.messagesInFlight.Inc()
}

// DecMessagesInFlight decrements the in-flight message gauge.
func (m *Metrics) DecMessagesInFlight() {
	if m == nil {
		return
	}
	m.messagesInFlight.Dec()
}

// IncActiveListeners increments the active listener gauge.
func (m *Metrics) IncActiveListeners() {
	if m == nil {
		return
	}
	m.activeListeners.Inc()
}

// DecActiveListeners decrements the active listener gauge.
func (m *Metrics) DecActiveListeners() {
	if m == nil {
		return
	}
	m.activeListeners.Dec()
}
