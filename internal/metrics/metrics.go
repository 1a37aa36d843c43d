package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/donorhub/notify-pipeline/internal/worker"
)

// Metrics groups all Prometheus instruments used across the application.
// Registered once at startup via New(); passed by pointer wherever needed.
type Metrics struct {
	JobsCompleted    *prometheus.CounterVec
	JobsFailed       *prometheus.CounterVec
	JobsDeadLettered *prometheus.CounterVec
	JobLatency       *prometheus.HistogramVec

	EventsPublished *prometheus.CounterVec
	EventsDropped   *prometheus.CounterVec
	StreamClients   prometheus.Gauge

	QueueDepthWaiting prometheus.Gauge
	QueueDepthActive  prometheus.Gauge
	QueueDepthFailed  prometheus.Gauge
}

// New registers all instruments with the given Prometheus registerer and
// returns the populated Metrics struct.
// Using a custom registry (instead of prometheus.DefaultRegisterer) keeps
// tests isolated and avoids global state.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		JobsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jobs_completed_total",
			Help: "Total number of jobs that completed successfully.",
		}, []string{"type"}),

		JobsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jobs_failed_total",
			Help: "Total number of failed job attempts that will be retried.",
		}, []string{"type"}),

		JobsDeadLettered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jobs_dead_lettered_total",
			Help: "Total number of jobs moved to the dead-letter state.",
		}, []string{"type"}),

		JobLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "job_processing_seconds",
			Help:    "Processing latency from dequeue to ack.",
			Buckets: prometheus.DefBuckets,
		}, []string{"type"}),

		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "broadcast_events_published_total",
			Help: "Total number of events published to the broker.",
		}, []string{"topic"}),

		EventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "broadcast_events_dropped_total",
			Help: "Events dropped because a subscriber's buffer was full.",
		}, []string{"topic"}),

		StreamClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "stream_clients",
			Help: "Number of currently connected event-stream clients.",
		}),

		QueueDepthWaiting: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "queue_depth_waiting",
			Help: "Jobs waiting for delivery.",
		}),
		QueueDepthActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "queue_depth_active",
			Help: "Jobs currently held by a worker.",
		}),
		QueueDepthFailed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "queue_depth_failed",
			Help: "Jobs awaiting a retry window.",
		}),
	}

	reg.MustRegister(
		m.JobsCompleted,
		m.JobsFailed,
		m.JobsDeadLettered,
		m.JobLatency,
		m.EventsPublished,
		m.EventsDropped,
		m.StreamClients,
		m.QueueDepthWaiting,
		m.QueueDepthActive,
		m.QueueDepthFailed,
	)

	return m
}

// WorkerHooks returns the metric callbacks expected by worker.MetricHooks.
// Centralises the prometheus observation calls so worker.go stays import-free.
func (m *Metrics) WorkerHooks() worker.MetricHooks {
	return worker.MetricHooks{
		OnCompleted: func(jobType string, latency time.Duration) {
			m.JobsCompleted.WithLabelValues(jobType).Inc()
			m.JobLatency.WithLabelValues(jobType).Observe(latency.Seconds())
		},
		OnFailed: func(jobType string) {
			m.JobsFailed.WithLabelValues(jobType).Inc()
		},
		OnDeadLettered: func(jobType string) {
			m.JobsDeadLettered.WithLabelValues(jobType).Inc()
		},
	}
}

// BrokerHooks returns the publish/drop callbacks for the broker.
func (m *Metrics) BrokerHooks() (onPublished, onDropped func(topic string)) {
	onPublished = func(topic string) {
		m.EventsPublished.WithLabelValues(topic).Inc()
	}
	onDropped = func(topic string) {
		m.EventsDropped.WithLabelValues(topic).Inc()
	}
	return
}

// StreamHooks returns connect/disconnect callbacks for the streaming gateway.
func (m *Metrics) StreamHooks() (onConnect, onDisconnect func()) {
	return m.StreamClients.Inc, m.StreamClients.Dec
}
