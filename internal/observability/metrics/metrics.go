// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "kiosk_orchestrator"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Event metrics
	EventsAccepted *prometheus.CounterVec
	EventsRejected *prometheus.CounterVec
	EventsDropped  *prometheus.CounterVec

	// Broadcast metrics
	SubscribersActive *prometheus.GaugeVec
	FramesSent        *prometheus.CounterVec
	FramesSuppressed  prometheus.Counter
	FramesExpiredDrop prometheus.Counter

	// Pending store metrics
	PendingCreated prometheus.Counter
	PendingClosed  *prometheus.CounterVec
	PendingExpired *prometheus.CounterVec

	// Staff session metrics
	StaffLogins       prometheus.Counter
	StaffAuthFailures prometheus.Counter

	// Provider metrics
	ProviderLatency *prometheus.HistogramVec
	ProviderErrors  *prometheus.CounterVec

	// Kafka publish metrics
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics()

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		EventsAccepted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_accepted_total",
			Help:      "Total number of events accepted by the state machine",
		}, []string{"type"}),
		EventsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_rejected_total",
			Help:      "Total number of events rejected at the boundary",
		}, []string{"reason"}),
		EventsDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Total number of stale or failed events dropped by the orchestrator",
		}, []string{"reason"}),

		SubscribersActive: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "subscribers_active",
			Help:      "Number of currently connected streaming subscribers",
		}, []string{"audience"}),
		FramesSent: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_sent_total",
			Help:      "Total number of stream frames delivered",
		}, []string{"audience"}),
		FramesSuppressed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_suppressed_total",
			Help:      "Total number of snapshots suppressed as unchanged",
		}),
		FramesExpiredDrop: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_expired_dropped_total",
			Help:      "Total number of frames dropped because the bound staff session expired",
		}),

		PendingCreated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pending_created_total",
			Help:      "Total number of pending records created",
		}),
		PendingClosed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pending_closed_total",
			Help:      "Total number of pending records confirmed or denied",
		}, []string{"kind", "outcome"}),
		PendingExpired: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pending_expired_total",
			Help:      "Total number of pending records removed by housekeeping",
		}, []string{"kind"}),

		StaffLogins: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "staff_logins_total",
			Help:      "Total number of successful staff logins",
		}),
		StaffAuthFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "staff_auth_failures_total",
			Help:      "Total number of rejected staff logins or session checks",
		}),

		ProviderLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_latency_seconds",
			Help:      "Latency of provider calls in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"provider"}),
		ProviderErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_errors_total",
			Help:      "Total number of failed provider calls",
		}, []string{"provider"}),

		KafkaPublishTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_total",
			Help:      "Total number of Kafka publish attempts",
		}, []string{"topic"}),
		KafkaPublishErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_errors_total",
			Help:      "Total number of failed Kafka publishes",
		}, []string{"topic"}),
		KafkaPublishLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kafka_publish_latency_seconds",
			Help:      "Latency of Kafka publishes in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"topic"}),
	}
}

// RecordKafkaPublish records one publish attempt against topic.
func (m *Metrics) RecordKafkaPublish(topic string, err error, seconds float64) {
	m.KafkaPublishTotal.WithLabelValues(topic).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(seconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic).Inc()
	}
}

// RecordProviderCall records one provider call's latency and outcome.
func (m *Metrics) RecordProviderCall(provider string, err error, seconds float64) {
	m.ProviderLatency.WithLabelValues(provider).Observe(seconds)
	if err != nil {
		m.ProviderErrors.WithLabelValues(provider).Inc()
	}
}
