package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	EventsRecorded     prometheus.Counter
	EventsRejected     prometheus.Counter
	SnapshotsComputed  prometheus.Counter
	RecomputeFailures  prometheus.Counter
	OutboxPublished    prometheus.Counter
	OutboxFailures     prometheus.Counter
	ScorecardsConsumed prometheus.Counter
	RequestDuration    *prometheus.HistogramVec
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		EventsRecorded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pulse_analytics_events_recorded_total",
			Help: "Total number of session events recorded",
		}),
		EventsRejected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pulse_analytics_events_rejected_total",
			Help: "Total number of session events rejected by validation",
		}),
		SnapshotsComputed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pulse_analytics_readiness_snapshots_total",
			Help: "Total number of readiness snapshots stored",
		}),
		RecomputeFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pulse_analytics_readiness_recompute_failures_total",
			Help: "Total number of failed readiness recomputations",
		}),
		OutboxPublished: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pulse_analytics_outbox_published_total",
			Help: "Total number of outbox entries published to Kafka",
		}),
		OutboxFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pulse_analytics_outbox_publish_failures_total",
			Help: "Total number of failed outbox publish attempts",
		}),
		ScorecardsConsumed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pulse_analytics_scorecards_consumed_total",
			Help: "Total number of orchestrator scorecard messages consumed",
		}),
		RequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pulse_analytics_http_request_duration_seconds",
			Help:    "HTTP request latency by route and status",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"route", "status"}),
	}
}

// ObserveRequest records one HTTP request observation.
func (m *Metrics) ObserveRequest(route, status string, seconds float64) {
	m.RequestDuration.WithLabelValues(route, status).Observe(seconds)
}
