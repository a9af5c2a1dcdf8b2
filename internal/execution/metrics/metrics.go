package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics for the execution manager.
type Metrics struct {
	Executions *prometheus.CounterVec
	Duration   prometheus.Histogram
}

// New creates and registers all execution metrics.
func New() *Metrics {
	return &Metrics{
		Executions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "loom_executions_total",
			Help: "Total executions by intent type and outcome",
		}, []string{"intent_type", "outcome"}),
		Duration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "loom_execution_seconds",
			Help:    "End-to-end execution duration",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// Observe records one finished execution.
func (m *Metrics) Observe(intentType, outcome string, elapsed time.Duration) {
	m.Executions.WithLabelValues(intentType, outcome).Inc()
	m.Duration.Observe(elapsed.Seconds())
}
