package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics for the outbox relay.
type Metrics struct {
	Published      prometheus.Counter
	PublishFailed  prometheus.Counter
	Pending        prometheus.Gauge
	PublishLatency prometheus.Histogram
}

// New creates and registers all outbox metrics.
func New() *Metrics {
	return &Metrics{
		Published: promauto.NewCounter(prometheus.CounterOpts{
			Name: "loom_outbox_published_total",
			Help: "Total number of outbox events published downstream",
		}),
		PublishFailed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "loom_outbox_publish_failed_total",
			Help: "Total number of failed publish attempts",
		}),
		Pending: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "loom_outbox_pending",
			Help: "Number of outbox events awaiting publication",
		}),
		PublishLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "loom_outbox_publish_seconds",
			Help:    "Latency of downstream publish calls",
			Buckets: prometheus.DefBuckets,
		}),
	}
}
