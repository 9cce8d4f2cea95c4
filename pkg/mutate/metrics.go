package mutate

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments for the mutation layer.
// A nil *Metrics records nothing, so wiring metrics stays optional.
type Metrics struct {
	mutationsTotal   *prometheus.CounterVec
	mutationDuration *prometheus.HistogramVec
	inflight         prometheus.Gauge
	bulkOutcomes     *prometheus.CounterVec
}

// MetricsConfig configures the mutation metrics.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "userdeck").
	Namespace string

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer.
	Registry prometheus.Registerer

	// Buckets are the histogram buckets for mutation duration.
	// Default: prometheus.DefBuckets.
	Buckets []float64
}

// NewMetrics registers and returns the mutation metrics.
//
// Instruments:
//   - userdeck_mutations_total{kind, status}: resolved mutations
//   - userdeck_mutation_duration_seconds{kind}: apply-to-resolve latency
//   - userdeck_mutations_inflight: mutations awaiting the remote call
//   - userdeck_bulk_items_total{status}: per-record bulk outcomes
func NewMetrics(cfg MetricsConfig) *Metrics {
	if cfg.Namespace == "" {
		cfg.Namespace = "userdeck"
	}
	if cfg.Registry == nil {
		cfg.Registry = prometheus.DefaultRegisterer
	}
	if cfg.Buckets == nil {
		cfg.Buckets = prometheus.DefBuckets
	}
	factory := promauto.With(cfg.Registry)

	return &Metrics{
		mutationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: "mutations",
			Name:      "total",
			Help:      "Resolved mutations by intent kind and terminal status",
		}, []string{"kind", "status"}),

		mutationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: "mutations",
			Name:      "duration_seconds",
			Help:      "Mutation latency from optimistic apply to terminal state",
			Buckets:   cfg.Buckets,
		}, []string{"kind"}),

		inflight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: "mutations",
			Name:      "inflight",
			Help:      "Mutations currently awaiting the remote call",
		}),

		bulkOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: "mutations",
			Name:      "bulk_items_total",
			Help:      "Per-record outcomes within bulk operations",
		}, []string{"status"}),
	}
}

func (m *Metrics) callStarted() {
	if m != nil {
		m.inflight.Inc()
	}
}

func (m *Metrics) callFinished() {
	if m != nil {
		m.inflight.Dec()
	}
}

func (m *Metrics) resolved(kind string, confirmed bool, seconds float64) {
	if m == nil {
		return
	}
	status := "confirmed"
	if !confirmed {
		status = "rolled_back"
	}
	m.mutationsTotal.WithLabelValues(kind, status).Inc()
	m.mutationDuration.WithLabelValues(kind).Observe(seconds)
}

func (m *Metrics) bulkItem(confirmed bool) {
	if m == nil {
		return
	}
	status := "succeeded"
	if !confirmed {
		status = "failed"
	}
	m.bulkOutcomes.WithLabelValues(status).Inc()
}
