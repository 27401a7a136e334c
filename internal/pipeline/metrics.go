package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the cache and reconciliation counters exported on /metrics.
type Metrics struct {
	Computations   *prometheus.CounterVec
	Duration       *prometheus.HistogramVec
	SharedWaits    *prometheus.CounterVec
	Discarded      *prometheus.CounterVec
	RefreshBlocked prometheus.Counter
	Reconciled     *prometheus.CounterVec
	Sessions       prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg. A nil
// reg leaves them unregistered, which tests use.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Computations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "annoscope",
			Name:      "cache_computations_total",
			Help:      "Cache computations by kind and outcome.",
		}, []string{"kind", "outcome"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "annoscope",
			Name:      "cache_computation_seconds",
			Help:      "Duration of cache computations.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"kind"}),
		SharedWaits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "annoscope",
			Name:      "cache_shared_waits_total",
			Help:      "Callers that joined an in-flight computation.",
		}, []string{"kind"}),
		Discarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "annoscope",
			Name:      "cache_discarded_results_total",
			Help:      "Results dropped because the cache moved on while they ran.",
		}, []string{"kind"}),
		RefreshBlocked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "annoscope",
			Name:      "refresh_rejected_total",
			Help:      "Refresh requests rejected because one was already running.",
		}),
		Reconciled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "annoscope",
			Name:      "reconciled_annotations_total",
			Help:      "Annotations preserved or removed by reconciliation.",
		}, []string{"result"}),
		Sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "annoscope",
			Name:      "sessions",
			Help:      "Live review sessions.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Computations, m.Duration, m.SharedWaits, m.Discarded,
			m.RefreshBlocked, m.Reconciled, m.Sessions)
	}
	return m
}
