package bootstrap

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var histogramBuckets = []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120}

// Metrics counts bootstrap runs by outcome and records their duration.
type Metrics struct {
	runs     *prometheus.CounterVec
	duration prometheus.Histogram
}

// NewMetrics registers the collectors with reg, reusing collectors that are
// already registered there. A nil reg means the default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "swapdeploy",
			Subsystem: "bootstrap",
			Name:      "runs_total",
			Help:      "Number of bootstrap runs by outcome",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "swapdeploy",
			Subsystem: "bootstrap",
			Name:      "run_duration_seconds",
			Help:      "Duration of bootstrap runs",
			Buckets:   histogramBuckets,
		}),
	}
	if err := reg.Register(m.runs); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(*prometheus.CounterVec); ok {
				m.runs = existing
			}
		}
	}
	if err := reg.Register(m.duration); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(prometheus.Histogram); ok {
				m.duration = existing
			}
		}
	}
	return m
}

func (m *Metrics) observe(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(outcome).Inc()
	m.duration.Observe(d.Seconds())
}
