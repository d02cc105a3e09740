package worker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "autoapply"

// Metrics are the worker's Prometheus instruments
type Metrics struct {
	AttemptsTotal   *prometheus.CounterVec
	AttemptDuration *prometheus.HistogramVec
	InFlight        prometheus.Gauge
	StaleFinishes   prometheus.Counter
}

// NewMetrics registers the worker metrics on reg, the default registerer when nil
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		AttemptsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "worker",
				Name:      "attempts_total",
				Help:      "Finished application attempts by portal, result and failure category",
			},
			[]string{"portal", "result", "category"},
		),
		AttemptDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: "worker",
				Name:      "attempt_duration_seconds",
				Help:      "Wall time of one application attempt",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 11), // 1s to ~17min
			},
			[]string{"portal"},
		),
		InFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: "worker",
				Name:      "attempts_in_flight",
				Help:      "Attempts currently holding a browser session",
			},
		),
		StaleFinishes: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "worker",
				Name:      "stale_finishes_total",
				Help:      "Attempts whose result was discarded because the application moved on",
			},
		),
	}
}
