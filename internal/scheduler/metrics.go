package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Events     *prometheus.CounterVec
	Sweeps     *prometheus.CounterVec
	QueueDepth prometheus.Gauge
}

// NewMetrics registers the scheduler metrics on reg, the default registerer when nil
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		Events: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "autoapply",
				Subsystem: "scheduler",
				Name:      "events_total",
				Help:      "Lifecycle events: enqueued, manual_retry, auto_retry, stale, redispatch, dispatch_failed",
			},
			[]string{"event"},
		),
		Sweeps: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "autoapply",
				Subsystem: "scheduler",
				Name:      "sweeps_total",
				Help:      "Sweep runs by job and result",
			},
			[]string{"sweep", "result"},
		),
		QueueDepth: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "autoapply",
				Subsystem: "scheduler",
				Name:      "local_queue_depth",
				Help:      "Application ids waiting in the local worker pool",
			},
		),
	}
}
