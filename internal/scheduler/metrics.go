package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	runs     *prometheus.CounterVec
	payments *prometheus.CounterVec
	duration prometheus.Histogram
}

func newMetrics(reg prometheus.Registerer) *metrics {
	f := promauto.With(reg)
	return &metrics{
		runs: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "loanledger",
				Subsystem: "scheduler",
				Name:      "runs_total",
				Help:      "Scheduler runs by outcome",
			},
			[]string{"outcome"},
		),
		payments: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "loanledger",
				Subsystem: "scheduler",
				Name:      "payments_total",
				Help:      "Scheduled EMI payments by result",
			},
			[]string{"result"},
		),
		duration: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "loanledger",
				Subsystem: "scheduler",
				Name:      "run_duration_seconds",
				Help:      "Duration of scheduler runs in seconds",
				Buckets:   prometheus.DefBuckets,
			},
		),
	}
}
