package congestion_periodic

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AccountingAnomalies counts events that would have driven a counter
	// below zero or produced an unusable sample.
	AccountingAnomalies = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "periodic_accounting_anomalies_total",
			Help: "Number of accounting anomalies by event.",
		},
		[]string{"event"},
	)
	// ModeTransitions counts state machine transitions.
	ModeTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "periodic_mode_transitions_total",
			Help: "Number of operating mode transitions.",
		},
		[]string{"from", "to"},
	)
	SamplesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "periodic_samples_total",
			Help: "Number of samples recorded by the response analyzer.",
		},
	)
	CongestionWindowHistogram = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "periodic_congestion_window_bytes",
			Help: "Congestion window computed on each modulation tick.",
			Buckets: prometheus.ExponentialBuckets(
				float64(2*DefaultMaxDatagramSize), 2, 14),
		},
	)
)
