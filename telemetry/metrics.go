package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SamplesDropped counts samples that never reached a sink.
	SamplesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telemetry_samples_dropped_total",
			Help: "Number of samples dropped by the telemetry emitter.",
		},
		[]string{"reason"},
	)
	SamplesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "telemetry_samples_sent_total",
			Help: "Number of samples written to the telemetry sink.",
		},
	)
	SinkErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telemetry_sink_errors_total",
			Help: "Number of failed writes per sink.",
		},
		[]string{"sink"},
	)
)
