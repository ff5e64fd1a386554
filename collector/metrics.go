package collector

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SamplesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collector_samples_received_total",
			Help: "Number of samples received by transport.",
		},
		[]string{"transport"},
	)
	MalformedSamples = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collector_malformed_samples_total",
			Help: "Number of messages that did not decode as a sample.",
		},
		[]string{"transport"},
	)
	SubscriberDrops = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "collector_subscriber_drops_total",
			Help: "Number of samples not delivered to a slow subscriber.",
		},
	)
	LatestWindow = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "collector_window_bytes",
			Help: "Congestion window of the latest sample.",
		},
	)
	LatestAcked = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "collector_acked_bytes",
			Help: "Normalized acknowledged bytes of the latest sample.",
		},
	)
	LatestRTT = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "collector_rtt_seconds",
			Help: "Latest RTT of the latest sample.",
		},
	)
	requestCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collector_http_requests_total",
			Help: "Number of HTTP requests by handler and status code.",
		},
		[]string{"handler", "code"},
	)
)
