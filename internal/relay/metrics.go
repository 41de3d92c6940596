package relay

import "github.com/prometheus/client_golang/prometheus"

var (
	callsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "relayd",
			Subsystem: "relay",
			Name:      "calls_total",
			Help:      "Relay calls by kind and finish reason",
		},
		[]string{"kind", "finish_reason"},
	)

	tokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "relayd",
			Subsystem: "relay",
			Name:      "tokens_total",
			Help:      "Prompt and completion tokens, reported or estimated",
		},
		[]string{"direction"},
	)

	callDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "relayd",
			Subsystem: "relay",
			Name:      "call_duration_seconds",
			Help:      "Relay call latency",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(callsTotal, tokensTotal, callDuration)
}
