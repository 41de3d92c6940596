package manager

import "github.com/prometheus/client_golang/prometheus"

var (
	loadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "relayd",
			Subsystem: "pool",
			Name:      "loads_total",
			Help:      "Client constructions by outcome",
		},
		[]string{"outcome"},
	)

	loadDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "relayd",
			Subsystem: "pool",
			Name:      "load_duration_seconds",
			Help:      "Time to construct a local client",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	evictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "relayd",
			Subsystem: "pool",
			Name:      "evictions_total",
			Help:      "Clients released from the pool by reason",
		},
		[]string{"reason"},
	)

	loadedGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "relayd",
			Subsystem: "pool",
			Name:      "loaded_models",
			Help:      "Clients currently resident",
		},
	)

	admissionWait = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "relayd",
			Subsystem: "pool",
			Name:      "admission_wait_seconds",
			Help:      "Time spent waiting for a generation slot by outcome",
			Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 15, 30, 60},
		},
		[]string{"outcome"},
	)

	loopbackGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "relayd",
			Subsystem: "pool",
			Name:      "loopback_running",
			Help:      "1 while the multimodal loopback server is up",
		},
	)
)

func init() {
	prometheus.MustRegister(loadsTotal, loadDuration, evictionsTotal, loadedGauge, admissionWait, loopbackGauge)
}
