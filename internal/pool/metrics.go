package pool

import "github.com/prometheus/client_golang/prometheus"

var (
	acquireTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "classifyd",
			Subsystem: "pool",
			Name:      "acquire_total",
			Help:      "Acquire attempts by result",
		},
		[]string{"pool", "result"},
	)

	acquireWait = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "classifyd",
			Subsystem: "pool",
			Name:      "acquire_wait_seconds",
			Help:      "Time spent waiting for a handle in successful acquires",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"pool"},
	)

	warmupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "classifyd",
			Subsystem: "pool",
			Name:      "warmups_total",
			Help:      "Handles that completed their first prediction",
		},
		[]string{"pool"},
	)

	predictDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "classifyd",
			Subsystem: "pool",
			Name:      "predict_duration_seconds",
			Help:      "Backend prediction latency; phase=cold for a handle's first call",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"pool", "phase"},
	)

	busyHandles = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "classifyd",
			Subsystem: "pool",
			Name:      "busy_handles",
			Help:      "Handles currently held by callers",
		},
		[]string{"pool"},
	)
)

func init() {
	prometheus.MustRegister(acquireTotal, acquireWait, warmupsTotal, predictDuration, busyHandles)
}

// poolMetrics are the collectors above bound to one pool's name.
type poolMetrics struct {
	acquire     *prometheus.CounterVec
	acquireWait prometheus.Observer
	warmups     prometheus.Counter
	predict     prometheus.ObserverVec
	busy        prometheus.Gauge
}

func newPoolMetrics(name string) poolMetrics {
	l := prometheus.Labels{"pool": name}
	return poolMetrics{
		acquire:     acquireTotal.MustCurryWith(l),
		acquireWait: acquireWait.WithLabelValues(name),
		warmups:     warmupsTotal.WithLabelValues(name),
		predict:     predictDuration.MustCurryWith(l),
		busy:        busyHandles.WithLabelValues(name),
	}
}

func phaseLabel(cold bool) string {
	if cold {
		return "cold"
	}
	return "warm"
}
