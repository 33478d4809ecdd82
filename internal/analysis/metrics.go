package analysis

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	runs     *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "memorybank",
			Name:      "algorithm_runs_total",
			Help:      "Graph algorithm calls by algorithm and result status.",
		}, []string{"algorithm", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "memorybank",
			Name:      "algorithm_duration_seconds",
			Help:      "Graph algorithm call latency in seconds, including projection setup and teardown.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"algorithm"}),
	}
	if reg != nil {
		reg.MustRegister(m.runs, m.duration)
	}
	return m
}
