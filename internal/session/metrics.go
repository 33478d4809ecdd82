package session

import "github.com/prometheus/client_golang/prometheus"

type registryMetrics struct {
	sessionsOpen prometheus.Gauge
	initTotal    *prometheus.CounterVec
}

func newRegistryMetrics(reg prometheus.Registerer) *registryMetrics {
	m := &registryMetrics{
		sessionsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "memorybank",
			Name:      "sessions_open",
			Help:      "Number of project databases currently open.",
		}),
		initTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "memorybank",
			Name:      "session_init_total",
			Help:      "Project database initializations by result.",
		}, []string{"result"}),
	}
	if reg != nil {
		reg.MustRegister(m.sessionsOpen, m.initTotal)
	}
	return m
}
