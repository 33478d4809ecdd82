package projection

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts projection lifecycle calls. One instance is shared by every
// Manager of a process.
type Metrics struct {
	ops *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "memorybank",
			Name:      "projection_ops_total",
			Help:      "Projected graph create and drop calls by result.",
		}, []string{"op", "result"}),
	}
	if reg != nil {
		reg.MustRegister(m.ops)
	}
	return m
}
