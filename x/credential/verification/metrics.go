package verification

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/compose-network/issuer/metrics"
)

type Metrics struct {
	Transitions *prometheus.CounterVec
}

// NewMetrics registers the coordinator metrics on the process registry.
func NewMetrics() *Metrics {
	return newMetrics(metrics.NewComponentRegistry("issuer", "verification"))
}

// NewMetricsWith registers the coordinator metrics on reg.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	return newMetrics(metrics.NewComponentRegistryWith(reg, "issuer", "verification"))
}

func newMetrics(reg *metrics.ComponentRegistry) *Metrics {
	return &Metrics{
		Transitions: reg.NewCounterVec(prometheus.CounterOpts{
			Name: "transitions_total",
			Help: "Verification transitions by action and result",
		}, []string{"action", "result"}),
	}
}

func (m *Metrics) record(action string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = credentialCode(err)
	}
	m.Transitions.WithLabelValues(action, result).Inc()
}
