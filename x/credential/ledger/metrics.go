package ledger

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/compose-network/issuer/metrics"
)

type Metrics struct {
	Claims        *prometheus.CounterVec
	RelayDuration prometheus.Histogram
	NoncesBurned  prometheus.Counter
	Attempts      prometheus.Histogram
	InFlight      prometheus.Gauge
}

func NewMetrics() *Metrics {
	return newMetrics(metrics.NewComponentRegistry("issuer", "ledger"))
}

func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	return newMetrics(metrics.NewComponentRegistryWith(reg, "issuer", "ledger"))
}

func newMetrics(reg *metrics.ComponentRegistry) *Metrics {
	return &Metrics{
		Claims: reg.NewCounterVec(prometheus.CounterOpts{
			Name: "claims_total",
			Help: "Certificate claims by result",
		}, []string{"result"}),

		RelayDuration: reg.NewHistogram(prometheus.HistogramOpts{
			Name:    "relay_duration_seconds",
			Help:    "Duration of relay mint calls",
			Buckets: metrics.DurationBuckets,
		}),

		NoncesBurned: reg.NewCounter(prometheus.CounterOpts{
			Name: "nonces_burned_total",
			Help: "Nonces consumed by relay attempts",
		}),

		Attempts: reg.NewHistogram(prometheus.HistogramOpts{
			Name:    "claim_attempts",
			Help:    "Authorizations relayed per claim",
			Buckets: metrics.CountBuckets,
		}),

		InFlight: reg.NewGauge(prometheus.GaugeOpts{
			Name: "claims_in_flight",
			Help: "Reserved achievements with a claim in progress",
		}),
	}
}
