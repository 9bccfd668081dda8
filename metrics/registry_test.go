package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestComponentRegistry_ReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewComponentRegistryWith(reg, "issuer", "ledger")

	c1 := r.NewCounterVec(prometheus.CounterOpts{Name: "claims_total", Help: "claims"}, []string{"result"})
	c2 := r.NewCounterVec(prometheus.CounterOpts{Name: "claims_total", Help: "claims"}, []string{"result"})

	c1.WithLabelValues("success").Inc()
	c2.WithLabelValues("success").Inc()

	require.Equal(t, 2.0, testutil.ToFloat64(c1.WithLabelValues("success")))

	n, err := testutil.GatherAndCount(reg, "issuer_ledger_claims_total")
	require.NoError(t, err)
	require.Equal(t, 1, n)
}
