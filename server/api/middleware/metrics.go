package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/compose-network/issuer/metrics"
)

// HTTPMetrics counts requests per route template so ids in paths do not
// explode label cardinality.
type HTTPMetrics struct {
	Requests *prometheus.CounterVec
	Duration *prometheus.HistogramVec
}

func NewHTTPMetrics() *HTTPMetrics {
	return newHTTPMetrics(metrics.NewComponentRegistry("issuer", "http"))
}

func NewHTTPMetricsWith(reg prometheus.Registerer) *HTTPMetrics {
	return newHTTPMetrics(metrics.NewComponentRegistryWith(reg, "issuer", "http"))
}

func newHTTPMetrics(reg *metrics.ComponentRegistry) *HTTPMetrics {
	return &HTTPMetrics{
		Requests: reg.NewCounterVec(prometheus.CounterOpts{
			Name: "requests_total",
			Help: "HTTP requests by route, method and status code",
		}, []string{"route", "method", "code"}),
		Duration: reg.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: metrics.DurationBuckets,
		}, []string{"route"}),
	}
}

// Instrument is a mux middleware; register it with Router.Use so the matched
// route is known.
func (m *HTTPMetrics) Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := wrapWriter(w)

		next.ServeHTTP(rw, r)

		route := "unmatched"
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		m.Requests.WithLabelValues(route, r.Method, strconv.Itoa(rw.status)).Inc()
		m.Duration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}
