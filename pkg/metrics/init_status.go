package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// initStatusMetrics covers the HTTP status API (/status, /nodes, /health...)
func (r *Registry) initStatusMetrics() {
	labels := []string{"method", "endpoint", "code"}

	r.StatusRequestsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "apx_status_requests_total",
			Help: "Status API requests by endpoint and response code",
		},
		labels,
	)

	r.StatusRequestDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "apx_status_request_duration_seconds",
			Help:    "Status API request latency in seconds",
			Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1},
		},
		labels,
	)

	r.StatusRequestsInFlight = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "apx_status_requests_in_flight",
			Help: "Status API requests being served",
		},
	)

	r.StatusResponseBytes = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "apx_status_response_bytes",
			Help:    "Status API response size in bytes",
			Buckets: prometheus.ExponentialBuckets(128, 4, 6),
		},
		[]string{"endpoint"},
	)
}
