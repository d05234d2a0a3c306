package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initConnectionMetrics() {
	r.ConnectionsActive = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "apx_connections_active",
			Help: "Number of currently connected APX clients",
		},
	)

	r.ConnectionsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "apx_connections_total",
			Help: "Total number of incoming connections by result",
		},
		[]string{"result"},
	)

	r.ConnectionDuration = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "apx_connection_duration_seconds",
			Help:    "Lifetime of client connections in seconds",
			Buckets: []float64{1, 10, 60, 300, 1800, 3600, 86400},
		},
	)
}

func (r *Registry) initProtocolMetrics() {
	r.MessagesTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "apx_rmf_messages_total",
			Help: "Total number of RMF messages by direction",
		},
		[]string{"direction"},
	)

	r.MessageBytesTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "apx_rmf_message_bytes_total",
			Help: "Total RMF payload bytes by direction",
		},
		[]string{"direction"},
	)

	r.ProtocolErrorsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "apx_rmf_errors_total",
			Help: "Total number of rejected RMF messages by kind",
		},
		[]string{"kind"},
	)
}
