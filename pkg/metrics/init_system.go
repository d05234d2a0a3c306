package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// initSystemMetrics registers the Go runtime and process collectors and an
// uptime gauge evaluated at scrape time
func (r *Registry) initSystemMetrics() {
	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	promauto.With(r.registry).NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "apx_uptime_seconds",
			Help: "Seconds since the metrics registry was created",
		},
		func() float64 { return time.Since(r.started).Seconds() },
	)
}
