package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds the Prometheus metrics of one APX process. Each Registry
// has its own prometheus.Registry so tests and embedded servers do not
// collide on metric names.
type Registry struct {
	// Status API Metrics
	StatusRequestsTotal    *prometheus.CounterVec
	StatusRequestDuration  *prometheus.HistogramVec
	StatusRequestsInFlight prometheus.Gauge
	StatusResponseBytes    *prometheus.HistogramVec

	// Connection Metrics
	ConnectionsActive  prometheus.Gauge
	ConnectionsTotal   *prometheus.CounterVec
	ConnectionDuration prometheus.Histogram

	// Protocol Metrics
	MessagesTotal       *prometheus.CounterVec
	MessageBytesTotal   *prometheus.CounterVec
	ProtocolErrorsTotal *prometheus.CounterVec

	// Node Metrics
	NodesAttached          prometheus.Gauge
	PortConnectors         prometheus.Gauge
	DefinitionsParsedTotal *prometheus.CounterVec
	RoutedPortWritesTotal  prometheus.Counter

	// Event Metrics
	EventsRecordedTotal   *prometheus.CounterVec
	TapMessagesTotal      *prometheus.CounterVec
	CodegenFilesTotal     *prometheus.CounterVec
	ArtifactsUploadsTotal *prometheus.CounterVec

	started  time.Time
	registry *prometheus.Registry
}

var (
	// Global registry instance
	defaultRegistry *Registry
	once            sync.Once
)

// DefaultRegistry returns the global metrics registry
func DefaultRegistry() *Registry {
	once.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// NewRegistry creates a new metrics registry with all metrics initialized
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		started:  time.Now(),
		registry: reg,
	}

	r.initStatusMetrics()
	r.initConnectionMetrics()
	r.initProtocolMetrics()
	r.initNodeMetrics()
	r.initEventMetrics()
	r.initSystemMetrics()

	return r
}

// GetPrometheusRegistry returns the underlying Prometheus registry
func (r *Registry) GetPrometheusRegistry() *prometheus.Registry {
	return r.registry
}
