package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initNodeMetrics() {
	r.NodesAttached = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "apx_nodes_attached",
			Help: "Number of nodes attached to the router",
		},
	)

	r.PortConnectors = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "apx_port_connectors",
			Help: "Number of provide to require port connections",
		},
	)

	r.DefinitionsParsedTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "apx_definitions_parsed_total",
			Help: "Total number of node definitions received by parse status",
		},
		[]string{"status"},
	)

	r.RoutedPortWritesTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "apx_routed_port_writes_total",
			Help: "Total number of provide port values copied into require ports",
		},
	)
}

func (r *Registry) initEventMetrics() {
	r.EventsRecordedTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "apx_events_recorded_total",
			Help: "Total number of server events written by recorder",
		},
		[]string{"recorder"},
	)

	r.TapMessagesTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "apx_tap_messages_total",
			Help: "Total number of port updates published on the tap",
		},
		[]string{"status"},
	)

	r.CodegenFilesTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "apx_codegen_files_total",
			Help: "Total number of generated C files by status",
		},
		[]string{"status"},
	)

	r.ArtifactsUploadsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "apx_artifact_uploads_total",
			Help: "Total number of published generated files by status",
		},
		[]string{"status"},
	)
}
