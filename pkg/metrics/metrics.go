package metrics

import (
	"strconv"
	"time"
)

// Message directions
const (
	DirectionIn  = "in"
	DirectionOut = "out"
)

// RecordStatusRequest records one status API response. endpoint must be a
// fixed route name, never a raw request path.
func (r *Registry) RecordStatusRequest(method, endpoint string, code int, duration time.Duration, size int) {
	c := strconv.Itoa(code)
	r.StatusRequestsTotal.WithLabelValues(method, endpoint, c).Inc()
	r.StatusRequestDuration.WithLabelValues(method, endpoint, c).Observe(duration.Seconds())
	r.StatusResponseBytes.WithLabelValues(endpoint).Observe(float64(size))
}

// RecordConnectionAccepted counts an accepted connection and bumps the active gauge
func (r *Registry) RecordConnectionAccepted() {
	r.ConnectionsTotal.WithLabelValues("accepted").Inc()
	r.ConnectionsActive.Inc()
}

// RecordConnectionRejected counts a connection closed at the connection limit
func (r *Registry) RecordConnectionRejected() {
	r.ConnectionsTotal.WithLabelValues("rejected").Inc()
}

// RecordConnectionClosed records the end of an accepted connection
func (r *Registry) RecordConnectionClosed(lifetime time.Duration) {
	r.ConnectionsActive.Dec()
	r.ConnectionDuration.Observe(lifetime.Seconds())
}

// RecordMessage records one RMF message of size bytes
func (r *Registry) RecordMessage(direction string, size int) {
	r.MessagesTotal.WithLabelValues(direction).Inc()
	r.MessageBytesTotal.WithLabelValues(direction).Add(float64(size))
}

// RecordProtocolError records a rejected message
func (r *Registry) RecordProtocolError(kind string) {
	r.ProtocolErrorsTotal.WithLabelValues(kind).Inc()
}

// RecordDefinition records a received node definition
func (r *Registry) RecordDefinition(status string) {
	r.DefinitionsParsedTotal.WithLabelValues(status).Inc()
}

// UpdateRouterMetrics updates node and connector gauges
func (r *Registry) UpdateRouterMetrics(nodes, connectors int) {
	r.NodesAttached.Set(float64(nodes))
	r.PortConnectors.Set(float64(connectors))
}

// RecordRoutedWrites records n provide to require copies
func (r *Registry) RecordRoutedWrites(n int) {
	r.RoutedPortWritesTotal.Add(float64(n))
}

// RecordEvent records one event written by the named recorder
func (r *Registry) RecordEvent(recorder string) {
	r.EventsRecordedTotal.WithLabelValues(recorder).Inc()
}

// RecordTapMessage records a tap publish attempt
func (r *Registry) RecordTapMessage(status string) {
	r.TapMessagesTotal.WithLabelValues(status).Inc()
}

// RecordCodegenFile records one generated file
func (r *Registry) RecordCodegenFile(status string) {
	r.CodegenFilesTotal.WithLabelValues(status).Inc()
}

// RecordArtifactUpload records one published file
func (r *Registry) RecordArtifactUpload(status string) {
	r.ArtifactsUploadsTotal.WithLabelValues(status).Inc()
}

// Uptime returns the time since the registry was created
func (r *Registry) Uptime() time.Duration {
	return time.Since(r.started)
}
