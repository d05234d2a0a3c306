package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, vec *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()
	counter, err := vec.GetMetricWithLabelValues(labels...)
	if err != nil {
		t.Fatalf("Failed to get metric: %v", err)
	}
	var metric dto.Metric
	if err := counter.Write(&metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	return metric.Counter.GetValue()
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var metric dto.Metric
	if err := g.Write(&metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	return metric.Gauge.GetValue()
}

func TestNewRegistry(t *testing.T) {
	r := NewRegistry()
	if r == nil {
		t.Fatal("NewRegistry() returned nil")
	}

	// Verify all metrics are initialized
	if r.StatusRequestsTotal == nil {
		t.Error("StatusRequestsTotal not initialized")
	}
	if r.ConnectionsActive == nil {
		t.Error("ConnectionsActive not initialized")
	}
	if r.MessagesTotal == nil {
		t.Error("MessagesTotal not initialized")
	}
	if r.CodegenFilesTotal == nil {
		t.Error("CodegenFilesTotal not initialized")
	}
	if r.registry == nil {
		t.Error("Prometheus registry not initialized")
	}
}

func TestDefaultRegistry(t *testing.T) {
	// Should return the same instance
	r1 := DefaultRegistry()
	r2 := DefaultRegistry()

	if r1 != r2 {
		t.Error("DefaultRegistry() should return the same instance")
	}
}

func TestRecordStatusRequest(t *testing.T) {
	r := NewRegistry()

	r.RecordStatusRequest("GET", "nodes", 200, 100*time.Millisecond, 512)
	r.RecordStatusRequest("GET", "nodes", 200, 20*time.Millisecond, 600)
	r.RecordStatusRequest("GET", "definitions", 500, 50*time.Millisecond, 40)

	if got := counterValue(t, r.StatusRequestsTotal, "GET", "nodes", "200"); got != 2 {
		t.Errorf("Counter value = %v, want 2", got)
	}
	if got := counterValue(t, r.StatusRequestsTotal, "GET", "definitions", "500"); got != 1 {
		t.Errorf("Counter value = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(r.StatusResponseBytes); got != 2 {
		t.Errorf("response size series = %d, want 2", got)
	}
}

func TestConnectionMetrics(t *testing.T) {
	r := NewRegistry()

	r.RecordConnectionAccepted()
	r.RecordConnectionAccepted()
	r.RecordConnectionRejected()
	r.RecordConnectionClosed(2 * time.Second)

	if got := gaugeValue(t, r.ConnectionsActive); got != 1 {
		t.Errorf("ConnectionsActive = %v, want 1", got)
	}
	if got := counterValue(t, r.ConnectionsTotal, "accepted"); got != 2 {
		t.Errorf("accepted = %v, want 2", got)
	}
	if got := counterValue(t, r.ConnectionsTotal, "rejected"); got != 1 {
		t.Errorf("rejected = %v, want 1", got)
	}

	var metric dto.Metric
	if err := r.ConnectionDuration.Write(&metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	if metric.Histogram.GetSampleCount() != 1 {
		t.Errorf("Connection duration sample count = %v, want 1", metric.Histogram.GetSampleCount())
	}
}

func TestProtocolMetrics(t *testing.T) {
	r := NewRegistry()

	r.RecordMessage(DirectionIn, 9)
	r.RecordMessage(DirectionIn, 100)
	r.RecordMessage(DirectionOut, 8)
	r.RecordProtocolError("invalid_write")

	if got := counterValue(t, r.MessagesTotal, DirectionIn); got != 2 {
		t.Errorf("messages in = %v, want 2", got)
	}
	if got := counterValue(t, r.MessageBytesTotal, DirectionIn); got != 109 {
		t.Errorf("bytes in = %v, want 109", got)
	}
	if got := counterValue(t, r.MessageBytesTotal, DirectionOut); got != 8 {
		t.Errorf("bytes out = %v, want 8", got)
	}
	if got := counterValue(t, r.ProtocolErrorsTotal, "invalid_write"); got != 1 {
		t.Errorf("invalid_write = %v, want 1", got)
	}
}

func TestNodeMetrics(t *testing.T) {
	r := NewRegistry()

	r.UpdateRouterMetrics(3, 7)
	r.RecordRoutedWrites(4)
	r.RecordDefinition("success")
	r.RecordDefinition("error")
	r.RecordDefinition("success")

	tests := []struct {
		name     string
		gauge    prometheus.Gauge
		expected float64
	}{
		{"NodesAttached", r.NodesAttached, 3},
		{"PortConnectors", r.PortConnectors, 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := gaugeValue(t, tt.gauge); got != tt.expected {
				t.Errorf("%s = %v, want %v", tt.name, got, tt.expected)
			}
		})
	}

	var metric dto.Metric
	if err := r.RoutedPortWritesTotal.Write(&metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	if metric.Counter.GetValue() != 4 {
		t.Errorf("RoutedPortWritesTotal = %v, want 4", metric.Counter.GetValue())
	}
	if got := counterValue(t, r.DefinitionsParsedTotal, "success"); got != 2 {
		t.Errorf("definitions success = %v, want 2", got)
	}
}

func TestEventMetrics(t *testing.T) {
	r := NewRegistry()

	r.RecordEvent("text")
	r.RecordTapMessage("sent")
	r.RecordCodegenFile("written")
	r.RecordCodegenFile("unchanged")
	r.RecordCodegenFile("written")
	r.RecordArtifactUpload("error")

	tests := []struct {
		name     string
		vec      *prometheus.CounterVec
		label    string
		expected float64
	}{
		{"events", r.EventsRecordedTotal, "text", 1},
		{"tap", r.TapMessagesTotal, "sent", 1},
		{"codegen written", r.CodegenFilesTotal, "written", 2},
		{"codegen unchanged", r.CodegenFilesTotal, "unchanged", 1},
		{"artifact error", r.ArtifactsUploadsTotal, "error", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := counterValue(t, tt.vec, tt.label); got != tt.expected {
				t.Errorf("%s = %v, want %v", tt.name, got, tt.expected)
			}
		})
	}
}

func TestSystemMetrics(t *testing.T) {
	r := NewRegistry()
	r.started = time.Now().Add(-time.Hour)

	families, err := r.GetPrometheusRegistry().Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	found := make(map[string]*dto.MetricFamily)
	for _, mf := range families {
		found[mf.GetName()] = mf
	}
	uptime, ok := found["apx_uptime_seconds"]
	if !ok {
		t.Fatal("apx_uptime_seconds not gathered")
	}
	if got := uptime.GetMetric()[0].GetGauge().GetValue(); got < 3600 {
		t.Errorf("uptime = %v, want >= 3600", got)
	}
	if r.Uptime() < time.Hour {
		t.Errorf("Uptime() = %v", r.Uptime())
	}
	if _, ok := found["go_goroutines"]; !ok {
		t.Error("go collector not registered")
	}
}

func TestGetPrometheusRegistry(t *testing.T) {
	r := NewRegistry()
	promRegistry := r.GetPrometheusRegistry()

	if promRegistry == nil {
		t.Fatal("GetPrometheusRegistry() returned nil")
	}

	// Verify we can gather metrics
	metrics, err := promRegistry.Gather()
	if err != nil {
		t.Fatalf("Failed to gather metrics: %v", err)
	}

	if len(metrics) == 0 {
		t.Error("No metrics registered")
	}

	// Verify some expected metrics exist
	expectedMetrics := []string{
		"apx_connections_active",
		"apx_nodes_attached",
		"apx_uptime_seconds",
	}

	metricNames := make(map[string]bool)
	for _, m := range metrics {
		metricNames[m.GetName()] = true
	}

	for _, expected := range expectedMetrics {
		if !metricNames[expected] {
			t.Errorf("Expected metric %s not found", expected)
		}
	}
}
