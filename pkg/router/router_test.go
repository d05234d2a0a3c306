package router

import (
	"bytes"
	"errors"
	"sync"
	"testing"

	"github.com/dd0wney/cluso-apx/pkg/nodedata"
)

const (
	providerDefinition = "APX/1.2\n" +
		"N\"Engine\"\n" +
		"P\"VehicleSpeed\"S:=65535\n" +
		"P\"EngineRunning\"C(0,1):=0\n" +
		"\n"
	consumerDefinition = "APX/1.2\n" +
		"N\"Dashboard\"\n" +
		"R\"EngineRunning\"C(0,1):=1\n" +
		"R\"VehicleSpeed\"S:=0\n" +
		"R\"Unrelated\"C:=7\n" +
		"\n"
)

func newInfo(t *testing.T, definition string, id uint32) *NodeInfo {
	t.Helper()
	nd, err := nodedata.NewFactory().FromDefinition([]byte(definition))
	if err != nil {
		t.Fatal(err)
	}
	info, err := NewNodeInfo(nd, id)
	if err != nil {
		t.Fatal(err)
	}
	return info
}

type updates struct {
	mu   sync.Mutex
	list []PortUpdate
}

func (u *updates) PortUpdated(pu PortUpdate) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.list = append(u.list, pu)
}

func TestRouter_AttachCopiesProviderValue(t *testing.T) {
	r := New()
	engine := newInfo(t, providerDefinition, 1)
	if err := engine.Data.WriteProvidePort("VehicleSpeed", 1200); err != nil {
		t.Fatal(err)
	}
	if err := r.Attach(engine); err != nil {
		t.Fatal(err)
	}

	dash := newInfo(t, consumerDefinition, 2)
	if err := r.Attach(dash); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		port string
		want any
	}{
		{"VehicleSpeed", int64(1200)},
		{"EngineRunning", int64(0)},
		{"Unrelated", int64(7)},
	}
	for _, tt := range tests {
		t.Run(tt.port, func(t *testing.T) {
			got, err := dash.Data.ReadRequirePort(tt.port)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("%s = %v (%T), want %v", tt.port, got, got, tt.want)
			}
		})
	}
	if n := r.ConnectorCount(); n != 2 {
		t.Errorf("ConnectorCount() = %d, want 2", n)
	}
}

func TestRouter_RouteOutPortWrite(t *testing.T) {
	r := New()
	obs := &updates{}
	r.AddObserver(obs)

	dash := newInfo(t, consumerDefinition, 2)
	engine := newInfo(t, providerDefinition, 1)
	for _, info := range []*NodeInfo{dash, engine} {
		if err := r.Attach(info); err != nil {
			t.Fatal(err)
		}
	}

	if err := engine.Data.WriteProvidePort("EngineRunning", 1); err != nil {
		t.Fatal(err)
	}
	speed := engine.Node.FindProvidePort("EngineRunning")
	if err := r.RouteOutPortWrite(engine, speed.Offset, speed.PackLen()); err != nil {
		t.Fatalf("RouteOutPortWrite() error = %v", err)
	}

	port := dash.Node.FindRequirePort("EngineRunning")
	if !dash.Data.IsInPortDataDirty(port.Offset, port.PackLen()) {
		t.Error("routed bytes should be dirty")
	}
	got, err := dash.Data.ReadRequirePort("EngineRunning")
	if err != nil {
		t.Fatal(err)
	}
	if got != int64(1) {
		t.Errorf("EngineRunning = %v, want 1", got)
	}
	if dash.Data.IsInPortDataDirty(port.Offset, port.PackLen()) {
		t.Error("reading the port should clear its dirty flags")
	}

	if len(obs.list) != 1 {
		t.Fatalf("updates = %+v", obs.list)
	}
	u := obs.list[0]
	if u.Node != "Engine" || u.Port != "EngineRunning" || u.Value != int64(1) || u.Receivers != 1 || !bytes.Equal(u.Data, []byte{1}) {
		t.Errorf("update = %+v", u)
	}
}

func TestRouter_RouteWholeBuffer(t *testing.T) {
	r := New()
	engine := newInfo(t, providerDefinition, 1)
	dash := newInfo(t, consumerDefinition, 2)
	r.Attach(engine)
	r.Attach(dash)

	if err := engine.Data.WriteOutPortData([]byte{0x10, 0x00, 0x01}, 0); err != nil {
		t.Fatal(err)
	}
	if err := r.RouteOutPortWrite(engine, 0, engine.Data.OutPortDataLen()); err != nil {
		t.Fatal(err)
	}
	if v, _ := dash.Data.ReadRequirePort("VehicleSpeed"); v != int64(16) {
		t.Errorf("VehicleSpeed = %v, want 16", v)
	}
	if v, _ := dash.Data.ReadRequirePort("EngineRunning"); v != int64(1) {
		t.Errorf("EngineRunning = %v, want 1", v)
	}
}

func TestRouter_Detach(t *testing.T) {
	r := New()
	engine := newInfo(t, providerDefinition, 1)
	dash := newInfo(t, consumerDefinition, 2)
	r.Attach(engine)
	r.Attach(dash)

	r.Detach(dash)
	if n := r.ConnectorCount(); n != 0 {
		t.Errorf("ConnectorCount() after detach = %d", n)
	}
	if err := r.RouteOutPortWrite(engine, 0, 2); err != nil {
		t.Errorf("routing without receivers error = %v", err)
	}
	if err := r.RouteOutPortWrite(dash, 0, 1); !errors.Is(err, ErrNotAttached) {
		t.Errorf("RouteOutPortWrite() on detached node error = %v", err)
	}

	r.Attach(dash)
	r.Detach(engine)
	if got := r.Providers(dash, dash.Node.FindRequirePort("VehicleSpeed")); len(got) != 0 {
		t.Errorf("Providers() after provider detach = %d", len(got))
	}
	if nodes := r.Nodes(); len(nodes) != 1 || nodes[0] != dash {
		t.Errorf("Nodes() = %v", nodes)
	}
}

func TestRouter_SignatureMismatch(t *testing.T) {
	r := New()
	engine := newInfo(t, providerDefinition, 1)
	other := newInfo(t, "APX/1.2\nN\"Gauge\"\nR\"VehicleSpeed\"L\n\n", 3)
	r.Attach(engine)
	r.Attach(other)
	if n := r.ConnectorCount(); n != 0 {
		t.Errorf("ports with different types connected: %d", n)
	}
}

func TestNewNodeInfo_RequiresNode(t *testing.T) {
	nd := nodedata.New("Empty", 10, true)
	if _, err := NewNodeInfo(nd, 1); !errors.Is(err, nodedata.ErrNoNode) {
		t.Errorf("NewNodeInfo() error = %v, want ErrNoNode", err)
	}
}
