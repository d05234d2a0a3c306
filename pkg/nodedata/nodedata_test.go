package nodedata

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/dd0wney/cluso-apx/pkg/apx"
	"github.com/dd0wney/cluso-apx/pkg/rmf"
)

const testDefinition = "APX/1.2\n" +
	"N\"TestNode\"\n" +
	"P\"VehicleSpeed\"S:=65535\n" +
	"P\"EngineRunning\"C(0,1):=0\n" +
	"R\"ParkBrake\"C:=3\n" +
	"R\"Name\"a[4]\n" +
	"\n"

type recordingHandler struct {
	mu     sync.Mutex
	in     [][2]int
	out    [][2]int
	source *NodeData
}

func (h *recordingHandler) InPortDataWritten(nd *NodeData, offset, length int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.source = nd
	h.in = append(h.in, [2]int{offset, length})
}

func (h *recordingHandler) OutPortDataWritten(nd *NodeData, offset, length int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.source = nd
	h.out = append(h.out, [2]int{offset, length})
}

func newTestNodeData(t *testing.T) *NodeData {
	t.Helper()
	nd, err := NewFactory().FromDefinition([]byte(testDefinition))
	if err != nil {
		t.Fatalf("FromDefinition() error = %v", err)
	}
	return nd
}

func TestFactory_FromDefinition(t *testing.T) {
	nd := newTestNodeData(t)

	if nd.Name() != "TestNode" {
		t.Errorf("Name() = %s", nd.Name())
	}
	if nd.IsRemote() {
		t.Error("factory node data should be local")
	}
	if nd.DefinitionLen() != len(testDefinition) {
		t.Errorf("DefinitionLen() = %d, want %d", nd.DefinitionLen(), len(testDefinition))
	}
	if nd.OutPortDataLen() != 3 || nd.InPortDataLen() != 5 {
		t.Errorf("out/in = %d/%d, want 3/5", nd.OutPortDataLen(), nd.InPortDataLen())
	}

	out := make([]byte, 3)
	if err := nd.ReadOutPortData(out, 0); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out, []byte{0xFF, 0xFF, 0x00}) {
		t.Errorf("out init = % X", out)
	}

	kind, sum := nd.Checksum()
	if kind != ChecksumSHA256 || sum != sha256.Sum256([]byte(testDefinition)) {
		t.Error("checksum should be SHA-256 of the definition text")
	}
}

func TestFactory_ParseErrors(t *testing.T) {
	f := NewFactory()
	_, err := f.FromDefinition([]byte("APX/1.2\nN\"Bad\"\nP\"X\"T[3]\n\n"))
	if !errors.Is(err, apx.ErrInvalidTypeRef) {
		t.Errorf("expected ErrInvalidTypeRef, got %v", err)
	}
	if apx.LineOf(err) != 3 {
		t.Errorf("LineOf() = %d, want 3", apx.LineOf(err))
	}

	if _, err := f.FromDefinition([]byte("APX/1.2\n\n")); !errors.Is(err, apx.ErrParse) {
		t.Errorf("expected ErrParse for empty definition, got %v", err)
	}
}

func TestNodeData_Bounds(t *testing.T) {
	nd := newTestNodeData(t)
	buf := make([]byte, 4)

	tests := []struct {
		name string
		fn   func() error
	}{
		{"read definition past end", func() error { return nd.ReadDefinition(buf, nd.DefinitionLen()-2) }},
		{"write definition past end", func() error { return nd.WriteDefinition(buf, nd.DefinitionLen()) }},
		{"read in past end", func() error { return nd.ReadInPortData(buf, 2) }},
		{"write in negative", func() error { return nd.WriteInPortData(buf, -1) }},
		{"read out past end", func() error { return nd.ReadOutPortData(buf, 0) }},
		{"write out past end", func() error { return nd.WriteOutPortData(buf, 1) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.fn(); !errors.Is(err, ErrOutOfBounds) {
				t.Errorf("error = %v, want ErrOutOfBounds", err)
			}
		})
	}
}

func TestNodeData_DirtyFlagsAndHandler(t *testing.T) {
	nd := newTestNodeData(t)
	h := &recordingHandler{}
	nd.SetHandler(h)

	if err := nd.WriteInPortData([]byte{7}, 0); err != nil {
		t.Fatal(err)
	}
	if !nd.IsInPortDataDirty(0, 1) {
		t.Error("written byte should be dirty")
	}
	if nd.IsInPortDataDirty(1, 4) {
		t.Error("untouched bytes should be clean")
	}

	v, err := nd.ReadRequirePort("ParkBrake")
	if err != nil {
		t.Fatal(err)
	}
	if v != int64(7) {
		t.Errorf("ParkBrake = %v, want 7", v)
	}
	if nd.IsInPortDataDirty(0, 1) {
		t.Error("read should clear the dirty flag")
	}

	if err := nd.WriteProvidePort("VehicleSpeed", 1200); err != nil {
		t.Fatal(err)
	}
	if len(h.in) != 1 || h.in[0] != [2]int{0, 1} {
		t.Errorf("in notifications = %v", h.in)
	}
	if len(h.out) != 1 || h.out[0] != [2]int{0, 2} {
		t.Errorf("out notifications = %v", h.out)
	}
	if h.source != nd {
		t.Error("handler should receive the node data")
	}

	speed, err := nd.ReadProvidePort("VehicleSpeed")
	if err != nil || speed != int64(1200) {
		t.Errorf("VehicleSpeed = %v, %v", speed, err)
	}
}

func TestNodeData_LockedWrites(t *testing.T) {
	nd := newTestNodeData(t)
	h := &recordingHandler{}
	nd.SetHandler(h)

	nd.LockOutPortData()
	if err := nd.WriteOutPortDataLocked([]byte{1, 0}, 0); err != nil {
		t.Fatal(err)
	}
	if err := nd.WriteOutPortDataLocked([]byte{1}, 2); err != nil {
		t.Fatal(err)
	}
	nd.UnlockOutPortData()
	if len(h.out) != 0 {
		t.Error("locked writes should not notify")
	}
	nd.OutPortDataNotify(0, 3)
	if len(h.out) != 1 || h.out[0] != [2]int{0, 3} {
		t.Errorf("out notifications = %v", h.out)
	}
}

func TestNodeData_PortErrors(t *testing.T) {
	empty := New("Remote", 10, true)
	if _, err := empty.ReadRequirePort("X"); !errors.Is(err, ErrNoNode) {
		t.Errorf("expected ErrNoNode, got %v", err)
	}

	nd := newTestNodeData(t)
	if err := nd.WriteProvidePort("ParkBrake", 1); !errors.Is(err, ErrUnknownPort) {
		t.Errorf("expected ErrUnknownPort, got %v", err)
	}
	if err := nd.WriteProvidePort("EngineRunning", 300); !errors.Is(err, apx.ErrValue) {
		t.Errorf("expected ErrValue for out of range, got %v", err)
	}
}

func TestNodeData_FileInfo(t *testing.T) {
	nd := newTestNodeData(t)

	tests := []struct {
		kind   FileKind
		name   string
		length uint32
	}{
		{FileDefinition, "TestNode.apx", uint32(len(testDefinition))},
		{FileInData, "TestNode.in", 5},
		{FileOutData, "TestNode.out", 3},
	}
	for _, tt := range tests {
		info, err := nd.FileInfo(tt.kind)
		if err != nil {
			t.Fatalf("FileInfo(%s) error = %v", tt.kind, err)
		}
		if info.Name != tt.name || info.Length != tt.length || info.Address != rmf.InvalidAddress {
			t.Errorf("FileInfo(%s) = %+v", tt.kind, info)
		}
	}

	def, _ := nd.FileInfo(FileDefinition)
	if def.DigestType != rmf.DigestSHA256 {
		t.Error("definition file should carry a SHA-256 digest")
	}

	if _, err := nd.FileInfo(FileEvent); !errors.Is(err, apx.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}

	long := New(strings.Repeat("n", rmf.MaxFileNameLen-3), 0, false)
	if _, err := long.FileInfo(FileOutData); !errors.Is(err, apx.ErrLength) {
		t.Errorf("expected ErrLength, got %v", err)
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		file string
		base string
		kind FileKind
	}{
		{"TestNode.apx", "TestNode", FileDefinition},
		{"TestNode.in", "TestNode", FileInData},
		{"TestNode.out", "TestNode", FileOutData},
		{"apx_event.log", "apx_event.log", FileUnknown},
		{".apx", ".apx", FileUnknown},
	}
	for _, tt := range tests {
		base, kind := KindOf(tt.file)
		if base != tt.base || kind != tt.kind {
			t.Errorf("KindOf(%q) = %q, %s", tt.file, base, kind)
		}
	}
}

func TestFromNode(t *testing.T) {
	node := apx.NewNode("Local")
	node.Append(apx.MustProvidePort("Out", "L", "=1"))
	node.Append(apx.MustRequirePort("In", "s", "=-2"))

	nd, err := FromNode(node)
	if err != nil {
		t.Fatal(err)
	}
	if string(nd.Definition()) != node.Definition() {
		t.Errorf("Definition() = %q", nd.Definition())
	}
	v, err := nd.ReadRequirePort("In")
	if err != nil || v != int64(-2) {
		t.Errorf("In = %v, %v", v, err)
	}
}

func TestSetChecksum(t *testing.T) {
	nd := New("N", 0, false)
	if err := nd.SetChecksum(ChecksumSHA256, []byte{1, 2}); !errors.Is(err, apx.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
	if err := nd.SetChecksum(ChecksumType(9), nil); !errors.Is(err, apx.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
	if err := nd.SetChecksum(ChecksumNone, nil); err != nil {
		t.Error(err)
	}
}
