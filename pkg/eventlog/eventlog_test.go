package eventlog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dd0wney/cluso-apx/pkg/filemanager"
	"github.com/dd0wney/cluso-apx/pkg/pubsub"
)

func TestTextRecorder(t *testing.T) {
	var buf bytes.Buffer
	r, err := NewTextRecorder(&buf)
	if err != nil {
		t.Fatal(err)
	}
	events := []Event{
		NewEvent(ClientConnected, 1, "", ""),
		NewEvent(NodeAttached, 1, "Engine", ""),
		NewEvent(DefinitionError, 2, "Broken", "parse error"),
		NewEvent(ClientDisconnected, 1, "", ""),
	}
	for _, e := range events {
		if err := r.Record(e); err != nil {
			t.Fatal(err)
		}
	}
	want := TextHeader +
		"[1] Client connected\n" +
		"[1] Node attached: Engine\n" +
		"[2] Definition error: Broken: parse error\n" +
		"[1] Client disconnected\n"
	if buf.String() != want {
		t.Errorf("log =\n%s\nwant\n%s", buf.String(), want)
	}
}

func TestOpenTextRecorder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "apx.log")
	if err := os.WriteFile(path, []byte("old content\n"), 0644); err != nil {
		t.Fatal(err)
	}
	r, err := OpenTextRecorder(path)
	if err != nil {
		t.Fatal(err)
	}
	r.Record(NewEvent(ClientConnected, 7, "", ""))
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != TextHeader+"[7] Client connected\n" {
		t.Errorf("file = %q", data)
	}

	if _, err := OpenTextRecorder(filepath.Join(t.TempDir(), "missing", "x.log")); err == nil {
		t.Error("expected error for missing directory")
	}
}

func TestEventJSON(t *testing.T) {
	e := NewEvent(NodeDetached, 3, "Dashboard", "")
	data, err := json.Marshal(e)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"type":"node_detached"`) {
		t.Errorf("json = %s", data)
	}
	var back Event
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	if back.ID != e.ID || back.Type != NodeDetached || back.Node != "Dashboard" || !back.Time.Equal(e.Time) {
		t.Errorf("decoded = %+v, want %+v", back, e)
	}
	if err := json.Unmarshal([]byte(`{"type":"bogus"}`), &back); err == nil {
		t.Error("expected error for unknown event type")
	}
}

func TestBinaryRecorder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.bin")
	r, err := OpenBinaryRecorder(path)
	if err != nil {
		t.Fatal(err)
	}
	first := NewEvent(ClientConnected, 1, "", "")
	second := NewEvent(NodeAttached, 1, "Engine", "")
	r.Record(first)
	r.Record(second)
	r.Close()

	r, err = OpenBinaryRecorder(path)
	if err != nil {
		t.Fatal(err)
	}
	third := NewEvent(ClientDisconnected, 1, "", "")
	r.Record(third)
	r.Close()

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	var seqs []uint64
	var got []Event
	err = ReadBinaryLog(f, func(seq uint64, e Event) error {
		seqs = append(seqs, seq)
		got = append(got, e)
		return nil
	})
	if err != nil {
		t.Fatalf("ReadBinaryLog() error = %v", err)
	}
	if len(got) != 3 || seqs[0] != 1 || seqs[2] != 3 {
		t.Fatalf("seqs = %v", seqs)
	}
	for i, want := range []Event{first, second, third} {
		if got[i].ID != want.ID || got[i].Type != want.Type {
			t.Errorf("record %d = %+v, want %+v", i, got[i], want)
		}
	}
}

func TestReadBinaryLog_Corruption(t *testing.T) {
	var buf bytes.Buffer
	r := NewBinaryRecorder(&buf)
	r.Record(NewEvent(NodeAttached, 1, "Engine", ""))
	data := buf.Bytes()

	corrupted := append([]byte(nil), data...)
	corrupted[14] ^= 0xFF
	err := ReadBinaryLog(bytes.NewReader(corrupted), func(uint64, Event) error { return nil })
	if !errors.Is(err, ErrChecksum) {
		t.Errorf("corrupted record error = %v, want ErrChecksum", err)
	}

	err = ReadBinaryLog(bytes.NewReader(data[:len(data)-3]), func(uint64, Event) error { return nil })
	if err == nil {
		t.Error("expected error for truncated record")
	}
}

type memRecorder struct {
	mu     sync.Mutex
	events []Event
	fail   bool
}

func (m *memRecorder) Name() string { return "mem" }
func (m *memRecorder) Record(e Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("disk full")
	}
	m.events = append(m.events, e)
	return nil
}
func (m *memRecorder) Close() error { return nil }

func (m *memRecorder) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

func TestHubDispatchesBusEvents(t *testing.T) {
	bus := pubsub.NewPubSub[Event]()
	defer bus.Shutdown()
	sub, err := bus.Subscribe(context.Background(), pubsub.TopicEvents)
	if err != nil {
		t.Fatal(err)
	}

	good, bad := &memRecorder{}, &memRecorder{fail: true}
	hub := NewHub(nil, nil, good, bad)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx, sub)
		close(done)
	}()

	em := NewEmitter(bus)
	em.ConnectionOpened(4)
	em.DefinitionError(4, "Broken", errors.New("bad signature"))
	em.ConnectionClosed(4)

	deadline := time.Now().Add(time.Second)
	for good.count() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	if good.count() != 3 {
		t.Fatalf("recorded %d events, want 3", good.count())
	}
	if good.events[1].Type != DefinitionError || good.events[1].Message != "bad signature" {
		t.Errorf("event = %+v", good.events[1])
	}
	if bad.count() != 0 {
		t.Error("failing recorder should hold nothing")
	}
}

type link struct{ peer *filemanager.Manager }

func (l *link) Send(msg []byte) error { return l.peer.ParseMessage(msg) }

func TestRMFRecorderStreamsToClient(t *testing.T) {
	server := filemanager.New(filemanager.ModeServer, 1)
	client := filemanager.New(filemanager.ModeClient, 1)

	rec := NewRMFRecorder(10*time.Millisecond, nil)
	defer rec.Close()
	if err := rec.AttachConnection(server); err != nil {
		t.Fatal(err)
	}

	var mu sync.Mutex
	var received []Event
	NewClientRecorder(client, func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, e)
	}, nil)

	server.Start(&link{peer: client})
	client.Start(&link{peer: server})
	defer func() {
		client.Stop()
		server.Stop()
	}()
	server.OnHeaderAccepted()

	deadline := time.Now().Add(2 * time.Second)
	for {
		f := server.FindLocalFile(filemanager.EventFileName)
		if f.IsOpen() {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("client never opened the event file")
		}
		time.Sleep(5 * time.Millisecond)
	}

	rec.Record(NewEvent(ClientConnected, 2, "", ""))
	rec.Record(NewEvent(NodeAttached, 2, "Engine", ""))

	deadline = time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		n := len(received)
		mu.Unlock()
		if n == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("received %d events, want 2", n)
		}
		time.Sleep(5 * time.Millisecond)
	}
	mu.Lock()
	defer mu.Unlock()
	if received[1].Type != NodeAttached || received[1].Node != "Engine" {
		t.Errorf("event = %+v", received[1])
	}

	rec.DetachConnection(server)
	if err := rec.Record(NewEvent(ClientDisconnected, 2, "", "")); err != nil {
		t.Error(err)
	}
}

func TestEncodeDecodeEvents(t *testing.T) {
	events := []Event{NewEvent(ClientConnected, 1, "", ""), NewEvent(NodeAttached, 1, "N", "")}
	data, err := EncodeEvents(events)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Count(data, []byte("\n")) != 2 {
		t.Errorf("want one line per event, got %q", data)
	}
	back, err := DecodeEvents(data)
	if err != nil || len(back) != 2 || back[1].Node != "N" {
		t.Errorf("DecodeEvents() = %+v, %v", back, err)
	}
	if _, err := DecodeEvents([]byte("{broken")); err == nil {
		t.Error("expected error for malformed input")
	}
}
