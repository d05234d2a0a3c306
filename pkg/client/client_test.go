package client

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/dd0wney/cluso-apx/pkg/filemanager"
	"github.com/dd0wney/cluso-apx/pkg/nodedata"
	"github.com/dd0wney/cluso-apx/pkg/rmf"
)

const sensorDefinition = "APX/1.2\n" +
	"N\"Sensor\"\n" +
	"P\"Value\"S:=0\n" +
	"R\"Mode\"C(0,3):=0\n" +
	"\n"

// fakeServer accepts one connection, checks the greeting and answers with
// reply. Messages the client sends afterwards are delivered on received.
type fakeServer struct {
	ln       net.Listener
	reply    []byte
	received chan []byte
	conn     chan net.Conn
}

func newFakeServer(t *testing.T, reply []byte) *fakeServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	s := &fakeServer{ln: ln, reply: reply, received: make(chan []byte, 64), conn: make(chan net.Conn, 1)}
	t.Cleanup(func() { ln.Close() })
	go s.serve()
	return s
}

func (s *fakeServer) serve() {
	conn, err := s.ln.Accept()
	if err != nil {
		return
	}
	s.conn <- conn
	r := rmf.NewReader(conn, 0)
	greeting, err := r.ReadMessage()
	if err != nil {
		return
	}
	if _, err := rmf.ParseGreeting(greeting); err != nil {
		conn.Close()
		return
	}
	rmf.NewWriter(conn).WriteMessage(s.reply)
	for {
		msg, err := r.ReadMessage()
		if err != nil {
			return
		}
		s.received <- msg
	}
}

func (s *fakeServer) addr() string { return s.ln.Addr().String() }

type connEvents struct {
	mu           sync.Mutex
	connected    int
	disconnected chan struct{}
}

func (e *connEvents) Connected(*Client) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.connected++
}

func (e *connEvents) Disconnected(*Client) {
	close(e.disconnected)
}

func sensorClient(t *testing.T, opts ...Option) (*Client, *nodedata.NodeData) {
	t.Helper()
	nd, err := nodedata.NewFactory().FromDefinition([]byte(sensorDefinition))
	if err != nil {
		t.Fatal(err)
	}
	c := New(opts...)
	if err := c.AttachLocalNode(nd); err != nil {
		t.Fatal(err)
	}
	return c, nd
}

func TestConnect_AnnouncesLocalFiles(t *testing.T) {
	srv := newFakeServer(t, rmf.AckMessage())
	c, _ := sensorClient(t)
	events := &connEvents{disconnected: make(chan struct{})}
	c.RegisterEventListener(events)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.Connect(ctx, srv.addr()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if !c.IsConnected() {
		t.Error("IsConnected() = false after Connect")
	}
	if events.connected != 1 {
		t.Errorf("Connected called %d times", events.connected)
	}
	if err := c.Connect(ctx, srv.addr()); !errors.Is(err, ErrAlreadyConnected) {
		t.Errorf("second Connect() error = %v", err)
	}

	names := map[string]bool{}
	for len(names) < 2 {
		select {
		case msg := <-srv.received:
			m, err := rmf.ParseMessage(msg)
			if err != nil || !m.IsCommand() {
				t.Fatalf("unexpected message % x", msg)
			}
			info, err := rmf.DecodeFileInfo(m.Payload)
			if err != nil {
				t.Fatal(err)
			}
			names[info.Name] = true
		case <-time.After(2 * time.Second):
			t.Fatalf("announced files = %v", names)
		}
	}
	if !names["Sensor.apx"] || !names["Sensor.out"] {
		t.Errorf("announced files = %v, want Sensor.apx and Sensor.out", names)
	}

	if err := c.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	select {
	case <-events.disconnected:
	case <-time.After(time.Second):
		t.Fatal("Disconnected not called")
	}
	if c.IsConnected() {
		t.Error("IsConnected() = true after Close")
	}
}

func TestConnect_RequiresAck(t *testing.T) {
	nack := rmf.CommandMessage(rmf.EncodeCommand(rmf.CmdNack))
	srv := newFakeServer(t, nack)
	c, _ := sensorClient(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.Connect(ctx, srv.addr()); !errors.Is(err, ErrNoAck) {
		t.Fatalf("Connect() error = %v, want ErrNoAck", err)
	}
	if c.IsConnected() {
		t.Error("IsConnected() = true after a failed handshake")
	}
	if c.FileManager() != nil {
		t.Error("failed handshake left a file manager behind")
	}
}

func TestConnect_HandshakeDeadline(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			// never answer
			defer conn.Close()
			time.Sleep(time.Second)
		}
	}()

	c, _ := sensorClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if err := c.Connect(ctx, ln.Addr().String()); err == nil {
		t.Fatal("Connect() succeeded without an acknowledge")
	}
}

func TestConnect_Refused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	c, _ := sensorClient(t)
	if err := c.Connect(context.Background(), addr); err == nil {
		t.Fatal("Connect() to a closed port succeeded")
	}
}

func TestServerDisconnect(t *testing.T) {
	srv := newFakeServer(t, rmf.AckMessage())
	c, _ := sensorClient(t)
	events := &connEvents{disconnected: make(chan struct{})}
	c.RegisterEventListener(events)

	if err := c.Connect(context.Background(), srv.addr()); err != nil {
		t.Fatal(err)
	}
	(<-srv.conn).Close()

	select {
	case <-events.disconnected:
	case <-time.After(2 * time.Second):
		t.Fatal("Disconnected not called after the server closed")
	}
	if c.IsConnected() {
		t.Error("IsConnected() = true after the server closed")
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close() after disconnect = %v", err)
	}
}

func TestConnectHook(t *testing.T) {
	srv := newFakeServer(t, rmf.AckMessage())
	var hooked *filemanager.Manager
	c, _ := sensorClient(t, WithConnectHook(func(fm *filemanager.Manager) { hooked = fm }))

	if err := c.Connect(context.Background(), srv.addr()); err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	if hooked == nil || hooked != c.FileManager() {
		t.Error("connect hook did not receive the connection's file manager")
	}
	if hooked.Mode() != filemanager.ModeClient {
		t.Errorf("mode = %v", hooked.Mode())
	}
}

func TestClose_NotConnected(t *testing.T) {
	if err := New().Close(); err != nil {
		t.Errorf("Close() = %v", err)
	}
}
