// Package client connects local APX nodes to an APX server. A client
// publishes the definition and provide port data of its nodes and receives
// require port data the server routes to them.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dd0wney/cluso-apx/pkg/filemanager"
	"github.com/dd0wney/cluso-apx/pkg/logging"
	"github.com/dd0wney/cluso-apx/pkg/metrics"
	"github.com/dd0wney/cluso-apx/pkg/nodedata"
	"github.com/dd0wney/cluso-apx/pkg/nodemanager"
	"github.com/dd0wney/cluso-apx/pkg/rmf"
)

// DefaultHandshakeTimeout bounds the wait for the server acknowledge when
// the Connect context has no deadline
const DefaultHandshakeTimeout = 5 * time.Second

var (
	// ErrNoAck is returned when the server answers the greeting with
	// anything but an acknowledge
	ErrNoAck = errors.New("client: server did not acknowledge greeting")
	// ErrAlreadyConnected is returned by Connect on a connected client
	ErrAlreadyConnected = errors.New("client: already connected")
)

// ConnectionListener is notified when the client connects and disconnects
type ConnectionListener interface {
	Connected(c *Client)
	Disconnected(c *Client)
}

// Option configures a Client
type Option func(*Client)

// WithLogger sets the logger
func WithLogger(logger logging.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithMetrics sets the metrics registry
func WithMetrics(registry *metrics.Registry) Option {
	return func(c *Client) { c.metrics = registry }
}

// WithPortHandler receives port data writes of local nodes
func WithPortHandler(h nodedata.Handler) Option {
	return func(c *Client) { c.portHandler = h }
}

// WithConnectHook runs fn with the file manager of every new connection
// before the greeting is sent. Listeners registered there see every file
// the server announces.
func WithConnectHook(fn func(fm *filemanager.Manager)) Option {
	return func(c *Client) { c.connectHooks = append(c.connectHooks, fn) }
}

// Client is an APX client
type Client struct {
	logger       logging.Logger
	metrics      *metrics.Registry
	portHandler  nodedata.Handler
	connectHooks []func(*filemanager.Manager)
	nodes        *nodemanager.Manager

	listenersMu sync.RWMutex
	listeners   []ConnectionListener

	mu        sync.Mutex
	conn      net.Conn
	fm        *filemanager.Manager
	done      chan struct{}
	connected atomic.Bool
}

// New creates a disconnected client
func New(opts ...Option) *Client {
	c := &Client{logger: logging.NewNopLogger()}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(logging.Component("client"))
	nmOpts := []nodemanager.Option{
		nodemanager.WithLogger(c.logger),
		nodemanager.WithMetrics(c.metrics),
	}
	if c.portHandler != nil {
		nmOpts = append(nmOpts, nodemanager.WithPortHandler(c.portHandler))
	}
	c.nodes = nodemanager.New(nmOpts...)
	return c
}

// NodeManager returns the manager of the local nodes
func (c *Client) NodeManager() *nodemanager.Manager {
	return c.nodes
}

// AttachLocalNode adds a local node. Nodes attached while connected are
// published at once.
func (c *Client) AttachLocalNode(nd *nodedata.NodeData) error {
	return c.nodes.AttachLocalNode(nd)
}

// RegisterEventListener adds a connection listener
func (c *Client) RegisterEventListener(l ConnectionListener) {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	c.listeners = append(c.listeners, l)
}

func (c *Client) each(fn func(ConnectionListener)) {
	c.listenersMu.RLock()
	listeners := append([]ConnectionListener(nil), c.listeners...)
	c.listenersMu.RUnlock()
	for _, l := range listeners {
		fn(l)
	}
}

// IsConnected reports whether the handshake completed and the connection
// is still up
func (c *Client) IsConnected() bool {
	return c.connected.Load()
}

// FileManager returns the file manager of the current connection, or nil
func (c *Client) FileManager() *filemanager.Manager {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fm
}

// Connect dials addr, sends the greeting and waits for the acknowledge.
// The local nodes are then announced and messages are processed in the
// background until Close or the server disconnects.
func (c *Client) Connect(ctx context.Context, addr string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return ErrAlreadyConnected
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", addr, err)
	}

	fm := filemanager.New(filemanager.ModeClient, 0,
		filemanager.WithLogger(c.logger),
		filemanager.WithMetrics(c.metrics))
	for _, hook := range c.connectHooks {
		hook(fm)
	}
	if err := c.nodes.AttachFileManager(fm); err != nil {
		conn.Close()
		return err
	}

	reader := rmf.NewReader(conn, rmf.DefaultMaxMessage)
	writer := rmf.NewWriter(conn)
	if err := handshake(ctx, conn, reader, writer); err != nil {
		c.nodes.DetachFileManager(fm)
		fm.Stop()
		conn.Close()
		return err
	}

	c.conn = conn
	c.fm = fm
	c.done = make(chan struct{})
	c.connected.Store(true)

	fm.Start(filemanager.TransmitFunc(writer.WriteMessage))
	fm.OnHeaderAccepted()
	go c.readLoop(conn, fm, reader, c.done)

	c.logger.Info("connected", logging.Remote(addr))
	c.each(func(l ConnectionListener) { l.Connected(c) })
	return nil
}

func handshake(ctx context.Context, conn net.Conn, reader *rmf.Reader, writer *rmf.Writer) error {
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(DefaultHandshakeTimeout)
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return err
	}
	if err := writer.WriteMessage(rmf.Greeting()); err != nil {
		return fmt.Errorf("failed to send greeting: %w", err)
	}
	msg, err := reader.ReadMessage()
	if err != nil {
		return fmt.Errorf("failed to read acknowledge: %w", err)
	}
	if !rmf.IsAck(msg) {
		return ErrNoAck
	}
	return conn.SetDeadline(time.Time{})
}

func (c *Client) readLoop(conn net.Conn, fm *filemanager.Manager, reader *rmf.Reader, done chan struct{}) {
	defer close(done)
	for {
		msg, err := reader.ReadMessage()
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				c.logger.Warn("connection lost", logging.Error(err))
			}
			break
		}
		if err := fm.ParseMessage(msg); err != nil {
			c.logger.Debug("message rejected", logging.Bytes(len(msg)), logging.Error(err))
		}
	}

	c.connected.Store(false)
	fm.Stop()
	c.nodes.DetachFileManager(fm)
	conn.Close()

	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
		c.fm = nil
	}
	c.mu.Unlock()

	c.logger.Info("disconnected")
	c.each(func(l ConnectionListener) { l.Disconnected(c) })
}

// Close disconnects and waits until the connection is torn down
func (c *Client) Close() error {
	c.mu.Lock()
	conn, done := c.conn, c.done
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	err := conn.Close()
	<-done
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}
