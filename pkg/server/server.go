// Package server implements the APX server: it accepts RMF connections,
// builds remote nodes from the definitions clients announce, routes port
// data between them and records connection and node events.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dd0wney/cluso-apx/pkg/eventlog"
	"github.com/dd0wney/cluso-apx/pkg/logging"
	"github.com/dd0wney/cluso-apx/pkg/metrics"
	"github.com/dd0wney/cluso-apx/pkg/nodemanager"
	"github.com/dd0wney/cluso-apx/pkg/pubsub"
	"github.com/dd0wney/cluso-apx/pkg/store"
	"github.com/dd0wney/cluso-apx/pkg/tap"
)

var (
	// ErrServerClosed is returned by Start after Stop
	ErrServerClosed = errors.New("server: closed")
	// ErrAlreadyStarted is returned by a second Start
	ErrAlreadyStarted = errors.New("server: already started")
)

// ConnectionListener is notified when clients connect and disconnect
type ConnectionListener interface {
	ConnectionOpened(id uint32)
	ConnectionClosed(id uint32)
}

// Option configures a Server
type Option func(*Server)

// WithLogger sets the logger
func WithLogger(logger logging.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithMetrics sets the metrics registry
func WithMetrics(registry *metrics.Registry) Option {
	return func(s *Server) { s.metrics = registry }
}

// WithStore sets the definition store, overriding Config.Store
func WithStore(st store.Store) Option {
	return func(s *Server) { s.store = st }
}

// WithTap sets the port update publisher, overriding Config.TapAddr
func WithTap(p tap.Publisher) Option {
	return func(s *Server) { s.tap = p }
}

// Server is an APX server
type Server struct {
	cfg        *Config
	instanceID uuid.UUID
	logger     logging.Logger
	metrics    *metrics.Registry

	nodes   *nodemanager.Manager
	store   store.Store
	tap     tap.Publisher
	bus     *pubsub.PubSub[eventlog.Event]
	emitter *eventlog.Emitter
	hub     *eventlog.Hub
	events  *eventlog.RMFRecorder

	listenersMu sync.RWMutex
	listeners   []ConnectionListener

	mu       sync.Mutex
	listener net.Listener
	conns    map[uint32]*conn
	nextID   uint32
	started  time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	hubDone  chan struct{}
}

// New creates a server from cfg. It opens the definition store, the event
// logs and the tap, but does not listen until Start.
func New(cfg *Config, opts ...Option) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Server{
		cfg:        cfg,
		instanceID: uuid.New(),
		logger:     logging.NewNopLogger(),
		conns:      make(map[uint32]*conn),
		stopCh:     make(chan struct{}),
		hubDone:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(logging.Component("server"), logging.String("instance", s.instanceID.String()))

	if s.store == nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		st, err := store.Open(ctx, cfg.Store)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("failed to open store: %w", err)
		}
		s.store = st
	}

	recorders, err := s.openRecorders()
	if err != nil {
		s.store.Close()
		return nil, err
	}
	s.bus = pubsub.NewPubSub[eventlog.Event]()
	s.emitter = eventlog.NewEmitter(s.bus)
	s.hub = eventlog.NewHub(s.logger, s.metrics, recorders...)

	s.nodes = nodemanager.New(
		nodemanager.WithLogger(s.logger),
		nodemanager.WithMetrics(s.metrics),
		nodemanager.WithStore(s.store),
	)
	s.nodes.RegisterNodeListener(s.emitter)
	s.RegisterConnectionListener(s.emitter)

	if s.tap == nil && cfg.TapAddr != "" {
		p, err := tap.NewNNGPublisher(cfg.TapAddr)
		if err != nil {
			s.hub.Close()
			s.store.Close()
			return nil, err
		}
		s.tap = p
	}
	if s.tap != nil {
		s.nodes.Router().AddObserver(&tap.Observer{Publisher: s.tap, Logger: s.logger, Metrics: s.metrics})
	}
	return s, nil
}

func (s *Server) openRecorders() ([]eventlog.Recorder, error) {
	s.events = eventlog.NewRMFRecorder(s.cfg.EventUpdateInterval, s.logger)
	recorders := []eventlog.Recorder{s.events}
	closeAll := func() {
		for _, r := range recorders {
			r.Close()
		}
	}
	if s.cfg.EventLog != "" {
		r, err := eventlog.OpenTextRecorder(s.cfg.EventLog)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("failed to open event log: %w", err)
		}
		recorders = append(recorders, r)
	}
	if s.cfg.EventLogBinary != "" {
		r, err := eventlog.OpenBinaryRecorder(s.cfg.EventLogBinary)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("failed to open binary event log: %w", err)
		}
		recorders = append(recorders, r)
	}
	return recorders, nil
}

// Config returns the server configuration
func (s *Server) Config() *Config { return s.cfg }

// InstanceID identifies this server process in logs
func (s *Server) InstanceID() uuid.UUID { return s.instanceID }

// NodeManager returns the node manager of all connections
func (s *Server) NodeManager() *nodemanager.Manager { return s.nodes }

// Store returns the definition store
func (s *Server) Store() store.Store { return s.store }

// RegisterConnectionListener adds a connection listener
func (s *Server) RegisterConnectionListener(l ConnectionListener) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	s.listeners = append(s.listeners, l)
}

func (s *Server) eachListener(fn func(ConnectionListener)) {
	s.listenersMu.RLock()
	listeners := append([]ConnectionListener(nil), s.listeners...)
	s.listenersMu.RUnlock()
	for _, l := range listeners {
		fn(l)
	}
}

// Start listens on Config.ListenAddr and accepts connections in the
// background. Cancelling ctx stops the server.
func (s *Server) Start(ctx context.Context) error {
	select {
	case <-s.stopCh:
		return ErrServerClosed
	default:
	}

	s.mu.Lock()
	if s.listener != nil {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.ListenAddr, err)
	}
	s.listener = ln
	s.started = time.Now()
	s.mu.Unlock()

	sub, err := s.bus.Subscribe(context.Background(), pubsub.TopicEvents)
	if err != nil {
		ln.Close()
		close(s.hubDone)
		return err
	}
	go func() {
		defer close(s.hubDone)
		s.hub.Run(context.Background(), sub)
	}()
	s.wg.Add(1)
	go s.acceptConnections(ln)

	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-s.stopCh:
		}
	}()

	s.logger.Info("listening", logging.Remote(ln.Addr().String()), logging.Count(s.cfg.MaxConnections))
	return nil
}

// Addr returns the listening address, or nil before Start
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Listening reports the listen address and whether connections are accepted
func (s *Server) Listening() (string, bool) {
	select {
	case <-s.stopCh:
		return "", false
	default:
	}
	if addr := s.Addr(); addr != nil {
		return addr.String(), true
	}
	return "", false
}

// NumConnections returns the number of connected clients
func (s *Server) NumConnections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Uptime returns the time since Start
func (s *Server) Uptime() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started.IsZero() {
		return 0
	}
	return time.Since(s.started)
}

// Stop closes the listener and every connection, waits for the connection
// handlers and closes the event logs, the tap and the store.
func (s *Server) Stop() error {
	var err error
	s.stopOnce.Do(func() {
		close(s.stopCh)

		s.mu.Lock()
		started := s.listener != nil
		if started {
			s.listener.Close()
		}
		for _, c := range s.conns {
			c.netConn.Close()
		}
		s.mu.Unlock()
		s.wg.Wait()

		// closing the bus ends the hub once queued events are recorded
		s.bus.Shutdown()
		if started {
			<-s.hubDone
		}

		var errs []error
		errs = append(errs, s.hub.Close())
		if s.tap != nil {
			errs = append(errs, s.tap.Close())
		}
		errs = append(errs, s.store.Close())
		err = errors.Join(errs...)
		s.logger.Info("stopped")
	})
	return err
}

// allocateID returns the next connection id not held by a connection
func (s *Server) allocateID() uint32 {
	for {
		id := s.nextID
		s.nextID++
		if _, used := s.conns[id]; !used {
			return id
		}
	}
}
