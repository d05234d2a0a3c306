// Package filemanager implements the per-connection file manager of the
// RMF protocol. Each side announces its files, opens the peer's files it
// wants to receive and streams writes into open files.
package filemanager

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dd0wney/cluso-apx/pkg/logging"
	"github.com/dd0wney/cluso-apx/pkg/metrics"
	"github.com/dd0wney/cluso-apx/pkg/nodedata"
	"github.com/dd0wney/cluso-apx/pkg/rmf"
)

// Mode tells which side of the connection a manager serves
type Mode int

const (
	ModeServer Mode = iota
	ModeClient
)

func (m Mode) String() string {
	if m == ModeServer {
		return "server"
	}
	return "client"
}

// DefaultFragmentSize is the largest payload of one data message
const DefaultFragmentSize = 32 * 1024

const queueSize = 256

type msgKind int

const (
	msgExit msgKind = iota
	msgSendAck
	msgSendFileInfo
	msgSendFileOpen
	msgSendFileClose
	msgSendFileContent
	msgWriteFile
	msgErrorInvalidCmd
	msgErrorInvalidWrite
	msgErrorInvalidReadHandler
	msgSendCommand
)

type message struct {
	kind    msgKind
	address uint32
	length  uint32
	cmd     rmf.CmdType
	file    *File
	offset  uint32
	data    []byte
}

type options struct {
	logger       logging.Logger
	metrics      *metrics.Registry
	fragmentSize int
}

// Option configures a Manager
type Option func(*options)

// WithLogger sets the logger
func WithLogger(logger logging.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMetrics sets the registry messages and errors are counted in
func WithMetrics(registry *metrics.Registry) Option {
	return func(o *options) { o.metrics = registry }
}

// WithFragmentSize sets the largest payload of one data message
func WithFragmentSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.fragmentSize = n
		}
	}
}

// pendingWrite collects a write split over messages with the more flag
type pendingWrite struct {
	address uint32
	data    []byte
}

// Manager is the file manager of one connection
type Manager struct {
	id      uint32
	mode    Mode
	logger  logging.Logger
	metrics *metrics.Registry
	fragLen int

	mu     sync.Mutex
	local  *FileMap
	remote *FileMap

	listenersMu sync.RWMutex
	listeners   []EventListener

	tx             Transmitter
	queue          chan message
	done           chan struct{}
	started        atomic.Bool
	stopOnce       sync.Once
	headerAccepted atomic.Bool

	// pending is only touched by the goroutine calling ParseMessage
	pending *pendingWrite
}

// New creates a manager for the connection with the given id
func New(mode Mode, id uint32, opts ...Option) *Manager {
	o := options{logger: logging.NewNopLogger(), fragmentSize: DefaultFragmentSize}
	for _, opt := range opts {
		opt(&o)
	}
	return &Manager{
		id:      id,
		mode:    mode,
		logger:  o.logger.With(logging.Component("filemanager"), logging.ConnectionID(id)),
		metrics: o.metrics,
		fragLen: o.fragmentSize,
		local:   NewFileMap(),
		remote:  NewFileMap(),
		queue:   make(chan message, queueSize),
		done:    make(chan struct{}),
	}
}

// ID returns the connection id
func (m *Manager) ID() uint32 { return m.id }

// Mode returns the manager mode
func (m *Manager) Mode() Mode { return m.mode }

// RegisterEventListener adds l to the listeners
func (m *Manager) RegisterEventListener(l EventListener) {
	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()
	m.listeners = append(m.listeners, l)
}

// UnregisterEventListener removes l and reports whether it was registered
func (m *Manager) UnregisterEventListener(l EventListener) bool {
	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()
	for i, e := range m.listeners {
		if e == l {
			m.listeners = append(m.listeners[:i], m.listeners[i+1:]...)
			return true
		}
	}
	return false
}

// NumEventListeners returns the number of registered listeners
func (m *Manager) NumEventListeners() int {
	m.listenersMu.RLock()
	defer m.listenersMu.RUnlock()
	return len(m.listeners)
}

func (m *Manager) each(fn func(EventListener)) {
	m.listenersMu.RLock()
	listeners := append([]EventListener(nil), m.listeners...)
	m.listenersMu.RUnlock()
	for _, l := range listeners {
		fn(l)
	}
}

// Start launches the send worker on tx and notifies listeners
func (m *Manager) Start(tx Transmitter) {
	if !m.started.CompareAndSwap(false, true) {
		return
	}
	m.tx = tx
	go m.worker()
	m.each(func(l EventListener) { l.FileManagerStart(m) })
}

// Stop sends everything queued, stops the worker and notifies listeners.
// Only the first call has an effect.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		if m.started.CompareAndSwap(false, true) {
			close(m.done)
		} else {
			m.queue <- message{kind: msgExit}
			<-m.done
		}
		m.each(func(l EventListener) { l.FileManagerStop(m) })
	})
}

// OnHeaderAccepted is called once the greeting exchange completed. It
// notifies listeners and announces every local file.
func (m *Manager) OnHeaderAccepted() {
	m.headerAccepted.Store(true)
	m.each(func(l EventListener) { l.HeaderAccepted(m) })
	m.mu.Lock()
	files := m.local.Files()
	m.mu.Unlock()
	for _, f := range files {
		m.post(message{kind: msgSendFileInfo, file: f})
	}
}

// IsHeaderAccepted reports whether OnHeaderAccepted was called
func (m *Manager) IsHeaderAccepted() bool {
	return m.headerAccepted.Load()
}

func (m *Manager) post(msg message) {
	select {
	case m.queue <- msg:
	case <-m.done:
	}
}

// SendAck queues the acknowledge message
func (m *Manager) SendAck() {
	m.post(message{kind: msgSendAck})
}

// AttachLocalFile assigns f an address and announces it once the header
// has been accepted.
func (m *Manager) AttachLocalFile(f *File) error {
	f.IsRemote = false
	m.mu.Lock()
	if f.Info.Address == rmf.InvalidAddress || f.Kind == nodedata.FileEvent {
		if err := m.local.AssignAddress(f); err != nil {
			m.mu.Unlock()
			return err
		}
	}
	err := m.local.Insert(f)
	m.mu.Unlock()
	if err != nil {
		return err
	}
	m.logger.Debug("local file attached", logging.FileName(f.Name()), logging.Address(f.Address()))
	if m.headerAccepted.Load() {
		m.post(message{kind: msgSendFileInfo, file: f})
	}
	return nil
}

// RevokeLocalFile removes a local file and tells the peer
func (m *Manager) RevokeLocalFile(f *File) error {
	m.mu.Lock()
	found := m.local.Remove(f)
	m.mu.Unlock()
	if !found {
		return fmt.Errorf("%w: %s", ErrFileNotFound, f.Name())
	}
	f.Close()
	if m.headerAccepted.Load() {
		m.post(message{kind: msgSendCommand, cmd: rmf.CmdRevokeFile, address: f.Address()})
	}
	return nil
}

// OpenRemoteFile marks the remote file at address open and asks the peer
// to start sending it.
func (m *Manager) OpenRemoteFile(address uint32) error {
	m.mu.Lock()
	f := m.remote.FindByAddress(address)
	m.mu.Unlock()
	if f == nil || f.Address() != address {
		return fmt.Errorf("%w: remote address 0x%08X", ErrFileNotFound, address)
	}
	f.Open()
	m.post(message{kind: msgSendFileOpen, address: address})
	return nil
}

// CloseRemoteFile marks the remote file at address closed and tells the peer
func (m *Manager) CloseRemoteFile(address uint32) error {
	m.mu.Lock()
	f := m.remote.FindByAddress(address)
	m.mu.Unlock()
	if f == nil || f.Address() != address {
		return fmt.Errorf("%w: remote address 0x%08X", ErrFileNotFound, address)
	}
	f.Close()
	m.post(message{kind: msgSendFileClose, address: address})
	return nil
}

// WriteLocalFile sends data to the peer at offset within f. It fails with
// ErrFileNotOpen unless the peer has opened the file. An accepted write is
// sent in queue order even if the peer closes the file before it goes out.
func (m *Manager) WriteLocalFile(f *File, offset uint32, data []byte) error {
	if !f.IsOpen() {
		return ErrFileNotOpen
	}
	if uint64(offset)+uint64(len(data)) > uint64(f.Length()) && f.Info.FileType != rmf.FileTypeStream {
		return fmt.Errorf("%w: write of %d bytes at %d exceeds %s", nodedata.ErrOutOfBounds, len(data), offset, f.Name())
	}
	m.post(message{kind: msgWriteFile, file: f, offset: offset, data: append([]byte(nil), data...)})
	return nil
}

// FindLocalFile returns the named local file, or nil
func (m *Manager) FindLocalFile(name string) *File {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.local.FindByName(name)
}

// FindRemoteFile returns the named remote file, or nil
func (m *Manager) FindRemoteFile(name string) *File {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.remote.FindByName(name)
}

// LocalFiles returns the local files in address order
func (m *Manager) LocalFiles() []*File {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.local.Files()
}

// RemoteFiles returns the remote files in address order
func (m *Manager) RemoteFiles() []*File {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.remote.Files()
}
