// Package nodemanager binds node data to file managers. On a server it
// builds remote nodes from the definitions clients announce and routes
// their port data. On a client it publishes local nodes and receives
// their require port data.
package nodemanager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dd0wney/cluso-apx/pkg/filemanager"
	"github.com/dd0wney/cluso-apx/pkg/logging"
	"github.com/dd0wney/cluso-apx/pkg/metrics"
	"github.com/dd0wney/cluso-apx/pkg/nodedata"
	"github.com/dd0wney/cluso-apx/pkg/router"
	"github.com/dd0wney/cluso-apx/pkg/store"
)

// ErrDuplicateNode is returned when a local node name is already attached
var ErrDuplicateNode = errors.New("nodemanager: node already attached")

// NodeListener observes remote nodes coming and going
type NodeListener interface {
	NodeAttached(connectionID uint32, info *router.NodeInfo)
	NodeDetached(connectionID uint32, info *router.NodeInfo)
	DefinitionError(connectionID uint32, name string, err error)
}

// Option configures a Manager
type Option func(*Manager)

// WithLogger sets the logger
func WithLogger(logger logging.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithMetrics sets the metrics registry
func WithMetrics(registry *metrics.Registry) Option {
	return func(m *Manager) { m.metrics = registry }
}

// WithStore records every parsed remote definition in s
func WithStore(s store.Store) Option {
	return func(m *Manager) { m.store = s }
}

// WithRouter replaces the default router
func WithRouter(r *router.Router) Option {
	return func(m *Manager) { m.router = r }
}

// WithPortHandler receives port data notifications of local nodes
func WithPortHandler(h nodedata.Handler) Option {
	return func(m *Manager) { m.portHandler = h }
}

// localNode is a node owned by this process
type localNode struct {
	data *nodedata.NodeData
	info *router.NodeInfo
	// client side: the connection publishing the node and its .out file
	fm      *filemanager.Manager
	outFile *filemanager.File
}

// remoteNode is a node announced over a server connection
type remoteNode struct {
	data    *nodedata.NodeData
	info    *router.NodeInfo
	defFile *filemanager.File
	outFile *filemanager.File
	inFile  *filemanager.File
}

// connection holds what one file manager contributed
type connection struct {
	fm       *filemanager.Manager
	listener filemanager.EventListener
	nodes    map[string]*remoteNode
}

// Manager tracks local nodes and the remote nodes of every attached file
// manager.
type Manager struct {
	mu          sync.Mutex
	local       map[string]*localNode
	connections map[*filemanager.Manager]*connection

	listenersMu sync.RWMutex
	listeners   []NodeListener

	factory     *nodedata.Factory
	router      *router.Router
	store       store.Store
	portHandler nodedata.Handler
	logger      logging.Logger
	metrics     *metrics.Registry
}

// New creates a node manager
func New(opts ...Option) *Manager {
	m := &Manager{
		local:       make(map[string]*localNode),
		connections: make(map[*filemanager.Manager]*connection),
		factory:     nodedata.NewFactory(),
		logger:      logging.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With(logging.Component("nodemanager"))
	if m.router == nil {
		m.router = router.New(router.WithLogger(m.logger), router.WithMetrics(m.metrics))
	}
	return m
}

// Router returns the router connecting node ports
func (m *Manager) Router() *router.Router {
	return m.router
}

// RegisterNodeListener adds l to the node listeners
func (m *Manager) RegisterNodeListener(l NodeListener) {
	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()
	m.listeners = append(m.listeners, l)
}

func (m *Manager) each(fn func(NodeListener)) {
	m.listenersMu.RLock()
	listeners := append([]NodeListener(nil), m.listeners...)
	m.listenersMu.RUnlock()
	for _, l := range listeners {
		fn(l)
	}
}

// AttachLocalNode adds a node owned by this process. Its provide ports
// are routed to remote require ports and, on a client, it is published on
// every attached file manager.
func (m *Manager) AttachLocalNode(nd *nodedata.NodeData) error {
	info, err := router.NewNodeInfo(nd, 0)
	if err != nil {
		return err
	}
	m.mu.Lock()
	if _, ok := m.local[nd.Name()]; ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicateNode, nd.Name())
	}
	ln := &localNode{data: nd, info: info}
	m.local[nd.Name()] = ln
	var clients []*filemanager.Manager
	for fm := range m.connections {
		if fm.Mode() == filemanager.ModeClient {
			clients = append(clients, fm)
		}
	}
	m.mu.Unlock()

	nd.SetHandler(&localHandler{m: m, node: ln})
	if err := m.router.Attach(info); err != nil {
		return err
	}
	for _, fm := range clients {
		if err := m.publish(fm, ln); err != nil {
			return err
		}
	}
	return nil
}

// FindNodeData returns the named node data, searching remote nodes before
// local ones.
func (m *Manager) FindNodeData(name string) *nodedata.NodeData {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.connections {
		if rn, ok := c.nodes[name]; ok && rn.data != nil {
			return rn.data
		}
	}
	if ln, ok := m.local[name]; ok {
		return ln.data
	}
	return nil
}

// Nodes returns every node known to the router
func (m *Manager) Nodes() []*router.NodeInfo {
	return m.router.Nodes()
}

// AttachFileManager starts serving fm. Server mode builds remote nodes from
// the files the client announces; client mode publishes the local nodes.
func (m *Manager) AttachFileManager(fm *filemanager.Manager) error {
	c := &connection{fm: fm, nodes: make(map[string]*remoteNode)}
	if fm.Mode() == filemanager.ModeServer {
		c.listener = &serverListener{m: m, conn: c}
	} else {
		c.listener = &clientListener{m: m}
	}

	m.mu.Lock()
	if _, ok := m.connections[fm]; ok {
		m.mu.Unlock()
		return nil
	}
	m.connections[fm] = c
	var locals []*localNode
	for _, ln := range m.local {
		locals = append(locals, ln)
	}
	m.mu.Unlock()

	fm.RegisterEventListener(c.listener)
	if fm.Mode() == filemanager.ModeClient {
		for _, ln := range locals {
			if err := m.publish(fm, ln); err != nil {
				return err
			}
		}
	}
	return nil
}

// DetachFileManager drops every node fm created and detaches them from the
// router.
func (m *Manager) DetachFileManager(fm *filemanager.Manager) {
	m.mu.Lock()
	c, ok := m.connections[fm]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(m.connections, fm)
	var detached []*router.NodeInfo
	for _, rn := range c.nodes {
		if rn.info != nil {
			detached = append(detached, rn.info)
		}
	}
	for _, ln := range m.local {
		if ln.fm == fm {
			ln.fm = nil
			ln.outFile = nil
		}
	}
	m.mu.Unlock()

	fm.UnregisterEventListener(c.listener)
	for _, info := range detached {
		m.router.Detach(info)
		m.logger.Info("node detached", logging.NodeName(info.Name()), logging.ConnectionID(fm.ID()))
		m.each(func(l NodeListener) { l.NodeDetached(fm.ID(), info) })
	}
}

// publish attaches the definition and out data files of a local node
func (m *Manager) publish(fm *filemanager.Manager, ln *localNode) error {
	handler := filemanager.NodeDataHandler{Data: ln.data}
	info, err := ln.data.FileInfo(nodedata.FileDefinition)
	if err != nil {
		return err
	}
	if err := fm.AttachLocalFile(filemanager.NewLocalFile(nodedata.FileDefinition, info, handler)); err != nil {
		return err
	}
	if ln.data.OutPortDataLen() == 0 {
		return nil
	}
	info, err = ln.data.FileInfo(nodedata.FileOutData)
	if err != nil {
		return err
	}
	out := filemanager.NewLocalFile(nodedata.FileOutData, info, handler)
	if err := fm.AttachLocalFile(out); err != nil {
		return err
	}
	m.mu.Lock()
	ln.fm = fm
	ln.outFile = out
	m.mu.Unlock()
	return nil
}

// localHandler routes provide port writes of a local node and sends them
// to the connection publishing it.
type localHandler struct {
	m    *Manager
	node *localNode
}

func (h *localHandler) InPortDataWritten(nd *nodedata.NodeData, offset, length int) {
	if h.m.portHandler != nil {
		h.m.portHandler.InPortDataWritten(nd, offset, length)
	}
}

func (h *localHandler) OutPortDataWritten(nd *nodedata.NodeData, offset, length int) {
	if err := h.m.router.RouteOutPortWrite(h.node.info, offset, length); err != nil {
		h.m.logger.Warn("failed to route local write", logging.NodeName(nd.Name()), logging.Error(err))
	}
	h.m.mu.Lock()
	fm, out := h.node.fm, h.node.outFile
	h.m.mu.Unlock()
	if fm != nil && out != nil && out.IsOpen() {
		data := make([]byte, length)
		if err := nd.ReadOutPortData(data, offset); err != nil {
			h.m.logger.Warn("failed to read out data", logging.NodeName(nd.Name()), logging.Error(err))
			return
		}
		if err := fm.WriteLocalFile(out, uint32(offset), data); err != nil && !errors.Is(err, filemanager.ErrFileNotOpen) {
			h.m.logger.Warn("failed to send out data", logging.NodeName(nd.Name()), logging.Error(err))
		}
	}
	if h.m.portHandler != nil {
		h.m.portHandler.OutPortDataWritten(nd, offset, length)
	}
}

// clientListener opens the in data files the server announces for local
// nodes.
type clientListener struct {
	filemanager.NopListener
	m *Manager
}

func (l *clientListener) FileCreate(fm *filemanager.Manager, f *filemanager.File) {
	if f.Kind != nodedata.FileInData {
		return
	}
	base, _ := nodedata.KindOf(f.Name())
	l.m.mu.Lock()
	ln, ok := l.m.local[base]
	l.m.mu.Unlock()
	if !ok {
		l.m.logger.Debug("in data file for unknown node", logging.FileName(f.Name()))
		return
	}
	if int(f.Length()) != ln.data.InPortDataLen() {
		l.m.logger.Error("in data file length mismatch",
			logging.FileName(f.Name()), logging.Bytes(int(f.Length())), logging.Int("expected", ln.data.InPortDataLen()))
		return
	}
	f.SetHandler(filemanager.NodeDataHandler{Data: ln.data})
	if err := fm.OpenRemoteFile(f.Address()); err != nil {
		l.m.logger.Warn("failed to open in data file", logging.FileName(f.Name()), logging.Error(err))
	}
}

func (m *Manager) recordDefinition(connectionID uint32, nd *nodedata.NodeData) {
	if m.store == nil {
		return
	}
	rec := store.NewRecord(nd.Name(), nd.Definition(), nd.InPortDataLen(), nd.OutPortDataLen())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.store.Put(ctx, rec); err != nil {
		m.logger.Warn("failed to store definition", logging.NodeName(nd.Name()), logging.ConnectionID(connectionID), logging.Error(err))
	}
}
