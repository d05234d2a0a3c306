// Package router connects provide ports to require ports with equal port
// signatures across attached nodes and forwards provide port writes into
// the connected in-port buffers.
package router

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/dd0wney/cluso-apx/pkg/apx"
	"github.com/dd0wney/cluso-apx/pkg/logging"
	"github.com/dd0wney/cluso-apx/pkg/metrics"
	"github.com/dd0wney/cluso-apx/pkg/nodedata"
)

// ErrNotAttached is returned when routing for a node the router does not know
var ErrNotAttached = errors.New("router: node not attached")

// NodeInfo is a finalized node and the NodeData holding its buffers
type NodeInfo struct {
	Node         *apx.Node
	Data         *nodedata.NodeData
	ConnectionID uint32

	// provide ports in out-buffer offset order
	provide []*apx.Port
}

// NewNodeInfo wraps nd, which must have a parsed node
func NewNodeInfo(nd *nodedata.NodeData, connectionID uint32) (*NodeInfo, error) {
	node := nd.Node()
	if node == nil {
		return nil, fmt.Errorf("%w: %s", nodedata.ErrNoNode, nd.Name())
	}
	if err := node.Finalize(); err != nil {
		return nil, err
	}
	provide := append([]*apx.Port(nil), node.ProvidePorts...)
	sort.Slice(provide, func(i, j int) bool { return provide[i].Offset < provide[j].Offset })
	return &NodeInfo{Node: node, Data: nd, ConnectionID: connectionID, provide: provide}, nil
}

// Name returns the node name
func (n *NodeInfo) Name() string { return n.Node.Name }

// providePortsIn returns the provide ports overlapping [offset, offset+length)
func (n *NodeInfo) providePortsIn(offset, length int) []*apx.Port {
	end := offset + length
	i := sort.Search(len(n.provide), func(i int) bool {
		p := n.provide[i]
		return p.Offset+p.PackLen() > offset
	})
	var ports []*apx.Port
	for ; i < len(n.provide) && n.provide[i].Offset < end; i++ {
		ports = append(ports, n.provide[i])
	}
	return ports
}

// Endpoint is one side of a connector
type Endpoint struct {
	Info *NodeInfo
	Port *apx.Port
}

// PortUpdate is a provide port value that was routed to require ports
type PortUpdate struct {
	Node      string
	Port      string
	Value     any
	Data      []byte
	Receivers int
}

// Observer receives every routed port update
type Observer interface {
	PortUpdated(u PortUpdate)
}

// ObserverFunc adapts a function to Observer
type ObserverFunc func(u PortUpdate)

// PortUpdated calls fn(u)
func (fn ObserverFunc) PortUpdated(u PortUpdate) { fn(u) }

// Option configures a Router
type Option func(*Router)

// WithLogger sets the logger
func WithLogger(logger logging.Logger) Option {
	return func(r *Router) { r.logger = logger }
}

// WithMetrics sets the registry node and connector gauges are kept in
func WithMetrics(registry *metrics.Registry) Option {
	return func(r *Router) { r.metrics = registry }
}

// Router holds the port connectors of all attached nodes
type Router struct {
	mu        sync.RWMutex
	nodes     map[*NodeInfo]struct{}
	providers map[string][]Endpoint
	requirers map[string][]Endpoint
	// connectors maps a provide port to the require ports it feeds
	connectors map[*apx.Port][]Endpoint
	observers  []Observer

	logger  logging.Logger
	metrics *metrics.Registry
}

// New creates an empty router
func New(opts ...Option) *Router {
	r := &Router{
		nodes:      make(map[*NodeInfo]struct{}),
		providers:  make(map[string][]Endpoint),
		requirers:  make(map[string][]Endpoint),
		connectors: make(map[*apx.Port][]Endpoint),
		logger:     logging.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With(logging.Component("router"))
	return r
}

// AddObserver registers o for routed port updates
func (r *Router) AddObserver(o Observer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, o)
}

// Attach connects info's ports to every matching port on other nodes.
// Each newly connected require port receives the current value of its
// provider.
func (r *Router) Attach(info *NodeInfo) error {
	type initialCopy struct {
		from Endpoint
		to   *apx.Port
	}
	var copies []initialCopy

	r.mu.Lock()
	if _, ok := r.nodes[info]; ok {
		r.mu.Unlock()
		return nil
	}
	r.nodes[info] = struct{}{}
	for _, p := range info.Node.ProvidePorts {
		key := p.PortSignature()
		r.providers[key] = append(r.providers[key], Endpoint{info, p})
		for _, req := range r.requirers[key] {
			if req.Info != info {
				r.connectors[p] = append(r.connectors[p], req)
			}
		}
	}
	for _, p := range info.Node.RequirePorts {
		key := p.PortSignature()
		r.requirers[key] = append(r.requirers[key], Endpoint{info, p})
		var latest *Endpoint
		for i, prov := range r.providers[key] {
			if prov.Info == info {
				continue
			}
			r.connectors[prov.Port] = append(r.connectors[prov.Port], Endpoint{info, p})
			latest = &r.providers[key][i]
		}
		if latest != nil {
			copies = append(copies, initialCopy{from: *latest, to: p})
		}
	}
	nodes, connectors := r.countsLocked()
	r.mu.Unlock()

	for _, c := range copies {
		buf := make([]byte, c.to.PackLen())
		if err := c.from.Info.Data.ReadOutPortData(buf, c.from.Port.Offset); err != nil {
			return err
		}
		if err := info.Data.WriteInPortData(buf, c.to.Offset); err != nil {
			return err
		}
	}
	if r.metrics != nil {
		r.metrics.UpdateRouterMetrics(nodes, connectors)
	}
	r.logger.Debug("node attached", logging.NodeName(info.Name()), logging.Count(len(copies)))
	return nil
}

// Detach removes every connector to or from info
func (r *Router) Detach(info *NodeInfo) {
	r.mu.Lock()
	if _, ok := r.nodes[info]; !ok {
		r.mu.Unlock()
		return
	}
	delete(r.nodes, info)
	for _, p := range info.Node.ProvidePorts {
		key := p.PortSignature()
		r.providers[key] = without(r.providers[key], info)
		if len(r.providers[key]) == 0 {
			delete(r.providers, key)
		}
		delete(r.connectors, p)
	}
	for _, p := range info.Node.RequirePorts {
		key := p.PortSignature()
		r.requirers[key] = without(r.requirers[key], info)
		if len(r.requirers[key]) == 0 {
			delete(r.requirers, key)
		}
		for _, prov := range r.providers[key] {
			r.connectors[prov.Port] = without(r.connectors[prov.Port], info)
		}
	}
	nodes, connectors := r.countsLocked()
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.UpdateRouterMetrics(nodes, connectors)
	}
	r.logger.Debug("node detached", logging.NodeName(info.Name()))
}

func without(endpoints []Endpoint, info *NodeInfo) []Endpoint {
	out := endpoints[:0]
	for _, e := range endpoints {
		if e.Info != info {
			out = append(out, e)
		}
	}
	return out
}

func (r *Router) countsLocked() (nodes, connectors int) {
	for _, c := range r.connectors {
		connectors += len(c)
	}
	return len(r.nodes), connectors
}

// Connectors returns the require ports fed by the provide port p
func (r *Router) Connectors(p *apx.Port) []Endpoint {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Endpoint(nil), r.connectors[p]...)
}

// Providers returns the provide ports feeding the require port p of info
func (r *Router) Providers(info *NodeInfo, p *apx.Port) []Endpoint {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Endpoint
	for _, prov := range r.providers[p.PortSignature()] {
		if prov.Info != info {
			out = append(out, prov)
		}
	}
	return out
}

// Nodes returns the attached nodes ordered by name
func (r *Router) Nodes() []*NodeInfo {
	r.mu.RLock()
	nodes := make([]*NodeInfo, 0, len(r.nodes))
	for n := range r.nodes {
		nodes = append(nodes, n)
	}
	r.mu.RUnlock()
	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].Name() == nodes[j].Name() {
			return nodes[i].ConnectionID < nodes[j].ConnectionID
		}
		return nodes[i].Name() < nodes[j].Name()
	})
	return nodes
}

// ConnectorCount returns the number of provide to require connections
func (r *Router) ConnectorCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, n := r.countsLocked()
	return n
}

// RouteOutPortWrite forwards the provide ports of info touched by a write
// of length bytes at offset into every connected require port.
func (r *Router) RouteOutPortWrite(info *NodeInfo, offset, length int) error {
	r.mu.RLock()
	if _, ok := r.nodes[info]; !ok {
		r.mu.RUnlock()
		return fmt.Errorf("%w: %s", ErrNotAttached, info.Name())
	}
	ports := info.providePortsIn(offset, length)
	targets := make([][]Endpoint, len(ports))
	for i, p := range ports {
		targets[i] = append([]Endpoint(nil), r.connectors[p]...)
	}
	observers := append([]Observer(nil), r.observers...)
	r.mu.RUnlock()

	var errs []error
	routed := 0
	for i, p := range ports {
		buf := make([]byte, p.PackLen())
		if err := info.Data.ReadOutPortData(buf, p.Offset); err != nil {
			errs = append(errs, err)
			continue
		}
		for _, dst := range targets[i] {
			if err := dst.Info.Data.WriteInPortData(buf, dst.Port.Offset); err != nil {
				errs = append(errs, fmt.Errorf("route %s.%s to %s: %w", info.Name(), p.Name, dst.Info.Name(), err))
				continue
			}
			routed++
		}
		if len(observers) > 0 {
			value, _, err := apx.Unpack(p.Element(), buf)
			if err != nil {
				r.logger.Warn("failed to decode routed value", logging.NodeName(info.Name()), logging.PortName(p.Name), logging.Error(err))
			}
			u := PortUpdate{Node: info.Name(), Port: p.Name, Value: value, Data: buf, Receivers: len(targets[i])}
			for _, o := range observers {
				o.PortUpdated(u)
			}
		}
	}
	if r.metrics != nil && routed > 0 {
		r.metrics.RecordRoutedWrites(routed)
	}
	return errors.Join(errs...)
}
