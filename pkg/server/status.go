package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dd0wney/cluso-apx/pkg/apx"
	"github.com/dd0wney/cluso-apx/pkg/health"
	"github.com/dd0wney/cluso-apx/pkg/logging"
	"github.com/dd0wney/cluso-apx/pkg/metrics"
	"github.com/dd0wney/cluso-apx/pkg/router"
	"github.com/dd0wney/cluso-apx/pkg/store"
)

// PortStatus describes one port in a /nodes response
type PortStatus struct {
	Name       string `json:"name"`
	Signature  string `json:"signature"`
	Offset     int    `json:"offset"`
	Length     int    `json:"length"`
	Value      any    `json:"value,omitempty"`
	Connectors int    `json:"connectors"`
}

// NodeStatus describes one attached node in a /nodes response
type NodeStatus struct {
	Name         string       `json:"name"`
	ConnectionID uint32       `json:"connection_id"`
	Remote       bool         `json:"remote"`
	Provide      []PortStatus `json:"provide"`
	Require      []PortStatus `json:"require"`
}

// Status is the /status response
type Status struct {
	Instance    string  `json:"instance"`
	ListenAddr  string  `json:"listen_addr"`
	Connections int     `json:"connections"`
	Nodes       int     `json:"nodes"`
	Connectors  int     `json:"connectors"`
	Uptime      float64 `json:"uptime_seconds"`
}

// HealthChecker returns the checks of this server
func (s *Server) HealthChecker() *health.HealthChecker {
	hc := health.NewHealthChecker()
	listener := health.ListenerCheck(s.Listening)
	storePing := health.StoreCheck(s.store.Ping, 2*time.Second)
	memory := health.MemoryCheck(nil)

	hc.Add(health.General, "listener", listener)
	hc.Add(health.General, "store", storePing)
	hc.Add(health.General, "connections", health.ConnectionsCheck(func() (int, int) {
		return s.NumConnections(), s.cfg.MaxConnections
	}))
	hc.Add(health.General, "nodes", health.NodesCheck(func() (int, int) {
		r := s.nodes.Router()
		return len(r.Nodes()), r.ConnectorCount()
	}))
	hc.Add(health.General, "memory", memory)
	hc.Add(health.Readiness, "listener", listener)
	hc.Add(health.Readiness, "store", storePing)
	hc.Add(health.Liveness, "memory", memory)
	return hc
}

// StatusHandler serves /metrics, /health, /health/ready, /health/live,
// /status, /nodes and /definitions.
func (s *Server) StatusHandler() http.Handler {
	mux := http.NewServeMux()
	if s.metrics != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.metrics.GetPrometheusRegistry(), promhttp.HandlerOpts{}))
	}
	s.HealthChecker().Mount(mux, "/health")
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/nodes", s.handleNodes)
	mux.HandleFunc("/definitions", s.handleDefinitions)
	return instrument(s.metrics, mux)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) {
		return
	}
	addr, _ := s.Listening()
	rt := s.nodes.Router()
	respondJSON(w, http.StatusOK, Status{
		Instance:    s.instanceID.String(),
		ListenAddr:  addr,
		Connections: s.NumConnections(),
		Nodes:       len(rt.Nodes()),
		Connectors:  rt.ConnectorCount(),
		Uptime:      s.Uptime().Seconds(),
	})
}

func (s *Server) handleNodes(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) {
		return
	}
	rt := s.nodes.Router()
	infos := rt.Nodes()
	nodes := make([]NodeStatus, 0, len(infos))
	for _, info := range infos {
		nodes = append(nodes, nodeStatus(rt, info))
	}
	respondJSON(w, http.StatusOK, nodes)
}

func nodeStatus(rt *router.Router, info *router.NodeInfo) NodeStatus {
	ns := NodeStatus{
		Name:         info.Name(),
		ConnectionID: info.ConnectionID,
		Remote:       info.Data.IsRemote(),
		Provide:      make([]PortStatus, 0, len(info.Node.ProvidePorts)),
		Require:      make([]PortStatus, 0, len(info.Node.RequirePorts)),
	}
	for _, p := range info.Node.ProvidePorts {
		v, _ := info.Data.ReadProvidePort(p.Name)
		ns.Provide = append(ns.Provide, portStatus(p, v, len(rt.Connectors(p))))
	}
	for _, p := range info.Node.RequirePorts {
		v, _ := info.Data.ReadRequirePort(p.Name)
		ns.Require = append(ns.Require, portStatus(p, v, len(rt.Providers(info, p))))
	}
	return ns
}

func portStatus(p *apx.Port, value any, connectors int) PortStatus {
	return PortStatus{
		Name:       p.Name,
		Signature:  p.Signature.Text,
		Offset:     p.Offset,
		Length:     p.PackLen(),
		Value:      value,
		Connectors: connectors,
	}
}

// handleDefinitions lists stored definitions, or with ?name= returns the
// latest definition of one node.
func (s *Server) handleDefinitions(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if name := r.URL.Query().Get("name"); name != "" {
		rec, err := s.store.Get(ctx, name)
		switch {
		case errors.Is(err, store.ErrNotFound):
			respondError(w, http.StatusNotFound, "definition not found")
		case err != nil:
			respondError(w, http.StatusInternalServerError, err.Error())
		default:
			respondJSON(w, http.StatusOK, rec)
		}
		return
	}

	recs, err := s.store.List(ctx)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if recs == nil {
		recs = []*store.Record{}
	}
	respondJSON(w, http.StatusOK, recs)
}

func requireGet(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return false
	}
	return true
}

func respondJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Debug("failed to encode response", logging.Error(err))
	}
}

func respondError(w http.ResponseWriter, code int, msg string) {
	respondJSON(w, code, map[string]string{"error": msg})
}

// statusWriter captures the status code and size of a response
type statusWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
}

func (w *statusWriter) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.bytesWritten += n
	return n, err
}

// instrument records request count, latency and response size. Requests
// are labelled with the matched route so unknown paths share one series.
func instrument(registry *metrics.Registry, mux *http.ServeMux) http.Handler {
	if registry == nil {
		return mux
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		registry.StatusRequestsInFlight.Inc()
		defer registry.StatusRequestsInFlight.Dec()

		sw := &statusWriter{ResponseWriter: w, statusCode: http.StatusOK}
		mux.ServeHTTP(sw, r)

		registry.RecordStatusRequest(r.Method, endpoint(mux, r), sw.statusCode, time.Since(start), sw.bytesWritten)
	})
}

func endpoint(mux *http.ServeMux, r *http.Request) string {
	if _, pattern := mux.Handler(r); pattern != "" {
		return strings.TrimPrefix(pattern, "/")
	}
	return "other"
}
