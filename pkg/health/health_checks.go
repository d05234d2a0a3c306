package health

import (
	"context"
	"runtime"
	"time"
)

// StoreCheck pings the definition store
func StoreCheck(ping func(ctx context.Context) error, timeout time.Duration) CheckFunc {
	return func() Check {
		check := Check{Name: "store"}

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := ping(ctx); err != nil {
			check.Status = StatusUnhealthy
			check.Message = err.Error()
		} else {
			check.Status = StatusHealthy
			check.Message = "Connected"
		}
		return check
	}
}

// ListenerCheck reports whether the RMF listener accepts connections
func ListenerCheck(listening func() (addr string, ok bool)) CheckFunc {
	return func() Check {
		check := Check{Name: "listener", Details: make(map[string]any)}

		addr, ok := listening()
		check.Details["addr"] = addr
		if ok {
			check.Status = StatusHealthy
			check.Message = "Accepting connections"
		} else {
			check.Status = StatusUnhealthy
			check.Message = "Not listening"
		}
		return check
	}
}

// ConnectionsCheck degrades once active connections reach 90% of max
func ConnectionsCheck(getConnections func() (active, max int)) CheckFunc {
	return func() Check {
		check := Check{Name: "connections", Details: make(map[string]any)}

		active, max := getConnections()
		check.Details["active"] = active
		check.Details["max"] = max

		switch {
		case max > 0 && active >= max:
			check.Status = StatusDegraded
			check.Message = "Connection limit reached"
		case max > 0 && active*10 >= max*9:
			check.Status = StatusDegraded
			check.Message = "Near connection limit"
		default:
			check.Status = StatusHealthy
			check.Message = "Accepting clients"
		}
		return check
	}
}

// NodesCheck reports the attached nodes and connectors. It is always healthy.
func NodesCheck(getNodes func() (nodes, connectors int)) CheckFunc {
	return func() Check {
		nodes, connectors := getNodes()
		return Check{
			Name:    "nodes",
			Status:  StatusHealthy,
			Details: map[string]any{"nodes": nodes, "connectors": connectors},
		}
	}
}

// MemoryCheck degrades when the heap uses more than 90% of memory obtained
// from the OS. A nil getUsage reads runtime.MemStats.
func MemoryCheck(getUsage func() (alloc, sys uint64)) CheckFunc {
	if getUsage == nil {
		getUsage = func() (uint64, uint64) {
			var m runtime.MemStats
			runtime.ReadMemStats(&m)
			return m.Alloc, m.Sys
		}
	}
	return func() Check {
		check := Check{Name: "memory", Details: make(map[string]any)}

		alloc, sys := getUsage()
		check.Details["alloc_bytes"] = alloc
		check.Details["sys_bytes"] = sys

		if sys > 0 && float64(alloc)/float64(sys) > 0.9 {
			check.Status = StatusDegraded
			check.Message = "High memory usage"
		} else {
			check.Status = StatusHealthy
			check.Message = "Memory usage normal"
		}
		return check
	}
}
