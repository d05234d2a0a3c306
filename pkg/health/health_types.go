package health

import (
	"sync"
	"time"
)

// Status is the health of one component or of the whole server
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

func (s Status) severity() int {
	switch s {
	case StatusHealthy:
		return 0
	case StatusDegraded:
		return 1
	}
	return 2
}

// Set selects which endpoint a check gates
type Set int

const (
	// General checks are served on /health; only unhealthy answers 503
	General Set = iota
	// Readiness checks are served on /health/ready
	Readiness
	// Liveness checks are served on /health/live
	Liveness
	numSets
)

// Check is the result of one component check
type Check struct {
	Name        string         `json:"name"`
	Status      Status         `json:"status"`
	Message     string         `json:"message,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
	LastChecked time.Time      `json:"last_checked"`
	Duration    time.Duration  `json:"-"`
	DurationMs  float64        `json:"duration_ms"`
}

// CheckFunc performs a check
type CheckFunc func() Check

// HealthChecker holds the named checks of an APX server per Set
type HealthChecker struct {
	mu      sync.RWMutex
	started time.Time
	sets    [numSets]map[string]CheckFunc
}

// Response is the aggregated result of a set of checks
type Response struct {
	Status        Status           `json:"status"`
	Timestamp     time.Time        `json:"timestamp"`
	Checks        map[string]Check `json:"checks"`
	UptimeSeconds float64          `json:"uptime_seconds"`
}
