// Package health aggregates component checks of the APX server and serves
// them over HTTP as /health, /health/ready and /health/live.
package health

import (
	"sync"
	"time"
)

// NewHealthChecker creates an empty checker. Uptime is measured from here.
func NewHealthChecker() *HealthChecker {
	hc := &HealthChecker{started: time.Now()}
	for i := range hc.sets {
		hc.sets[i] = make(map[string]CheckFunc)
	}
	return hc
}

// Add registers check under name in set, replacing a check of that name
func (hc *HealthChecker) Add(set Set, name string, check CheckFunc) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.sets[set][name] = check
}

// Run performs every check of set concurrently. The worst status wins; a
// set without checks is healthy.
func (hc *HealthChecker) Run(set Set) Response {
	hc.mu.RLock()
	checks := make(map[string]CheckFunc, len(hc.sets[set]))
	for name, fn := range hc.sets[set] {
		checks[name] = fn
	}
	hc.mu.RUnlock()

	response := Response{
		Status:        StatusHealthy,
		Timestamp:     time.Now(),
		Checks:        make(map[string]Check, len(checks)),
		UptimeSeconds: time.Since(hc.started).Seconds(),
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for name, fn := range checks {
		wg.Add(1)
		go func(name string, fn CheckFunc) {
			defer wg.Done()
			start := time.Now()
			check := fn()
			if check.Name == "" {
				check.Name = name
			}
			check.LastChecked = start
			check.Duration = time.Since(start)
			check.DurationMs = float64(check.Duration) / float64(time.Millisecond)

			mu.Lock()
			defer mu.Unlock()
			response.Checks[name] = check
			if check.Status.severity() > response.Status.severity() {
				response.Status = check.Status
			}
		}(name, fn)
	}
	wg.Wait()
	return response
}
