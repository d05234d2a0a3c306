package health

import (
	"encoding/json"
	"net/http"
)

// Handler serves the checks of set. General checks answer 503 only when
// unhealthy so a degraded server stays in rotation; readiness and liveness
// answer 503 for anything but healthy.
func (hc *HealthChecker) Handler(set Set) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := hc.Run(set)
		code := http.StatusOK
		switch {
		case response.Status == StatusUnhealthy:
			code = http.StatusServiceUnavailable
		case set != General && response.Status != StatusHealthy:
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(response)
	}
}

// Mount serves the three sets on mux under prefix, e.g. "/health",
// "/health/ready" and "/health/live"
func (hc *HealthChecker) Mount(mux *http.ServeMux, prefix string) {
	mux.HandleFunc(prefix, hc.Handler(General))
	mux.HandleFunc(prefix+"/ready", hc.Handler(Readiness))
	mux.HandleFunc(prefix+"/live", hc.Handler(Liveness))
}
