package host

import (
	"encoding/json"
	"net/http"
	"time"
)

// HealthStatus is the readiness state reported on Config.HealthPath.
type HealthStatus string

const (
	// StatusUnknown means Run has not finished the ready hooks yet.
	StatusUnknown HealthStatus = "unknown"
	// StatusHealthy means every ready hook succeeded and the runtime is serving.
	StatusHealthy HealthStatus = "healthy"
	// StatusCritical means a ready hook failed or shutdown has begun.
	StatusCritical HealthStatus = "critical"
)

// HealthReport is the JSON body served on Config.HealthPath.
type HealthReport struct {
	Status    HealthStatus `json:"status"`
	Since     time.Time    `json:"since"`
	Timestamp time.Time    `json:"timestamp"`
}

// Health returns the current readiness state.
func (r *Runtime) Health() HealthReport {
	r.mu.Lock()
	defer r.mu.Unlock()
	return HealthReport{Status: r.status, Since: r.statusSince, Timestamp: time.Now()}
}

func (r *Runtime) setStatus(s HealthStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status != s {
		r.status = s
		r.statusSince = time.Now()
	}
}

func (r *Runtime) serveHealth(w http.ResponseWriter, _ *http.Request) {
	report := r.Health()
	status := http.StatusOK
	if report.Status != StatusHealthy {
		status = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(report); err != nil {
		r.logger.Warn("Failed to write health report", "error", err)
	}
}
