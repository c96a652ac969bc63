package metrics

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// HealthStatus represents the health status of a component
type HealthStatus struct {
	Status     string            `json:"status"` // "healthy", "degraded", "unhealthy"
	Timestamp  time.Time         `json:"timestamp"`
	Components map[string]string `json:"components,omitempty"`
	Message    string            `json:"message,omitempty"`
	Version    string            `json:"version,omitempty"`
	Uptime     string            `json:"uptime,omitempty"`
	StartTime  time.Time         `json:"-"`
}

var (
	healthChecker = &HealthChecker{
		components: make(map[string]ComponentHealth),
		startTime:  time.Now(),
	}
)

// ComponentHealth tracks the health of a single component
type ComponentHealth struct {
	Name    string
	Healthy bool
	Message string
	Updated time.Time
}

// chainVerifier is a named, on-demand integrity check — e.g. a policy
// ledger's hash chain — re-run on every GetHealth/GetReadiness call
// instead of a flag some caller has to remember to flip by hand.
type chainVerifier struct {
	name   string
	verify func() error
}

// HealthChecker manages health checks for various components. Besides
// the manually-registered components a caller sets with
// RegisterComponent, it can be wired to a live StatsSource (one
// component per registered Tree, reporting that Tree's real trunk
// capabilities) and to any number of chain verifiers (e.g. a policy
// ledger); both of those are treated as critical for readiness, a
// plain RegisterComponent entry is not.
type HealthChecker struct {
	mu         sync.RWMutex
	components map[string]ComponentHealth
	startTime  time.Time
	version    string
	src        StatsSource
	verifiers  []chainVerifier
}

// SetVersion sets the version string for health responses
func SetVersion(version string) {
	healthChecker.mu.Lock()
	defer healthChecker.mu.Unlock()
	healthChecker.version = version
}

// WireStats attaches src so GetHealth/GetReadiness report one
// component per registered Tree, named "<kind>/<name>" and labeled
// with that tree's actual trunk type and durability — the same source
// the Collector polls for the gauge metrics — rather than a fixed,
// made-up component name. Every tree surfaced this way counts as
// critical for readiness: an empty registry means there is nothing yet
// ready to serve.
func WireStats(src StatsSource) {
	healthChecker.mu.Lock()
	defer healthChecker.mu.Unlock()
	healthChecker.src = src
}

// WireChainVerifier registers a named integrity check — typically
// ledger.GovernedEngine.VerifyChain — that GetHealth/GetReadiness
// re-evaluates on every call. A failing verifier is always critical: a
// torn or tampered policy chain means every Stash the
// PolicyEnforcement root gates is already failing closed.
func WireChainVerifier(name string, verify func() error) {
	healthChecker.mu.Lock()
	defer healthChecker.mu.Unlock()
	healthChecker.verifiers = append(healthChecker.verifiers, chainVerifier{name: name, verify: verify})
}

// RegisterComponent registers a component for health checking. It is
// informational for GetHealth (an unhealthy entry flips the overall
// status to "unhealthy") but, unlike a wired Tree or chain verifier,
// is not counted against readiness on its own.
func RegisterComponent(name string, healthy bool, message string) {
	healthChecker.mu.Lock()
	defer healthChecker.mu.Unlock()

	healthChecker.components[name] = ComponentHealth{
		Name:    name,
		Healthy: healthy,
		Message: message,
		Updated: time.Now(),
	}
}

// UpdateComponent updates the health status of a component
func UpdateComponent(name string, healthy bool, message string) {
	RegisterComponent(name, healthy, message) // Same implementation
}

// snapshot merges the manually-registered components with a live read
// of the wired StatsSource's trees and chain verifiers, returning the
// full component set plus the names that count toward readiness.
func (h *HealthChecker) snapshot() (all map[string]ComponentHealth, critical []string) {
	h.mu.RLock()
	src := h.src
	verifiers := append([]chainVerifier(nil), h.verifiers...)
	all = make(map[string]ComponentHealth, len(h.components))
	for name, comp := range h.components {
		all[name] = comp
	}
	h.mu.RUnlock()

	if src != nil {
		for _, s := range src.TreeStats() {
			name := s.Kind + "/" + s.Name
			all[name] = ComponentHealth{
				Name:    name,
				Healthy: true,
				Message: fmt.Sprintf("trunk=%s durable=%t cache=%d", s.TrunkType, s.IsDurable, s.CacheSize),
				Updated: time.Now(),
			}
			critical = append(critical, name)
		}
	}

	for _, v := range verifiers {
		comp := ComponentHealth{Name: v.name, Healthy: true, Updated: time.Now()}
		if err := v.verify(); err != nil {
			comp.Healthy = false
			comp.Message = err.Error()
		}
		all[v.name] = comp
		critical = append(critical, v.name)
	}

	return all, critical
}

// GetHealth returns the overall health status
func GetHealth() HealthStatus {
	healthChecker.mu.RLock()
	startTime, version := healthChecker.startTime, healthChecker.version
	healthChecker.mu.RUnlock()

	all, _ := healthChecker.snapshot()

	status := "healthy"
	components := make(map[string]string, len(all))
	for name, comp := range all {
		if !comp.Healthy {
			status = "unhealthy"
			components[name] = "unhealthy: " + comp.Message
		} else {
			components[name] = "healthy"
		}
	}

	return HealthStatus{
		Status:     status,
		Timestamp:  time.Now(),
		Components: components,
		Version:    version,
		Uptime:     time.Since(startTime).String(),
		StartTime:  startTime,
	}
}

// GetReadiness returns readiness status: ready only if every component
// backed by a wired tree registry or chain verifier is healthy, and at
// least one such critical component is wired in the first place — an
// empty registry with no ledger verifier means there is nothing yet to
// be ready to serve.
func GetReadiness() HealthStatus {
	healthChecker.mu.RLock()
	startTime, version := healthChecker.startTime, healthChecker.version
	healthChecker.mu.RUnlock()

	all, critical := healthChecker.snapshot()

	status := "ready"
	message := ""
	components := make(map[string]string, len(critical))

	if len(critical) == 0 {
		status = "not_ready"
		message = "waiting for a tree registry or ledger chain verifier to be wired"
	}

	for _, name := range critical {
		comp := all[name]
		if !comp.Healthy {
			status = "not_ready"
			message = "waiting for " + name
			components[name] = "not ready: " + comp.Message
		} else {
			components[name] = "ready"
		}
	}

	return HealthStatus{
		Status:     status,
		Timestamp:  time.Now(),
		Components: components,
		Message:    message,
		Version:    version,
		Uptime:     time.Since(startTime).String(),
		StartTime:  startTime,
	}
}

// HealthHandler returns an HTTP handler for the /health endpoint
func HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		health := GetHealth()

		w.Header().Set("Content-Type", "application/json")

		// Set appropriate status code
		statusCode := http.StatusOK
		if health.Status == "unhealthy" {
			statusCode = http.StatusServiceUnavailable
		}
		w.WriteHeader(statusCode)

		_ = json.NewEncoder(w).Encode(health)
	}
}

// ReadyHandler returns an HTTP handler for the /ready endpoint
func ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		readiness := GetReadiness()

		w.Header().Set("Content-Type", "application/json")

		// Set appropriate status code
		statusCode := http.StatusOK
		if readiness.Status != "ready" {
			statusCode = http.StatusServiceUnavailable
		}
		w.WriteHeader(statusCode)

		_ = json.NewEncoder(w).Encode(readiness)
	}
}

// LivenessHandler returns a simple liveness check (always returns 200 if process is running)
func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		healthChecker.mu.RLock()
		startTime := healthChecker.startTime
		healthChecker.mu.RUnlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status": "alive",
			"uptime": time.Since(startTime).String(),
		})
	}
}
