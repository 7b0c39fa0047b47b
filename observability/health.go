package observability

import (
	"context"
	"sync"
)

// HealthStatus represents the health state of a component or service.
type HealthStatus string

const (
	HealthStatusUp       HealthStatus = "up"
	HealthStatusDown     HealthStatus = "down"
	HealthStatusDegraded HealthStatus = "degraded"
)

// Health describes the health of an individual component.
type Health struct {
	Name    string            `json:"name"`
	Status  HealthStatus      `json:"status"`
	Message string            `json:"message,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

// ServiceHealth is the aggregated result of running every registered
// check: the worst component status wins.
type ServiceHealth struct {
	Service    string       `json:"service"`
	Status     HealthStatus `json:"status"`
	Version    string       `json:"version,omitempty"`
	Components []Health     `json:"components,omitempty"`
}

// CheckFunc reports the health of a single component.
type CheckFunc func(ctx context.Context) Health

// HealthChecker is implemented by components that can report their health.
type HealthChecker interface {
	CheckHealth(ctx context.Context) Health
}

// HealthRegistry collects health checks for the components of a service,
// typically one per configured LLM provider. Safe for concurrent use.
type HealthRegistry struct {
	service string
	version string

	mu     sync.Mutex
	checks []CheckFunc
}

// NewHealthRegistry creates an empty registry for the named service.
func NewHealthRegistry(service, version string) *HealthRegistry {
	return &HealthRegistry{service: service, version: version}
}

// Register adds a check to the registry.
func (r *HealthRegistry) Register(check CheckFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checks = append(r.checks, check)
}

// RegisterChecker adds a HealthChecker to the registry.
func (r *HealthRegistry) RegisterChecker(checker HealthChecker) {
	r.Register(checker.CheckHealth)
}

// Check runs every registered check and aggregates the results. With no
// checks registered the service reports up.
func (r *HealthRegistry) Check(ctx context.Context) ServiceHealth {
	r.mu.Lock()
	checks := make([]CheckFunc, len(r.checks))
	copy(checks, r.checks)
	r.mu.Unlock()

	result := ServiceHealth{
		Service: r.service,
		Version: r.version,
		Status:  HealthStatusUp,
	}
	for _, check := range checks {
		h := check(ctx)
		result.Components = append(result.Components, h)
		result.Status = worseStatus(result.Status, h.Status)
	}
	return result
}

// worseStatus orders statuses down > degraded > up and returns the worse
// of the two.
func worseStatus(a, b HealthStatus) HealthStatus {
	if a == HealthStatusDown || b == HealthStatusDown {
		return HealthStatusDown
	}
	if a == HealthStatusDegraded || b == HealthStatusDegraded {
		return HealthStatusDegraded
	}
	return HealthStatusUp
}
