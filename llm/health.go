package llm

import (
	"context"

	"github.com/kbukum/llmkit/observability"
)

// HealthCheck returns a health check for a client, suitable for an
// observability.HealthRegistry. Wrapped clients report through their
// resilience state: a ResilientClient with an open circuit reports down.
func HealthCheck(client Client) observability.CheckFunc {
	return func(ctx context.Context) observability.Health {
		h := observability.Health{Name: client.Name()}
		if client.IsAvailable(ctx) {
			h.Status = observability.HealthStatusUp
			return h
		}
		h.Status = observability.HealthStatusDown
		h.Message = "provider unavailable"
		return h
	}
}

// NewHealthRegistry builds a registry with one check per client.
func NewHealthRegistry(service, version string, clients ...Client) *observability.HealthRegistry {
	registry := observability.NewHealthRegistry(service, version)
	for _, client := range clients {
		registry.Register(HealthCheck(client))
	}
	return registry
}
