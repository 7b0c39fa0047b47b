package llm

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// ProviderConfig is the vendor-neutral configuration a factory receives.
type ProviderConfig struct {
	// APIKey authenticates against the provider. Empty for local providers.
	APIKey string `yaml:"api_key" mapstructure:"api_key"`
	// BaseURL overrides the provider's default endpoint.
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	// Model is the default model for requests that don't specify one.
	Model string `yaml:"model" mapstructure:"model"`
	// Timeout bounds each provider call.
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
	// Extra holds vendor-specific settings (e.g., openai organization).
	Extra map[string]string `yaml:"extra" mapstructure:"extra"`
}

// Factory constructs a provider client from configuration.
type Factory func(cfg ProviderConfig) (Client, error)

var (
	registryMu sync.RWMutex
	factories  = make(map[string]Factory)
)

// Register makes a provider factory available under the given name.
// Vendor packages call this from an init function or expose a Factory
// for the caller to register. Re-registering a name replaces the factory.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	factories[name] = factory
}

// New constructs a client for a registered provider.
func New(name string, cfg ProviderConfig) (Client, error) {
	registryMu.RLock()
	factory, ok := factories[name]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("llm: unknown provider %q (registered: %v)", name, Providers())
	}
	return factory(cfg)
}

// Providers returns the sorted names of registered providers.
func Providers() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
