package config

import (
	"fmt"
	"time"

	"github.com/kbukum/llmkit/logger"
	"github.com/kbukum/llmkit/resilience"
	"github.com/kbukum/llmkit/validation"
)

// ProviderConfig configures a single LLM provider.
type ProviderConfig struct {
	// Type selects the provider implementation:
	// claude, openai, gemini, ollama, or huggingface.
	Type string `yaml:"type" mapstructure:"type" validate:"required,oneof=claude openai gemini ollama huggingface"`
	// APIKey authenticates against the provider. Optional for local
	// providers like ollama.
	APIKey string `yaml:"api_key" mapstructure:"api_key"`
	// BaseURL overrides the provider endpoint.
	BaseURL string `yaml:"base_url" mapstructure:"base_url" validate:"omitempty,url"`
	// Model is the default model for completions.
	Model string `yaml:"model" mapstructure:"model"`
	// MaxTokens caps the completion length.
	MaxTokens int `yaml:"max_tokens" mapstructure:"max_tokens" validate:"omitempty,min=1"`
	// Temperature controls sampling randomness.
	Temperature float64 `yaml:"temperature" mapstructure:"temperature" validate:"min=0,max=2"`
	// Timeout bounds a single provider call.
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
	// Resilience overrides the top-level resilience policy for this provider.
	Resilience *resilience.PolicyConfig `yaml:"resilience" mapstructure:"resilience"`
}

// ApplyDefaults fills in zero-value fields with sensible defaults.
func (c *ProviderConfig) ApplyDefaults() {
	if c.MaxTokens == 0 {
		c.MaxTokens = 1024
	}
	if c.Timeout == 0 {
		c.Timeout = 60 * time.Second
	}
}

// Validate checks the provider section against its struct tags, then the
// nested resilience policy.
func (c *ProviderConfig) Validate() error {
	if err := validation.Validate(c); err != nil {
		return err
	}
	if c.Resilience != nil {
		if err := c.Resilience.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Config is the top-level llmkit configuration.
type Config struct {
	Name        string `yaml:"name" mapstructure:"name" validate:"required"`
	Environment string `yaml:"environment" mapstructure:"environment" validate:"required,oneof=development staging production"`
	Version     string `yaml:"version" mapstructure:"version"`
	Debug       bool   `yaml:"debug" mapstructure:"debug"`

	Logging logger.Config `yaml:"logging" mapstructure:"logging"`

	// Providers maps a provider name to its configuration.
	Providers map[string]ProviderConfig `yaml:"providers" mapstructure:"providers"`

	// Resilience is the default policy applied to providers that do not
	// carry their own.
	Resilience resilience.PolicyConfig `yaml:"resilience" mapstructure:"resilience"`

	// Cache configures the shared response cache.
	Cache resilience.CacheConfig `yaml:"cache" mapstructure:"cache"`
}

// ApplyDefaults applies default values throughout the tree.
func (c *Config) ApplyDefaults() {
	if c.Environment == "" {
		c.Environment = "development"
	}
	if c.Environment == "development" {
		c.Debug = true
	}
	if c.Logging.ServiceName == "" && c.Name != "" {
		c.Logging.ServiceName = c.Name
	}
	c.Logging.ApplyDefaults()
	c.Resilience.ApplyDefaults()
	c.Cache.ApplyDefaults()

	for name, p := range c.Providers {
		p.ApplyDefaults()
		c.Providers[name] = p
	}
}

// Validate validates the whole configuration tree. Field-level rules come
// from the struct tags; nested sections validate themselves.
func (c *Config) Validate() error {
	if err := validation.Validate(c); err != nil {
		return err
	}
	if err := c.Logging.Validate(); err != nil {
		return err
	}
	if err := c.Resilience.Validate(); err != nil {
		return err
	}
	if err := c.Cache.Validate(); err != nil {
		return err
	}
	for name, p := range c.Providers {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("provider %q: %w", name, err)
		}
	}
	return nil
}

// PolicyFor returns the resilience policy config for a named provider,
// falling back to the top-level default.
func (c *Config) PolicyFor(name string) resilience.PolicyConfig {
	if p, ok := c.Providers[name]; ok && p.Resilience != nil {
		return *p.Resilience
	}
	policy := c.Resilience
	if policy.Name == "" || policy.Name == "default" {
		policy.Name = name
	}
	return policy
}
