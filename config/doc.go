// Package config provides configuration loading and validation for llmkit.
//
// It uses Viper to load configuration from YAML files and environment
// variables, with .env support via godotenv. The top-level Config carries
// logging, per-provider settings, and resilience policies.
//
// # Usage
//
//	var cfg config.Config
//	err := config.LoadConfig("my-app", &cfg)
//	cfg.ApplyDefaults()
//	if err := cfg.Validate(); err != nil { ... }
//
// Environment variables override file values using underscore-separated
// paths (e.g., PROVIDERS_ANTHROPIC_API_KEY).
package config
