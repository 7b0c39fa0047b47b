// Package logger provides structured logging for llmkit components
// using zerolog.
//
// It supports multiple output formats (JSON, console), log level
// configuration, and component-scoped loggers with structured fields.
//
// # Configuration
//
//	logging:
//	  level: "info"
//	  format: "json"
//
// # Usage
//
//	log := logger.WithComponent("claude")
//	log.Info("completion finished", logger.Fields(logger.FieldModel, model))
package logger
