// Package util provides small generic helpers shared across llmkit packages:
// pointer helpers, zero-value coalescing, and string truncation for logs.
package util
