package util

import "unicode/utf8"

// Coalesce returns the first non-zero value, or the zero value if all are
// zero. Typical use: request-level overrides falling back to config
// defaults, e.g. Coalesce(req.Model, cfg.Model).
func Coalesce[T comparable](values ...T) T {
	var zero T
	for _, v := range values {
		if v != zero {
			return v
		}
	}
	return zero
}

// Truncate shortens s to at most max runes, appending "..." when it cuts.
// Useful for logging prompt previews without dumping full payloads.
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}
