package util

// Ptr returns a pointer to v. Provider SDKs and the llm error types take
// optional scalars as pointers; Ptr avoids the temp-variable dance at
// call sites, e.g. NewRateLimitError(..., util.Ptr(hint), err).
func Ptr[T any](v T) *T {
	return &v
}

// Deref returns the value p points to, or the zero value when p is nil.
func Deref[T any](p *T) T {
	if p != nil {
		return *p
	}
	var zero T
	return zero
}
