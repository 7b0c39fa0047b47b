package errors

// ErrorCode represents a machine-readable error code.
type ErrorCode string

// Admission errors (pre-transport, fast-fail)
const (
	// ErrCodeCircuitOpen indicates the circuit breaker refused the call.
	ErrCodeCircuitOpen ErrorCode = "CIRCUIT_OPEN"
	// ErrCodeRateLimited indicates the local rate limiter refused the call.
	ErrCodeRateLimited ErrorCode = "RATE_LIMITED"
	// ErrCodeBulkheadFull indicates no concurrency slot was available.
	ErrCodeBulkheadFull ErrorCode = "BULKHEAD_FULL"
)

// Transport errors (classified retryable/non-retryable/timeout)
const (
	// ErrCodeTimeout indicates the request timed out.
	ErrCodeTimeout ErrorCode = "TIMEOUT"
	// ErrCodeConnectionFailed indicates a failed connection to a provider.
	ErrCodeConnectionFailed ErrorCode = "CONNECTION_FAILED"
	// ErrCodeProvider indicates the LLM provider returned a server-side error.
	ErrCodeProvider ErrorCode = "PROVIDER_ERROR"
	// ErrCodeRequestTooLarge indicates the request exceeded provider limits.
	ErrCodeRequestTooLarge ErrorCode = "REQUEST_TOO_LARGE"
)

// Configuration errors
const (
	// ErrCodeConfiguration indicates invalid configuration supplied at construction.
	ErrCodeConfiguration ErrorCode = "CONFIGURATION_ERROR"
	// ErrCodeValidationFailed indicates a dynamic configuration update failed
	// semantic checks; the previous configuration remains active.
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
)

// Request errors
const (
	// ErrCodeInvalidInput indicates the input is invalid.
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	// ErrCodeUnauthorized indicates the provider rejected the credentials.
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	// ErrCodeNotFound indicates the requested resource (model, endpoint) was not found.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
)

// Internal errors
const (
	// ErrCodeInternal indicates an unexpected internal error.
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

var retryableCodes = map[ErrorCode]bool{
	ErrCodeRateLimited:      true,
	ErrCodeBulkheadFull:     true,
	ErrCodeTimeout:          true,
	ErrCodeConnectionFailed: true,
	ErrCodeProvider:         true,
	ErrCodeCircuitOpen:      false,
	ErrCodeRequestTooLarge:  false,
	ErrCodeInternal:         false,
}

// IsRetryableCode returns true if the error code indicates a retryable error.
func IsRetryableCode(code ErrorCode) bool {
	return retryableCodes[code]
}
