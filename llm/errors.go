package llm

import (
	"errors"
	"time"

	"github.com/kbukum/llmkit/util"
)

// ErrorType categorizes provider-neutral LLM errors.
type ErrorType string

const (
	ErrorTypeRateLimit       ErrorType = "rate_limit"
	ErrorTypeInvalidRequest  ErrorType = "invalid_request"
	ErrorTypeAuthentication  ErrorType = "authentication"
	ErrorTypeNotFound        ErrorType = "not_found"
	ErrorTypeRequestTooLarge ErrorType = "request_too_large"
	ErrorTypeProvider        ErrorType = "provider"
	ErrorTypeNetwork         ErrorType = "network"
	ErrorTypeTimeout         ErrorType = "timeout"
	ErrorTypeUnknown         ErrorType = "unknown"
)

// Error represents a provider-neutral LLM error. Vendor packages convert
// SDK-specific errors into this type so callers and the resilience
// classifier see a uniform shape.
type Error struct {
	// Type is the category of error.
	Type ErrorType
	// Message describes the error.
	Message string
	// StatusCode is the HTTP status from the provider, 0 if none.
	StatusCode int
	// RetryAfter is the provider-suggested wait before retrying, if any.
	RetryAfter *time.Duration
	// Provider names the provider that produced the error.
	Provider string
	// Retryable indicates whether the operation can be retried.
	Retryable bool
	// Err is the original provider-specific error.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Unwrap returns the underlying provider error.
func (e *Error) Unwrap() error {
	return e.Err
}

// HTTPStatusCode returns the HTTP status from the provider, 0 if none.
// The resilience classifier uses this to apply status-code rules.
func (e *Error) HTTPStatusCode() int {
	return e.StatusCode
}

// NewRateLimitError creates a rate limit error (HTTP 429).
func NewRateLimitError(provider, message string, retryAfter *time.Duration, err error) *Error {
	return &Error{
		Type:       ErrorTypeRateLimit,
		Message:    message,
		StatusCode: 429,
		RetryAfter: retryAfter,
		Provider:   provider,
		Retryable:  true,
		Err:        err,
	}
}

// NewInvalidRequestError creates an invalid request error (HTTP 400).
func NewInvalidRequestError(provider, message string, err error) *Error {
	return &Error{
		Type:       ErrorTypeInvalidRequest,
		Message:    message,
		StatusCode: 400,
		Provider:   provider,
		Retryable:  false,
		Err:        err,
	}
}

// NewAuthError creates an authentication error (HTTP 401).
func NewAuthError(provider, message string, err error) *Error {
	return &Error{
		Type:       ErrorTypeAuthentication,
		Message:    message,
		StatusCode: 401,
		Provider:   provider,
		Retryable:  false,
		Err:        err,
	}
}

// NewNotFoundError creates a model/endpoint not-found error (HTTP 404).
func NewNotFoundError(provider, message string, err error) *Error {
	return &Error{
		Type:       ErrorTypeNotFound,
		Message:    message,
		StatusCode: 404,
		Provider:   provider,
		Retryable:  false,
		Err:        err,
	}
}

// NewRequestTooLargeError creates a request-too-large error (HTTP 413).
func NewRequestTooLargeError(provider, message string, err error) *Error {
	return &Error{
		Type:       ErrorTypeRequestTooLarge,
		Message:    message,
		StatusCode: 413,
		Provider:   provider,
		Retryable:  false,
		Err:        err,
	}
}

// NewProviderError creates a server-side provider error (retryable).
func NewProviderError(provider, message string, statusCode int, err error) *Error {
	return &Error{
		Type:       ErrorTypeProvider,
		Message:    message,
		StatusCode: statusCode,
		Provider:   provider,
		Retryable:  true,
		Err:        err,
	}
}

// NewNetworkError creates a connection-level error (retryable).
func NewNetworkError(provider, message string, err error) *Error {
	return &Error{
		Type:      ErrorTypeNetwork,
		Message:   message,
		Provider:  provider,
		Retryable: true,
		Err:       err,
	}
}

// NewTimeoutError creates a timeout error (retryable).
func NewTimeoutError(provider, message string, err error) *Error {
	return &Error{
		Type:      ErrorTypeTimeout,
		Message:   message,
		Provider:  provider,
		Retryable: true,
		Err:       err,
	}
}

// IsRateLimit checks if an error is a rate limit error.
func IsRateLimit(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Type == ErrorTypeRateLimit
}

// IsTimeout checks if an error is a timeout error.
func IsTimeout(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Type == ErrorTypeTimeout
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Retryable
}

// RetryAfterHint extracts the provider-suggested retry delay from an error.
// Returns 0 when the error carries no hint.
func RetryAfterHint(err error) time.Duration {
	var e *Error
	if errors.As(err, &e) {
		return util.Deref(e.RetryAfter)
	}
	return 0
}
