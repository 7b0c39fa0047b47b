package resilience

import (
	"context"
	"errors"
	"net"
	"strings"
)

// ErrorClass buckets a failure for retry and circuit breaker decisions.
type ErrorClass int

const (
	// ClassRetryable errors are transient: network failures, 5xx, resets.
	ClassRetryable ErrorClass = iota
	// ClassNonRetryable errors will not improve on retry: 4xx, validation.
	ClassNonRetryable
	// ClassTimeout errors are retried but tracked distinctly in metrics.
	ClassTimeout
)

// String returns the class name.
func (c ErrorClass) String() string {
	switch c {
	case ClassRetryable:
		return "retryable"
	case ClassNonRetryable:
		return "non-retryable"
	case ClassTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Classifier decides how a failure should be treated.
// The same classification drives both the retry executor and the circuit
// breaker, so a 4xx never burns a retry attempt and never trips the breaker.
type Classifier interface {
	Classify(err error) ErrorClass
}

// ClassifierFunc adapts a function to the Classifier interface.
type ClassifierFunc func(err error) ErrorClass

// Classify implements Classifier.
func (f ClassifierFunc) Classify(err error) ErrorClass {
	return f(err)
}

// nonRetryableStatuses are HTTP codes where retrying cannot help.
var nonRetryableStatuses = map[int]bool{
	400: true, 401: true, 403: true, 404: true, 405: true,
	406: true, 409: true, 410: true, 422: true,
}

// retryableStatuses are HTTP codes worth another attempt.
var retryableStatuses = map[int]bool{
	429: true, 500: true, 502: true, 503: true, 504: true,
}

var nonRetryableFragments = []string{
	"unauthorized", "forbidden", "bad request", "invalid",
	"400", "401", "403", "404", "405", "406", "409", "410", "422",
}

var retryableFragments = []string{
	"connection", "network", "dns", "no such host", "unreachable",
	"refused", "reset", "aborted", "broken pipe", "eof",
	"500", "502", "503", "504",
}

// DefaultClassifier classifies errors by type, HTTP status, and message.
// Unrecognized errors default to retryable: prefer retrying an unknown
// failure over silently giving up.
func DefaultClassifier() Classifier {
	return ClassifierFunc(classify)
}

func classify(err error) ErrorClass {
	if err == nil {
		return ClassRetryable
	}

	// Admission rejections from this package are decided, not transient.
	if errors.Is(err, ErrCircuitOpen) {
		return ClassNonRetryable
	}

	if isTimeout(err) {
		return ClassTimeout
	}

	// Typed errors carrying an HTTP status take precedence over text matching.
	if status := httpStatus(err); status > 0 {
		switch {
		case nonRetryableStatuses[status]:
			return ClassNonRetryable
		case retryableStatuses[status]:
			return ClassRetryable
		}
	}

	msg := strings.ToLower(err.Error())
	for _, frag := range nonRetryableFragments {
		if strings.Contains(msg, frag) {
			return ClassNonRetryable
		}
	}
	for _, frag := range retryableFragments {
		if strings.Contains(msg, frag) {
			return ClassRetryable
		}
	}

	return ClassRetryable
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded")
}

// httpStatus extracts an HTTP status code from any error in the chain that
// exposes one (httpclient.Error, llm.Error, errors.AppError).
func httpStatus(err error) int {
	var sc interface{ HTTPStatusCode() int }
	if errors.As(err, &sc) {
		return sc.HTTPStatusCode()
	}
	return 0
}
