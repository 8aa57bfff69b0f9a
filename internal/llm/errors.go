package llm

import (
	"errors"
	"fmt"
	"time"
)

// Error codes classify completion failures for retry decisions.
const (
	CodeAuth           = "auth"
	CodeInvalidRequest = "invalid_request"
	CodeRateLimited    = "rate_limited"
	CodeServerError    = "server_error"
	CodeNetwork        = "network"
)

// Error is a typed completion failure carrying a static retryability flag
// and, for rate limits, the provider-supplied retry-after hint.
type Error struct {
	Provider   string
	Code       string
	Message    string
	Retryable  bool
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s: %s", e.Provider, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

// IsRetryable reports whether the error is worth another attempt.
// Unclassified errors are treated as transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Retryable
	}
	return true
}

// IsRateLimited reports whether the error is a rate-limit response.
func IsRateLimited(err error) bool {
	var llmErr *Error
	return errors.As(err, &llmErr) && llmErr.Code == CodeRateLimited
}

// RetryAfterHint returns the provider-supplied wait for rate-limit errors,
// or zero when absent.
func RetryAfterHint(err error) time.Duration {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.RetryAfter
	}
	return 0
}
