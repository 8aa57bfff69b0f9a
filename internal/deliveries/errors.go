package deliveries

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/slack-go/slack"
)

// Delivery error kinds. Retryability is static per kind.
const (
	KindAuth                = "auth"
	KindDestinationNotFound = "destination_not_found"
	KindRateLimited         = "rate_limited"
	KindTransient           = "transient"
	KindNetwork             = "network"
)

var kindRetryable = map[string]bool{
	KindAuth:                false,
	KindDestinationNotFound: false,
	KindRateLimited:         true,
	KindTransient:           true,
	KindNetwork:             true,
}

// Error is a classified delivery failure.
type Error struct {
	Kind       string
	Message    string
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("delivery %s: %s", e.Kind, e.Message)
	}
	return "delivery " + e.Kind
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the error kind is worth another attempt.
func (e *Error) Retryable() bool { return kindRetryable[e.Kind] }

// IsRetryable reports whether err should requeue the delivery.
// Unclassified errors are treated as transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var deliveryErr *Error
	if errors.As(err, &deliveryErr) {
		return deliveryErr.Retryable()
	}
	return true
}

// classify maps a messaging-vendor failure onto the taxonomy.
func classify(err error) *Error {
	if err == nil {
		return nil
	}
	var classified *Error
	if errors.As(err, &classified) {
		return classified
	}

	var rateLimited *slack.RateLimitedError
	if errors.As(err, &rateLimited) {
		return &Error{
			Kind:       KindRateLimited,
			Message:    err.Error(),
			RetryAfter: rateLimited.RetryAfter,
			Err:        err,
		}
	}

	var statusErr slack.StatusCodeError
	if errors.As(err, &statusErr) {
		if statusErr.Code >= 500 {
			return &Error{Kind: KindTransient, Message: err.Error(), Err: err}
		}
		return &Error{Kind: KindAuth, Message: err.Error(), Err: err}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindNetwork, Message: "request timeout", Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return &Error{Kind: KindNetwork, Message: netErr.Error(), Err: err}
	}

	message := strings.ToLower(err.Error())
	switch {
	case strings.Contains(message, "invalid_auth"),
		strings.Contains(message, "not_authed"),
		strings.Contains(message, "token_revoked"),
		strings.Contains(message, "account_inactive"),
		strings.Contains(message, "missing_scope"):
		return &Error{Kind: KindAuth, Message: err.Error(), Err: err}
	case strings.Contains(message, "channel_not_found"),
		strings.Contains(message, "users_not_found"),
		strings.Contains(message, "user_not_found"),
		strings.Contains(message, "is_archived"),
		strings.Contains(message, "not_in_channel"):
		return &Error{Kind: KindDestinationNotFound, Message: err.Error(), Err: err}
	case strings.Contains(message, "rate"):
		return &Error{Kind: KindRateLimited, Message: err.Error(), Err: err}
	default:
		return &Error{Kind: KindTransient, Message: err.Error(), Err: err}
	}
}
