package relay

import (
	"errors"
	"time"
)

var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrRateLimited    = errors.New("rate limited")
	ErrMisconfigured  = errors.New("misconfigured")
	ErrDeliveryFailed = errors.New("delivery failed")
)

// Error is a terminal dispatch failure. Kind is one of the sentinels above.
type Error struct {
	Kind    error
	Message string

	// RetryAfter is set for ErrRateLimited.
	RetryAfter time.Duration
	// Rate is set once the request passed through the rate check.
	Rate *RateInfo
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Kind.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Kind }

func newError(kind error, msg string) *Error { return &Error{Kind: kind, Message: msg} }
