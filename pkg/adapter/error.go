package adapter

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"
)

// Kind classifies a provider error so the fallback chain can decide
// whether switching providers could help.
type Kind string

const (
	// KindAuth covers bad or missing credentials.
	KindAuth Kind = "auth"
	// KindRateLimited covers 429s; may carry a retry-after hint.
	KindRateLimited Kind = "rate_limited"
	// KindInvalidRequest covers malformed requests the backend rejected,
	// including attachment types or schemas it cannot honor.
	KindInvalidRequest Kind = "invalid_request"
	// KindUnavailable covers timeouts, 5xx and overload responses.
	KindUnavailable Kind = "unavailable"
	// KindUnknown is used when no more specific class is derivable.
	KindUnknown Kind = "unknown"
)

// Error wraps a provider error with its classification.
type Error struct {
	Kind       Kind
	Provider   string
	Status     int
	RetryAfter *time.Duration
	Err        error
}

func (e *Error) Error() string {
	msg := "provider error"
	if e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Status > 0 {
		return fmt.Sprintf("%s: %s: %s (status=%d)", e.Provider, e.Kind, msg, e.Status)
	}
	return fmt.Sprintf("%s: %s: %s", e.Provider, e.Kind, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the classification of err. Context cancellation is never
// classified as retryable: a canceled invocation must not advance the chain.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindUnavailable
	}
	if errors.Is(err, context.Canceled) {
		return KindUnknown
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindUnavailable
	}
	var aerr *Error
	if errors.As(err, &aerr) {
		return aerr.Kind
	}
	return KindUnknown
}

// RetryAfterHint extracts a rate-limit retry-after hint, if the backend
// supplied one.
func RetryAfterHint(err error) (time.Duration, bool) {
	var aerr *Error
	if errors.As(err, &aerr) && aerr.RetryAfter != nil {
		return *aerr.RetryAfter, true
	}
	return 0, false
}

// FromStatus maps an HTTP status code to a classified error. Adapters use it
// when the backend exposes plain HTTP semantics; SDK-specific classifiers
// feed their status codes through here as well.
func FromStatus(provider string, status int, err error) *Error {
	e := &Error{Provider: provider, Status: status, Err: err}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		e.Kind = KindAuth
	case status == http.StatusTooManyRequests:
		e.Kind = KindRateLimited
	case status == http.StatusBadRequest ||
		status == http.StatusNotFound ||
		status == http.StatusRequestEntityTooLarge ||
		status == http.StatusUnprocessableEntity:
		e.Kind = KindInvalidRequest
	case status == http.StatusRequestTimeout || status >= 500:
		// 529 is Anthropic's overloaded response.
		e.Kind = KindUnavailable
	default:
		e.Kind = KindUnknown
	}
	return e
}

// withRetryAfter attaches a retry-after hint parsed from a header value in
// seconds, as sent by rate-limiting backends.
func (e *Error) withRetryAfter(header string) *Error {
	if e.Kind != KindRateLimited || header == "" {
		return e
	}
	if secs, err := strconv.Atoi(header); err == nil && secs >= 0 {
		d := time.Duration(secs) * time.Second
		e.RetryAfter = &d
	}
	return e
}
