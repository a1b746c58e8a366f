package afetch

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies a terminal failure.
type ErrorKind string

const (
	// KindConfiguration covers bad methods, unparseable URLs and invalid
	// option combinations. Never retried.
	KindConfiguration ErrorKind = "Configuration"
	// KindTimeout means a dispatch attempt exceeded its timeout.
	KindTimeout ErrorKind = "Timeout"
	// KindRateLimit means admission control itself failed, not the
	// normal throttling wait.
	KindRateLimit ErrorKind = "RateLimit"
	// KindResponse means the HTTP status matched the failure predicate,
	// or the body could not be decoded.
	KindResponse ErrorKind = "Response"
	// KindRequest covers transport and connection failures.
	KindRequest ErrorKind = "Request"
	// KindCircuitOpen means the circuit breaker rejected the call.
	KindCircuitOpen ErrorKind = "CircuitOpen"
)

// Sentinel errors.
var (
	// ErrClientClosed is returned for any call made after Close.
	ErrClientClosed = errors.New("afetch: fetcher is closed")

	// ErrCircuitOpen is the cause carried by CircuitOpen errors.
	ErrCircuitOpen = errors.New("afetch: circuit open")
)

// Error is the single terminal failure type surfaced to callers. It
// wraps the original triggering cause and carries the call context.
type Error struct {
	Kind       ErrorKind
	Message    string
	Cause      error
	URL        string
	Method     string
	StatusCode int
	Attempts   int
	Elapsed    time.Duration
	RequestID  string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.RequestID != "" {
		msg = fmt.Sprintf("[%s] %s", e.RequestID, msg)
	}
	if e.StatusCode > 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Attempts > 0 {
		msg = fmt.Sprintf("%s (attempts %d)", msg, e.Attempts)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is matches two *Error values by kind, so callers can write
// errors.Is(err, &Error{Kind: KindTimeout}).
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	if t, ok := target.(*Error); ok {
		return e.Kind == t.Kind
	}
	return false
}

// retryable reports whether err is eligible for another attempt under
// the given retryable-kind set. A Response failure is only eligible for
// 429 and 5xx statuses; other 4xx are always fatal.
func retryable(err *Error, retryOn map[ErrorKind]bool) bool {
	if err == nil || !retryOn[err.Kind] {
		return false
	}
	if err.Kind == KindResponse {
		return err.StatusCode == 429 || err.StatusCode >= 500
	}
	return true
}

// defaultRetryOn is the default retryable-kind set.
func defaultRetryOn() map[ErrorKind]bool {
	return map[ErrorKind]bool{
		KindTimeout:  true,
		KindRequest:  true,
		KindResponse: true,
	}
}

func retryOnSet(kinds []ErrorKind) map[ErrorKind]bool {
	set := make(map[ErrorKind]bool, len(kinds))
	for _, k := range kinds {
		set[k] = true
	}
	return set
}
