package afetch

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"time"
)

// retryState tracks one call through the bounded attempt loop.
type retryState int

const (
	stateIdle retryState = iota
	stateAttempting
	stateSucceeded
	stateRetryableFailure
	stateExhaustedFailure
)

// attemptRecord captures one retry iteration. Records live only for the
// duration of a call's retry loop and feed the terminal error context
// and lifecycle events.
type attemptRecord struct {
	index   int
	elapsed time.Duration
	state   retryState
	cause   *Error
}

// backoffDelay returns the delay scheduled before attempt index+1:
// initialBackoff × 2^index, capped at maxBackoff.
func (f *Fetcher) backoffDelay(index int) time.Duration {
	if index < 0 {
		index = 0
	}
	if index > 62 {
		index = 62
	}
	delay := f.initialBackoff << uint(index)
	if delay <= 0 || delay > f.maxBackoff {
		return f.maxBackoff
	}
	return delay
}

// runRetry drives the attempt loop for one effective request. It
// dispatches at most eff.RetryAttempts times, sleeping the exponential
// backoff between retryable failures, and returns either the first
// successful response or the terminal *Error built from the last
// attempt's cause.
func (f *Fetcher) runRetry(ctx context.Context, eff *effectiveRequest, requestID string, start time.Time) (*http.Response, int, *Error) {
	var records []attemptRecord

	for attempt := 0; attempt < eff.RetryAttempts; attempt++ {
		attemptStart := time.Now()

		if f.breaker != nil && !f.breaker.Allow() {
			f.metrics.RecordError(string(KindCircuitOpen), eff.Method, eff.Domain)
			return nil, len(records), f.newError(KindCircuitOpen, "circuit breaker is open",
				ErrCircuitOpen, eff, requestID, len(records), start, 0)
		}

		if attempt > 0 {
			f.metrics.RecordRetry(eff.Method, eff.Domain, attempt)
		}

		resp, err := f.dispatch(ctx, eff)
		record := attemptRecord{index: attempt, elapsed: time.Since(attemptStart)}

		cause := f.classifyAttempt(eff, resp, err, requestID, attempt+1, start)
		if cause == nil {
			if f.breaker != nil {
				f.breaker.RecordSuccess()
				f.metrics.RecordCircuitBreakerState("default", f.breaker.State())
			}
			record.state = stateSucceeded
			records = append(records, record)
			return resp, len(records), nil
		}

		if f.breaker != nil && (cause.Kind != KindResponse || cause.StatusCode >= 500) {
			f.breaker.RecordFailure()
			f.metrics.RecordCircuitBreakerState("default", f.breaker.State())
		}

		// A cancelled caller ends the loop regardless of budget.
		retry := retryable(cause, eff.RetryOn) && attempt+1 < eff.RetryAttempts && ctx.Err() == nil
		if !retry {
			record.state = stateExhaustedFailure
			record.cause = cause
			records = append(records, record)
			f.metrics.RecordError(string(cause.Kind), eff.Method, eff.Domain)
			cause.Attempts = len(records)
			cause.Elapsed = time.Since(start)
			return nil, len(records), cause
		}

		record.state = stateRetryableFailure
		record.cause = cause
		records = append(records, record)

		delay := f.backoffDelay(attempt)
		f.logInfo(eff, "retry scheduled",
			"requestID", requestID, "attempt", attempt+1, "backoff", delay, "cause", cause.Kind)

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			f.metrics.RecordError(string(KindRequest), eff.Method, eff.Domain)
			return nil, len(records), f.newError(KindRequest, "request cancelled during backoff",
				ctx.Err(), eff, requestID, len(records), start, 0)
		}
	}

	// Unreachable: the loop always returns from its final iteration.
	return nil, len(records), f.newError(KindRequest, "retry loop ended without outcome",
		nil, eff, requestID, len(records), start, 0)
}

// dispatch performs a single network attempt. The per-attempt timeout
// bounds only this dispatch, never the whole retry loop. With a timeout
// set, the body is read here so it counts against the attempt; for Raw
// handling the stream stays open and the attempt context is released
// when the caller closes the body.
func (f *Fetcher) dispatch(ctx context.Context, eff *effectiveRequest) (*http.Response, error) {
	actx := ctx
	var cancel context.CancelFunc
	if eff.Timeout > 0 {
		actx, cancel = context.WithTimeout(ctx, eff.Timeout)
	}

	var body io.Reader
	if eff.Body != nil {
		body = bytes.NewReader(eff.Body)
	}
	req, err := http.NewRequestWithContext(actx, eff.Method, eff.URL, body)
	if err != nil {
		if cancel != nil {
			cancel()
		}
		return nil, err
	}
	for k, vs := range eff.Headers {
		req.Header[k] = vs
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		if cancel != nil {
			cancel()
		}
		return nil, err
	}

	if cancel != nil {
		if eff.ResponseType == ResponseTypeRaw {
			resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
		} else {
			_, rerr := entryFromResponse(resp)
			cancel()
			if rerr != nil {
				return nil, rerr
			}
		}
	}
	return resp, nil
}

// cancelOnClose releases an attempt context when the response body is
// closed.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

// classifyAttempt maps one dispatch outcome onto the error taxonomy.
// It returns nil for success. Failure responses are drained so the
// connection can be reused by the next attempt.
func (f *Fetcher) classifyAttempt(eff *effectiveRequest, resp *http.Response, err error, requestID string, attempts int, start time.Time) *Error {
	if err != nil {
		if isTimeout(err) {
			return f.newError(KindTimeout, "request timed out", err, eff, requestID, attempts, start, 0)
		}
		return f.newError(KindRequest, "request failed", err, eff, requestID, attempts, start, 0)
	}

	if f.isFailureStatus(eff.Method, resp.StatusCode) {
		drain(resp)
		return f.newError(KindResponse, "server returned failure status",
			nil, eff, requestID, attempts, start, resp.StatusCode)
	}
	return nil
}

// isFailureStatus applies the configured failure predicate. HEAD keeps
// the looser rule: anything below 400 is a success.
func (f *Fetcher) isFailureStatus(method string, status int) bool {
	if method == http.MethodHead && status < 400 {
		return false
	}
	return f.failureStatus(status)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func drain(resp *http.Response) {
	if resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
	_ = resp.Body.Close()
}

func (f *Fetcher) newError(kind ErrorKind, msg string, cause error, eff *effectiveRequest, requestID string, attempts int, start time.Time, status int) *Error {
	return &Error{
		Kind:       kind,
		Message:    msg,
		Cause:      cause,
		URL:        eff.URL,
		Method:     eff.Method,
		StatusCode: status,
		Attempts:   attempts,
		Elapsed:    time.Since(start),
		RequestID:  requestID,
	}
}
