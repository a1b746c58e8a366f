package afetch

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Fetcher is an HTTP client composing per-domain rate limiting, retry
// with exponential backoff and response caching behind a single
// request-oriented entry point. Construct it with New, share it across
// goroutines, and Close it when done.
type Fetcher struct {
	httpClient *http.Client

	maxRatePerDomain    int
	timePeriodPerDomain time.Duration
	limiters            *LimiterRegistry

	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	retryOn        map[ErrorKind]bool
	failureStatus  func(status int) bool

	cache           Cache
	cacheEnabled    bool
	cacheTTL        time.Duration
	cacheKeyHeaders []string

	defaultHeaders map[string]string
	defaultParams  map[string]string
	defaultTimeout time.Duration
	responseType   ResponseType

	concurrencyLimit int
	returnExceptions bool

	logger  Logger
	metrics *MetricsCollector
	breaker *CircuitBreaker

	requestIDGen func() string

	closed          atomic.Bool
	validationError error
}

// New creates a Fetcher. Defaults: one request per second per domain,
// three total attempts with 100ms initial backoff capped at 10s, file
// cache under DefaultCacheDir with a 5 minute TTL, text responses, and
// no per-attempt timeout.
func New(options ...Option) *Fetcher {
	f := &Fetcher{
		httpClient:          &http.Client{},
		maxRatePerDomain:    1,
		timePeriodPerDomain: time.Second,
		retryAttempts:       3,
		initialBackoff:      100 * time.Millisecond,
		maxBackoff:          10 * time.Second,
		retryOn:             defaultRetryOn(),
		failureStatus:       func(status int) bool { return status >= 400 },
		cache:               NewFileCache(""),
		cacheEnabled:        true,
		cacheTTL:            5 * time.Minute,
		responseType:        ResponseTypeText,
		requestIDGen:        uuid.NewString,
	}

	for _, opt := range options {
		opt(f)
	}

	f.limiters = NewLimiterRegistry(f.maxRatePerDomain, f.timePeriodPerDomain)
	f.validationError = f.ValidateConfiguration()
	return f
}

// IsValid reports whether the configuration passed validation.
func (f *Fetcher) IsValid() bool {
	return f.validationError == nil
}

// ValidationError returns the configuration error found at construction,
// or nil.
func (f *Fetcher) ValidationError() error {
	return f.validationError
}

// Fetch performs a GET against url and returns the body as text. It is
// the convenience path: for other methods, response types or structured
// results use Request.
func (f *Fetcher) Fetch(ctx context.Context, url string, opts ...*RequestOptions) (string, error) {
	var o RequestOptions
	if len(opts) > 0 && opts[0] != nil {
		o = *opts[0]
	}
	o.ResponseType = ResponseTypeText
	resp, err := f.Request(ctx, "", url, &o)
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// Request performs one HTTP call through the full pipeline: merge,
// cache lookup, per-domain admission, the retry loop and response
// decoding. A cache hit skips admission and retry entirely.
func (f *Fetcher) Request(ctx context.Context, method, rawURL string, opts *RequestOptions) (*Response, error) {
	if f.closed.Load() {
		return nil, ErrClientClosed
	}
	if f.validationError != nil {
		return nil, f.validationError
	}

	start := time.Now()
	requestID := f.requestIDGen()

	eff, err := f.mergeRequest(method, rawURL, opts)
	if err != nil {
		return nil, &Error{
			Kind:      KindConfiguration,
			Message:   "invalid request",
			Cause:     err,
			URL:       rawURL,
			Method:    method,
			RequestID: requestID,
		}
	}

	f.logDebug(eff, "request start",
		"requestID", requestID, "method", eff.Method, "url", eff.URL, "domain", eff.Domain)
	f.metrics.RecordRequestStart(eff.Method, eff.Domain)
	defer f.metrics.RecordRequestEnd(eff.Method, eff.Domain)

	if eff.CacheEnabled {
		if entry, ok := f.cache.Get(eff.CacheKey); ok {
			f.metrics.RecordCacheHit(eff.Method, eff.Domain)
			f.logDebug(eff, "cache hit", "requestID", requestID, "key", eff.CacheKey)
			out, derr := decodeResponse(responseFromEntry(entry), eff.ResponseType)
			if derr != nil {
				return nil, f.newError(KindResponse, "decoding cached response",
					derr, eff, requestID, 0, start, entry.StatusCode)
			}
			out.FromCache = true
			f.metrics.RecordRequest(eff.Method, out.StatusCode, eff.Domain, time.Since(start))
			return out, nil
		}
		f.metrics.RecordCacheMiss(eff.Method, eff.Domain)
		f.logDebug(eff, "cache miss", "requestID", requestID, "key", eff.CacheKey)
	}

	if !eff.SkipRateLimit {
		waitStart := time.Now()
		if aerr := f.limiters.Admit(ctx, eff.Domain); aerr != nil {
			f.metrics.RecordError(string(KindRateLimit), eff.Method, eff.Domain)
			return nil, f.newError(KindRateLimit, "admission wait aborted",
				aerr, eff, requestID, 0, start, 0)
		}
		wait := time.Since(waitStart)
		f.metrics.RecordRateLimitWait(eff.Domain, wait)
		if wait > time.Millisecond {
			f.logDebug(eff, "admission wait", "requestID", requestID, "domain", eff.Domain, "wait", wait)
		}
	}

	resp, attempts, rerr := f.runRetry(ctx, eff, requestID, start)
	if rerr != nil {
		f.logError(eff, "request failed",
			"requestID", requestID, "kind", rerr.Kind, "attempts", rerr.Attempts, "error", rerr.Message)
		return nil, rerr
	}

	f.metrics.RecordRequest(eff.Method, resp.StatusCode, eff.Domain, time.Since(start))

	if eff.CacheEnabled {
		entry, cerr := entryFromResponse(resp)
		if cerr != nil {
			return nil, f.newError(KindResponse, "reading response body",
				cerr, eff, requestID, attempts, start, resp.StatusCode)
		}
		f.cache.Set(eff.CacheKey, entry, f.cacheTTL)
		f.logDebug(eff, "response cached", "requestID", requestID, "key", eff.CacheKey)
	}

	out, derr := decodeResponse(resp, eff.ResponseType)
	if derr != nil {
		return nil, f.newError(KindResponse, "decoding response",
			derr, eff, requestID, attempts, start, resp.StatusCode)
	}

	f.logInfo(eff, "request completed",
		"requestID", requestID, "status", out.StatusCode, "attempts", attempts,
		"elapsed", time.Since(start))
	return out, nil
}

// Close marks the fetcher closed and releases idle connections. Calls
// made after Close fail fast with ErrClientClosed. Close is idempotent.
func (f *Fetcher) Close() error {
	if f.closed.CompareAndSwap(false, true) {
		f.httpClient.CloseIdleConnections()
	}
	return nil
}

// CircuitBreakerState returns the breaker state, or StateClosed when no
// breaker is configured.
func (f *Fetcher) CircuitBreakerState() CircuitState {
	if f.breaker == nil {
		return StateClosed
	}
	return f.breaker.State()
}
