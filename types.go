package afetch

import (
	"net/http"
	"time"
)

// ResponseType selects how a raw HTTP response is turned into a
// caller-facing value.
type ResponseType string

const (
	// ResponseTypeText decodes the body to a string using the
	// response-declared charset, falling back to UTF-8.
	ResponseTypeText ResponseType = "text"
	// ResponseTypeJSON parses the body as JSON.
	ResponseTypeJSON ResponseType = "json"
	// ResponseTypeBytes returns the raw body without decoding.
	ResponseTypeBytes ResponseType = "bytes"
	// ResponseTypeRaw hands back the *http.Response with the body
	// unconsumed. The caller owns closing it.
	ResponseTypeRaw ResponseType = "raw"
)

// NoTimeout disables the per-attempt timeout for a request. A zero
// Timeout in RequestOptions means "inherit the fetcher default".
const NoTimeout = time.Duration(-1)

// RequestOptions overrides fetcher defaults for a single call. The zero
// value of every field means "use the default". Options are never
// mutated by the fetcher; they are only read while building the
// effective request for one call.
type RequestOptions struct {
	// Method defaults to GET.
	Method string
	// Headers are merged over the fetcher's default headers with
	// case-insensitive keys; per-call values win.
	Headers map[string]string
	// Params are merged into the URL query; per-call values win over
	// defaults and over parameters already present in the URL.
	Params map[string]string

	// Body, Text, JSON and Form are mutually exclusive body forms.
	Body []byte
	Text string
	JSON any
	Form map[string]string

	// Timeout bounds a single dispatch attempt, not the whole retry
	// loop. Use NoTimeout to disable the inherited default.
	Timeout time.Duration
	// ResponseType overrides the default response handler.
	ResponseType ResponseType
	// CacheEnabled overrides cache participation for this call. Leaving
	// it nil keeps the default: enabled for idempotent methods when the
	// fetcher cache is on, disabled for POST/PUT/PATCH/DELETE.
	CacheEnabled *bool
	// RetryAttempts overrides the total dispatch budget (>= 1).
	RetryAttempts *int
	// RetryOn overrides the set of error kinds eligible for retry.
	RetryOn []ErrorKind
	// SkipRateLimit bypasses per-domain admission for this call.
	SkipRateLimit bool
	// Metadata is attached to every lifecycle log event for this call.
	Metadata map[string]any
}

// Response is the decoded outcome of a successful call. Which fields
// are populated depends on the response type used.
type Response struct {
	StatusCode int
	Header     http.Header
	// Bytes holds the raw body for Text, JSON and Bytes handling.
	Bytes []byte
	// Text is set for ResponseTypeText.
	Text string
	// JSON is set for ResponseTypeJSON.
	JSON any
	// Raw is set for ResponseTypeRaw; the body is unconsumed.
	Raw *http.Response
	// Type records which handler produced this value.
	Type ResponseType
	// FromCache reports whether the value was served without dispatch.
	FromCache bool
}

// CacheEntry is a stored response: status, headers and body plus the
// backend-owned expiry.
type CacheEntry struct {
	StatusCode int         `json:"status_code"`
	Header     http.Header `json:"header"`
	Body       []byte      `json:"body"`
	ExpiresAt  time.Time   `json:"expires_at"`
}

// Cache is the storage backend contract. Implementations own expiry:
// Get must not return entries past their TTL.
type Cache interface {
	Get(key string) (*CacheEntry, bool)
	Set(key string, entry *CacheEntry, ttl time.Duration)
	Delete(key string)
	Clear()
}

// Logger receives lifecycle events as message + key/value pairs.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// BatchItem is one unit of work for RequestAll.
type BatchItem struct {
	URL     string
	Options *RequestOptions
}

// BatchResult is the outcome of one batch item, at the item's original
// index. Exactly one of Response and Err is set.
type BatchResult struct {
	Response *Response
	Err      error
}
