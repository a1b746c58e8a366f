package afetch

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// effectiveRequest is the fully merged, per-call request description.
// Every field is resolved: nothing downstream of the merge ever
// consults fetcher defaults or RequestOptions again.
type effectiveRequest struct {
	Method        string
	URL           string
	ParsedURL     *url.URL
	Headers       http.Header
	Body          []byte
	Timeout       time.Duration // 0 = no timeout
	ResponseType  ResponseType
	CacheEnabled  bool
	RetryAttempts int
	RetryOn       map[ErrorKind]bool
	SkipRateLimit bool
	Metadata      map[string]any
	Domain        string
	CacheKey      string
}

var knownMethods = map[string]bool{
	http.MethodGet:     true,
	http.MethodPost:    true,
	http.MethodPut:     true,
	http.MethodDelete:  true,
	http.MethodPatch:   true,
	http.MethodHead:    true,
	http.MethodOptions: true,
}

// idempotentMethods participate in caching by default.
var idempotentMethods = map[string]bool{
	http.MethodGet:     true,
	http.MethodHead:    true,
	http.MethodOptions: true,
}

// mergeRequest combines fetcher defaults with per-call options into an
// effectiveRequest. Deterministic: identical inputs always produce an
// identical result, including the cache key.
func (f *Fetcher) mergeRequest(method, rawURL string, opts *RequestOptions) (*effectiveRequest, error) {
	if opts == nil {
		opts = &RequestOptions{}
	}

	if method == "" {
		method = opts.Method
	}
	if method == "" {
		method = http.MethodGet
	}
	method = canonicalMethod(method)
	if !knownMethods[method] {
		return nil, fmt.Errorf("unsupported HTTP method %q", method)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL %q: %w", rawURL, err)
	}
	domain, err := ResolveDomain(rawURL)
	if err != nil {
		return nil, err
	}

	// Query merge: defaults fill gaps, the URL's own parameters and
	// per-call params win. Encode() sorts keys, keeping the URL stable.
	query := u.Query()
	for k, v := range f.defaultParams {
		if !query.Has(k) {
			query.Set(k, v)
		}
	}
	for k, v := range opts.Params {
		query.Set(k, v)
	}
	u.RawQuery = query.Encode()

	headers := make(http.Header, len(f.defaultHeaders)+len(opts.Headers))
	for k, v := range f.defaultHeaders {
		headers.Set(k, v)
	}
	for k, v := range opts.Headers {
		headers.Set(k, v)
	}

	body, contentType, err := resolveBody(opts)
	if err != nil {
		return nil, err
	}
	if contentType != "" && headers.Get("Content-Type") == "" {
		headers.Set("Content-Type", contentType)
	}

	timeout := f.defaultTimeout
	switch {
	case opts.Timeout == NoTimeout:
		timeout = 0
	case opts.Timeout > 0:
		timeout = opts.Timeout
	case opts.Timeout < 0:
		return nil, fmt.Errorf("invalid timeout %v", opts.Timeout)
	}

	responseType := f.responseType
	if opts.ResponseType != "" {
		responseType = opts.ResponseType
	}
	if !knownResponseType(responseType) {
		return nil, fmt.Errorf("unknown response type %q", responseType)
	}

	cacheEnabled := f.cacheEnabled && idempotentMethods[method]
	if opts.CacheEnabled != nil {
		cacheEnabled = *opts.CacheEnabled
	}
	if f.cache == nil {
		cacheEnabled = false
	}

	attempts := f.retryAttempts
	if opts.RetryAttempts != nil {
		attempts = *opts.RetryAttempts
	}
	if attempts < 1 {
		return nil, fmt.Errorf("retry attempts must be >= 1, got %d", attempts)
	}

	retryOn := f.retryOn
	if opts.RetryOn != nil {
		retryOn = retryOnSet(opts.RetryOn)
	}

	eff := &effectiveRequest{
		Method:        method,
		URL:           u.String(),
		ParsedURL:     u,
		Headers:       headers,
		Body:          body,
		Timeout:       timeout,
		ResponseType:  responseType,
		CacheEnabled:  cacheEnabled,
		RetryAttempts: attempts,
		RetryOn:       retryOn,
		SkipRateLimit: opts.SkipRateLimit,
		Metadata:      opts.Metadata,
		Domain:        domain,
	}
	eff.CacheKey = buildCacheKey(eff, f.cacheKeyHeaders)
	return eff, nil
}

func canonicalMethod(method string) string {
	switch method {
	case "get", "post", "put", "delete", "patch", "head", "options":
		// Accept lowercase verbs the way a script writer types them.
		return map[string]string{
			"get": "GET", "post": "POST", "put": "PUT", "delete": "DELETE",
			"patch": "PATCH", "head": "HEAD", "options": "OPTIONS",
		}[method]
	default:
		return method
	}
}

// resolveBody picks exactly one of the mutually exclusive body forms.
func resolveBody(opts *RequestOptions) (body []byte, contentType string, err error) {
	set := 0
	if opts.Body != nil {
		set++
		body = opts.Body
	}
	if opts.Text != "" {
		set++
		body = []byte(opts.Text)
		contentType = "text/plain; charset=utf-8"
	}
	if opts.JSON != nil {
		set++
		encoded, jerr := json.Marshal(opts.JSON)
		if jerr != nil {
			return nil, "", fmt.Errorf("encoding JSON body: %w", jerr)
		}
		body = encoded
		contentType = "application/json"
	}
	if opts.Form != nil {
		set++
		form := make(url.Values, len(opts.Form))
		for k, v := range opts.Form {
			form.Set(k, v)
		}
		body = []byte(form.Encode())
		contentType = "application/x-www-form-urlencoded"
	}
	if set > 1 {
		return nil, "", fmt.Errorf("Body, Text, JSON and Form are mutually exclusive")
	}
	return body, contentType, nil
}

func knownResponseType(rt ResponseType) bool {
	switch rt {
	case ResponseTypeText, ResponseTypeJSON, ResponseTypeBytes, ResponseTypeRaw:
		return true
	default:
		return false
	}
}
