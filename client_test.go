package afetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newTestFetcher(options ...Option) *Fetcher {
	base := []Option{
		WithCache(NewInMemoryCache()),
		WithDomainRate(1000, time.Second),
		WithInitialBackoff(time.Millisecond),
		WithMaxBackoff(10 * time.Millisecond),
	}
	return New(append(base, options...)...)
}

func TestNewDefaults(t *testing.T) {
	f := New()

	if !f.IsValid() {
		t.Fatalf("default configuration invalid: %v", f.ValidationError())
	}
	if f.maxRatePerDomain != 1 || f.timePeriodPerDomain != time.Second {
		t.Errorf("rate = %d per %v, want 1 per 1s", f.maxRatePerDomain, f.timePeriodPerDomain)
	}
	if f.retryAttempts != 3 {
		t.Errorf("retryAttempts = %d, want 3", f.retryAttempts)
	}
	if f.initialBackoff != 100*time.Millisecond || f.maxBackoff != 10*time.Second {
		t.Errorf("backoff = %v..%v, want 100ms..10s", f.initialBackoff, f.maxBackoff)
	}
	if !f.cacheEnabled || f.cacheTTL != 5*time.Minute {
		t.Errorf("cache enabled=%v ttl=%v, want true 5m", f.cacheEnabled, f.cacheTTL)
	}
	fc, ok := f.cache.(*FileCache)
	if !ok {
		t.Fatalf("default cache type = %T, want *FileCache", f.cache)
	}
	if fc.Dir() != DefaultCacheDir {
		t.Errorf("cache dir = %q, want %q", fc.Dir(), DefaultCacheDir)
	}
	if f.responseType != ResponseTypeText {
		t.Errorf("responseType = %q, want text", f.responseType)
	}
	if f.defaultTimeout != 0 {
		t.Errorf("defaultTimeout = %v, want 0", f.defaultTimeout)
	}
}

func TestFetchReturnsBodyText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("hello world"))
	}))
	defer server.Close()

	f := newTestFetcher()
	defer f.Close()

	body, err := f.Fetch(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if body != "hello world" {
		t.Errorf("body = %q, want hello world", body)
	}
}

func TestRequestServesRepeatFromCache(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte("cached body"))
	}))
	defer server.Close()

	f := newTestFetcher()
	defer f.Close()

	first, err := f.Request(context.Background(), "GET", server.URL, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.FromCache {
		t.Error("first response claims FromCache")
	}

	second, err := f.Request(context.Background(), "GET", server.URL, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !second.FromCache {
		t.Error("second response not served from cache")
	}
	if second.Text != "cached body" {
		t.Errorf("cached body = %q", second.Text)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("server saw %d calls, want 1", got)
	}
}

func TestPostBypassesCacheByDefault(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	f := newTestFetcher()
	defer f.Close()

	for i := 0; i < 2; i++ {
		if _, err := f.Request(context.Background(), "POST", server.URL, &RequestOptions{Text: "payload"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("server saw %d calls, want 2", got)
	}
}

func TestPerCallCacheOptOut(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	f := newTestFetcher()
	defer f.Close()

	disabled := false
	opts := &RequestOptions{CacheEnabled: &disabled}
	for i := 0; i < 2; i++ {
		if _, err := f.Request(context.Background(), "GET", server.URL, opts); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("server saw %d calls, want 2", got)
	}
}

func TestRequestDecodesJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"name":"afetch","count":2}`))
	}))
	defer server.Close()

	f := newTestFetcher()
	defer f.Close()

	resp, err := f.Request(context.Background(), "GET", server.URL, &RequestOptions{
		ResponseType: ResponseTypeJSON,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m, ok := resp.JSON.(map[string]any)
	if !ok {
		t.Fatalf("JSON type = %T, want map", resp.JSON)
	}
	if m["name"] != "afetch" || m["count"] != float64(2) {
		t.Errorf("JSON = %v", m)
	}
}

func TestRequestMalformedJSONIsResponseError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json at all"))
	}))
	defer server.Close()

	f := newTestFetcher()
	defer f.Close()

	_, err := f.Request(context.Background(), "GET", server.URL, &RequestOptions{
		ResponseType: ResponseTypeJSON,
	})
	var ferr *Error
	if !errors.As(err, &ferr) {
		t.Fatalf("error type = %T, want *Error", err)
	}
	if ferr.Kind != KindResponse {
		t.Errorf("kind = %v, want %v", ferr.Kind, KindResponse)
	}
}

func TestRequestSendsMergedHeadersAndParams(t *testing.T) {
	var gotAccept, gotToken, gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAccept = r.Header.Get("Accept")
		gotToken = r.Header.Get("X-Token")
		gotQuery = r.URL.RawQuery
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	f := newTestFetcher(
		WithDefaultHeaders(map[string]string{"Accept": "text/plain", "X-Token": "abc"}),
		WithDefaultParams(map[string]string{"lang": "en"}),
	)
	defer f.Close()

	_, err := f.Request(context.Background(), "GET", server.URL+"/p?q=1", &RequestOptions{
		Headers: map[string]string{"accept": "application/json"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotAccept != "application/json" {
		t.Errorf("Accept = %q, want application/json", gotAccept)
	}
	if gotToken != "abc" {
		t.Errorf("X-Token = %q, want abc", gotToken)
	}
	if gotQuery != "lang=en&q=1" {
		t.Errorf("query = %q, want lang=en&q=1", gotQuery)
	}
}

func TestCloseRejectsFurtherCalls(t *testing.T) {
	f := newTestFetcher()
	if err := f.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("second Close returned error: %v", err)
	}

	if _, err := f.Fetch(context.Background(), "http://example.com/"); !errors.Is(err, ErrClientClosed) {
		t.Errorf("Fetch after Close = %v, want ErrClientClosed", err)
	}
	if _, err := f.FetchAll(context.Background(), []string{"http://example.com/"}); !errors.Is(err, ErrClientClosed) {
		t.Errorf("FetchAll after Close = %v, want ErrClientClosed", err)
	}
}

func TestInvalidConfigurationSurfacesOnRequest(t *testing.T) {
	f := New(WithRetryAttempts(0))
	if f.IsValid() {
		t.Fatal("expected invalid configuration")
	}

	_, err := f.Request(context.Background(), "GET", "http://example.com/", nil)
	var ferr *Error
	if !errors.As(err, &ferr) {
		t.Fatalf("error type = %T, want *Error", err)
	}
	if ferr.Kind != KindConfiguration {
		t.Errorf("kind = %v, want %v", ferr.Kind, KindConfiguration)
	}
}

func TestBadURLIsConfigurationError(t *testing.T) {
	f := newTestFetcher()
	defer f.Close()

	_, err := f.Request(context.Background(), "GET", "not a url", nil)
	var ferr *Error
	if !errors.As(err, &ferr) {
		t.Fatalf("error type = %T, want *Error", err)
	}
	if ferr.Kind != KindConfiguration {
		t.Errorf("kind = %v, want %v", ferr.Kind, KindConfiguration)
	}
}

func TestRequestIDAttachedToErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	f := newTestFetcher(WithRequestIDGenerator(func() string { return "fixed-id" }))
	defer f.Close()

	_, err := f.Request(context.Background(), "GET", server.URL, nil)
	var ferr *Error
	if !errors.As(err, &ferr) {
		t.Fatalf("error type = %T, want *Error", err)
	}
	if ferr.RequestID != "fixed-id" {
		t.Errorf("RequestID = %q, want fixed-id", ferr.RequestID)
	}
}

func TestSkipRateLimitBypassesAdmission(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	f := New(
		WithCache(nil),
		WithDomainRate(1, time.Hour),
		WithInitialBackoff(time.Millisecond),
	)
	defer f.Close()

	// First call spends the only slot for this domain.
	if _, err := f.Request(context.Background(), "GET", server.URL, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	start := time.Now()
	_, err := f.Request(context.Background(), "GET", server.URL, &RequestOptions{SkipRateLimit: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("bypass call took %v, want immediate", elapsed)
	}
}

func TestExhaustedAdmissionIsRateLimitError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	f := New(WithCache(nil), WithDomainRate(1, time.Hour))
	defer f.Close()

	if _, err := f.Request(context.Background(), "GET", server.URL, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := f.Request(ctx, "GET", server.URL, nil)
	var ferr *Error
	if !errors.As(err, &ferr) {
		t.Fatalf("error type = %T, want *Error", err)
	}
	if ferr.Kind != KindRateLimit {
		t.Errorf("kind = %v, want %v", ferr.Kind, KindRateLimit)
	}
}

func TestCacheHitSkipsAdmission(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	f := New(
		WithCache(NewInMemoryCache()),
		WithDomainRate(1, time.Hour),
		WithInitialBackoff(time.Millisecond),
	)
	defer f.Close()

	if _, err := f.Request(context.Background(), "GET", server.URL, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The bucket is exhausted, but a cache hit never touches it.
	start := time.Now()
	resp, err := f.Request(context.Background(), "GET", server.URL, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.FromCache {
		t.Error("expected cache hit")
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("cache hit took %v, want immediate", elapsed)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("server saw %d calls, want 1", got)
	}
}
