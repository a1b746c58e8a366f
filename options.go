package afetch

import (
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// WithHTTPClient sets the underlying *http.Client.
func WithHTTPClient(client *http.Client) Option {
	return func(f *Fetcher) {
		f.httpClient = client
	}
}

// WithDomainRate sets the per-domain admission rate: maxRate slots per
// period for every domain independently.
func WithDomainRate(maxRate int, period time.Duration) Option {
	return func(f *Fetcher) {
		f.maxRatePerDomain = maxRate
		f.timePeriodPerDomain = period
	}
}

// WithRetryAttempts sets the total dispatch budget per call, first
// attempt included.
func WithRetryAttempts(attempts int) Option {
	return func(f *Fetcher) {
		f.retryAttempts = attempts
	}
}

// WithInitialBackoff sets the delay before the first retry.
func WithInitialBackoff(d time.Duration) Option {
	return func(f *Fetcher) {
		f.initialBackoff = d
	}
}

// WithMaxBackoff caps the exponential backoff delay.
func WithMaxBackoff(d time.Duration) Option {
	return func(f *Fetcher) {
		f.maxBackoff = d
	}
}

// WithRetryOn sets which error kinds are eligible for retry.
func WithRetryOn(kinds ...ErrorKind) Option {
	return func(f *Fetcher) {
		f.retryOn = retryOnSet(kinds)
	}
}

// WithFailureStatus replaces the predicate deciding which status codes
// count as failures. The default treats any status >= 400 as a failure.
func WithFailureStatus(predicate func(status int) bool) Option {
	return func(f *Fetcher) {
		f.failureStatus = predicate
	}
}

// WithCache sets the cache backend. Pass nil to disable caching
// entirely.
func WithCache(cache Cache) Option {
	return func(f *Fetcher) {
		f.cache = cache
		if cache == nil {
			f.cacheEnabled = false
		}
	}
}

// WithCacheDir selects a file-backed cache rooted at dir.
func WithCacheDir(dir string) Option {
	return func(f *Fetcher) {
		f.cache = NewFileCache(dir)
	}
}

// WithCacheTTL sets how long stored responses stay fresh.
func WithCacheTTL(ttl time.Duration) Option {
	return func(f *Fetcher) {
		f.cacheTTL = ttl
	}
}

// WithCacheEnabled toggles cache participation by default. Per-call
// options can still override either way.
func WithCacheEnabled(enabled bool) Option {
	return func(f *Fetcher) {
		f.cacheEnabled = enabled
	}
}

// WithCacheKeyHeaders names request headers whose values take part in
// the cache key.
func WithCacheKeyHeaders(names ...string) Option {
	return func(f *Fetcher) {
		f.cacheKeyHeaders = names
	}
}

// WithDefaultHeaders sets headers applied to every request unless
// overridden per call.
func WithDefaultHeaders(headers map[string]string) Option {
	return func(f *Fetcher) {
		f.defaultHeaders = headers
	}
}

// WithDefaultParams sets query parameters applied to every request
// unless the URL or per-call options already carry them.
func WithDefaultParams(params map[string]string) Option {
	return func(f *Fetcher) {
		f.defaultParams = params
	}
}

// WithDefaultTimeout sets the per-attempt timeout applied when a call
// does not choose its own. Zero means no timeout.
func WithDefaultTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		f.defaultTimeout = d
	}
}

// WithResponseType sets the default response handler.
func WithResponseType(rt ResponseType) Option {
	return func(f *Fetcher) {
		f.responseType = rt
	}
}

// WithLogger sets the lifecycle event logger.
func WithLogger(logger Logger) Option {
	return func(f *Fetcher) {
		f.logger = logger
	}
}

// WithZerolog wraps a zerolog.Logger as the lifecycle event logger.
func WithZerolog(log zerolog.Logger) Option {
	return func(f *Fetcher) {
		f.logger = NewZerologLogger(log)
	}
}

// WithConcurrencyLimit caps in-flight items during batch calls. Zero
// means unlimited.
func WithConcurrencyLimit(limit int) Option {
	return func(f *Fetcher) {
		f.concurrencyLimit = limit
	}
}

// WithReturnExceptions makes batch calls collect per-item errors in
// their results instead of aborting on the first failure.
func WithReturnExceptions(enabled bool) Option {
	return func(f *Fetcher) {
		f.returnExceptions = enabled
	}
}

// WithCircuitBreaker enables the circuit breaker with the given config.
func WithCircuitBreaker(config CircuitBreakerConfig) Option {
	return func(f *Fetcher) {
		f.breaker = NewCircuitBreaker(config)
	}
}

// WithMetrics enables Prometheus metrics on a private registry,
// reachable through Metrics().Registry().
func WithMetrics() Option {
	return func(f *Fetcher) {
		f.metrics = NewMetricsCollector()
	}
}

// WithMetricsCollector sets a pre-built metrics collector.
func WithMetricsCollector(collector *MetricsCollector) Option {
	return func(f *Fetcher) {
		f.metrics = collector
	}
}

// WithRequestIDGenerator replaces the request ID source. The default
// generates a UUID per call.
func WithRequestIDGenerator(gen func() string) Option {
	return func(f *Fetcher) {
		f.requestIDGen = gen
	}
}

// Metrics returns the configured collector, or nil.
func (f *Fetcher) Metrics() *MetricsCollector {
	return f.metrics
}

// ValidateConfiguration checks the assembled configuration and returns
// a Configuration error describing the first problem found.
func (f *Fetcher) ValidateConfiguration() error {
	validators := []func() error{
		f.validateRateConfig,
		f.validateRetryConfig,
		f.validateCacheConfig,
		f.validateGeneralConfig,
	}
	for _, validate := range validators {
		if err := validate(); err != nil {
			return err
		}
	}
	return nil
}

func (f *Fetcher) validateRateConfig() error {
	if f.maxRatePerDomain <= 0 {
		return configError(fmt.Sprintf("max rate per domain must be positive, got %d", f.maxRatePerDomain))
	}
	if f.timePeriodPerDomain <= 0 {
		return configError(fmt.Sprintf("time period per domain must be positive, got %v", f.timePeriodPerDomain))
	}
	return nil
}

func (f *Fetcher) validateRetryConfig() error {
	if f.retryAttempts < 1 {
		return configError(fmt.Sprintf("retry attempts must be >= 1, got %d", f.retryAttempts))
	}
	if f.initialBackoff <= 0 {
		return configError(fmt.Sprintf("initial backoff must be positive, got %v", f.initialBackoff))
	}
	if f.maxBackoff < f.initialBackoff {
		return configError(fmt.Sprintf("max backoff %v must be >= initial backoff %v", f.maxBackoff, f.initialBackoff))
	}
	if f.failureStatus == nil {
		return configError("failure status predicate must not be nil")
	}
	return nil
}

func (f *Fetcher) validateCacheConfig() error {
	if f.cacheEnabled && f.cache != nil && f.cacheTTL <= 0 {
		return configError(fmt.Sprintf("cache TTL must be positive, got %v", f.cacheTTL))
	}
	return nil
}

func (f *Fetcher) validateGeneralConfig() error {
	if f.httpClient == nil {
		return configError("http client must not be nil")
	}
	if f.defaultTimeout < 0 {
		return configError(fmt.Sprintf("default timeout must be >= 0, got %v", f.defaultTimeout))
	}
	if !knownResponseType(f.responseType) {
		return configError(fmt.Sprintf("unknown response type %q", f.responseType))
	}
	if f.concurrencyLimit < 0 {
		return configError(fmt.Sprintf("concurrency limit must be >= 0, got %d", f.concurrencyLimit))
	}
	if f.requestIDGen == nil {
		return configError("request ID generator must not be nil")
	}
	return nil
}

func configError(msg string) error {
	return &Error{Kind: KindConfiguration, Message: msg}
}
