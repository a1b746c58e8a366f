// Package afetch provides an HTTP fetch client that composes the
// cross-cutting concerns every outbound caller ends up hand-rolling:
//
//   - Per-domain rate limiting (token bucket, one bucket per host)
//   - Retries with deterministic exponential backoff
//   - Response caching (file-backed, in-memory or LRU) with per-request overrides
//   - A closed set of response handlers (Text / JSON / Bytes / Raw)
//   - Optional circuit breaker
//   - Prometheus metrics and lightweight structured logging
//
// Design goals:
//   - Small surface area: functional options configure everything
//   - One public entry point (Request) that Fetch and the batch helpers delegate to
//   - Safe concurrent use of a single *Fetcher instance
//   - Failures surface as a single *Error type carrying the full call context
//
// Typical usage:
//
//	fetcher := afetch.New(
//	    afetch.WithDomainRate(5, time.Second),
//	    afetch.WithRetryAttempts(3),
//	    afetch.WithCache(afetch.NewInMemoryCache()),
//	)
//	defer fetcher.Close()
//
//	body, err := fetcher.Fetch(ctx, "https://api.example.com/data")
//
// A cache hit bypasses both rate limiting and the retry loop; a miss pays
// the full admission plus dispatch cost and populates the cache on success.
// Contention on one domain never delays calls to another: every domain key
// owns an independent token bucket created lazily on first use.
package afetch
