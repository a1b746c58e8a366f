package afetch

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// LimiterRegistry owns one token bucket per domain key. Buckets are
// created lazily on first use and never evicted; the registry grows
// with the number of distinct domains observed, which is an accepted
// operational tradeoff for callers fanning out across many hosts.
//
// Admission is strictly per-domain: waiting on one domain's bucket
// never delays admission on another.
type LimiterRegistry struct {
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
	maxRate  int
	period   time.Duration
}

// NewLimiterRegistry returns a registry whose buckets allow maxRate
// admissions per period for each domain.
func NewLimiterRegistry(maxRate int, period time.Duration) *LimiterRegistry {
	return &LimiterRegistry{
		limiters: make(map[string]*rate.Limiter),
		maxRate:  maxRate,
		period:   period,
	}
}

// Limiter returns the bucket for domain, creating it on first use.
func (r *LimiterRegistry) Limiter(domain string) *rate.Limiter {
	r.mu.RLock()
	limiter, ok := r.limiters[domain]
	r.mu.RUnlock()
	if ok {
		return limiter
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if limiter, ok = r.limiters[domain]; ok {
		return limiter
	}
	limiter = rate.NewLimiter(rate.Limit(float64(r.maxRate)/r.period.Seconds()), r.maxRate)
	r.limiters[domain] = limiter
	return limiter
}

// Admit blocks until one slot is available under domain's bucket, or
// until ctx is done. The returned error is the admission-control
// failure, not a throttling outcome: a successful wait returns nil no
// matter how long it took.
func (r *LimiterRegistry) Admit(ctx context.Context, domain string) error {
	return r.Limiter(domain).Wait(ctx)
}

// Len reports the number of domains with an instantiated bucket.
func (r *LimiterRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.limiters)
}
