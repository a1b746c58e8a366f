package afetch

import (
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

// buildCacheKey derives the request fingerprint: method + canonical URL
// (host lowercased, sorted query) + the values of the headers declared
// cache-relevant. Two effective requests with the same key are
// interchangeable as far as the cache is concerned.
func buildCacheKey(eff *effectiveRequest, keyHeaders []string) string {
	d := xxhash.New()
	_, _ = d.WriteString(eff.Method)
	_, _ = d.WriteString("\x00")
	_, _ = d.WriteString(canonicalURL(eff))
	if len(keyHeaders) > 0 {
		names := make([]string, len(keyHeaders))
		copy(names, keyHeaders)
		sort.Strings(names)
		for _, name := range names {
			_, _ = d.WriteString("\x00")
			_, _ = d.WriteString(name)
			_, _ = d.WriteString("=")
			_, _ = d.WriteString(eff.Headers.Get(name))
		}
	}
	return strconv.FormatUint(d.Sum64(), 16)
}

// canonicalURL rebuilds the URL with the normalized domain key so that
// http://Example.com/x and http://example.com:80/x fingerprint equally.
// The query is already sorted by the merge step.
func canonicalURL(eff *effectiveRequest) string {
	u := *eff.ParsedURL
	u.Host = eff.Domain
	return u.String()
}

const cacheShards = 16

// InMemoryCache is a sharded in-memory Cache with per-entry TTL.
// Expired entries are dropped lazily on read. Safe for concurrent use.
type InMemoryCache struct {
	shards [cacheShards]*cacheShard
}

type cacheShard struct {
	mu    sync.RWMutex
	store map[string]*CacheEntry
}

// NewInMemoryCache returns an empty in-memory cache.
func NewInMemoryCache() *InMemoryCache {
	c := &InMemoryCache{}
	for i := range c.shards {
		c.shards[i] = &cacheShard{store: make(map[string]*CacheEntry)}
	}
	return c
}

func (c *InMemoryCache) shard(key string) *cacheShard {
	return c.shards[xxhash.Sum64String(key)%cacheShards]
}

// Get returns the entry for key, or a miss if absent or expired.
func (c *InMemoryCache) Get(key string) (*CacheEntry, bool) {
	shard := c.shard(key)
	shard.mu.RLock()
	entry, ok := shard.store[key]
	shard.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if time.Now().After(entry.ExpiresAt) {
		shard.mu.Lock()
		delete(shard.store, key)
		shard.mu.Unlock()
		return nil, false
	}
	return entry, true
}

// Set stores an entry under key with the given TTL.
func (c *InMemoryCache) Set(key string, entry *CacheEntry, ttl time.Duration) {
	entry.ExpiresAt = time.Now().Add(ttl)
	shard := c.shard(key)
	shard.mu.Lock()
	shard.store[key] = entry
	shard.mu.Unlock()
}

// Delete removes the entry for key.
func (c *InMemoryCache) Delete(key string) {
	shard := c.shard(key)
	shard.mu.Lock()
	delete(shard.store, key)
	shard.mu.Unlock()
}

// Clear removes all entries.
func (c *InMemoryCache) Clear() {
	for _, shard := range c.shards {
		shard.mu.Lock()
		shard.store = make(map[string]*CacheEntry)
		shard.mu.Unlock()
	}
}

// Len reports the number of stored entries, expired ones included.
func (c *InMemoryCache) Len() int {
	total := 0
	for _, shard := range c.shards {
		shard.mu.RLock()
		total += len(shard.store)
		shard.mu.RUnlock()
	}
	return total
}
