package afetch

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// LRUCache is a bounded in-memory Cache: least recently used entries
// are evicted once size is reached, and every entry expires after the
// TTL given at construction. A shorter per-entry TTL passed to Set is
// still honoured on read.
type LRUCache struct {
	lru *expirable.LRU[string, *CacheEntry]
}

// NewLRUCache returns an LRU cache holding at most size entries, each
// expiring maxTTL after insertion.
func NewLRUCache(size int, maxTTL time.Duration) *LRUCache {
	return &LRUCache{
		lru: expirable.NewLRU[string, *CacheEntry](size, nil, maxTTL),
	}
}

// Get returns the entry for key, or a miss if absent or expired.
func (c *LRUCache) Get(key string) (*CacheEntry, bool) {
	entry, ok := c.lru.Get(key)
	if !ok {
		return nil, false
	}
	if time.Now().After(entry.ExpiresAt) {
		c.lru.Remove(key)
		return nil, false
	}
	return entry, true
}

// Set stores an entry under key. The entry-level expiry is the given
// TTL; the cache-level maxTTL still applies as an upper bound.
func (c *LRUCache) Set(key string, entry *CacheEntry, ttl time.Duration) {
	entry.ExpiresAt = time.Now().Add(ttl)
	c.lru.Add(key, entry)
}

// Delete removes the entry for key.
func (c *LRUCache) Delete(key string) {
	c.lru.Remove(key)
}

// Clear removes all entries.
func (c *LRUCache) Clear() {
	c.lru.Purge()
}

// Len reports the number of stored entries.
func (c *LRUCache) Len() int {
	return c.lru.Len()
}
