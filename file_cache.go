package afetch

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

// DefaultCacheDir is where FileCache stores entries unless told
// otherwise.
const DefaultCacheDir = ".afetch_cache"

// FileCache persists cache entries as JSON files under a local
// directory, one file per key. The directory is created on first
// write. TTL is enforced on read: expired entry files are removed and
// reported as misses. Safe for concurrent use within one process.
type FileCache struct {
	dir string
	mu  sync.Mutex
}

// NewFileCache returns a file-backed cache rooted at dir. An empty dir
// selects DefaultCacheDir.
func NewFileCache(dir string) *FileCache {
	if dir == "" {
		dir = DefaultCacheDir
	}
	return &FileCache{dir: dir}
}

// Dir returns the cache root directory.
func (c *FileCache) Dir() string {
	return c.dir
}

func (c *FileCache) path(key string) string {
	return filepath.Join(c.dir, fmt.Sprintf("%016x.json", xxhash.Sum64String(key)))
}

// Get returns the entry for key, or a miss if absent or expired.
func (c *FileCache) Get(key string) (*CacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := os.ReadFile(c.path(key))
	if err != nil {
		return nil, false
	}
	var entry CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		// Unreadable entries are treated as absent and cleaned up.
		_ = os.Remove(c.path(key))
		return nil, false
	}
	if time.Now().After(entry.ExpiresAt) {
		_ = os.Remove(c.path(key))
		return nil, false
	}
	return &entry, true
}

// Set stores an entry under key with the given TTL. Write failures are
// swallowed: a cache that cannot persist degrades to a miss.
func (c *FileCache) Set(key string, entry *CacheEntry, ttl time.Duration) {
	entry.ExpiresAt = time.Now().Add(ttl)

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	path := c.path(key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return
	}
	_ = os.Rename(tmp, path)
}

// Delete removes the entry for key.
func (c *FileCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = os.Remove(c.path(key))
}

// Clear removes every entry file under the cache directory.
func (c *FileCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	matches, err := filepath.Glob(filepath.Join(c.dir, "*.json"))
	if err != nil {
		return
	}
	for _, m := range matches {
		_ = os.Remove(m)
	}
}
