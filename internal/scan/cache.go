package scan

import (
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/minio/highwayhash"

	"github.com/phobologic/scout/internal/model"
)

// DefaultCacheSize is the number of parsed files kept by NewCache(0).
const DefaultCacheSize = 1024

var hashKey = []byte("scout-module-cache-key-000000000")

type cacheKey struct {
	path string
	sum  uint64
}

type cacheEntry struct {
	refs []model.ModuleReference
	err  error
}

// Cache holds extracted references keyed by canonical path and content hash,
// so an edited file is always re-parsed. It is safe for concurrent use and is
// handed to Discover explicitly through Options.
type Cache struct {
	entries *lru.Cache[cacheKey, cacheEntry]
	hits    atomic.Int64
	misses  atomic.Int64
}

// NewCache creates a Cache holding up to size files.
func NewCache(size int) (*Cache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	entries, err := lru.New[cacheKey, cacheEntry](size)
	if err != nil {
		return nil, err
	}
	return &Cache{entries: entries}, nil
}

// References returns the cached extraction result for path with content
// source, calling extract on a miss. The returned slice must not be modified.
func (c *Cache) References(path string, source []byte, extract func() ([]model.ModuleReference, error)) ([]model.ModuleReference, error) {
	sum, err := contentHash(source)
	if err != nil {
		return extract()
	}
	key := cacheKey{path: path, sum: sum}
	if e, ok := c.entries.Get(key); ok {
		c.hits.Add(1)
		return e.refs, e.err
	}
	c.misses.Add(1)
	refs, err := extract()
	c.entries.Add(key, cacheEntry{refs: refs, err: err})
	return refs, err
}

// Stats returns the number of cache hits and misses so far.
func (c *Cache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Len returns the number of cached files.
func (c *Cache) Len() int {
	return c.entries.Len()
}

func contentHash(data []byte) (uint64, error) {
	h, err := highwayhash.New64(hashKey)
	if err != nil {
		return 0, err
	}
	if _, err := h.Write(data); err != nil {
		return 0, err
	}
	return h.Sum64(), nil
}
