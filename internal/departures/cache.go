package departures

import (
	"github.com/bluele/gcache"
)

const defaultCacheSize = 128

type cacheKey struct {
	station string
	asOf    string
	count   int
	mode    Mode
}

type cacheEntry struct {
	result *Result
	err    error
}

// CacheStats reports memoization counters.
type CacheStats struct {
	Hits   uint64
	Misses uint64
	Size   int
}

// queryCache is a bounded LRU of computed answers. Timestamps advance every
// refresh cycle, so stale keys simply age out.
type queryCache struct {
	lru gcache.Cache
}

func newQueryCache(size int) *queryCache {
	if size <= 0 {
		size = defaultCacheSize
	}
	return &queryCache{lru: gcache.New(size).LRU().Build()}
}

func (c *queryCache) get(k cacheKey) (cacheEntry, bool) {
	v, err := c.lru.Get(k)
	if err != nil {
		return cacheEntry{}, false
	}
	entry, ok := v.(cacheEntry)
	return entry, ok
}

func (c *queryCache) set(k cacheKey, e cacheEntry) {
	_ = c.lru.Set(k, e)
}

func (c *queryCache) stats() CacheStats {
	return CacheStats{
		Hits:   c.lru.HitCount(),
		Misses: c.lru.MissCount(),
		Size:   c.lru.Len(false),
	}
}
