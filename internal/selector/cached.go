package selector

import (
	"fmt"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/zeebo/xxh3"
)

// Cached memoizes recommendations by a hash of path and content, so watch
// mode and repeated batch runs do not rescan unchanged files.
type Cached struct {
	inner *Selector
	cache *lru.Cache[uint64, Recommendation]

	hits   atomic.Int64
	misses atomic.Int64
}

// NewCached wraps inner with an LRU of the given size.
func NewCached(inner *Selector, size int) (*Cached, error) {
	if inner == nil {
		inner = New()
	}
	cache, err := lru.New[uint64, Recommendation](size)
	if err != nil {
		return nil, fmt.Errorf("selector cache: %w", err)
	}
	return &Cached{inner: inner, cache: cache}, nil
}

// Key hashes path and code the same way the cache does.
func Key(code, path string) uint64 {
	hasher := xxh3.New()
	_, _ = hasher.Write([]byte(path))
	_, _ = hasher.Write([]byte{0})
	_, _ = hasher.Write([]byte(code))
	return hasher.Sum64()
}

// Recommend returns a cached recommendation or computes and stores one.
func (c *Cached) Recommend(code, path string) Recommendation {
	key := Key(code, path)
	if rec, ok := c.cache.Get(key); ok {
		c.hits.Add(1)
		return rec.clone()
	}
	c.misses.Add(1)
	rec := c.inner.Recommend(code, path)
	c.cache.Add(key, rec.clone())
	return rec
}

// HitsMisses returns cache counters.
func (c *Cached) HitsMisses() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Purge drops every cached entry.
func (c *Cached) Purge() {
	c.cache.Purge()
}
