package lumen

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// CachedLoader memoizes an expensive load behind a TTL. A fresh value is
// served from memory; on a miss, concurrent callers are collapsed into a
// single in-flight load and all receive its result. Slight staleness
// (bounded by the TTL) is the accepted trade against redundant computation.
type CachedLoader[T any] struct {
	load  func(ctx context.Context) (T, error)
	ttl   time.Duration
	clock Clock

	group singleflight.Group

	mu       sync.Mutex
	value    T
	loadedAt time.Time
	valid    bool
	gen      uint64 // bumped by Clear; stale in-flight loads must not commit
}

// NewCachedLoader wraps load with a TTL-bounded cache.
func NewCachedLoader[T any](ttl time.Duration, clock Clock, load func(ctx context.Context) (T, error)) *CachedLoader[T] {
	return &CachedLoader[T]{load: load, ttl: ttl, clock: clock}
}

// Get returns the cached value if still fresh, loading it otherwise.
// Load errors are not cached; the next Get retries.
func (c *CachedLoader[T]) Get(ctx context.Context) (T, error) {
	c.mu.Lock()
	if c.valid && c.clock.Now().Sub(c.loadedAt) < c.ttl {
		v := c.value
		c.mu.Unlock()
		return v, nil
	}
	gen := c.gen
	c.mu.Unlock()

	v, err, _ := c.group.Do("load", func() (any, error) {
		v, err := c.load(ctx)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		if c.gen == gen {
			c.value = v
			c.loadedAt = c.clock.Now()
			c.valid = true
		}
		c.mu.Unlock()
		return v, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

// Clear drops the cached value and any in-flight load marker, forcing the
// next Get to reload. A load already in flight when Clear is called still
// returns to its own callers but does not repopulate the cache.
func (c *CachedLoader[T]) Clear() {
	c.mu.Lock()
	c.valid = false
	c.gen++
	c.mu.Unlock()
	c.group.Forget("load")
}
