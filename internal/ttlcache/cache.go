// Package ttlcache provides a thread-safe, TTL-based cache with singleflight
// deduplication for concurrent loads of the same key.
package ttlcache

import (
	"context"
	"sync"
	"time"
)

// Loader computes the value for a key on a cache miss.
type Loader[V any] func(ctx context.Context) (V, error)

// Cache memoises loader results per key.
// Concurrent Get calls for the same key share one load: only one loader
// runs and all waiters receive its result. Failed loads are not retained.
type Cache[V any] struct {
	mu      sync.Mutex
	entries map[string]*entry[V]
	ttl     time.Duration
	now     func() time.Time
}

type entry[V any] struct {
	val     V
	err     error
	expires time.Time
	done    chan struct{} // closed when the load is complete
}

// New creates a cache whose successful entries live for ttl.
func New[V any](ttl time.Duration) *Cache[V] {
	return &Cache[V]{
		entries: make(map[string]*entry[V]),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns the cached value for key, running load on a miss or expiry.
// A waiter whose ctx ends before the shared load completes returns ctx.Err().
func (c *Cache[V]) Get(ctx context.Context, key string, load Loader[V]) (V, error) {
	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		select {
		case <-e.done:
			if c.now().Before(e.expires) {
				c.mu.Unlock()
				return e.val, e.err
			}
			// expired, reload below
		default:
			c.mu.Unlock()
			select {
			case <-e.done:
				return e.val, e.err
			case <-ctx.Done():
				var zero V
				return zero, ctx.Err()
			}
		}
	}

	e := &entry[V]{done: make(chan struct{})}
	c.entries[key] = e
	c.mu.Unlock()

	e.val, e.err = load(ctx)
	e.expires = c.now().Add(c.ttl)
	close(e.done)

	if e.err != nil {
		c.mu.Lock()
		if c.entries[key] == e {
			delete(c.entries, key)
		}
		c.mu.Unlock()
	}
	return e.val, e.err
}

// Forget drops key from the cache.
func (c *Cache[V]) Forget(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Len returns the number of entries in the cache (for diagnostics).
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
