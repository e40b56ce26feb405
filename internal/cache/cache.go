package cache

import (
	"sync"
	"time"
)

// Cache is a single-entry TTL cache. It replaces the module-level mutable
// variable the handlers used to share: lifecycle is owned by whoever
// constructs it, and expiry is testable through the clock hook. Races
// between concurrent fillers only cost a redundant upstream fetch.
type Cache[T any] struct {
	mu  sync.Mutex
	ttl time.Duration
	now func() time.Time

	value T
	at    time.Time
	ok    bool
}

func New[T any](ttl time.Duration) *Cache[T] {
	return &Cache[T]{ttl: ttl, now: time.Now}
}

func (c *Cache[T]) Get() (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.ok || c.now().Sub(c.at) > c.ttl {
		var zero T
		return zero, false
	}
	return c.value, true
}

func (c *Cache[T]) Put(v T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = v
	c.at = c.now()
	c.ok = true
}
