// Package dedup drops duplicate webhook deliveries.
//
// Upstream channels deliver at-least-once, so the ingress layer checks a
// short-TTL idempotency key (contact_id + message_id) before the per-contact
// lock is acquired. In-memory only: the window just has to outlive the
// upstream's redelivery horizon, not a process restart.
package dedup

import (
	"sync"
	"time"
)

// Cache is a short-TTL set of recently seen event keys.
// Safe for concurrent use. Call Close to stop the eviction goroutine.
type Cache struct {
	mu      sync.Mutex
	entries map[string]time.Time
	ttl     time.Duration
	done    chan struct{}

	// now is swappable for tests.
	now func() time.Time
}

// NewCache creates a cache with the given TTL.
func NewCache(ttl time.Duration) *Cache {
	c := &Cache{
		entries: make(map[string]time.Time),
		ttl:     ttl,
		done:    make(chan struct{}),
		now:     time.Now,
	}
	go c.evictLoop()
	return c
}

// Seen records the key and reports whether it was already present within the
// TTL. Check-and-record is one atomic step so two concurrent deliveries of
// the same event cannot both pass.
func (c *Cache) Seen(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if expiry, ok := c.entries[key]; ok && now.Before(expiry) {
		return true
	}
	c.entries[key] = now.Add(c.ttl)
	return false
}

// Close stops the background eviction goroutine.
func (c *Cache) Close() {
	close(c.done)
}

// evictLoop removes expired entries every minute.
func (c *Cache) evictLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.evictExpired()
		}
	}
}

func (c *Cache) evictExpired() {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()

	for k, expiry := range c.entries {
		if now.After(expiry) {
			delete(c.entries, k)
		}
	}
}
