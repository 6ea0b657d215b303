package dedup

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestCache(t *testing.T, ttl time.Duration, at time.Time) *Cache {
	t.Helper()
	c := NewCache(ttl)
	t.Cleanup(c.Close)
	c.now = func() time.Time { return at }
	return c
}

func TestSeen(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	c := newTestCache(t, 10*time.Minute, base)

	assert.False(t, c.Seen("c1:m1"))
	assert.True(t, c.Seen("c1:m1"))
	assert.False(t, c.Seen("c1:m2"))
	assert.False(t, c.Seen("c2:m1"))
}

func TestSeen_ExpiresAfterTTL(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	c := newTestCache(t, 10*time.Minute, base)

	assert.False(t, c.Seen("c1:m1"))

	c.now = func() time.Time { return base.Add(11 * time.Minute) }
	assert.False(t, c.Seen("c1:m1"))
	assert.True(t, c.Seen("c1:m1"))
}

func TestEvictExpired(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	c := newTestCache(t, 10*time.Minute, base)

	c.Seen("c1:m1")
	c.Seen("c1:m2")

	c.now = func() time.Time { return base.Add(11 * time.Minute) }
	c.evictExpired()

	c.mu.Lock()
	defer c.mu.Unlock()
	assert.Empty(t, c.entries)
}

func TestSeen_Concurrent(t *testing.T) {
	c := NewCache(10 * time.Minute)
	t.Cleanup(c.Close)

	// Exactly one of N concurrent deliveries of the same key passes.
	var wg sync.WaitGroup
	var mu sync.Mutex
	passed := 0
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !c.Seen("c1:m1") {
				mu.Lock()
				passed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, passed)
}
