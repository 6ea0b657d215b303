package engine

import "sync"

// contactLocks serializes event processing per contact. Events for
// different contacts proceed concurrently; two events for the same
// contact are processed one at a time so state reads and writes never
// interleave.
type contactLocks struct {
	mu    sync.Mutex
	locks map[string]*contactLock
}

type contactLock struct {
	mu   sync.Mutex
	refs int
}

func newContactLocks() *contactLocks {
	return &contactLocks{locks: make(map[string]*contactLock)}
}

// acquire blocks until the contact's lock is held. The returned release
// func must be called exactly once.
func (c *contactLocks) acquire(contactID string) (release func()) {
	c.mu.Lock()
	l, ok := c.locks[contactID]
	if !ok {
		l = &contactLock{}
		c.locks[contactID] = l
	}
	l.refs++
	c.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()
		c.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(c.locks, contactID)
		}
		c.mu.Unlock()
	}
}
