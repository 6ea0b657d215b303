package engine

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContactLocks_Serializes(t *testing.T) {
	locks := newContactLocks()

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release := locks.acquire("c1")
			defer release()
			counter++
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, counter)
}

func TestContactLocks_EntryRemovedWhenIdle(t *testing.T) {
	locks := newContactLocks()

	release := locks.acquire("c1")
	locks.mu.Lock()
	assert.Len(t, locks.locks, 1)
	locks.mu.Unlock()

	release()
	locks.mu.Lock()
	assert.Empty(t, locks.locks)
	locks.mu.Unlock()
}

func TestContactLocks_IndependentContacts(t *testing.T) {
	locks := newContactLocks()

	// Holding one contact's lock must not block another contact.
	releaseA := locks.acquire("a")
	done := make(chan struct{})
	go func() {
		releaseB := locks.acquire("b")
		releaseB()
		close(done)
	}()
	<-done
	releaseA()
}
