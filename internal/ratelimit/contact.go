package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Ceilings are the per-granularity message limits. A zero ceiling disables
// that granularity.
type Ceilings struct {
	PerMinute int
	PerHour   int
	PerDay    int
}

// contactWindows holds the three sliding windows for one contact.
type contactWindows struct {
	minute *Window
	hour   *Window
	day    *Window
}

// ContactLimiter implements Limiter with in-memory sliding windows at
// minute/hour/day granularity per contact. A request is denied if any
// granularity's ceiling is exceeded; RetryAfter comes from the tightest
// violated window.
//
// A background goroutine evicts contacts with no counted events to bound
// memory. Call Close to stop it.
type ContactLimiter struct {
	ceilings Ceilings

	mu       sync.Mutex
	contacts map[string]*contactWindows

	// now is swappable for tests.
	now func() time.Time

	stopOnce sync.Once
	done     chan struct{}
}

// NewContactLimiter creates a sliding-window limiter with the given ceilings.
func NewContactLimiter(ceilings Ceilings) *ContactLimiter {
	l := &ContactLimiter{
		ceilings: ceilings,
		contacts: make(map[string]*contactWindows),
		now:      time.Now,
		done:     make(chan struct{}),
	}
	go l.cleanup()
	return l
}

// Check reports whether the contact is under every ceiling. Denials name the
// tightest violated granularity and how long until it clears.
func (l *ContactLimiter) Check(_ context.Context, contactID string) (Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cw, ok := l.contacts[contactID]
	if !ok {
		return Result{Allowed: true}, nil
	}

	now := l.now()

	// Granularities are checked tightest-first so RetryAfter reflects the
	// window that clears soonest.
	checks := []struct {
		name    string
		ceiling int
		window  *Window
	}{
		{"minute", l.ceilings.PerMinute, cw.minute},
		{"hour", l.ceilings.PerHour, cw.hour},
		{"day", l.ceilings.PerDay, cw.day},
	}
	for _, c := range checks {
		if c.ceiling <= 0 {
			continue
		}
		if c.window.Count(now) >= c.ceiling {
			return Result{
				Allowed:    false,
				RetryAfter: c.window.RetryAfter(now),
				Window:     c.name,
			}, nil
		}
	}
	return Result{Allowed: true}, nil
}

// Record counts one accepted event against all three windows.
func (l *ContactLimiter) Record(contactID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cw, ok := l.contacts[contactID]
	if !ok {
		cw = &contactWindows{
			minute: NewWindow(time.Minute),
			hour:   NewWindow(time.Hour),
			day:    NewWindow(24 * time.Hour),
		}
		l.contacts[contactID] = cw
	}

	now := l.now()
	cw.minute.Add(now)
	cw.hour.Add(now)
	cw.day.Add(now)
}

// Close stops the cleanup goroutine. Safe to call multiple times.
func (l *ContactLimiter) Close() error {
	l.stopOnce.Do(func() { close(l.done) })
	return nil
}

// cleanup periodically evicts contacts whose day window has emptied.
func (l *ContactLimiter) cleanup() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			l.evictIdle()
		}
	}
}

func (l *ContactLimiter) evictIdle() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for id, cw := range l.contacts {
		if cw.day.Idle(now) {
			delete(l.contacts, id)
		}
	}
}
