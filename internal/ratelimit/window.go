package ratelimit

import "time"

// Window is a sliding-window event counter. Entries older than the span are
// pruned lazily on access. Not safe for concurrent use — callers hold their
// own lock (the limiter's mutex or the per-contact lock).
//
// The same structure backs both message rate limiting and the handoff budget.
type Window struct {
	span   time.Duration
	events []time.Time
}

// NewWindow creates a counter covering the trailing span.
func NewWindow(span time.Duration) *Window {
	return &Window{span: span}
}

// Add counts one event at t.
func (w *Window) Add(t time.Time) {
	w.prune(t)
	w.events = append(w.events, t)
}

// Count returns the number of events within the trailing span as of now.
func (w *Window) Count(now time.Time) int {
	w.prune(now)
	return len(w.events)
}

// Oldest returns the oldest counted event still inside the span, and false
// when the window is empty.
func (w *Window) Oldest(now time.Time) (time.Time, bool) {
	w.prune(now)
	if len(w.events) == 0 {
		return time.Time{}, false
	}
	return w.events[0], true
}

// RetryAfter is the time until the oldest counted event leaves the span.
func (w *Window) RetryAfter(now time.Time) time.Duration {
	oldest, ok := w.Oldest(now)
	if !ok {
		return 0
	}
	d := oldest.Add(w.span).Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// Idle reports whether the window has been empty since before now-span,
// making the owning entry eligible for eviction.
func (w *Window) Idle(now time.Time) bool {
	return w.Count(now) == 0
}

// prune drops events that have fallen out of the span. Events are appended
// in arrival order, so the slice stays sorted and pruning is a prefix cut.
func (w *Window) prune(now time.Time) {
	cutoff := now.Add(-w.span)
	i := 0
	for i < len(w.events) && !w.events[i].After(cutoff) {
		i++
	}
	if i > 0 {
		w.events = append(w.events[:0], w.events[i:]...)
	}
}
