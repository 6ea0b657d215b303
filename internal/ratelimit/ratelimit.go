// Package ratelimit enforces per-contact sliding-window message ceilings.
//
// The OSS distribution ships an in-memory implementation (ContactLimiter).
// Deployments that need cross-instance coordination can substitute their own
// implementation — the Limiter interface is the contract.
package ratelimit

import (
	"context"
	"time"
)

// Result is the outcome of a rate-limit check.
type Result struct {
	Allowed bool
	// RetryAfter is how long until the oldest counted event in the tightest
	// violated window expires. Zero when Allowed.
	RetryAfter time.Duration
	// Window names the violated granularity ("minute", "hour", "day") for
	// logging. Empty when Allowed.
	Window string
}

// Limiter decides whether a contact may send another message.
// Implementations must be safe for concurrent use.
type Limiter interface {
	// Check reports whether the contact is under every ceiling. It does not
	// count the event — call Record once the event is accepted, so denied
	// events don't extend the denial.
	Check(ctx context.Context, contactID string) (Result, error)

	// Record counts one accepted event against all windows.
	Record(contactID string)

	// Close releases resources (cleanup goroutines).
	Close() error
}

// NoopLimiter permits every event. Used when rate limiting is disabled.
type NoopLimiter struct{}

// Check always allows.
func (NoopLimiter) Check(context.Context, string) (Result, error) { return Result{Allowed: true}, nil }

// Record is a no-op.
func (NoopLimiter) Record(string) {}

// Close is a no-op.
func (NoopLimiter) Close() error { return nil }
