// Package crm is the thin client boundary to the external CRM/record store.
//
// The core owns routing decisions; the CRM owns durable contact records and
// message delivery. Action batches are applied in list order, at-least-once,
// with idempotent tag operations.
package crm

import (
	"context"

	"github.com/leadline-ai/switchboard/internal/model"
)

// Client is the collaborator contract. Implementations must apply the batch
// strictly in order and must not reorder tag mutations around message sends.
type Client interface {
	// ContactTags returns the contact's current tag set from the durable
	// mirror.
	ContactTags(ctx context.Context, contactID string) ([]string, error)

	// ApplyActions applies one ordered batch for the contact.
	ApplyActions(ctx context.Context, contactID string, batch []model.Action) error
}

// Noop discards every call. Used when no CRM is configured (the core still
// records everything in its own store and returns the batch to the caller).
type Noop struct{}

// ContactTags returns no tags.
func (Noop) ContactTags(context.Context, string) ([]string, error) { return nil, nil }

// ApplyActions does nothing.
func (Noop) ApplyActions(context.Context, string, []model.Action) error { return nil }
