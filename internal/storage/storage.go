// Package storage persists conversation state, handoff decisions, and
// compliance audit records.
//
// Two implementations share the Store interface: Postgres (pgx pool,
// embedded forward-only migrations) and Memory (tests and DB-less
// development). The engine is the authority for an in-flight event; the
// store is the durable record behind it.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/leadline-ai/switchboard/internal/model"
)

// ErrNotFound is returned when a contact has no stored state yet.
var ErrNotFound = errors.New("storage: not found")

// ComplianceAudit is one audited reply, recorded for human review.
// Flagged results are delivered but logged with full violation detail;
// blocked results record the fallback substitution.
type ComplianceAudit struct {
	ID         uuid.UUID
	EventID    uuid.UUID
	ContactID  string
	Persona    model.Persona
	Reply      string
	Status     model.ComplianceStatus
	Reason     string
	Violations []string
	CreatedAt  time.Time
}

// HandoffRecord is one materialized handoff, persisted for audit.
type HandoffRecord struct {
	ID         uuid.UUID
	ContactID  string
	Source     model.Persona
	Target     model.Persona
	Reason     string
	Confidence float64
	CreatedAt  time.Time
}

// Store is the persistence contract for the routing core.
type Store interface {
	// GetState loads a contact's conversation state.
	// Returns ErrNotFound for contacts never seen before.
	GetState(ctx context.Context, contactID string) (*model.ConversationState, error)

	// SaveState upserts the contact's state, including history.
	SaveState(ctx context.Context, state *model.ConversationState) error

	// RecordHandoff appends a handoff audit row.
	RecordHandoff(ctx context.Context, contactID string, d model.HandoffDecision) error

	// RecordComplianceAudit appends a compliance audit row.
	RecordComplianceAudit(ctx context.Context, a ComplianceAudit) error

	// ContactHandoffs returns a contact's handoff history, oldest first.
	ContactHandoffs(ctx context.Context, contactID string) ([]HandoffRecord, error)

	// Close releases resources.
	Close(ctx context.Context)
}
