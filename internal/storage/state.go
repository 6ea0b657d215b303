package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/leadline-ai/switchboard/internal/model"
)

// GetState loads a contact's conversation state, including the message
// history used for context assembly.
func (db *DB) GetState(ctx context.Context, contactID string) (*model.ConversationState, error) {
	var (
		state   model.ConversationState
		persona string
		history []byte
	)
	err := db.pool.QueryRow(ctx,
		`SELECT contact_id, current_persona, active_tags, last_handoff_at, history, updated_at
		 FROM conversation_states
		 WHERE contact_id = $1`,
		contactID,
	).Scan(&state.ContactID, &persona, &state.ActiveTags, &state.LastHandoffAt, &history, &state.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("storage: get state: %w", err)
	}

	state.CurrentPersona = model.Persona(persona)
	if len(history) > 0 {
		if err := json.Unmarshal(history, &state.History); err != nil {
			return nil, fmt.Errorf("storage: decode history for %s: %w", contactID, err)
		}
	}
	return &state, nil
}

// SaveState upserts the contact's conversation state. The history is
// stored as a JSONB document alongside the row so a contact loads in a
// single query.
func (db *DB) SaveState(ctx context.Context, state *model.ConversationState) error {
	history, err := json.Marshal(state.History)
	if err != nil {
		return fmt.Errorf("storage: encode history for %s: %w", state.ContactID, err)
	}

	_, err = db.pool.Exec(ctx,
		`INSERT INTO conversation_states (contact_id, current_persona, active_tags, last_handoff_at, history, updated_at)
		 VALUES ($1, $2, $3, $4, $5, now())
		 ON CONFLICT (contact_id) DO UPDATE SET
		   current_persona = EXCLUDED.current_persona,
		   active_tags = EXCLUDED.active_tags,
		   last_handoff_at = EXCLUDED.last_handoff_at,
		   history = EXCLUDED.history,
		   updated_at = now()`,
		state.ContactID, string(state.CurrentPersona), state.ActiveTags, state.LastHandoffAt, history,
	)
	if err != nil {
		return fmt.Errorf("storage: save state: %w", err)
	}
	return nil
}

// RecordHandoff appends a handoff audit row.
func (db *DB) RecordHandoff(ctx context.Context, contactID string, d model.HandoffDecision) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO handoffs (id, contact_id, source_persona, target_persona, reason, confidence, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		uuid.New(), contactID, string(d.Source), string(d.Target), d.Reason, d.Confidence, d.TriggeredAt,
	)
	if err != nil {
		return fmt.Errorf("storage: record handoff: %w", err)
	}
	return nil
}

// RecordComplianceAudit appends a compliance audit row.
func (db *DB) RecordComplianceAudit(ctx context.Context, a ComplianceAudit) error {
	id := a.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	createdAt := a.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := db.pool.Exec(ctx,
		`INSERT INTO compliance_audits (id, event_id, contact_id, persona, reply, status, reason, violations, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		id, a.EventID, a.ContactID, string(a.Persona), a.Reply, string(a.Status), a.Reason, a.Violations, createdAt,
	)
	if err != nil {
		return fmt.Errorf("storage: record compliance audit: %w", err)
	}
	return nil
}

// ContactHandoffs returns a contact's handoff history, oldest first.
func (db *DB) ContactHandoffs(ctx context.Context, contactID string) ([]HandoffRecord, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, contact_id, source_persona, target_persona, reason, confidence, created_at
		 FROM handoffs
		 WHERE contact_id = $1
		 ORDER BY created_at ASC`,
		contactID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: contact handoffs: %w", err)
	}
	defer rows.Close()

	var records []HandoffRecord
	for rows.Next() {
		var (
			r              HandoffRecord
			source, target string
		)
		if err := rows.Scan(&r.ID, &r.ContactID, &source, &target, &r.Reason, &r.Confidence, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan handoff: %w", err)
		}
		r.Source = model.Persona(source)
		r.Target = model.Persona(target)
		records = append(records, r)
	}
	return records, rows.Err()
}
