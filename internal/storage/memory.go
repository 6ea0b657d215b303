package storage

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/leadline-ai/switchboard/internal/model"
)

// Memory is an in-memory Store for tests and DB-less operation.
// State does not survive a restart.
type Memory struct {
	mu       sync.RWMutex
	states   map[string]*model.ConversationState
	handoffs map[string][]HandoffRecord
	audits   []ComplianceAudit
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		states:   make(map[string]*model.ConversationState),
		handoffs: make(map[string][]HandoffRecord),
	}
}

func (m *Memory) GetState(_ context.Context, contactID string) (*model.ConversationState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.states[contactID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneState(state), nil
}

func (m *Memory) SaveState(_ context.Context, state *model.ConversationState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	saved := cloneState(state)
	saved.UpdatedAt = time.Now().UTC()
	m.states[state.ContactID] = saved
	return nil
}

func (m *Memory) RecordHandoff(_ context.Context, contactID string, d model.HandoffDecision) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.handoffs[contactID] = append(m.handoffs[contactID], HandoffRecord{
		ID:         uuid.New(),
		ContactID:  contactID,
		Source:     d.Source,
		Target:     d.Target,
		Reason:     d.Reason,
		Confidence: d.Confidence,
		CreatedAt:  d.TriggeredAt,
	})
	return nil
}

func (m *Memory) RecordComplianceAudit(_ context.Context, a ComplianceAudit) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	m.audits = append(m.audits, a)
	return nil
}

func (m *Memory) ContactHandoffs(_ context.Context, contactID string) ([]HandoffRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	records := make([]HandoffRecord, len(m.handoffs[contactID]))
	copy(records, m.handoffs[contactID])
	return records, nil
}

// Audits returns all recorded compliance audits. Test helper.
func (m *Memory) Audits() []ComplianceAudit {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]ComplianceAudit, len(m.audits))
	copy(out, m.audits)
	return out
}

func (m *Memory) Close(context.Context) {}

// cloneState deep-copies a state so callers cannot mutate stored data.
func cloneState(s *model.ConversationState) *model.ConversationState {
	out := *s
	out.ActiveTags = append([]string(nil), s.ActiveTags...)
	out.History = append([]model.Message(nil), s.History...)
	if s.LastHandoffAt != nil {
		t := *s.LastHandoffAt
		out.LastHandoffAt = &t
	}
	return &out
}
