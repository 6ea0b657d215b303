package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadline-ai/switchboard/internal/model"
)

func TestMemory_GetStateNotFound(t *testing.T) {
	m := NewMemory()
	_, err := m.GetState(context.Background(), "nobody")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestMemory_SaveAndGetState(t *testing.T) {
	m := NewMemory()

	state := model.NewConversationState("c1")
	state.CurrentPersona = model.PersonaBuyer
	state.AddTag("Buyer-Lead")
	state.AppendMessage(model.SpeakerContact, "hello", time.Now(), 50)
	require.NoError(t, m.SaveState(context.Background(), state))

	got, err := m.GetState(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, model.PersonaBuyer, got.CurrentPersona)
	assert.True(t, got.HasTag("Buyer-Lead"))
	assert.Len(t, got.History, 1)
	assert.False(t, got.UpdatedAt.IsZero())
}

func TestMemory_CloneSemantics(t *testing.T) {
	m := NewMemory()

	state := model.NewConversationState("c1")
	state.AddTag("Buyer-Lead")
	require.NoError(t, m.SaveState(context.Background(), state))

	// Mutating the caller's copy after save must not leak into the store.
	state.AddTag("Evil-Tag")

	got, err := m.GetState(context.Background(), "c1")
	require.NoError(t, err)
	assert.False(t, got.HasTag("Evil-Tag"))

	// And mutating a fetched copy must not leak either.
	got.AddTag("Another-Tag")
	again, err := m.GetState(context.Background(), "c1")
	require.NoError(t, err)
	assert.False(t, again.HasTag("Another-Tag"))
}

func TestMemory_Handoffs(t *testing.T) {
	m := NewMemory()
	now := time.Now().UTC()

	require.NoError(t, m.RecordHandoff(context.Background(), "c1", model.HandoffDecision{
		Source: model.PersonaLead, Target: model.PersonaBuyer, Confidence: 0.85, TriggeredAt: now,
	}))
	require.NoError(t, m.RecordHandoff(context.Background(), "c1", model.HandoffDecision{
		Source: model.PersonaBuyer, Target: model.PersonaSeller, Confidence: 0.9, TriggeredAt: now.Add(time.Hour),
	}))

	records, err := m.ContactHandoffs(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, model.PersonaBuyer, records[0].Target)
	assert.Equal(t, model.PersonaSeller, records[1].Target)

	other, err := m.ContactHandoffs(context.Background(), "c2")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestMemory_ComplianceAudits(t *testing.T) {
	m := NewMemory()

	require.NoError(t, m.RecordComplianceAudit(context.Background(), ComplianceAudit{
		ContactID: "c1",
		Persona:   model.PersonaBuyer,
		Reply:     "hello",
		Status:    model.CompliancePassed,
	}))

	audits := m.Audits()
	require.Len(t, audits, 1)
	assert.NotEqual(t, audits[0].ID.String(), "00000000-0000-0000-0000-000000000000")
	assert.False(t, audits[0].CreatedAt.IsZero())
}
