package persona

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadline-ai/switchboard/internal/config"
	"github.com/leadline-ai/switchboard/internal/model"
)

func buyerConfig() config.PersonaConfig {
	return config.PersonaConfig{
		ActivationTag: "Buyer-Lead",
		Enabled:       true,
		SafeFallback:  "Thanks for your interest!",
		TriggerPhrases: map[model.Persona][]string{
			model.PersonaSeller: {"sell my house", "need to sell", "list my property"},
			model.PersonaLead:   {"just browsing"},
		},
	}
}

func inbound(body string) model.ConversationEvent {
	return model.ConversationEvent{
		ContactID:  "c1",
		Direction:  model.DirectionInbound,
		Body:       body,
		ReceivedAt: time.Now(),
	}
}

func TestKeywordHandler_SingleHitBelowThreshold(t *testing.T) {
	h := NewKeywordHandler(model.PersonaBuyer, buyerConfig())

	res, err := h.Handle(context.Background(), "c1", nil, inbound("I might sell my house eventually"))
	require.NoError(t, err)
	assert.InDelta(t, 0.45, res.Signals.Score(model.PersonaSeller), 1e-9)
	assert.Len(t, res.Signals.MatchedPhrases, 1)
}

func TestKeywordHandler_TwoHitsClearThreshold(t *testing.T) {
	h := NewKeywordHandler(model.PersonaBuyer, buyerConfig())

	res, err := h.Handle(context.Background(), "c1", nil, inbound("Actually we need to sell first - can you sell my house?"))
	require.NoError(t, err)
	assert.InDelta(t, 0.9, res.Signals.Score(model.PersonaSeller), 1e-9)
	assert.Contains(t, res.Signals.MatchedPhrases, "sell my house")
	assert.Contains(t, res.Signals.MatchedPhrases, "need to sell")
}

func TestKeywordHandler_ScoreCapped(t *testing.T) {
	h := NewKeywordHandler(model.PersonaBuyer, buyerConfig())

	res, err := h.Handle(context.Background(), "c1", nil, inbound("need to sell, sell my house, list my property"))
	require.NoError(t, err)
	assert.InDelta(t, 0.95, res.Signals.Score(model.PersonaSeller), 1e-9)
}

func TestKeywordHandler_CaseInsensitive(t *testing.T) {
	h := NewKeywordHandler(model.PersonaBuyer, buyerConfig())

	res, err := h.Handle(context.Background(), "c1", nil, inbound("NEED TO SELL my place"))
	require.NoError(t, err)
	assert.Positive(t, res.Signals.Score(model.PersonaSeller))
}

func TestKeywordHandler_NoMatchNoScore(t *testing.T) {
	h := NewKeywordHandler(model.PersonaBuyer, buyerConfig())

	res, err := h.Handle(context.Background(), "c1", nil, inbound("what school district is that in?"))
	require.NoError(t, err)
	assert.Zero(t, res.Signals.Score(model.PersonaSeller))
	assert.NotEmpty(t, res.Reply)
}

func TestEngagementScore(t *testing.T) {
	// Short flat message scores the floor.
	assert.InDelta(t, 0.2, engagementScore("ok", nil), 1e-9)

	// Question plus length plus established history reads hot.
	history := make([]model.Message, 10)
	score := engagementScore("could we schedule a showing this weekend for the house on Elm?", history)
	assert.InDelta(t, 0.9, score, 1e-9)
}

func TestDefaultRegistry(t *testing.T) {
	cfg := config.Config{Personas: map[model.Persona]config.PersonaConfig{
		model.PersonaSeller: {ActivationTag: "Needs-Qualifying"},
		model.PersonaBuyer:  {ActivationTag: "Buyer-Lead"},
	}}
	reg := DefaultRegistry(cfg)
	assert.Len(t, reg, 2)
	assert.Contains(t, reg, model.PersonaSeller)
	assert.Contains(t, reg, model.PersonaBuyer)
}

// ---------------------------------------------------------------------------
// TruncateReply tests
// ---------------------------------------------------------------------------

func TestTruncateReply_ShortUnchanged(t *testing.T) {
	assert.Equal(t, "hello", TruncateReply("hello", 160))
	assert.Equal(t, "hello", TruncateReply("hello", 0))
}

func TestTruncateReply_SentenceBoundary(t *testing.T) {
	text := "We can absolutely help with that. Let me check the listing details and get back to you this afternoon with times."
	got := TruncateReply(text, 50)
	assert.Equal(t, "We can absolutely help with that.", got)
}

func TestTruncateReply_WordBoundary(t *testing.T) {
	text := "one two three four five six seven eight nine ten"
	got := TruncateReply(text, 20)
	assert.LessOrEqual(t, len(got), 20)
	// Never cut mid-word.
	assert.Equal(t, "one two three four", got)
}

func TestTruncateReply_UTF8Safe(t *testing.T) {
	text := "précisément précisément précisément"
	got := TruncateReply(text, 15)
	assert.LessOrEqual(t, len(got), 15)
	for _, r := range got {
		assert.NotEqual(t, '�', r)
	}
}

func TestTruncateReply_NoBoundary(t *testing.T) {
	text := "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	got := TruncateReply(text, 10)
	assert.Len(t, got, 10)
}
