package handoff

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadline-ai/switchboard/internal/config"
	"github.com/leadline-ai/switchboard/internal/model"
	"github.com/leadline-ai/switchboard/internal/testutil"
)

func testConfig() config.Config {
	return config.Config{
		HandoffThresholds:   map[config.HandoffDirection]float64{},
		HandoffCooldown:     30 * time.Minute,
		HandoffBudgetHourly: 2,
		HandoffBudgetDaily:  4,
	}
}

func newTestEvaluator(cfg config.Config, at time.Time) *Evaluator {
	e := New(cfg, testutil.TestLogger())
	e.now = func() time.Time { return at }
	return e
}

func signals(scores map[model.Persona]float64) model.IntentSignals {
	return model.IntentSignals{Scores: scores}
}

func TestEvaluate_ThresholdMet(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	e := newTestEvaluator(testConfig(), now)

	d := e.Evaluate("c1", model.PersonaBuyer, signals(map[model.Persona]float64{
		model.PersonaSeller: 0.9,
	}), model.NewConversationState("c1"))

	require.NotNil(t, d)
	assert.Equal(t, model.PersonaBuyer, d.Source)
	assert.Equal(t, model.PersonaSeller, d.Target)
	assert.Equal(t, 0.9, d.Confidence)
	assert.Equal(t, now, d.TriggeredAt)
}

func TestEvaluate_BelowThresholdSuppressed(t *testing.T) {
	e := newTestEvaluator(testConfig(), time.Now())

	d := e.Evaluate("c1", model.PersonaBuyer, signals(map[model.Persona]float64{
		model.PersonaSeller: 0.79,
	}), model.NewConversationState("c1"))
	assert.Nil(t, d)
}

func TestEvaluate_ExactThresholdFires(t *testing.T) {
	e := newTestEvaluator(testConfig(), time.Now())

	d := e.Evaluate("c1", model.PersonaBuyer, signals(map[model.Persona]float64{
		model.PersonaSeller: 0.8,
	}), model.NewConversationState("c1"))
	assert.NotNil(t, d)
}

func TestEvaluate_DirectionalThreshold(t *testing.T) {
	cfg := testConfig()
	cfg.HandoffThresholds[config.HandoffDirection{Source: model.PersonaLead, Target: model.PersonaBuyer}] = 0.6

	e := newTestEvaluator(cfg, time.Now())

	// 0.65 clears the lowered lead→buyer threshold.
	d := e.Evaluate("c1", model.PersonaLead, signals(map[model.Persona]float64{
		model.PersonaBuyer: 0.65,
	}), model.NewConversationState("c1"))
	require.NotNil(t, d)
	assert.Equal(t, model.PersonaBuyer, d.Target)

	// The same score in the unconfigured direction stays at the 0.8 default.
	d = e.Evaluate("c2", model.PersonaBuyer, signals(map[model.Persona]float64{
		model.PersonaLead: 0.65,
	}), model.NewConversationState("c2"))
	assert.Nil(t, d)
}

func TestEvaluate_UnassignedNeverHandsOff(t *testing.T) {
	e := newTestEvaluator(testConfig(), time.Now())

	d := e.Evaluate("c1", model.PersonaNone, signals(map[model.Persona]float64{
		model.PersonaSeller: 0.95,
	}), model.NewConversationState("c1"))
	assert.Nil(t, d)
}

func TestEvaluate_TieBreaksToPriority(t *testing.T) {
	e := newTestEvaluator(testConfig(), time.Now())

	// seller and buyer tie above threshold; seller wins on priority.
	d := e.Evaluate("c1", model.PersonaLead, signals(map[model.Persona]float64{
		model.PersonaSeller: 0.85,
		model.PersonaBuyer:  0.85,
	}), model.NewConversationState("c1"))
	require.NotNil(t, d)
	assert.Equal(t, model.PersonaSeller, d.Target)

	// A strictly higher score beats priority.
	d = e.Evaluate("c2", model.PersonaLead, signals(map[model.Persona]float64{
		model.PersonaSeller: 0.85,
		model.PersonaBuyer:  0.9,
	}), model.NewConversationState("c2"))
	require.NotNil(t, d)
	assert.Equal(t, model.PersonaBuyer, d.Target)
}

func TestEvaluate_CooldownSuppresses(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	e := newTestEvaluator(testConfig(), now)

	state := model.NewConversationState("c1")
	recent := now.Add(-10 * time.Minute)
	state.LastHandoffAt = &recent

	d := e.Evaluate("c1", model.PersonaBuyer, signals(map[model.Persona]float64{
		model.PersonaSeller: 0.95,
	}), state)
	assert.Nil(t, d)

	// Once the cooldown elapses the same signals fire.
	old := now.Add(-31 * time.Minute)
	state.LastHandoffAt = &old
	d = e.Evaluate("c1", model.PersonaBuyer, signals(map[model.Persona]float64{
		model.PersonaSeller: 0.95,
	}), state)
	assert.NotNil(t, d)
}

func TestEvaluate_HourlyBudget(t *testing.T) {
	cfg := testConfig()
	cfg.HandoffCooldown = 0
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	e := newTestEvaluator(cfg, at)

	strong := signals(map[model.Persona]float64{model.PersonaSeller: 0.95})
	state := model.NewConversationState("c1")

	require.NotNil(t, e.Evaluate("c1", model.PersonaBuyer, strong, state))
	require.NotNil(t, e.Evaluate("c1", model.PersonaBuyer, strong, state))

	// Third within the hour is over budget.
	assert.Nil(t, e.Evaluate("c1", model.PersonaBuyer, strong, state))

	// Budgets are per contact.
	assert.NotNil(t, e.Evaluate("c2", model.PersonaBuyer, strong, model.NewConversationState("c2")))

	// An hour later the hourly window has cleared.
	e.now = func() time.Time { return at.Add(61 * time.Minute) }
	assert.NotNil(t, e.Evaluate("c1", model.PersonaBuyer, strong, state))
}

func TestEvaluate_DailyBudget(t *testing.T) {
	cfg := testConfig()
	cfg.HandoffCooldown = 0
	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	e := newTestEvaluator(cfg, at)

	strong := signals(map[model.Persona]float64{model.PersonaSeller: 0.95})
	state := model.NewConversationState("c1")

	// Spread handoffs two per hour so only the daily budget binds.
	for i := 0; i < 4; i++ {
		hour := at.Add(time.Duration(i) * 2 * time.Hour)
		e.now = func() time.Time { return hour }
		require.NotNil(t, e.Evaluate("c1", model.PersonaBuyer, strong, state), "handoff %d", i)
	}

	e.now = func() time.Time { return at.Add(9 * time.Hour) }
	assert.Nil(t, e.Evaluate("c1", model.PersonaBuyer, strong, state))
}

func TestEvaluate_SuppressedDecisionDoesNotConsumeBudget(t *testing.T) {
	cfg := testConfig()
	cfg.HandoffBudgetHourly = 1
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	e := newTestEvaluator(cfg, at)

	state := model.NewConversationState("c1")
	recent := at.Add(-time.Minute)
	state.LastHandoffAt = &recent

	// Cooldown suppression happens before the budget is touched.
	strong := signals(map[model.Persona]float64{model.PersonaSeller: 0.95})
	assert.Nil(t, e.Evaluate("c1", model.PersonaBuyer, strong, state))

	state.LastHandoffAt = nil
	assert.NotNil(t, e.Evaluate("c1", model.PersonaBuyer, strong, state))
}

func TestHandoffReason(t *testing.T) {
	s := model.IntentSignals{MatchedPhrases: []string{"sell my house", "need to sell"}}
	reason := handoffReason(model.PersonaBuyer, model.PersonaSeller, s)
	assert.Contains(t, reason, "sell my house")

	reason = handoffReason(model.PersonaBuyer, model.PersonaSeller, model.IntentSignals{})
	assert.Contains(t, reason, "seller")
}
