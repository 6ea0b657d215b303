// Package handoff decides whether a contact should be transferred between
// personas based on cross-persona intent signals.
//
// A decision is only materialized when three independent gates pass: the
// directional confidence threshold, the anti-oscillation cooldown, and the
// handoff budget. Suppressed decisions are not errors — processing simply
// continues under the current persona.
package handoff

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/leadline-ai/switchboard/internal/config"
	"github.com/leadline-ai/switchboard/internal/model"
	"github.com/leadline-ai/switchboard/internal/ratelimit"
)

// budget tracks one contact's handoff consumption on independent sliding
// windows, separate from message rate limiting.
type budget struct {
	hour *ratelimit.Window
	day  *ratelimit.Window
}

// Evaluator inspects intent signals and materializes handoff decisions.
// Pure and non-blocking: no I/O, in-memory state only. Safe for concurrent
// use across contacts.
type Evaluator struct {
	cfg    config.Config
	logger *slog.Logger

	mu      sync.Mutex
	budgets map[string]*budget

	// now is swappable for tests.
	now func() time.Time
}

// New creates an Evaluator with empty budgets.
func New(cfg config.Config, logger *slog.Logger) *Evaluator {
	return &Evaluator{
		cfg:     cfg,
		logger:  logger,
		budgets: make(map[string]*budget),
		now:     time.Now,
	}
}

// Evaluate returns a materialized decision, or nil when no transfer should
// happen. On a non-nil return the handoff budget has already been consumed —
// the caller must apply the decision.
func (e *Evaluator) Evaluate(contactID string, current model.Persona, signals model.IntentSignals, state *model.ConversationState) *model.HandoffDecision {
	// An unassigned contact is the router's problem, not a handoff.
	if current == model.PersonaNone {
		return nil
	}

	now := e.now()

	target, confidence := e.bestTarget(current, signals)
	if target == model.PersonaNone {
		return nil
	}

	// Anti-oscillation: a recent handoff suppresses new ones even when the
	// threshold is met. This is what breaks lead↔buyer↔seller loops.
	if state != nil && state.LastHandoffAt != nil {
		if now.Sub(*state.LastHandoffAt) < e.cfg.HandoffCooldown {
			e.logger.Debug("handoff suppressed by cooldown",
				"contact_id", contactID,
				"source", current,
				"target", target,
				"last_handoff_at", *state.LastHandoffAt,
			)
			return nil
		}
	}

	if !e.consumeBudget(contactID, now) {
		e.logger.Warn("handoff suppressed by budget",
			"contact_id", contactID,
			"source", current,
			"target", target,
		)
		return nil
	}

	return &model.HandoffDecision{
		Source:      current,
		Target:      target,
		Reason:      handoffReason(current, target, signals),
		Confidence:  confidence,
		TriggeredAt: now,
	}
}

// bestTarget returns the highest-scoring target above its directional
// threshold. Iteration follows the global priority order, and a later
// candidate must score strictly higher to win, so ties break toward the
// persona earlier in priority order.
func (e *Evaluator) bestTarget(current model.Persona, signals model.IntentSignals) (model.Persona, float64) {
	best := model.PersonaNone
	bestScore := 0.0
	for _, target := range model.Personas {
		if target == current || !model.CanTransition(current, target) {
			continue
		}
		score := signals.Score(target)
		if score < e.cfg.HandoffThreshold(current, target) {
			continue
		}
		if best == model.PersonaNone || score > bestScore {
			best = target
			bestScore = score
		}
	}
	return best, bestScore
}

// consumeBudget counts one handoff against the hourly and daily windows,
// returning false (and counting nothing) when either budget is exhausted.
func (e *Evaluator) consumeBudget(contactID string, now time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	b, ok := e.budgets[contactID]
	if !ok {
		b = &budget{
			hour: ratelimit.NewWindow(time.Hour),
			day:  ratelimit.NewWindow(24 * time.Hour),
		}
		e.budgets[contactID] = b
	}

	if e.cfg.HandoffBudgetHourly > 0 && b.hour.Count(now) >= e.cfg.HandoffBudgetHourly {
		return false
	}
	if e.cfg.HandoffBudgetDaily > 0 && b.day.Count(now) >= e.cfg.HandoffBudgetDaily {
		return false
	}

	b.hour.Add(now)
	b.day.Add(now)
	return true
}

func handoffReason(source, target model.Persona, signals model.IntentSignals) string {
	if len(signals.MatchedPhrases) > 0 {
		return fmt.Sprintf("%s intent detected: %s", target, strings.Join(signals.MatchedPhrases, "; "))
	}
	return fmt.Sprintf("intent signals favor %s over %s", target, source)
}
