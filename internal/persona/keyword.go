package persona

import (
	"context"
	"strings"

	"github.com/leadline-ai/switchboard/internal/config"
	"github.com/leadline-ai/switchboard/internal/model"
)

// KeywordHandler is the built-in handler: it scores cross-persona intent by
// matching configured trigger phrases against the message body and replies
// with a canned persona prompt. Deployments with real dialogue generation
// replace it through the public PersonaHandler extension point.
type KeywordHandler struct {
	persona model.Persona
	cfg     config.PersonaConfig
}

// NewKeywordHandler creates the built-in handler for one persona.
func NewKeywordHandler(p model.Persona, pc config.PersonaConfig) *KeywordHandler {
	return &KeywordHandler{persona: p, cfg: pc}
}

// DefaultRegistry builds keyword handlers for every configured persona.
func DefaultRegistry(cfg config.Config) Registry {
	reg := make(Registry, len(cfg.Personas))
	for p, pc := range cfg.Personas {
		reg[p] = NewKeywordHandler(p, pc)
	}
	return reg
}

// perHitConfidence is how much each matched trigger phrase adds to a
// target's score. Two independent hits clear the default 0.8 threshold;
// one does not.
const perHitConfidence = 0.45

// maxConfidence keeps keyword scores below certainty — only a human or a
// richer handler should ever claim 1.0.
const maxConfidence = 0.95

func (h *KeywordHandler) Handle(_ context.Context, _ string, history []model.Message, event model.ConversationEvent) (Result, error) {
	body := strings.ToLower(event.Body)

	signals := model.IntentSignals{Scores: make(map[model.Persona]float64)}
	for target, phrases := range h.cfg.TriggerPhrases {
		hits := 0
		for _, phrase := range phrases {
			if strings.Contains(body, strings.ToLower(phrase)) {
				hits++
				signals.MatchedPhrases = append(signals.MatchedPhrases, phrase)
			}
		}
		if hits > 0 {
			score := perHitConfidence * float64(hits)
			if score > maxConfidence {
				score = maxConfidence
			}
			signals.Scores[target] = score
		}
	}
	signals.Engagement = engagementScore(event.Body, history)

	return Result{
		Reply:   h.reply(),
		Signals: signals,
	}, nil
}

// engagementScore is a crude engagement heuristic: longer messages,
// questions, and an established back-and-forth all read as warmer.
func engagementScore(body string, history []model.Message) float64 {
	score := 0.2
	if len(strings.Fields(body)) >= 8 {
		score += 0.2
	}
	if strings.Contains(body, "?") {
		score += 0.2
	}
	if len(history) >= 4 {
		score += 0.2
	}
	if len(history) >= 10 {
		score += 0.1
	}
	if score > 1 {
		score = 1
	}
	return score
}

func (h *KeywordHandler) reply() string {
	switch h.persona {
	case model.PersonaSeller:
		return "Thanks for reaching out! To get you an accurate valuation, what's the property address and roughly when are you hoping to sell?"
	case model.PersonaBuyer:
		return "Great to hear from you! What area are you looking in, and have you been pre-approved for financing yet?"
	case model.PersonaLead:
		return "Hi! Happy to help — are you thinking about buying, selling, or just exploring the market right now?"
	default:
		return "Thanks for your message! How can we help you today?"
	}
}
