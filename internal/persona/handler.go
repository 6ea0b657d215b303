// Package persona defines the conversation handler contract and the built-in
// keyword-driven handlers.
//
// The routing core treats handlers as opaque: it never inspects reply content
// except to pass it through the compliance guard and the channel-length
// policy. Handler errors and timeouts degrade to a neutral fallback reply —
// they are never surfaced to the external channel.
package persona

import (
	"context"

	"github.com/leadline-ai/switchboard/internal/model"
)

// Result is what a handler produces for one event.
type Result struct {
	// Reply is the draft outbound text. Subject to compliance auditing and
	// channel-length truncation before delivery.
	Reply string
	// TagMutations are tag adds/removes the handler proposes (qualification
	// tags, signal tags). Persona activation tags are managed by the
	// handoff evaluator, never by handlers.
	TagMutations []model.Action
	// Signals is the handler's read on cross-persona intent and engagement.
	Signals model.IntentSignals
}

// Handler is one persona's conversation logic.
// Implementations may block on external I/O; the engine bounds every call
// with a timeout and treats a timeout exactly like a handler error.
type Handler interface {
	Handle(ctx context.Context, contactID string, history []model.Message, event model.ConversationEvent) (Result, error)
}

// Registry maps personas to their handlers.
type Registry map[model.Persona]Handler
