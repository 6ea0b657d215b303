package switchboard

import (
	"context"
	"net/http"
)

// PersonaHandler produces a draft reply and intent signals for one
// persona. When provided via WithPersonaHandler it replaces the built-in
// keyword handler for that persona — typically with a language-model
// backed implementation.
//
// Handlers run under a timeout; a slow or failing handler degrades to
// the persona's safe fallback reply.
type PersonaHandler interface {
	Handle(ctx context.Context, contactID string, history []HistoryMessage, event Event) (HandlerReply, error)
}

// ComplianceScorer is the semantic tier of the compliance guard. When
// provided via WithComplianceScorer it replaces the auto-detected
// Ollama/OpenAI/noop scorer.
//
// Errors are fail-closed: repeated scorer failures escalate from
// flagging to blocking rather than silently passing replies through.
type ComplianceScorer interface {
	Score(ctx context.Context, scan ComplianceScan) (ComplianceOpinion, error)
}

// CRM executes tag mutations and delivers replies. When provided via
// WithCRM it replaces the HTTP client configured by SWBD_CRM_BASE_URL.
// ApplyActions receives the whole ordered batch in one call and must
// apply it in order.
type CRM interface {
	ContactTags(ctx context.Context, contactID string) ([]string, error)
	ApplyActions(ctx context.Context, contactID string, batch []Action) error
}

// EventHook receives async notifications as the pipeline resolves
// events. Hook methods run in goroutines with a bounded context; they
// must not block indefinitely. Failures are logged but never fail the
// originating event.
type EventHook interface {
	OnEventProcessed(ctx context.Context, outcome Outcome) error
	OnHandoff(ctx context.Context, contactID string, handoff Handoff) error
}

// Middleware wraps the root HTTP handler. Applied outermost (before
// routing), so it sees all requests including /health. Multiple
// middlewares are applied in registration order (first registered is
// outermost).
type Middleware func(http.Handler) http.Handler
