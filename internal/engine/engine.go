// Package engine runs the inbound event pipeline: dedup, rate limiting,
// routing, persona handling, compliance auditing, temperature
// classification, handoff evaluation, and the ordered CRM action batch.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/leadline-ai/switchboard/internal/actions"
	"github.com/leadline-ai/switchboard/internal/compliance"
	"github.com/leadline-ai/switchboard/internal/config"
	"github.com/leadline-ai/switchboard/internal/crm"
	"github.com/leadline-ai/switchboard/internal/dedup"
	"github.com/leadline-ai/switchboard/internal/handoff"
	"github.com/leadline-ai/switchboard/internal/model"
	"github.com/leadline-ai/switchboard/internal/persona"
	"github.com/leadline-ai/switchboard/internal/ratelimit"
	"github.com/leadline-ai/switchboard/internal/router"
	"github.com/leadline-ai/switchboard/internal/storage"
	"github.com/leadline-ai/switchboard/internal/temperature"
)

// Disposition summarizes how the pipeline resolved an event.
const (
	DispositionProcessed   = "processed"
	DispositionDuplicate   = "duplicate"
	DispositionDeactivated = "deactivated"
	DispositionOptedOut    = "opted_out"
	DispositionRateLimited = "rate_limited"
	DispositionUnrouted    = "unrouted"
)

// Outcome is the pipeline's full result for one inbound event.
type Outcome struct {
	EventID     string
	Disposition string
	Persona     model.Persona
	Reply       string
	Compliance  model.ComplianceResult
	Actions     []model.Action
	Handoff     *model.HandoffDecision
	RetryAfter  time.Duration
}

// Hook receives async notifications as events complete. Failures are
// logged, never surfaced to the webhook caller.
type Hook interface {
	OnEventProcessed(ctx context.Context, outcome Outcome) error
	OnHandoff(ctx context.Context, contactID string, decision model.HandoffDecision) error
}

// Engine wires the pipeline stages together. Construct with New; all
// dependencies are required except where a Noop implementation exists.
type Engine struct {
	cfg       config.Config
	logger    *slog.Logger
	store     storage.Store
	crm       crm.Client
	handlers  persona.Registry
	guard     *compliance.Guard
	evaluator *handoff.Evaluator
	limiter   ratelimit.Limiter
	dedup     *dedup.Cache
	locks     *contactLocks
	hooks     []Hook

	now func() time.Time
}

// New assembles an Engine from its stages.
func New(
	cfg config.Config,
	logger *slog.Logger,
	store storage.Store,
	crmClient crm.Client,
	handlers persona.Registry,
	guard *compliance.Guard,
	evaluator *handoff.Evaluator,
	limiter ratelimit.Limiter,
	dedupCache *dedup.Cache,
	hooks ...Hook,
) *Engine {
	return &Engine{
		cfg:       cfg,
		logger:    logger,
		store:     store,
		crm:       crmClient,
		handlers:  handlers,
		guard:     guard,
		evaluator: evaluator,
		limiter:   limiter,
		dedup:     dedupCache,
		locks:     newContactLocks(),
		hooks:     hooks,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Close releases pipeline resources other than the store, which the
// caller owns.
func (e *Engine) Close() {
	e.dedup.Close()
	if err := e.limiter.Close(); err != nil {
		e.logger.Warn("engine: close limiter", "error", err)
	}
}

// Process runs one inbound event through the full pipeline.
func (e *Engine) Process(ctx context.Context, event model.ConversationEvent) (*Outcome, error) {
	outcome, err := e.process(ctx, event)
	if err == nil && outcome != nil {
		e.fireEventHooks(*outcome)
	}
	return outcome, err
}

// process is the pipeline proper.
//
// Processing is detached from the caller's cancellation: once an event
// is accepted, a webhook disconnect must not abandon it half-written.
// A ceiling still bounds total work.
func (e *Engine) process(ctx context.Context, event model.ConversationEvent) (*Outcome, error) {
	if err := event.Validate(); err != nil {
		return nil, err
	}

	if e.dedup.Seen(event.DedupKey()) {
		e.logger.Debug("engine: duplicate event", "contact_id", event.ContactID, "message_id", event.MessageID)
		return &Outcome{EventID: event.ID.String(), Disposition: DispositionDuplicate}, nil
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.ProcessCeiling)
	defer cancel()

	release := e.locks.acquire(event.ContactID)
	defer release()

	state, err := e.loadState(ctx, event.ContactID)
	if err != nil {
		return nil, err
	}
	e.mergeCRMTags(ctx, state)

	state.AppendMessage(model.SpeakerContact, event.Body, event.ReceivedAt, e.cfg.HistoryLimit)

	decision := router.Route(event, state, e.cfg)
	switch {
	case decision.Deactivated:
		return e.finishDeactivated(ctx, event, state, decision.DeactivationTag)
	case decision.OptOut:
		return e.finishOptOut(ctx, event, state)
	}

	limit, err := e.limiter.Check(ctx, event.ContactID)
	if err != nil {
		return nil, fmt.Errorf("engine: rate limit check: %w", err)
	}
	if !limit.Allowed {
		return e.finishRateLimited(ctx, event, state, limit)
	}

	if decision.Persona == model.PersonaNone {
		return e.finishUnrouted(ctx, event, state)
	}

	return e.handleWithPersona(ctx, event, state, decision.Persona)
}

// handleWithPersona is the main path: handler, audit, temperature,
// handoff, batch emission, persistence.
func (e *Engine) handleWithPersona(ctx context.Context, event model.ConversationEvent, state *model.ConversationState, active model.Persona) (*Outcome, error) {
	state.CurrentPersona = active

	result, handlerErr := e.runHandler(ctx, active, event, state)

	batch := actions.NewBatch()
	outcome := &Outcome{
		EventID:     event.ID.String(),
		Disposition: DispositionProcessed,
		Persona:     active,
	}

	reply := persona.TruncateReply(result.Reply, e.cfg.ChannelMaxLen)

	if handlerErr != nil {
		// Fallback replies are operator-authored constants and skip the
		// audit, but everything a handler produced goes through it.
		outcome.Compliance = model.ComplianceResult{Status: model.CompliancePassed, Reason: "safe fallback"}
	} else {
		outcome.Compliance = e.guard.Audit(ctx, compliance.ScoreInput{
			Reply:     reply,
			Persona:   active,
			Inbound:   event.Body,
			ContactID: event.ContactID,
		})
		e.recordAudit(ctx, event, active, reply, outcome.Compliance)
		if outcome.Compliance.Blocked() {
			reply = persona.TruncateReply(e.cfg.Personas[active].SafeFallback, e.cfg.ChannelMaxLen)
			batch.AddTag(e.cfg.ComplianceBlockTag)
			applyTag(state, model.AddTag(e.cfg.ComplianceBlockTag))
		}
	}
	outcome.Reply = reply

	for _, mut := range result.TagMutations {
		batch.Append(mut)
		applyTag(state, mut)
	}

	if handlerErr == nil {
		if d := e.evaluator.Evaluate(event.ContactID, active, result.Signals, state); d != nil {
			e.applyHandoff(ctx, event.ContactID, d, state, batch)
			outcome.Handoff = d
			outcome.Persona = d.Target
		}

		class := temperature.Classify(outcome.Persona, result.Signals, e.cfg)
		e.applyTemperature(class, outcome.Persona, state, batch)
	}

	if reply != "" {
		batch.SendMessage(reply)
		state.AppendMessage(model.SpeakerBot, reply, e.now(), e.cfg.HistoryLimit)
		e.limiter.Record(event.ContactID)
	}

	outcome.Actions = batch.Actions()
	if err := e.flush(ctx, event.ContactID, state, batch); err != nil {
		return nil, err
	}
	return outcome, nil
}

// runHandler invokes the persona handler under its own timeout. A
// handler failure degrades to the generic neutral reply rather than
// dropping the contact on the floor; the persona-specific safe fallback
// is reserved for compliance blocks.
func (e *Engine) runHandler(ctx context.Context, active model.Persona, event model.ConversationEvent, state *model.ConversationState) (persona.Result, error) {
	handler, ok := e.handlers[active]
	if !ok {
		e.logger.Error("engine: no handler registered", "persona", active)
		return persona.Result{Reply: e.cfg.NeutralReply}, fmt.Errorf("engine: no handler for persona %q", active)
	}

	hctx, cancel := context.WithTimeout(ctx, e.cfg.HandlerTimeout)
	defer cancel()

	result, err := handler.Handle(hctx, event.ContactID, state.History, event)
	if err != nil {
		e.logger.Error("engine: handler failed", "persona", active, "contact_id", event.ContactID, "error", err)
		return persona.Result{Reply: e.cfg.NeutralReply}, err
	}
	return result, nil
}

// applyHandoff materializes a handoff decision: activation tags swap as
// one contiguous group, state flips to the target, and the decision is
// recorded for audit.
func (e *Engine) applyHandoff(ctx context.Context, contactID string, d *model.HandoffDecision, state *model.ConversationState, batch *actions.Batch) {
	sourceTag := e.cfg.Personas[d.Source].ActivationTag
	targetTag := e.cfg.Personas[d.Target].ActivationTag
	batch.Handoff(*d, sourceTag, targetTag)

	state.RemoveTag(sourceTag)
	state.AddTag(targetTag)
	state.AddTag(d.TrackingTag())
	state.CurrentPersona = d.Target
	at := d.TriggeredAt
	state.LastHandoffAt = &at

	if err := e.store.RecordHandoff(ctx, contactID, *d); err != nil {
		e.logger.Error("engine: record handoff", "contact_id", contactID, "error", err)
	}

	e.logger.Info("engine: handoff",
		"contact_id", contactID,
		"source", d.Source,
		"target", d.Target,
		"confidence", d.Confidence,
	)

	e.fireHandoffHooks(contactID, *d)
}

// Hooks run detached with their own timeout so a slow consumer cannot
// stall the pipeline.
func (e *Engine) fireEventHooks(outcome Outcome) {
	if len(e.hooks) == 0 {
		return
	}
	hooks := e.hooks
	logger := e.logger
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		for _, h := range hooks {
			if err := h.OnEventProcessed(ctx, outcome); err != nil {
				logger.Warn("engine: event hook OnEventProcessed failed", "error", err)
			}
		}
	}()
}

func (e *Engine) fireHandoffHooks(contactID string, d model.HandoffDecision) {
	if len(e.hooks) == 0 {
		return
	}
	hooks := e.hooks
	logger := e.logger
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		for _, h := range hooks {
			if err := h.OnHandoff(ctx, contactID, d); err != nil {
				logger.Warn("engine: event hook OnHandoff failed", "error", err)
			}
		}
	}()
}

// applyTemperature swaps the persona's tier tag, clearing any stale tier
// tags for that persona first.
func (e *Engine) applyTemperature(class temperature.Classification, active model.Persona, state *model.ConversationState, batch *actions.Batch) {
	for _, tier := range []model.Temperature{model.TemperatureHot, model.TemperatureWarm, model.TemperatureCold} {
		stale := model.TemperatureTag(tier, active)
		if stale != class.Tag && state.HasTag(stale) {
			batch.RemoveTag(stale)
			state.RemoveTag(stale)
		}
	}
	if !state.HasTag(class.Tag) {
		batch.AddTag(class.Tag)
		state.AddTag(class.Tag)
	}
}

func (e *Engine) finishDeactivated(ctx context.Context, event model.ConversationEvent, state *model.ConversationState, tag string) (*Outcome, error) {
	e.logger.Info("engine: contact deactivated, suppressing reply", "contact_id", event.ContactID)
	// Persist the matched tag: the trigger may have carried it only on the
	// event snapshot, and deactivation must hold for every later event.
	state.AddTag(tag)
	if err := e.flush(ctx, event.ContactID, state, actions.NewBatch()); err != nil {
		return nil, err
	}
	return &Outcome{EventID: event.ID.String(), Disposition: DispositionDeactivated}, nil
}

func (e *Engine) finishOptOut(ctx context.Context, event model.ConversationEvent, state *model.ConversationState) (*Outcome, error) {
	batch := actions.NewBatch()
	batch.AddTag(e.cfg.OptOutTag)
	batch.SendMessage(e.cfg.OptOutReply)

	state.AddTag(e.cfg.OptOutTag)
	state.AppendMessage(model.SpeakerBot, e.cfg.OptOutReply, e.now(), e.cfg.HistoryLimit)
	e.limiter.Record(event.ContactID)

	e.logger.Info("engine: opt-out", "contact_id", event.ContactID)
	if err := e.flush(ctx, event.ContactID, state, batch); err != nil {
		return nil, err
	}
	return &Outcome{
		EventID:     event.ID.String(),
		Disposition: DispositionOptedOut,
		Reply:       e.cfg.OptOutReply,
		Actions:     batch.Actions(),
	}, nil
}

func (e *Engine) finishRateLimited(ctx context.Context, event model.ConversationEvent, state *model.ConversationState, limit ratelimit.Result) (*Outcome, error) {
	e.logger.Warn("engine: rate limited",
		"contact_id", event.ContactID,
		"window", limit.Window,
		"retry_after", limit.RetryAfter,
	)
	// The deferral is an operator-authored constant: no handler runs, no
	// audit runs, and it is not counted against the ceiling so the
	// window reflects real conversation volume only.
	batch := actions.NewBatch()
	batch.SendMessage(e.cfg.DeferralReply)
	state.AppendMessage(model.SpeakerBot, e.cfg.DeferralReply, e.now(), e.cfg.HistoryLimit)

	if err := e.flush(ctx, event.ContactID, state, batch); err != nil {
		return nil, err
	}
	return &Outcome{
		EventID:     event.ID.String(),
		Disposition: DispositionRateLimited,
		Reply:       e.cfg.DeferralReply,
		Actions:     batch.Actions(),
		RetryAfter:  limit.RetryAfter,
	}, nil
}

func (e *Engine) finishUnrouted(ctx context.Context, event model.ConversationEvent, state *model.ConversationState) (*Outcome, error) {
	batch := actions.NewBatch()
	batch.SendMessage(e.cfg.NeutralReply)

	state.AppendMessage(model.SpeakerBot, e.cfg.NeutralReply, e.now(), e.cfg.HistoryLimit)
	e.limiter.Record(event.ContactID)

	if err := e.flush(ctx, event.ContactID, state, batch); err != nil {
		return nil, err
	}
	return &Outcome{
		EventID:     event.ID.String(),
		Disposition: DispositionUnrouted,
		Reply:       e.cfg.NeutralReply,
		Actions:     batch.Actions(),
	}, nil
}

// flush persists state and ships the action batch to the CRM. A CRM
// failure is logged but does not fail the event: state is already the
// source of truth and the batch is visible in the outcome for retry.
func (e *Engine) flush(ctx context.Context, contactID string, state *model.ConversationState, batch *actions.Batch) error {
	if err := e.store.SaveState(ctx, state); err != nil {
		return fmt.Errorf("engine: save state: %w", err)
	}
	if batch.Len() == 0 {
		return nil
	}

	cctx, cancel := context.WithTimeout(ctx, e.cfg.CRMTimeout)
	defer cancel()
	if err := e.crm.ApplyActions(cctx, contactID, batch.Actions()); err != nil {
		e.logger.Error("engine: apply CRM actions", "contact_id", contactID, "count", batch.Len(), "error", err)
	}
	return nil
}

func (e *Engine) loadState(ctx context.Context, contactID string) (*model.ConversationState, error) {
	state, err := e.store.GetState(ctx, contactID)
	if errors.Is(err, storage.ErrNotFound) {
		return model.NewConversationState(contactID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("engine: load state: %w", err)
	}
	return state, nil
}

// mergeCRMTags folds the CRM's current tags into the stored state so
// operator-applied tags (activation, deactivation) take effect on the
// next event. Best effort: an unreachable CRM falls back to stored tags.
func (e *Engine) mergeCRMTags(ctx context.Context, state *model.ConversationState) {
	cctx, cancel := context.WithTimeout(ctx, e.cfg.CRMTimeout)
	defer cancel()

	tags, err := e.crm.ContactTags(cctx, state.ContactID)
	if err != nil {
		e.logger.Warn("engine: fetch CRM tags", "contact_id", state.ContactID, "error", err)
		return
	}
	for _, tag := range tags {
		state.AddTag(tag)
	}
}

func (e *Engine) recordAudit(ctx context.Context, event model.ConversationEvent, p model.Persona, reply string, res model.ComplianceResult) {
	audit := storage.ComplianceAudit{
		EventID:    event.ID,
		ContactID:  event.ContactID,
		Persona:    p,
		Reply:      reply,
		Status:     res.Status,
		Reason:     res.Reason,
		Violations: res.Violations,
		CreatedAt:  e.now(),
	}
	if err := e.store.RecordComplianceAudit(ctx, audit); err != nil {
		e.logger.Error("engine: record compliance audit", "contact_id", event.ContactID, "error", err)
	}
}

// applyTag mirrors a batch tag mutation onto in-memory state.
func applyTag(state *model.ConversationState, a model.Action) {
	switch a.Type {
	case model.ActionAddTag:
		state.AddTag(a.Tag)
	case model.ActionRemoveTag:
		state.RemoveTag(a.Tag)
	}
}
