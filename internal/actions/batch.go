// Package actions assembles the ordered outbound action batch for the CRM
// collaborator.
//
// A batch is one list, applied in order, sent as one unit. Side effects are
// never scheduled independently — that is what makes the three-mutation
// handoff guarantee implementable and testable.
package actions

import "github.com/leadline-ai/switchboard/internal/model"

// Batch accumulates primitive actions in apply order.
// Not safe for concurrent use; one batch belongs to one event's processing.
type Batch struct {
	actions []model.Action
}

// NewBatch returns an empty batch.
func NewBatch() *Batch {
	return &Batch{}
}

// AddTag appends an add_tag action, skipping exact duplicates already in the
// batch (tag application is idempotent at the CRM, but a clean batch is
// easier to audit).
func (b *Batch) AddTag(tag string) {
	if tag == "" {
		return
	}
	for _, a := range b.actions {
		if a.Type == model.ActionAddTag && a.Tag == tag {
			return
		}
	}
	b.actions = append(b.actions, model.AddTag(tag))
}

// RemoveTag appends a remove_tag action.
func (b *Batch) RemoveTag(tag string) {
	if tag == "" {
		return
	}
	b.actions = append(b.actions, model.RemoveTag(tag))
}

// SendMessage appends a send_message action.
func (b *Batch) SendMessage(text string) {
	if text == "" {
		return
	}
	b.actions = append(b.actions, model.SendMessage(text))
}

// Append adds handler-proposed mutations verbatim, in their given order.
func (b *Batch) Append(mutations ...model.Action) {
	b.actions = append(b.actions, mutations...)
}

// Handoff appends the three handoff mutations as one contiguous unit:
// remove source activation tag, add target activation tag, add the tracking
// tag — in that order, never split across batches. Partial handoff
// application is the single most serious correctness hazard here.
func (b *Batch) Handoff(d model.HandoffDecision, sourceTag, targetTag string) {
	b.actions = append(b.actions,
		model.RemoveTag(sourceTag),
		model.AddTag(targetTag),
		model.AddTag(d.TrackingTag()),
	)
}

// Actions returns the batch in apply order.
func (b *Batch) Actions() []model.Action {
	return b.actions
}

// Len returns the number of queued actions.
func (b *Batch) Len() int { return len(b.actions) }
