// Package router selects the persona that handles an inbound event.
//
// Routing is tag-driven with a fixed priority order: deactivation tags fail
// closed first, then the terminal opt-out phrase check, then personas in
// priority order (seller > buyer > lead). Tag strings never leak past this
// package boundary — callers receive a model.Persona.
package router

import (
	"strings"

	"github.com/leadline-ai/switchboard/internal/config"
	"github.com/leadline-ai/switchboard/internal/model"
)

// Decision is the router's verdict for one event.
type Decision struct {
	// Persona is the selected handler, or PersonaNone when nothing matched
	// (neutral fallback) or routing is disabled for the contact.
	Persona model.Persona
	// Deactivated is set when a deactivation tag is present. Terminal until
	// an external operator clears the tag.
	Deactivated bool
	// DeactivationTag is the matched tag when Deactivated is set. The caller
	// persists it so deactivation sticks even when later events drop the tag.
	DeactivationTag string
	// OptOut is set when the message body matched an opt-out phrase. The
	// caller must emit the opt-out side effect (permanent deactivation tag
	// plus a short confirmation reply) and stop all further routing.
	OptOut bool
}

// Route chooses exactly one persona for the event, or none.
//
// The contact's state tags and the event's tag snapshot are considered as a
// union: for the in-flight event the core's state is the authority, while the
// event carries the CRM mirror which may be ahead after operator edits.
func Route(event model.ConversationEvent, state *model.ConversationState, cfg config.Config) Decision {
	// Deactivation fails closed before anything else, including opt-out
	// detection — a deactivated contact gets no reply at all.
	for _, tag := range cfg.DeactivationTags {
		if hasTag(event, state, tag) {
			return Decision{Deactivated: true, DeactivationTag: tag}
		}
	}

	if matchesOptOut(event.Body, cfg.OptOutPhrases) {
		return Decision{OptOut: true}
	}

	// Priority order is total, so ties are impossible by construction: a
	// contact carrying both seller and buyer activation tags always resolves
	// to seller.
	for _, p := range model.Personas {
		pc, ok := cfg.Personas[p]
		if !ok || !pc.Enabled {
			continue
		}
		if hasTag(event, state, pc.ActivationTag) {
			return Decision{Persona: p}
		}
	}

	return Decision{Persona: model.PersonaNone}
}

func hasTag(event model.ConversationEvent, state *model.ConversationState, tag string) bool {
	if event.HasTag(tag) {
		return true
	}
	return state != nil && state.HasTag(tag)
}

// matchesOptOut reports whether the body contains an opt-out phrase.
// Single-word phrases must match a whole word ("stop" fires on "please stop"
// but not on "stopped by the house"); multi-word phrases match as
// case-insensitive substrings.
func matchesOptOut(body string, phrases []string) bool {
	lower := strings.ToLower(body)
	words := strings.FieldsFunc(lower, func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})
	for _, phrase := range phrases {
		phrase = strings.ToLower(strings.TrimSpace(phrase))
		if phrase == "" {
			continue
		}
		if strings.ContainsRune(phrase, ' ') {
			if strings.Contains(lower, phrase) {
				return true
			}
			continue
		}
		for _, w := range words {
			if w == phrase {
				return true
			}
		}
	}
	return false
}
