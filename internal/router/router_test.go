package router

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/leadline-ai/switchboard/internal/config"
	"github.com/leadline-ai/switchboard/internal/model"
)

func testConfig() config.Config {
	return config.Config{
		DeactivationTags: []string{"Opt-Out", "Qualified-Stop"},
		OptOutPhrases:    []string{"stop", "unsubscribe", "remove me"},
		Personas: map[model.Persona]config.PersonaConfig{
			model.PersonaSeller: {ActivationTag: "Needs-Qualifying", Enabled: true},
			model.PersonaBuyer:  {ActivationTag: "Buyer-Lead", Enabled: true},
			model.PersonaLead:   {ActivationTag: "New-Lead", Enabled: true},
		},
	}
}

func event(body string, tags ...string) model.ConversationEvent {
	return model.ConversationEvent{
		ContactID: "c1",
		Direction: model.DirectionInbound,
		Body:      body,
		Tags:      tags,
	}
}

func TestRoute_PriorityOrder(t *testing.T) {
	cfg := testConfig()

	d := Route(event("hi", "New-Lead"), nil, cfg)
	assert.Equal(t, model.PersonaLead, d.Persona)

	d = Route(event("hi", "Buyer-Lead"), nil, cfg)
	assert.Equal(t, model.PersonaBuyer, d.Persona)

	// Seller outranks buyer outranks lead when several tags are present.
	d = Route(event("hi", "New-Lead", "Buyer-Lead", "Needs-Qualifying"), nil, cfg)
	assert.Equal(t, model.PersonaSeller, d.Persona)

	d = Route(event("hi", "New-Lead", "Buyer-Lead"), nil, cfg)
	assert.Equal(t, model.PersonaBuyer, d.Persona)
}

func TestRoute_NoMatch(t *testing.T) {
	d := Route(event("hi", "Some-Other-Tag"), nil, testConfig())
	assert.Equal(t, model.PersonaNone, d.Persona)
	assert.False(t, d.Deactivated)
	assert.False(t, d.OptOut)
}

func TestRoute_StateTagsCount(t *testing.T) {
	// Activation tag on stored state routes even when the event snapshot
	// is missing it.
	state := model.NewConversationState("c1")
	state.AddTag("Buyer-Lead")

	d := Route(event("hi"), state, testConfig())
	assert.Equal(t, model.PersonaBuyer, d.Persona)
}

func TestRoute_DeactivationWinsOverEverything(t *testing.T) {
	cfg := testConfig()

	d := Route(event("hi", "Opt-Out", "Needs-Qualifying"), nil, cfg)
	assert.True(t, d.Deactivated)
	assert.Equal(t, "Opt-Out", d.DeactivationTag)
	assert.Equal(t, model.PersonaNone, d.Persona)

	// Deactivation even beats an opt-out phrase in the body: the contact
	// gets no reply at all, not a confirmation.
	d = Route(event("stop", "Qualified-Stop"), nil, cfg)
	assert.True(t, d.Deactivated)
	assert.Equal(t, "Qualified-Stop", d.DeactivationTag)
	assert.False(t, d.OptOut)

	// Deactivation tag on state alone is enough.
	state := model.NewConversationState("c1")
	state.AddTag("opt-out")
	d = Route(event("hi", "Buyer-Lead"), state, cfg)
	assert.True(t, d.Deactivated)
}

func TestRoute_OptOutPhrases(t *testing.T) {
	cfg := testConfig()

	d := Route(event("STOP", "Buyer-Lead"), nil, cfg)
	assert.True(t, d.OptOut)
	assert.Equal(t, model.PersonaNone, d.Persona)

	d = Route(event("please stop texting me", "Buyer-Lead"), nil, cfg)
	assert.True(t, d.OptOut)

	// Single-word phrases require a whole-word match.
	d = Route(event("we stopped by the house yesterday", "Buyer-Lead"), nil, cfg)
	assert.False(t, d.OptOut)
	assert.Equal(t, model.PersonaBuyer, d.Persona)

	// Multi-word phrases match as substrings.
	d = Route(event("please remove me from your list", "Buyer-Lead"), nil, cfg)
	assert.True(t, d.OptOut)
}

func TestRoute_DisabledPersonaSkipped(t *testing.T) {
	cfg := testConfig()
	pc := cfg.Personas[model.PersonaSeller]
	pc.Enabled = false
	cfg.Personas[model.PersonaSeller] = pc

	d := Route(event("hi", "Needs-Qualifying", "Buyer-Lead"), nil, cfg)
	assert.Equal(t, model.PersonaBuyer, d.Persona)

	d = Route(event("hi", "Needs-Qualifying"), nil, cfg)
	assert.Equal(t, model.PersonaNone, d.Persona)
}
