package model

import "fmt"

// Persona is a named conversational role a contact can be assigned to.
// The zero value is PersonaNone (unassigned).
type Persona string

const (
	PersonaNone   Persona = ""
	PersonaLead   Persona = "lead"
	PersonaBuyer  Persona = "buyer"
	PersonaSeller Persona = "seller"
)

// Personas lists the routable personas in global priority order, highest
// first. The router and the handoff tie-break both iterate this slice, so
// the order here is the single source of truth for priority.
var Personas = []Persona{PersonaSeller, PersonaBuyer, PersonaLead}

// ParsePersona converts a string to a Persona, rejecting unknown values.
func ParsePersona(s string) (Persona, error) {
	switch Persona(s) {
	case PersonaLead, PersonaBuyer, PersonaSeller:
		return Persona(s), nil
	case PersonaNone:
		return PersonaNone, nil
	default:
		return PersonaNone, fmt.Errorf("model: unknown persona %q", s)
	}
}

// PriorityRank returns the persona's position in the global priority order
// (lower is higher priority). PersonaNone ranks below every real persona.
func PriorityRank(p Persona) int {
	for i, candidate := range Personas {
		if candidate == p {
			return i
		}
	}
	return len(Personas)
}

// HigherPriority reports whether a outranks b in the global priority order.
func HigherPriority(a, b Persona) bool {
	return PriorityRank(a) < PriorityRank(b)
}

// CanTransition reports whether a contact may move from one persona to
// another. Self-transitions and transitions out of the deactivated state are
// rejected; everything else between real personas is a legal handoff, and
// any real persona can be assigned from the unassigned state.
func CanTransition(from, to Persona) bool {
	if to == PersonaNone || from == to {
		return false
	}
	return PriorityRank(to) < len(Personas)
}
