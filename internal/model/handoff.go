package model

import (
	"fmt"
	"time"
)

// HandoffDecision is a materialized persona transfer. One is only created
// when the directional confidence threshold, the cooldown, and the handoff
// budget all pass.
type HandoffDecision struct {
	Source      Persona   `json:"source"`
	Target      Persona   `json:"target"`
	Reason      string    `json:"reason"`
	Confidence  float64   `json:"confidence"`
	TriggeredAt time.Time `json:"triggered_at"`
}

// TrackingTag encodes source→target for the CRM audit trail,
// e.g. "Handoff-Buyer-to-Seller".
func (d HandoffDecision) TrackingTag() string {
	return fmt.Sprintf("Handoff-%s-to-%s", titlePersona(d.Source), titlePersona(d.Target))
}

func titlePersona(p Persona) string {
	s := string(p)
	if s == "" {
		return "None"
	}
	return string(s[0]-'a'+'A') + s[1:]
}
