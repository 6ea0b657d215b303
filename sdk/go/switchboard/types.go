package switchboard

import "time"

// InboundEvent is a conversational message submitted to the webhook ingress.
type InboundEvent struct {
	MessageID  string    `json:"message_id"`
	ContactID  string    `json:"contact_id"`
	Channel    string    `json:"channel,omitempty"`
	Direction  string    `json:"direction,omitempty"`
	Body       string    `json:"body"`
	Tags       []string  `json:"tags,omitempty"`
	ReceivedAt time.Time `json:"received_at,omitempty"`
}

// Action is one CRM mutation or send produced by the pipeline.
type Action struct {
	Type string `json:"type"`
	Tag  string `json:"tag,omitempty"`
	Text string `json:"text,omitempty"`
}

// EventOutcome reports how an inbound event was handled.
type EventOutcome struct {
	EventID     string   `json:"event_id"`
	Disposition string   `json:"disposition"`
	Persona     string   `json:"persona,omitempty"`
	Reply       string   `json:"reply,omitempty"`
	Compliance  string   `json:"compliance,omitempty"`
	Actions     []Action `json:"actions"`
}

// ContactState is a contact's current routing state.
type ContactState struct {
	ContactID      string     `json:"contact_id"`
	CurrentPersona string     `json:"current_persona"`
	ActiveTags     []string   `json:"active_tags"`
	LastHandoffAt  *time.Time `json:"last_handoff_at,omitempty"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Message is one entry in a contact's conversation history.
type Message struct {
	Speaker string    `json:"speaker"`
	Text    string    `json:"text"`
	SentAt  time.Time `json:"sent_at"`
}

// Handoff is one recorded persona transition.
type Handoff struct {
	SourcePersona string    `json:"source_persona"`
	TargetPersona string    `json:"target_persona"`
	Reason        string    `json:"reason"`
	Confidence    float64   `json:"confidence"`
	TriggeredAt   time.Time `json:"triggered_at"`
}

// ContactHistory is a contact's message history and recorded handoffs.
type ContactHistory struct {
	ContactID string    `json:"contact_id"`
	Messages  []Message `json:"messages"`
	Handoffs  []Handoff `json:"handoffs"`
}

// Health is the service health report.
type Health struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}
