package switchboard

import "time"

// Persona identifies a conversation handler. Priority order is
// seller > buyer > lead; routing always selects the highest-priority
// persona whose activation tag is present.
type Persona string

const (
	PersonaLead   Persona = "lead"
	PersonaBuyer  Persona = "buyer"
	PersonaSeller Persona = "seller"
	PersonaNone   Persona = ""
)

// Event is the public view of one inbound message delivery.
type Event struct {
	MessageID  string
	ContactID  string
	Channel    string
	Body       string
	Tags       []string
	ReceivedAt time.Time
}

// HistoryMessage is one entry in a contact's conversation history.
type HistoryMessage struct {
	Speaker string // "contact" or "bot"
	Text    string
	SentAt  time.Time
}

// HandlerReply is what a persona handler returns for one event.
type HandlerReply struct {
	// Reply is the draft outbound text. It is still subject to compliance
	// auditing and channel-length truncation.
	Reply string
	// AddTags and RemoveTags are CRM tag mutations the handler proposes.
	// Persona activation tags are managed by the handoff evaluator and
	// must not appear here.
	AddTags    []string
	RemoveTags []string
	// IntentScores rates cross-persona intent per target in [0, 1].
	IntentScores map[Persona]float64
	// MatchedPhrases are the trigger phrases behind the scores, surfaced
	// in handoff reasons.
	MatchedPhrases []string
	// Engagement rates how engaged the contact is in [0, 1]; it drives
	// temperature classification.
	Engagement float64
}

// ComplianceVerdict is the graded outcome of a compliance scoring call.
type ComplianceVerdict string

const (
	VerdictPass  ComplianceVerdict = "pass"
	VerdictFlag  ComplianceVerdict = "flag"
	VerdictBlock ComplianceVerdict = "block"
)

// ComplianceScan is the input to a ComplianceScorer.
type ComplianceScan struct {
	Reply     string
	Persona   Persona
	Inbound   string
	ContactID string
}

// ComplianceOpinion is a scorer's structured result.
type ComplianceOpinion struct {
	Verdict ComplianceVerdict
	Reason  string
}

// Action is one entry in an outbound CRM batch.
type Action struct {
	Type string // "add_tag", "remove_tag", or "send_message"
	Tag  string
	Text string
}

// Handoff describes a materialized persona transfer.
type Handoff struct {
	Source      Persona
	Target      Persona
	Reason      string
	Confidence  float64
	TriggeredAt time.Time
}

// Outcome summarizes how the pipeline resolved an event. Disposition is
// one of: processed, duplicate, deactivated, opted_out, rate_limited,
// unrouted.
type Outcome struct {
	EventID     string
	Disposition string
	Persona     Persona
	Reply       string
	Compliance  string
	Actions     []Action
	Handoff     *Handoff
}
