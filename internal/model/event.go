package model

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidEvent marks events the pipeline refuses to touch.
var ErrInvalidEvent = errors.New("model: invalid conversation event")

// Direction distinguishes inbound contact messages from our own outbound
// replies echoed back by the channel.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// ConversationEvent is one normalized inbound message delivery.
// Immutable after ingress: created once per webhook delivery, never mutated.
type ConversationEvent struct {
	ID         uuid.UUID `json:"id"`
	MessageID  string    `json:"message_id"`
	ContactID  string    `json:"contact_id"`
	Channel    string    `json:"channel"`
	Direction  Direction `json:"direction"`
	Body       string    `json:"body"`
	Tags       []string  `json:"tags"`
	ReceivedAt time.Time `json:"received_at"`
}

// Validate rejects events the pipeline must never touch: a missing contact id
// is fatal for the event (no state mutation, no reply).
func (e ConversationEvent) Validate() error {
	if strings.TrimSpace(e.ContactID) == "" {
		return fmt.Errorf("%w: missing contact_id", ErrInvalidEvent)
	}
	if e.Direction != DirectionInbound && e.Direction != DirectionOutbound {
		return fmt.Errorf("%w: direction %q", ErrInvalidEvent, e.Direction)
	}
	return nil
}

// HasTag reports whether the event carries the given CRM tag.
// Comparison is case-insensitive because CRM operators hand-edit tags.
func (e ConversationEvent) HasTag(tag string) bool {
	for _, t := range e.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// DedupKey is the short-lived idempotency key used to drop duplicate webhook
// deliveries before the per-contact lock is acquired.
func (e ConversationEvent) DedupKey() string {
	return e.ContactID + ":" + e.MessageID
}

// Speaker identifies who produced a history entry.
type Speaker string

const (
	SpeakerContact Speaker = "contact"
	SpeakerBot     Speaker = "bot"
)

// Message is one entry in a contact's conversation history.
type Message struct {
	Speaker Speaker   `json:"speaker"`
	Text    string    `json:"text"`
	SentAt  time.Time `json:"sent_at"`
}
