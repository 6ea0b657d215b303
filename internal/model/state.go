package model

import (
	"strings"
	"time"
)

// ConversationState is the per-contact mutable record owned by the routing
// core. The CRM is the durable mirror; for the duration of one event the core
// is the authority. Always accessed under the contact's lock.
type ConversationState struct {
	ContactID      string     `json:"contact_id"`
	CurrentPersona Persona    `json:"current_persona"`
	ActiveTags     []string   `json:"active_tags"`
	LastHandoffAt  *time.Time `json:"last_handoff_at,omitempty"`
	History        []Message  `json:"history"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// NewConversationState returns the lazily-created initial state for a contact
// seen for the first time.
func NewConversationState(contactID string) *ConversationState {
	return &ConversationState{ContactID: contactID}
}

// HasTag reports whether the contact currently carries the given tag.
func (s *ConversationState) HasTag(tag string) bool {
	for _, t := range s.ActiveTags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// AddTag appends a tag if not already present.
func (s *ConversationState) AddTag(tag string) {
	if !s.HasTag(tag) {
		s.ActiveTags = append(s.ActiveTags, tag)
	}
}

// RemoveTag deletes every case-insensitive occurrence of tag.
func (s *ConversationState) RemoveTag(tag string) {
	kept := s.ActiveTags[:0]
	for _, t := range s.ActiveTags {
		if !strings.EqualFold(t, tag) {
			kept = append(kept, t)
		}
	}
	s.ActiveTags = kept
}

// AppendMessage records one history entry, trimming to maxHistory entries.
// maxHistory <= 0 means unbounded.
func (s *ConversationState) AppendMessage(speaker Speaker, text string, at time.Time, maxHistory int) {
	s.History = append(s.History, Message{Speaker: speaker, Text: text, SentAt: at})
	if maxHistory > 0 && len(s.History) > maxHistory {
		s.History = s.History[len(s.History)-maxHistory:]
	}
}
