package model

import "time"

// APIResponse is the standard response envelope for all HTTP API responses.
type APIResponse struct {
	Data any          `json:"data,omitempty"`
	Meta ResponseMeta `json:"meta"`
}

// APIError is the standard error response envelope.
type APIError struct {
	Error ErrorDetail  `json:"error"`
	Meta  ResponseMeta `json:"meta"`
}

// ResponseMeta contains request metadata included in every response.
type ResponseMeta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorDetail describes an API error.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ErrorCode constants for standard API error codes.
const (
	ErrCodeInvalidInput  = "INVALID_INPUT"
	ErrCodeUnauthorized  = "UNAUTHORIZED"
	ErrCodeForbidden     = "FORBIDDEN"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeConflict      = "CONFLICT"
	ErrCodeInternalError = "INTERNAL_ERROR"
	ErrCodeRateLimited   = "RATE_LIMITED"
)

// InboundEventRequest is the request body for POST /v1/events, as delivered
// by the upstream channel/CRM webhook.
type InboundEventRequest struct {
	MessageID  string    `json:"message_id"`
	ContactID  string    `json:"contact_id"`
	Channel    string    `json:"channel"`
	Direction  string    `json:"direction"`
	Body       string    `json:"body"`
	Tags       []string  `json:"tags"`
	ReceivedAt time.Time `json:"received_at"`
}

// EventOutcomeResponse is the response body for POST /v1/events.
type EventOutcomeResponse struct {
	EventID     string           `json:"event_id"`
	Disposition string           `json:"disposition"`
	Persona     Persona          `json:"persona,omitempty"`
	Reply       string           `json:"reply,omitempty"`
	Compliance  ComplianceStatus `json:"compliance,omitempty"`
	Actions     []Action         `json:"actions"`
}
