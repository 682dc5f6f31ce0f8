package model

import (
	"time"
)

// EventType represents the type of audit event.
type EventType string

const (
	EventTypeChat         EventType = "chat"
	EventTypeCreditsAdded EventType = "credits_added"
	EventTypeError        EventType = "error"
)

// AuditEvent is one immutable record of a safety- or billing-relevant decision.
// Serialized as a single NDJSON line; optional fields are omitted by type.
type AuditEvent struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"ts"`
	Type      EventType `json:"type"`
	UserID    string    `json:"userId"`
	RequestID string    `json:"requestId,omitempty"`

	// chat
	Crisis         *bool  `json:"crisis,omitempty"`
	TokensEstimate *int   `json:"tokens_estimate,omitempty"`
	Mode           Mode   `json:"mode,omitempty"`
	Model          string `json:"model,omitempty"`
	Stream         *bool  `json:"stream,omitempty"`

	// credits_added
	Amount  *int   `json:"amount,omitempty"`
	EventID string `json:"eventId,omitempty"`

	// error
	Reason  string `json:"reason,omitempty"`
	Details string `json:"details,omitempty"`
}

// NewChatEvent builds a chat audit record.
func NewChatEvent(req *ChatRequest, crisis bool, tokensEstimate int) *AuditEvent {
	stream := req.Streaming
	e := &AuditEvent{
		Type:      EventTypeChat,
		UserID:    req.UserID,
		RequestID: req.RequestID,
		Crisis:    &crisis,
		Mode:      req.Mode,
		Model:     req.Model,
		Stream:    &stream,
	}
	if tokensEstimate > 0 {
		e.TokensEstimate = &tokensEstimate
	}
	return e
}

// NewCreditsAddedEvent builds a credits_added audit record.
func NewCreditsAddedEvent(userID string, amount int, eventID string) *AuditEvent {
	return &AuditEvent{
		Type:    EventTypeCreditsAdded,
		UserID:  userID,
		Amount:  &amount,
		EventID: eventID,
	}
}

// NewErrorEvent builds an error audit record.
func NewErrorEvent(userID, requestID, reason, details string) *AuditEvent {
	return &AuditEvent{
		Type:      EventTypeError,
		UserID:    userID,
		RequestID: requestID,
		Reason:    reason,
		Details:   details,
	}
}
