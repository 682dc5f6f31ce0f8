// Package model defines data structures for the conversational safety gateway.
package model

// Role represents the role of a message sender.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the accepted chat roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// Mode selects the persona variant used to assemble the system prompt.
type Mode string

const (
	ModeGeneral    Mode = "general"
	ModeEvaluation Mode = "evaluation"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModeGeneral || m == ModeEvaluation
}

// ChatMessage is a single turn of a conversation. Values are treated as
// immutable; redaction produces a new slice rather than editing in place.
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is a validated inbound chat request.
type ChatRequest struct {
	UserID    string
	Messages  []ChatMessage
	Mode      Mode
	Provider  string
	Model     string
	Streaming bool
	RequestID string
}

// ChatResponse is the body returned by the atomic chat endpoint.
type ChatResponse struct {
	Reply  string `json:"reply"`
	Crisis bool   `json:"crisis"`
}

// CreditsResponse is the body returned by the credits endpoint.
type CreditsResponse struct {
	UserID  string `json:"userId"`
	Credits int    `json:"credits"`
}

// DeltaEvent carries one increment of streamed reply text.
type DeltaEvent struct {
	Delta string `json:"delta"`
}

// DoneEvent terminates a successful stream.
type DoneEvent struct {
	Done bool `json:"done"`
}

// ErrorEvent is sent in-band on a stream that cannot complete.
type ErrorEvent struct {
	Error string `json:"error"`
}
