package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"unicode/utf8"

	"github.com/actualpc/phillip-therapy/internal/model"
)

const (
	// MaxBodyBytes caps JSON request bodies.
	MaxBodyBytes = 2 << 20

	maxUserIDLength  = 128
	maxContentLength = 100000
)

// LimitBody caps the request body at n bytes.
func LimitBody(n int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, n)
			next.ServeHTTP(w, r)
		})
	}
}

// ValidateUserID validates a caller-supplied user ID.
func ValidateUserID(id string) error {
	if len(id) == 0 {
		return errors.New("userId cannot be empty")
	}
	if len(id) > maxUserIDLength {
		return errors.New("userId exceeds maximum length")
	}
	if !utf8.ValidString(id) {
		return errors.New("userId must be valid UTF-8")
	}
	return nil
}

// ValidateMessageContent validates message content. Empty content is allowed.
func ValidateMessageContent(content string) error {
	if len(content) > maxContentLength {
		return errors.New("content exceeds maximum length")
	}
	if !utf8.ValidString(content) {
		return errors.New("content must be valid UTF-8")
	}
	return nil
}

// ChatMessageInput is a chat message as decoded from the wire, with
// pointers so absent fields can be told from empty ones.
type ChatMessageInput struct {
	Role    *string `json:"role"`
	Content *string `json:"content"`
}

// ChatInput is the decoded body of a chat request.
type ChatInput struct {
	UserID   string             `json:"userId"`
	Messages []ChatMessageInput `json:"messages"`
	Mode     string             `json:"mode"`
	Provider string             `json:"provider"`
	Model    string             `json:"model"`
	Stream   bool               `json:"stream"`
}

// ValidateChat checks a decoded chat body and converts it to a ChatRequest,
// filling the mode and model defaults. All problems are reported together.
func ValidateChat(in *ChatInput, defaultModel string) (*model.ChatRequest, error) {
	verr := &model.ValidationError{}

	if err := ValidateUserID(in.UserID); err != nil {
		verr.Add(err.Error())
	}

	if len(in.Messages) == 0 {
		verr.Add("messages must contain at least one message")
	}
	msgs := make([]model.ChatMessage, 0, len(in.Messages))
	for i, m := range in.Messages {
		switch {
		case m.Role == nil:
			verr.Add(fmt.Sprintf("messages[%d].role is required", i))
		case !model.Role(*m.Role).Valid():
			verr.Add(fmt.Sprintf("messages[%d].role must be one of system, user, assistant", i))
		}
		if m.Content == nil {
			verr.Add(fmt.Sprintf("messages[%d].content is required", i))
		} else if err := ValidateMessageContent(*m.Content); err != nil {
			verr.Add(fmt.Sprintf("messages[%d].%s", i, err))
		}
		if m.Role != nil && m.Content != nil {
			msgs = append(msgs, model.ChatMessage{Role: model.Role(*m.Role), Content: *m.Content})
		}
	}

	mode := model.ModeGeneral
	if in.Mode != "" {
		mode = model.Mode(in.Mode)
		if !mode.Valid() {
			verr.Add("mode must be one of general, evaluation")
		}
	}

	switch in.Provider {
	case "", "openai", "anthropic":
	default:
		verr.Add("provider must be one of openai, anthropic")
	}

	modelName := in.Model
	if modelName == "" {
		modelName = defaultModel
	}

	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	provider := in.Provider
	if provider == "" {
		provider = "openai"
	}
	return &model.ChatRequest{
		UserID:    in.UserID,
		Messages:  msgs,
		Mode:      mode,
		Provider:  provider,
		Model:     modelName,
		Streaming: in.Stream,
	}, nil
}
