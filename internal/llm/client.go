// Package llm relays chat completions to a language-model provider.
package llm

import (
	"context"
	"fmt"

	"github.com/actualpc/phillip-therapy/internal/model"
)

// FallbackReply replaces an empty but otherwise successful atomic reply.
const FallbackReply = "I'm here. Can you tell me a bit more?"

// CompletionRequest represents a completion request.
type CompletionRequest struct {
	Model       string
	Messages    []model.ChatMessage
	MaxTokens   int
	Temperature float64
}

// CompletionResponse represents an atomic completion response.
type CompletionResponse struct {
	Content     string
	Model       string
	TotalTokens int
	StopReason  string
}

// StreamEvent is one item of a streamed completion. A stream yields zero or
// more Delta events and then exactly one terminal event: Done on success or
// Err on failure. The channel is closed after the terminal event.
type StreamEvent struct {
	Delta string
	Done  bool
	Err   error
}

// Client is the interface for LLM providers. Implementations make a single
// attempt per call and never retry.
type Client interface {
	// Complete sends a completion request and returns the whole response.
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)

	// Stream sends a streaming completion request. The returned channel is
	// finite and not restartable. Cancelling ctx stops the producer.
	Stream(ctx context.Context, req *CompletionRequest) (<-chan StreamEvent, error)

	// Name returns the provider name.
	Name() string
}

// Provider is the type of LLM provider.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
)

// ProviderConfig selects and configures a provider implementation.
type ProviderConfig struct {
	Provider        Provider
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	AnthropicAPIKey string
}

// NewClient creates a new LLM client based on provider.
func NewClient(cfg ProviderConfig) (Client, error) {
	switch cfg.Provider {
	case ProviderOpenAI, "":
		return NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL)
	case ProviderAnthropic:
		return NewAnthropicClient(cfg.AnthropicAPIKey)
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.Provider)
	}
}

// ProviderError reports a failed provider call: network error, non-2xx
// status, malformed stream, or timeout.
type ProviderError struct {
	Provider string
	Op       string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s %s failed: %v", e.Provider, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}
