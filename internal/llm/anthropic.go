package llm

import (
	"context"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/actualpc/phillip-therapy/internal/model"
)

// AnthropicClient is the Anthropic LLM client.
type AnthropicClient struct {
	client *anthropic.Client
}

// NewAnthropicClient creates a new Anthropic client.
func NewAnthropicClient(apiKey string) (*AnthropicClient, error) {
	if apiKey == "" {
		return nil, errors.New("Anthropic API key is required")
	}

	return &AnthropicClient{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
	}, nil
}

// Name returns the provider name.
func (c *AnthropicClient) Name() string {
	return string(ProviderAnthropic)
}

// params converts a request. Anthropic takes system text out of band, so
// system messages are joined into the System field.
func (c *AnthropicClient) params(req *CompletionRequest) anthropic.MessageNewParams {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 1024
	}

	var system []string
	messages := make([]anthropic.MessageParam, 0, len(req.Messages))
	for _, msg := range req.Messages {
		if msg.Role == model.RoleSystem {
			system = append(system, msg.Content)
			continue
		}
		messages = append(messages, anthropic.MessageParam{
			Role: anthropic.F(anthropic.MessageParamRole(msg.Role)),
			Content: anthropic.F([]anthropic.ContentBlockParamUnion{
				anthropic.TextBlockParam{
					Type: anthropic.F(anthropic.TextBlockParamTypeText),
					Text: anthropic.F(msg.Content),
				},
			}),
		})
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.F(req.Model),
		MaxTokens:   anthropic.F(int64(maxTokens)),
		Messages:    anthropic.F(messages),
		Temperature: anthropic.F(req.Temperature),
	}
	if len(system) > 0 {
		params.System = anthropic.F([]anthropic.TextBlockParam{
			anthropic.NewTextBlock(strings.Join(system, "\n\n")),
		})
	}
	return params
}

// Complete sends a completion request.
func (c *AnthropicClient) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	resp, err := c.client.Messages.New(ctx, c.params(req))
	if err != nil {
		return nil, err
	}

	var content strings.Builder
	for _, block := range resp.Content {
		if block.Type == anthropic.ContentBlockTypeText {
			content.WriteString(block.Text)
		}
	}

	return &CompletionResponse{
		Content:     content.String(),
		Model:       resp.Model,
		TotalTokens: int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
		StopReason:  string(resp.StopReason),
	}, nil
}

// Stream sends a streaming completion request.
func (c *AnthropicClient) Stream(ctx context.Context, req *CompletionRequest) (<-chan StreamEvent, error) {
	stream := c.client.Messages.NewStreaming(ctx, c.params(req))

	events := make(chan StreamEvent)
	go func() {
		defer close(events)
		defer stream.Close()

		for stream.Next() {
			event := stream.Current()
			switch delta := event.Delta.(type) {
			case anthropic.ContentBlockDeltaEventDelta:
				if delta.Text == "" {
					continue
				}
				if !send(ctx, events, StreamEvent{Delta: delta.Text}) {
					return
				}
			}
		}

		if err := stream.Err(); err != nil {
			send(ctx, events, StreamEvent{Err: err})
			return
		}
		send(ctx, events, StreamEvent{Done: true})
	}()

	return events, nil
}
