package llm

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/actualpc/phillip-therapy/pkg/metrics"
)

var errUnterminated = errors.New("stream ended without a terminal event")

// Relay invokes a provider Client with a bounded call duration and
// normalizes the result. It does not retry.
type Relay struct {
	client  Client
	timeout time.Duration
}

// NewRelay creates a relay over client. A zero timeout leaves calls bounded
// only by the caller's context.
func NewRelay(client Client, timeout time.Duration) *Relay {
	return &Relay{client: client, timeout: timeout}
}

// Provider returns the underlying provider name.
func (r *Relay) Provider() string {
	return r.client.Name()
}

func (r *Relay) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout > 0 {
		return context.WithTimeout(ctx, r.timeout)
	}
	return context.WithCancel(ctx)
}

// Complete returns the provider's first-choice text. A successful response
// with empty text is replaced by FallbackReply; failures are ProviderErrors.
func (r *Relay) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	resp, err := r.client.Complete(ctx, req)
	if err != nil {
		metrics.RecordLLMCall(r.client.Name(), "atomic", "error", time.Since(start).Seconds())
		return nil, &ProviderError{Provider: r.client.Name(), Op: "complete", Err: err}
	}
	metrics.RecordLLMCall(r.client.Name(), "atomic", "success", time.Since(start).Seconds())

	resp.Content = strings.TrimSpace(resp.Content)
	if resp.Content == "" {
		resp.Content = FallbackReply
	}
	return resp, nil
}

// Stream opens a provider stream. Errors from the provider, including the
// timeout firing mid-stream, arrive as a terminal event carrying a
// ProviderError. The forwarder exits as soon as the caller's ctx is
// cancelled, which also stops the provider producer.
func (r *Relay) Stream(parent context.Context, req *CompletionRequest) (<-chan StreamEvent, error) {
	ctx, cancel := r.withTimeout(parent)

	start := time.Now()
	upstream, err := r.client.Stream(ctx, req)
	if err != nil {
		cancel()
		metrics.RecordLLMCall(r.client.Name(), "stream", "error", time.Since(start).Seconds())
		return nil, &ProviderError{Provider: r.client.Name(), Op: "stream", Err: err}
	}

	out := make(chan StreamEvent)
	go func() {
		defer close(out)
		defer cancel()

		status := "cancelled"
		defer func() {
			metrics.RecordLLMCall(r.client.Name(), "stream", status, time.Since(start).Seconds())
		}()

		for {
			select {
			case <-ctx.Done():
				if errors.Is(ctx.Err(), context.DeadlineExceeded) && parent.Err() == nil {
					status = "error"
					send(parent, out, StreamEvent{
						Err: &ProviderError{Provider: r.client.Name(), Op: "stream", Err: ctx.Err()},
					})
				}
				return
			case ev, ok := <-upstream:
				if !ok {
					status = "error"
					cause := errUnterminated
					if err := ctx.Err(); err != nil {
						cause = err
					}
					send(parent, out, StreamEvent{
						Err: &ProviderError{Provider: r.client.Name(), Op: "stream", Err: cause},
					})
					return
				}
				if ev.Err != nil {
					status = "error"
					ev.Err = &ProviderError{Provider: r.client.Name(), Op: "stream", Err: ev.Err}
				} else if ev.Done {
					status = "success"
				}
				if !send(parent, out, ev) {
					return
				}
				if ev.Done || ev.Err != nil {
					return
				}
			}
		}
	}()

	return out, nil
}
