// Package service implements the chat orchestration and payment flows.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/actualpc/phillip-therapy/internal/audit"
	"github.com/actualpc/phillip-therapy/internal/ledger"
	"github.com/actualpc/phillip-therapy/internal/llm"
	"github.com/actualpc/phillip-therapy/internal/model"
	"github.com/actualpc/phillip-therapy/internal/prompt"
	"github.com/actualpc/phillip-therapy/internal/safety"
	"github.com/actualpc/phillip-therapy/internal/tokens"
	"github.com/actualpc/phillip-therapy/pkg/logger"
	"github.com/actualpc/phillip-therapy/pkg/metrics"
	"github.com/actualpc/phillip-therapy/pkg/tracing"
)

// State is a step of the chat request state machine.
type State string

const (
	StateReceived      State = "received"
	StateCreditChecked State = "credit_checked"
	StateFiltered      State = "filtered"
	StateAssembled     State = "assembled"
	StateRelayed       State = "relayed"
	StateFinalized     State = "finalized"
	StateAudited       State = "audited"
	StateResponded     State = "responded"
	StateFailed        State = "failed"
)

// Failure reasons recorded on error audit events.
const (
	ReasonOutOfCredits       = "out_of_credits"
	ReasonProviderError      = "provider_error"
	ReasonClientDisconnected = "client_disconnected"
	ReasonInternal           = "internal_error"
)

// ModelRelay is the language-model relay used by the orchestrator.
type ModelRelay interface {
	Complete(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error)
	Stream(ctx context.Context, req *llm.CompletionRequest) (<-chan llm.StreamEvent, error)
	Provider() string
}

// DeltaCallback receives each piece of streamed reply text. Returning an
// error stops the stream.
type DeltaCallback func(delta string) error

// ChatServiceConfig holds the collaborators of the chat orchestrator.
type ChatServiceConfig struct {
	Ledger      ledger.Store
	Policy      safety.Policy
	Relay       ModelRelay
	Recorder    *audit.Recorder
	Counter     *tokens.Counter
	Temperature float64
	Logger      *logger.Logger
}

// ChatService coordinates credit metering, safety filtering, prompt assembly,
// model relay and auditing for each chat request. It holds no per-request
// state between calls.
type ChatService struct {
	ledger       ledger.Store
	filter       *safety.Filter
	assembler    *prompt.Assembler
	crisisScript string
	relay        ModelRelay
	recorder     *audit.Recorder
	counter      *tokens.Counter
	temperature  float64
	logger       *logger.Logger
}

// NewChatService creates a new chat orchestrator.
func NewChatService(cfg ChatServiceConfig) *ChatService {
	counter := cfg.Counter
	if counter == nil {
		counter = tokens.NewCounter()
	}
	return &ChatService{
		ledger:       cfg.Ledger,
		filter:       safety.NewFilter(cfg.Policy),
		assembler:    prompt.NewAssembler(cfg.Policy),
		crisisScript: cfg.Policy.CrisisScript,
		relay:        cfg.Relay,
		recorder:     cfg.Recorder,
		counter:      counter,
		temperature:  cfg.Temperature,
		logger:       cfg.Logger,
	}
}

// CrisisScript returns the fixed reply used when crisis language is detected.
func (s *ChatService) CrisisScript() string {
	return s.crisisScript
}

// run tracks one request through the state machine.
type run struct {
	req      *model.ChatRequest
	state    State
	span     trace.Span
	log      *logger.Logger
	delivery string
}

func (r *run) advance(next State) {
	r.state = next
	r.span.AddEvent(string(next))
}

func (s *ChatService) begin(ctx context.Context, req *model.ChatRequest) (context.Context, *run) {
	ctx, span := tracing.Tracer().Start(ctx, "chat",
		trace.WithAttributes(
			attribute.String("chat.mode", string(req.Mode)),
			attribute.String("chat.model", req.Model),
			attribute.Bool("chat.stream", req.Streaming),
		),
	)
	delivery := "atomic"
	if req.Streaming {
		delivery = "stream"
	}
	r := &run{
		req:      req,
		state:    StateReceived,
		span:     span,
		log:      s.logger.WithRequest(req.RequestID, req.UserID),
		delivery: delivery,
	}
	span.AddEvent(string(StateReceived))
	return ctx, r
}

// fail moves the run to Failed and records an error audit event.
func (s *ChatService) fail(ctx context.Context, r *run, reason string, err error) {
	stage := r.state
	r.advance(StateFailed)
	r.span.SetStatus(codes.Error, reason)
	metrics.RecordChat(r.delivery, reason)

	details := ""
	if err != nil {
		details = err.Error()
		r.span.RecordError(err)
	}
	if reason == ReasonOutOfCredits || reason == ReasonClientDisconnected {
		r.log.Info("chat request ended", zap.String("reason", reason), zap.String("stage", string(stage)))
	} else {
		r.log.Error("chat request failed", zap.String("reason", reason), zap.String("stage", string(stage)), zap.Error(err))
	}

	s.recorder.Record(context.WithoutCancel(ctx), model.NewErrorEvent(r.req.UserID, r.req.RequestID, reason, details))
}

// reserve spends one credit for the request.
func (s *ChatService) reserve(ctx context.Context, r *run) error {
	ok, err := s.ledger.TryConsume(ctx, r.req.UserID)
	if err != nil {
		err = fmt.Errorf("failed to reserve credit: %w", err)
		s.fail(ctx, r, ReasonInternal, err)
		return err
	}
	if !ok {
		s.fail(ctx, r, ReasonOutOfCredits, nil)
		return model.ErrOutOfCredits
	}
	metrics.CreditsConsumedTotal.Inc()
	r.advance(StateCreditChecked)
	return nil
}

// screen runs crisis detection over the original messages and returns the
// redacted copy that may leave the process.
func (s *ChatService) screen(r *run) (bool, []model.ChatMessage) {
	crisis := s.filter.DetectCrisis(r.req.Messages)
	redacted := safety.RedactMessages(r.req.Messages)
	r.span.SetAttributes(attribute.Bool("chat.crisis", crisis))
	r.advance(StateFiltered)
	return crisis, redacted
}

func (s *ChatService) completionRequest(r *run, redacted []model.ChatMessage) *llm.CompletionRequest {
	msgs := s.assembler.Assemble(r.req.Mode, redacted)
	r.advance(StateAssembled)
	return &llm.CompletionRequest{
		Model:       r.req.Model,
		Messages:    msgs,
		Temperature: s.temperature,
	}
}

func (s *ChatService) estimate(modelName string, msgs []model.ChatMessage, reply string) int {
	texts := make([]string, 0, len(msgs)+1)
	for _, m := range msgs {
		texts = append(texts, m.Content)
	}
	texts = append(texts, reply)
	return s.counter.Count(modelName, texts...)
}

// finish records the chat audit event and completes the run.
func (s *ChatService) finish(ctx context.Context, r *run, crisis bool, tokensEstimate int) {
	s.recorder.Record(context.WithoutCancel(ctx), model.NewChatEvent(r.req, crisis, tokensEstimate))
	r.advance(StateAudited)

	if crisis {
		metrics.CrisisOverridesTotal.Inc()
	}
	if tokensEstimate > 0 {
		metrics.LLMTokensTotal.WithLabelValues(r.req.Model).Add(float64(tokensEstimate))
	}
	metrics.RecordChat(r.delivery, "success")
}

// recoverRun converts a panic in the pipeline into a Failed transition.
func (s *ChatService) recoverRun(ctx context.Context, r *run, errp *error) {
	if p := recover(); p != nil {
		err := fmt.Errorf("panic in chat %s: %v", r.state, p)
		s.fail(ctx, r, ReasonInternal, err)
		*errp = err
	}
}

// Chat handles an atomic chat request. When crisis language is present the
// provider is never called and the reply is the fixed crisis script.
func (s *ChatService) Chat(ctx context.Context, req *model.ChatRequest) (resp *model.ChatResponse, err error) {
	ctx, r := s.begin(ctx, req)
	defer r.span.End()
	defer s.recoverRun(ctx, r, &err)

	if err := s.reserve(ctx, r); err != nil {
		return nil, err
	}

	crisis, redacted := s.screen(r)

	reply := s.crisisScript
	tokensEstimate := 0
	if !crisis {
		creq := s.completionRequest(r, redacted)
		out, err := s.relay.Complete(ctx, creq)
		if err != nil {
			s.fail(ctx, r, ReasonProviderError, err)
			return nil, err
		}
		r.advance(StateRelayed)
		reply = out.Content
		tokensEstimate = out.TotalTokens
		if tokensEstimate == 0 {
			tokensEstimate = s.estimate(req.Model, creq.Messages, reply)
		}
	}
	r.advance(StateFinalized)

	s.finish(ctx, r, crisis, tokensEstimate)
	r.advance(StateResponded)

	return &model.ChatResponse{Reply: reply, Crisis: crisis}, nil
}

// StreamChat handles a streaming chat request, passing each reply delta to
// onDelta. ErrOutOfCredits is returned before onDelta is ever called. When
// crisis language is present the crisis script is delivered as one delta and
// the provider is never called. If onDelta fails or ctx is cancelled the
// provider stream is abandoned; the credit is not refunded.
func (s *ChatService) StreamChat(ctx context.Context, req *model.ChatRequest, onDelta DeltaCallback) (crisis bool, err error) {
	ctx, r := s.begin(ctx, req)
	defer r.span.End()
	defer s.recoverRun(ctx, r, &err)

	if err := s.reserve(ctx, r); err != nil {
		return false, err
	}

	crisis, redacted := s.screen(r)

	if crisis {
		r.advance(StateFinalized)
		if err := onDelta(s.crisisScript); err != nil {
			s.fail(ctx, r, ReasonClientDisconnected, err)
			return true, err
		}
		s.finish(ctx, r, true, 0)
		r.advance(StateResponded)
		return true, nil
	}

	creq := s.completionRequest(r, redacted)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	events, err := s.relay.Stream(ctx, creq)
	if err != nil {
		s.fail(ctx, r, ReasonProviderError, err)
		return false, err
	}

	var reply strings.Builder
	for done := false; !done; {
		select {
		case <-ctx.Done():
			s.fail(ctx, r, ReasonClientDisconnected, ctx.Err())
			return false, ctx.Err()
		case ev, ok := <-events:
			switch {
			case !ok:
				err := errors.New("model stream closed unexpectedly")
				s.fail(ctx, r, ReasonProviderError, err)
				return false, err
			case ev.Err != nil:
				s.fail(ctx, r, ReasonProviderError, ev.Err)
				return false, ev.Err
			case ev.Done:
				done = true
			case ev.Delta != "":
				reply.WriteString(ev.Delta)
				if err := onDelta(ev.Delta); err != nil {
					s.fail(ctx, r, ReasonClientDisconnected, err)
					return false, err
				}
			}
		}
	}
	r.advance(StateRelayed)
	r.advance(StateFinalized)

	s.finish(ctx, r, false, s.estimate(req.Model, creq.Messages, reply.String()))
	r.advance(StateResponded)
	return false, nil
}
