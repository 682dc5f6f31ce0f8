package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/actualpc/phillip-therapy/internal/model"
	"github.com/actualpc/phillip-therapy/internal/service"
	"github.com/actualpc/phillip-therapy/pkg/logger"
	"github.com/actualpc/phillip-therapy/pkg/metrics"
)

// StreamHandler handles the SSE chat endpoint.
type StreamHandler struct {
	chatService  *service.ChatService
	defaultModel string
	logger       *logger.Logger
}

// NewStreamHandler creates a new stream handler.
func NewStreamHandler(chatSvc *service.ChatService, defaultModel string, log *logger.Logger) *StreamHandler {
	return &StreamHandler{
		chatService:  chatSvc,
		defaultModel: defaultModel,
		logger:       log,
	}
}

// sseStream commits the event-stream headers on first use so the status
// can still be chosen after the credit check.
type sseStream struct {
	w         http.ResponseWriter
	flusher   http.Flusher
	committed bool
}

func (s *sseStream) open(status int) {
	if s.committed {
		return
	}
	s.committed = true
	h := s.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache, no-transform")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	s.w.WriteHeader(status)
}

func (s *sseStream) send(event string, data interface{}) error {
	s.open(http.StatusOK)
	return sendSSEEvent(s.w, s.flusher, event, data)
}

// Stream handles POST /api/chat/stream
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req := decodeChatRequest(w, r, h.defaultModel)
	if req == nil {
		return
	}
	req.Streaming = true

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	metrics.IncrementSSEConnections()
	defer metrics.DecrementSSEConnections()

	stream := &sseStream{w: w, flusher: flusher}
	crisis, err := h.chatService.StreamChat(ctx, req, func(delta string) error {
		return stream.send("", &model.DeltaEvent{Delta: delta})
	})

	switch {
	case errors.Is(err, model.ErrOutOfCredits):
		stream.open(http.StatusPaymentRequired)
		sendSSEEvent(w, flusher, "error", &model.ErrorEvent{Error: "out_of_credits"})
		return
	case err != nil:
		if ctx.Err() != nil {
			h.logger.Info("SSE client disconnected", zap.String("correlation_id", req.RequestID))
			return
		}
		stream.send("error", &model.ErrorEvent{Error: err.Error()})
		return
	}

	stream.send("", &model.DoneEvent{Done: true})
	h.logger.Debug("stream complete",
		zap.String("correlation_id", req.RequestID),
		zap.Bool("crisis", crisis),
	)
}

// sendSSEEvent writes one SSE frame. An empty event name writes a plain
// data frame.
func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, data interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	if event != "" {
		if _, err := fmt.Fprintf(w, "event: %s\n", event); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", jsonData); err != nil {
		return err
	}
	flusher.Flush()

	return nil
}
