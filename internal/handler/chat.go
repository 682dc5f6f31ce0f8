package handler

import (
	"errors"
	"net/http"

	"github.com/actualpc/phillip-therapy/internal/middleware"
	"github.com/actualpc/phillip-therapy/internal/model"
	"github.com/actualpc/phillip-therapy/internal/service"
	"github.com/actualpc/phillip-therapy/pkg/logger"
)

// ChatHandler handles the atomic chat endpoint.
type ChatHandler struct {
	chatService  *service.ChatService
	defaultModel string
	logger       *logger.Logger
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(chatSvc *service.ChatService, defaultModel string, log *logger.Logger) *ChatHandler {
	return &ChatHandler{
		chatService:  chatSvc,
		defaultModel: defaultModel,
		logger:       log,
	}
}

// decodeChatRequest reads and validates a chat body. It writes the 400
// response itself and returns nil when the body is malformed.
func decodeChatRequest(w http.ResponseWriter, r *http.Request, defaultModel string) *model.ChatRequest {
	var in middleware.ChatInput
	if err := decodeJSON(w, r, &in, false); err != nil {
		writeValidationError(w, err)
		return nil
	}
	req, err := middleware.ValidateChat(&in, defaultModel)
	if err != nil {
		writeValidationError(w, err)
		return nil
	}
	req.RequestID = middleware.GetCorrelationID(r.Context())
	return req
}

// Chat handles POST /api/chat
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	req := decodeChatRequest(w, r, h.defaultModel)
	if req == nil {
		return
	}
	req.Streaming = false

	resp, err := h.chatService.Chat(r.Context(), req)
	switch {
	case errors.Is(err, model.ErrOutOfCredits):
		writeError(w, http.StatusPaymentRequired, "out_of_credits")
		return
	case err != nil:
		writeErrorDetails(w, http.StatusInternalServerError, "Server error", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, resp)
}
