package handler

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/actualpc/phillip-therapy/internal/ledger"
	"github.com/actualpc/phillip-therapy/internal/middleware"
	"github.com/actualpc/phillip-therapy/internal/model"
	"github.com/actualpc/phillip-therapy/pkg/logger"
)

// CreditsHandler reports credit balances.
type CreditsHandler struct {
	ledger ledger.Store
	logger *logger.Logger
}

// NewCreditsHandler creates a new credits handler.
func NewCreditsHandler(store ledger.Store, log *logger.Logger) *CreditsHandler {
	return &CreditsHandler{
		ledger: store,
		logger: log,
	}
}

// Get handles GET /api/credits?userId=
func (h *CreditsHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		userID = model.AnonymousUserID
	}
	if err := middleware.ValidateUserID(userID); err != nil {
		writeValidationError(w, err)
		return
	}

	user, err := h.ledger.Get(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to read balance", zap.String("user_id", userID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to read balance")
		return
	}

	writeJSON(w, http.StatusOK, &model.CreditsResponse{UserID: user.ID, Credits: user.Credits})
}
