package handler

import (
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/actualpc/phillip-therapy/internal/model"
	"github.com/actualpc/phillip-therapy/internal/service"
	"github.com/actualpc/phillip-therapy/pkg/logger"
)

// maxWebhookBytes caps the raw webhook body.
const maxWebhookBytes = 64 << 10

// StripeHandler handles checkout creation and payment webhooks.
type StripeHandler struct {
	paymentService *service.PaymentService
	logger         *logger.Logger
}

// NewStripeHandler creates a new Stripe handler.
func NewStripeHandler(paymentSvc *service.PaymentService, log *logger.Logger) *StripeHandler {
	return &StripeHandler{
		paymentService: paymentSvc,
		logger:         log,
	}
}

type checkoutRequest struct {
	UserID string `json:"userId"`
}

type checkoutResponse struct {
	URL string `json:"url"`
}

// CreateCheckoutSession handles POST /api/stripe/create-checkout-session
func (h *StripeHandler) CreateCheckoutSession(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		writeValidationError(w, err)
		return
	}

	url, err := h.paymentService.CreateCheckout(r.Context(), req.UserID)
	var verr *model.ValidationError
	switch {
	case errors.Is(err, service.ErrStripeNotConfigured):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Problems[0])
		return
	case err != nil:
		h.logger.Error("failed to create checkout session", zap.String("user_id", req.UserID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, &checkoutResponse{URL: url})
}

// Webhook handles POST /api/stripe/webhook. The body is read raw because
// the signature covers the exact bytes sent.
func (h *StripeHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		http.Error(w, "Webhook Error: "+err.Error(), http.StatusBadRequest)
		return
	}

	result, err := h.paymentService.HandleWebhook(r.Context(), payload, r.Header.Get("Stripe-Signature"))
	switch {
	case errors.Is(err, service.ErrStripeNotConfigured):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case errors.Is(err, model.ErrInvalidSignature):
		http.Error(w, "Webhook Error: "+err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		h.logger.Error("failed to apply webhook", zap.Error(err))
		http.Error(w, "Webhook Error: "+err.Error(), http.StatusInternalServerError)
		return
	}

	h.logger.Info("webhook processed",
		zap.String("event_id", result.EventID),
		zap.String("event_type", result.EventType),
		zap.Int("credited", result.Credited),
	)
	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}
