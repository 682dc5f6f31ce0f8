package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v72"
	"go.uber.org/zap"

	"github.com/actualpc/phillip-therapy/internal/audit"
	"github.com/actualpc/phillip-therapy/internal/billing"
	"github.com/actualpc/phillip-therapy/internal/ledger"
	"github.com/actualpc/phillip-therapy/internal/model"
	"github.com/actualpc/phillip-therapy/pkg/logger"
	"github.com/actualpc/phillip-therapy/pkg/metrics"
)

// ErrStripeNotConfigured is returned when payment settings are missing.
var ErrStripeNotConfigured = errors.New("Stripe not configured")

// CheckoutCreator starts hosted checkout sessions.
type CheckoutCreator interface {
	CreateCheckoutSession(ctx context.Context, userID string) (string, error)
}

// EventVerifier authenticates a raw webhook body against its signature header.
type EventVerifier interface {
	VerifyEvent(payload []byte, signature string) (stripe.Event, error)
}

// WebhookResult describes what a verified webhook did.
type WebhookResult struct {
	EventID   string
	EventType string
	UserID    string
	Credited  int
	Balance   int
}

// PaymentService creates checkouts and applies purchase webhooks to the ledger.
type PaymentService struct {
	ledger             ledger.Store
	checkout           CheckoutCreator
	verifier           EventVerifier
	recorder           *audit.Recorder
	creditsPerPurchase int
	logger             *logger.Logger
}

// NewPaymentService creates a payment service. checkout and verifier may be
// nil when Stripe is not configured.
func NewPaymentService(
	store ledger.Store,
	checkout CheckoutCreator,
	verifier EventVerifier,
	recorder *audit.Recorder,
	creditsPerPurchase int,
	log *logger.Logger,
) *PaymentService {
	return &PaymentService{
		ledger:             store,
		checkout:           checkout,
		verifier:           verifier,
		recorder:           recorder,
		creditsPerPurchase: creditsPerPurchase,
		logger:             log,
	}
}

// CreateCheckout starts a checkout for userID and returns its URL.
func (s *PaymentService) CreateCheckout(ctx context.Context, userID string) (string, error) {
	if s.checkout == nil {
		return "", ErrStripeNotConfigured
	}
	if userID == "" {
		return "", &model.ValidationError{Problems: []string{"Missing userId"}}
	}
	return s.checkout.CreateCheckoutSession(ctx, userID)
}

// HandleWebhook verifies a payment event and, for a completed checkout,
// credits the purchasing user. An event that fails verification never
// touches the ledger.
func (s *PaymentService) HandleWebhook(ctx context.Context, payload []byte, signature string) (*WebhookResult, error) {
	if s.verifier == nil {
		return nil, ErrStripeNotConfigured
	}

	event, err := s.verifier.VerifyEvent(payload, signature)
	if err != nil {
		metrics.WebhooksTotal.WithLabelValues("invalid_signature").Inc()
		s.logger.Warn("rejected payment webhook", zap.Error(err))
		s.recorder.Record(ctx, model.NewErrorEvent("", "", "invalid_signature", err.Error()))
		return nil, fmt.Errorf("%w: %v", model.ErrInvalidSignature, err)
	}

	result := &WebhookResult{EventID: event.ID, EventType: event.Type}
	if event.Type != billing.EventCheckoutCompleted {
		metrics.WebhooksTotal.WithLabelValues("ignored").Inc()
		return result, nil
	}

	// The purchase is not bound to a session: an absent userId credits the
	// shared anon bucket.
	result.UserID = model.AnonymousUserID
	if event.Data != nil {
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err == nil {
			if id := sess.Metadata[billing.MetadataUserID]; id != "" {
				result.UserID = id
			}
		}
	}

	balance, err := s.ledger.Credit(ctx, result.UserID, s.creditsPerPurchase)
	if err != nil {
		metrics.WebhooksTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to credit user: %w", err)
	}
	result.Credited = s.creditsPerPurchase
	result.Balance = balance

	metrics.WebhooksTotal.WithLabelValues("credited").Inc()
	metrics.CreditsAddedTotal.Add(float64(s.creditsPerPurchase))
	s.logger.Info("credits added",
		zap.String("user_id", result.UserID),
		zap.Int("amount", s.creditsPerPurchase),
		zap.String("event_id", event.ID),
	)
	s.recorder.Record(ctx, model.NewCreditsAddedEvent(result.UserID, s.creditsPerPurchase, event.ID))

	return result, nil
}
