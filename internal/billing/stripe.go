// Package billing wraps the Stripe payment processor.
package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v72"
	"github.com/stripe/stripe-go/v72/client"
	"github.com/stripe/stripe-go/v72/webhook"
)

// EventCheckoutCompleted is the Stripe event type for a finished purchase.
const EventCheckoutCompleted = "checkout.session.completed"

// MetadataUserID is the checkout metadata key carrying the purchasing user.
const MetadataUserID = "userId"

// StripeConfig holds Stripe settings.
type StripeConfig struct {
	SecretKey     string
	PriceID       string
	WebhookSecret string
	SuccessURL    string
	CancelURL     string

	// Backends overrides the Stripe API endpoint, used by tests.
	Backends *stripe.Backends
}

// StripeClient creates checkout sessions and verifies webhook events.
type StripeClient struct {
	api           *client.API
	priceID       string
	webhookSecret string
	successURL    string
	cancelURL     string
}

// NewStripeClient creates a new Stripe client.
func NewStripeClient(cfg StripeConfig) (*StripeClient, error) {
	if cfg.SecretKey == "" {
		return nil, errors.New("stripe secret key is required")
	}

	return &StripeClient{
		api:           client.New(cfg.SecretKey, cfg.Backends),
		priceID:       cfg.PriceID,
		webhookSecret: cfg.WebhookSecret,
		successURL:    cfg.SuccessURL,
		cancelURL:     cfg.CancelURL,
	}, nil
}

// CreateCheckoutSession starts a one-item payment checkout for userID and
// returns the hosted checkout URL.
func (s *StripeClient) CreateCheckoutSession(ctx context.Context, userID string) (string, error) {
	if s.priceID == "" {
		return "", errors.New("stripe price ID is not configured")
	}

	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(s.priceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(s.successURL),
		CancelURL:  stripe.String(s.cancelURL),
	}
	params.Context = ctx
	params.AddMetadata(MetadataUserID, userID)

	sess, err := s.api.CheckoutSessions.New(params)
	if err != nil {
		return "", fmt.Errorf("failed to create checkout session: %w", err)
	}
	return sess.URL, nil
}

// VerifyEvent checks the Stripe-Signature header against the webhook secret
// and decodes the event. Nothing in payload is trusted until this succeeds.
func (s *StripeClient) VerifyEvent(payload []byte, signature string) (stripe.Event, error) {
	return webhook.ConstructEvent(payload, signature, s.webhookSecret)
}
