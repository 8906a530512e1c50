package services

import (
	"context"
	"strconv"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/checkout/session"
	"github.com/stripe/stripe-go/v79/webhook"
)

type CheckoutRequest struct {
	UserID        string
	CustomerID    string
	CustomerEmail string
	PackID        string
	PriceID       string
	Credits       int64
	Recurring     bool
}

type StripeService struct {
	webhookSecret string
	successURL    string
	cancelURL     string
}

func NewStripeService(secretKey, webhookSecret, successURL, cancelURL string) *StripeService {
	stripe.Key = secretKey
	return &StripeService{
		webhookSecret: webhookSecret,
		successURL:    successURL,
		cancelURL:     cancelURL,
	}
}

func (s *StripeService) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*stripe.CheckoutSession, error) {
	metadata := map[string]string{
		"user_id": req.UserID,
		"credits": strconv.FormatInt(req.Credits, 10),
		"pack":    req.PackID,
	}
	params := &stripe.CheckoutSessionParams{
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(req.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(s.successURL),
		CancelURL:         stripe.String(s.cancelURL),
		ClientReferenceID: stripe.String(req.UserID),
		Metadata:          metadata,
	}
	params.Context = ctx
	if req.Recurring {
		params.Mode = stripe.String(string(stripe.CheckoutSessionModeSubscription))
		// renewals only carry the subscription's metadata
		params.SubscriptionData = &stripe.CheckoutSessionSubscriptionDataParams{Metadata: metadata}
	}
	if req.CustomerID != "" {
		params.Customer = stripe.String(req.CustomerID)
	} else if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}

	return session.New(params)
}

func (s *StripeService) GetCheckoutSession(ctx context.Context, sessionID string) (*stripe.CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	return session.Get(sessionID, params)
}

func (s *StripeService) ConstructEvent(payload []byte, signatureHeader string) (stripe.Event, error) {
	return webhook.ConstructEventWithOptions(payload, signatureHeader, s.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
}
