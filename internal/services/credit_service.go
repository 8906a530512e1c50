package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"interchat_go_backend/internal/broker"
	apperrors "interchat_go_backend/internal/errors"
	"interchat_go_backend/internal/metrics"
	"interchat_go_backend/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v79"
	"gorm.io/gorm"
)

const defaultTransactionLimit = 50

type CreditPack struct {
	ID        string `json:"id"`
	PriceID   string `json:"-"`
	Credits   int64  `json:"credits"`
	Recurring bool   `json:"recurring"`
}

type CheckoutResult struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
}

type FinalizeResult struct {
	Applied bool  `json:"applied"`
	Credits int64 `json:"credits"`
	Balance int64 `json:"balance"`
}

type CreditService struct {
	ledger   CreditLedgerDB
	users    UserServiceDB
	checkout CheckoutProvider
	broker   broker.MessageBroker
	packs    []CreditPack
}

func NewCreditService(ledger CreditLedgerDB, users UserServiceDB, checkout CheckoutProvider, b broker.MessageBroker, packs []CreditPack) *CreditService {
	return &CreditService{
		ledger:   ledger,
		users:    users,
		checkout: checkout,
		broker:   b,
		packs:    packs,
	}
}

// Packs lists the purchasable packs, i.e. those with a Stripe price.
func (s *CreditService) Packs() []CreditPack {
	packs := make([]CreditPack, 0, len(s.packs))
	for _, p := range s.packs {
		if p.PriceID != "" {
			packs = append(packs, p)
		}
	}
	return packs
}

func (s *CreditService) GetBalance(ctx context.Context, userID uuid.UUID) (int64, error) {
	balance, err := s.ledger.GetBalance(ctx, userID)
	if err != nil {
		return 0, apperrors.New500Error(err)
	}
	return balance, nil
}

func (s *CreditService) ListTransactions(ctx context.Context, userID uuid.UUID, limit int) ([]models.CreditTransaction, error) {
	if limit <= 0 || limit > defaultTransactionLimit {
		limit = defaultTransactionLimit
	}
	txns, err := s.ledger.ListTransactions(ctx, userID, limit)
	if err != nil {
		return nil, apperrors.New500Error(err)
	}
	return txns, nil
}

func (s *CreditService) CreateCheckout(ctx context.Context, user *models.User, packID string) (*CheckoutResult, error) {
	if user.IsAnonymous {
		return nil, apperrors.New403Error("Sign in to buy credits")
	}
	pack, ok := s.pack(packID)
	if !ok {
		return nil, apperrors.New400Error("Unknown credit pack")
	}
	sess, err := s.checkout.CreateCheckoutSession(ctx, CheckoutRequest{
		UserID:        user.ID.String(),
		CustomerID:    user.StripeCustomerID,
		CustomerEmail: user.Email,
		PackID:        pack.ID,
		PriceID:       pack.PriceID,
		Credits:       pack.Credits,
		Recurring:     pack.Recurring,
	})
	if err != nil {
		return nil, apperrors.New500Error(fmt.Errorf("failed to create checkout session: %w", err))
	}
	return &CheckoutResult{SessionID: sess.ID, URL: sess.URL}, nil
}

// FinalizeCheckout credits a paid one-time checkout on the client redirect. The session
// id is the ledger reference, so repeated calls and the webhook credit once in total.
func (s *CreditService) FinalizeCheckout(ctx context.Context, user *models.User, sessionID string) (*FinalizeResult, error) {
	if sessionID == "" {
		return nil, apperrors.New400Error("session_id is required")
	}
	sess, err := s.checkout.GetCheckoutSession(ctx, sessionID)
	if err != nil {
		return nil, apperrors.New500Error(fmt.Errorf("failed to retrieve checkout session: %w", err))
	}
	if sess.ClientReferenceID != user.ID.String() {
		return nil, apperrors.New403Error("This checkout belongs to another account")
	}
	s.rememberCustomer(ctx, user.ID, sess.Customer)

	if sess.Mode == stripe.CheckoutSessionModeSubscription {
		// subscription credits arrive with invoice.paid
		balance, err := s.GetBalance(ctx, user.ID)
		if err != nil {
			return nil, err
		}
		return &FinalizeResult{Applied: false, Balance: balance}, nil
	}
	if sess.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
		return nil, apperrors.New400Error("Payment has not been completed")
	}

	credits, err := metadataCredits(sess.Metadata)
	if err != nil {
		return nil, apperrors.New500Error(err)
	}
	return s.grant(ctx, user.ID, credits, models.CreditPurchase, sess.ID, fmt.Sprintf("Credit pack %s", sess.Metadata["pack"]))
}

// HandleStripeEvent verifies and applies a webhook delivery.
func (s *CreditService) HandleStripeEvent(ctx context.Context, payload []byte, signatureHeader string) error {
	log := zerolog.Ctx(ctx)

	event, err := s.checkout.ConstructEvent(payload, signatureHeader)
	if err != nil {
		log.Warn().Err(err).Msg("Rejected Stripe webhook")
		return apperrors.New400Error("Invalid webhook signature")
	}

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return apperrors.New400Error("Malformed checkout session payload")
		}
		return s.applyCheckoutCompleted(ctx, &sess)
	case stripe.EventTypeInvoicePaid:
		var inv stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
			return apperrors.New400Error("Malformed invoice payload")
		}
		return s.applyInvoicePaid(ctx, &inv)
	default:
		log.Debug().Str("event_type", string(event.Type)).Msg("Ignoring Stripe event")
		return nil
	}
}

func (s *CreditService) applyCheckoutCompleted(ctx context.Context, sess *stripe.CheckoutSession) error {
	log := zerolog.Ctx(ctx).With().Str("session_id", sess.ID).Logger()

	userID, err := uuid.Parse(sess.ClientReferenceID)
	if err != nil {
		log.Warn().Str("client_reference_id", sess.ClientReferenceID).Msg("Checkout session without a user reference")
		return nil
	}
	s.rememberCustomer(ctx, userID, sess.Customer)

	if sess.Mode != stripe.CheckoutSessionModePayment || sess.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
		return nil
	}
	credits, err := metadataCredits(sess.Metadata)
	if err != nil {
		log.Error().Err(err).Msg("Checkout session without credit metadata")
		return nil
	}
	_, err = s.grant(ctx, userID, credits, models.CreditPurchase, sess.ID, fmt.Sprintf("Credit pack %s", sess.Metadata["pack"]))
	return err
}

func (s *CreditService) applyInvoicePaid(ctx context.Context, inv *stripe.Invoice) error {
	log := zerolog.Ctx(ctx).With().Str("invoice_id", inv.ID).Logger()

	var metadata map[string]string
	if inv.SubscriptionDetails != nil {
		metadata = inv.SubscriptionDetails.Metadata
	}

	userID, err := uuid.Parse(metadata["user_id"])
	if err != nil {
		if inv.Customer == nil {
			log.Warn().Msg("Invoice without user or customer")
			return nil
		}
		user, err := s.users.GetUserByStripeCustomer(ctx, inv.Customer.ID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warn().Str("customer_id", inv.Customer.ID).Msg("Invoice for unknown customer")
			return nil
		}
		if err != nil {
			return apperrors.New500Error(err)
		}
		userID = user.ID
	}

	credits, err := metadataCredits(metadata)
	if err != nil {
		pack, ok := s.recurringPack()
		if !ok {
			log.Error().Msg("Invoice paid but no recurring pack is configured")
			return nil
		}
		credits = pack.Credits
	}
	_, err = s.grant(ctx, userID, credits, models.CreditSubscription, inv.ID, "Subscription renewal")
	return err
}

func (s *CreditService) grant(ctx context.Context, userID uuid.UUID, credits int64, txType models.CreditTransactionType, reference, description string) (*FinalizeResult, error) {
	applied, balance, err := s.ledger.AddCredits(ctx, userID, credits, txType, reference, description)
	if err != nil {
		return nil, apperrors.New500Error(fmt.Errorf("failed to add credits: %w", err))
	}
	if !applied {
		zerolog.Ctx(ctx).Info().Str("reference", reference).Msg("Credits already applied")
		balance, err = s.ledger.GetBalance(ctx, userID)
		if err != nil {
			return nil, apperrors.New500Error(err)
		}
		return &FinalizeResult{Applied: false, Balance: balance}, nil
	}

	metrics.CreditsGranted.WithLabelValues(string(txType)).Add(float64(credits))
	evt, err := broker.NewEvent(EventCreditUpdate, CreditUpdateEvent{Balance: balance, Delta: credits})
	if err == nil {
		s.broker.Publish(broker.CreditTopic(userID.String()), evt)
	}
	return &FinalizeResult{Applied: true, Credits: credits, Balance: balance}, nil
}

func (s *CreditService) rememberCustomer(ctx context.Context, userID uuid.UUID, customer *stripe.Customer) {
	if customer == nil || customer.ID == "" {
		return
	}
	if err := s.users.SetStripeCustomerID(ctx, userID, customer.ID); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("user_id", userID.String()).Msg("Failed to store Stripe customer id")
	}
}

func (s *CreditService) pack(id string) (CreditPack, bool) {
	for _, p := range s.packs {
		if p.ID == id && p.PriceID != "" {
			return p, true
		}
	}
	return CreditPack{}, false
}

func (s *CreditService) recurringPack() (CreditPack, bool) {
	for _, p := range s.packs {
		if p.Recurring {
			return p, true
		}
	}
	return CreditPack{}, false
}

func metadataCredits(metadata map[string]string) (int64, error) {
	raw, ok := metadata["credits"]
	if !ok {
		return 0, errors.New("credits metadata missing")
	}
	credits, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || credits <= 0 {
		return 0, fmt.Errorf("invalid credits metadata %q", raw)
	}
	return credits, nil
}
