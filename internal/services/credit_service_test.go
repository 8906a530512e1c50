package services_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"interchat_go_backend/internal/broker"
	apperrors "interchat_go_backend/internal/errors"
	"interchat_go_backend/internal/models"
	"interchat_go_backend/internal/services"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79"
)

var testPacks = []services.CreditPack{
	{ID: "starter", PriceID: "price_starter", Credits: 500},
	{ID: "monthly", PriceID: "price_monthly", Credits: 2000, Recurring: true},
	{ID: "unpriced", Credits: 10},
}

func paidSession(id string, userID uuid.UUID) *stripe.CheckoutSession {
	return &stripe.CheckoutSession{
		ID:                id,
		ClientReferenceID: userID.String(),
		Mode:              stripe.CheckoutSessionModePayment,
		PaymentStatus:     stripe.CheckoutSessionPaymentStatusPaid,
		Metadata:          map[string]string{"credits": "500", "pack": "starter"},
	}
}

func TestFinalizeCheckout(t *testing.T) {
	ctx := context.Background()

	t.Run("Finalizing twice credits once", func(t *testing.T) {
		ledger := newFakeLedger()
		checkout := new(MockCheckoutProvider)
		svc := services.NewCreditService(ledger, new(MockUserServiceDB), checkout, broker.NewBroker(), testPacks)
		user := &models.User{ID: uuid.New()}
		checkout.On("GetCheckoutSession", mock.Anything, "cs_test_1").Return(paidSession("cs_test_1", user.ID), nil).Twice()

		first, err := svc.FinalizeCheckout(ctx, user, "cs_test_1")
		require.NoError(t, err)
		assert.True(t, first.Applied)
		assert.Equal(t, int64(500), first.Balance)

		second, err := svc.FinalizeCheckout(ctx, user, "cs_test_1")
		require.NoError(t, err)
		assert.False(t, second.Applied)
		assert.Equal(t, int64(500), second.Balance)

		balance, _ := ledger.GetBalance(ctx, user.ID)
		assert.Equal(t, int64(500), balance)
	})

	t.Run("Session of another user is rejected", func(t *testing.T) {
		checkout := new(MockCheckoutProvider)
		svc := services.NewCreditService(newFakeLedger(), new(MockUserServiceDB), checkout, broker.NewBroker(), testPacks)
		checkout.On("GetCheckoutSession", mock.Anything, "cs_other").Return(paidSession("cs_other", uuid.New()), nil).Once()

		_, err := svc.FinalizeCheckout(ctx, &models.User{ID: uuid.New()}, "cs_other")

		assert.Equal(t, apperrors.ErrorTypeForbidden, apperrors.As(err).Type)
	})

	t.Run("Unpaid session is rejected", func(t *testing.T) {
		checkout := new(MockCheckoutProvider)
		ledger := newFakeLedger()
		svc := services.NewCreditService(ledger, new(MockUserServiceDB), checkout, broker.NewBroker(), testPacks)
		user := &models.User{ID: uuid.New()}
		sess := paidSession("cs_unpaid", user.ID)
		sess.PaymentStatus = stripe.CheckoutSessionPaymentStatusUnpaid
		checkout.On("GetCheckoutSession", mock.Anything, "cs_unpaid").Return(sess, nil).Once()

		_, err := svc.FinalizeCheckout(ctx, user, "cs_unpaid")

		assert.Equal(t, apperrors.ErrorTypeBadRequest, apperrors.As(err).Type)
		balance, _ := ledger.GetBalance(ctx, user.ID)
		assert.Equal(t, int64(0), balance)
	})

	t.Run("Stripe outage is an internal error", func(t *testing.T) {
		checkout := new(MockCheckoutProvider)
		svc := services.NewCreditService(newFakeLedger(), new(MockUserServiceDB), checkout, broker.NewBroker(), testPacks)
		checkout.On("GetCheckoutSession", mock.Anything, "cs_x").Return(nil, errors.New("stripe down")).Once()

		_, err := svc.FinalizeCheckout(ctx, &models.User{ID: uuid.New()}, "cs_x")

		assert.Equal(t, apperrors.ErrorTypeInternalServerError, apperrors.As(err).Type)
	})
}

func TestCreateCheckout(t *testing.T) {
	ctx := context.Background()
	checkout := new(MockCheckoutProvider)
	svc := services.NewCreditService(newFakeLedger(), new(MockUserServiceDB), checkout, broker.NewBroker(), testPacks)
	user := &models.User{ID: uuid.New(), Email: "a@example.com"}

	checkout.On("CreateCheckoutSession", mock.Anything, services.CheckoutRequest{
		UserID:        user.ID.String(),
		CustomerEmail: "a@example.com",
		PackID:        "monthly",
		PriceID:       "price_monthly",
		Credits:       2000,
		Recurring:     true,
	}).Return(&stripe.CheckoutSession{ID: "cs_new", URL: "https://checkout.stripe.com/c/cs_new"}, nil).Once()

	result, err := svc.CreateCheckout(ctx, user, "monthly")
	require.NoError(t, err)
	assert.Equal(t, "cs_new", result.SessionID)
	assert.Equal(t, "https://checkout.stripe.com/c/cs_new", result.URL)

	_, err = svc.CreateCheckout(ctx, user, "unpriced")
	assert.Equal(t, apperrors.ErrorTypeBadRequest, apperrors.As(err).Type)

	_, err = svc.CreateCheckout(ctx, &models.User{ID: uuid.New(), IsAnonymous: true}, "starter")
	assert.Equal(t, apperrors.ErrorTypeForbidden, apperrors.As(err).Type)

	assert.Len(t, svc.Packs(), 2)
	checkout.AssertExpectations(t)
}

func TestHandleStripeEvent(t *testing.T) {
	ctx := context.Background()

	t.Run("Invalid signature", func(t *testing.T) {
		checkout := new(MockCheckoutProvider)
		svc := services.NewCreditService(newFakeLedger(), new(MockUserServiceDB), checkout, broker.NewBroker(), testPacks)
		checkout.On("ConstructEvent", []byte("{}"), "bad").Return(stripe.Event{}, errors.New("signature mismatch")).Once()

		err := svc.HandleStripeEvent(ctx, []byte("{}"), "bad")

		assert.Equal(t, apperrors.ErrorTypeBadRequest, apperrors.As(err).Type)
	})

	t.Run("Webhook and redirect share the session reference", func(t *testing.T) {
		ledger := newFakeLedger()
		checkout := new(MockCheckoutProvider)
		users := new(MockUserServiceDB)
		svc := services.NewCreditService(ledger, users, checkout, broker.NewBroker(), testPacks)
		user := &models.User{ID: uuid.New()}

		raw := fmt.Sprintf(`{"id":"cs_hook","object":"checkout.session","client_reference_id":%q,"mode":"payment","payment_status":"paid","customer":"cus_1","metadata":{"credits":"500","pack":"starter"}}`, user.ID)
		checkout.On("ConstructEvent", mock.Anything, "sig").Return(stripe.Event{
			Type: stripe.EventTypeCheckoutSessionCompleted,
			Data: &stripe.EventData{Raw: json.RawMessage(raw)},
		}, nil).Once()
		users.On("SetStripeCustomerID", mock.Anything, user.ID, "cus_1").Return(nil)
		checkout.On("GetCheckoutSession", mock.Anything, "cs_hook").Return(paidSession("cs_hook", user.ID), nil).Once()

		require.NoError(t, svc.HandleStripeEvent(ctx, []byte(raw), "sig"))
		result, err := svc.FinalizeCheckout(ctx, user, "cs_hook")
		require.NoError(t, err)

		assert.False(t, result.Applied)
		assert.Equal(t, int64(500), result.Balance)
	})

	t.Run("Invoice paid credits the subscription", func(t *testing.T) {
		ledger := newFakeLedger()
		checkout := new(MockCheckoutProvider)
		svc := services.NewCreditService(ledger, new(MockUserServiceDB), checkout, broker.NewBroker(), testPacks)
		userID := uuid.New()

		raw := fmt.Sprintf(`{"id":"in_1","object":"invoice","subscription_details":{"metadata":{"user_id":%q,"credits":"2000"}}}`, userID)
		checkout.On("ConstructEvent", mock.Anything, "sig").Return(stripe.Event{
			Type: stripe.EventTypeInvoicePaid,
			Data: &stripe.EventData{Raw: json.RawMessage(raw)},
		}, nil).Twice()

		require.NoError(t, svc.HandleStripeEvent(ctx, []byte(raw), "sig"))
		require.NoError(t, svc.HandleStripeEvent(ctx, []byte(raw), "sig"))

		balance, _ := ledger.GetBalance(ctx, userID)
		assert.Equal(t, int64(2000), balance)
	})

	t.Run("Invoice falls back to the stored customer", func(t *testing.T) {
		ledger := newFakeLedger()
		checkout := new(MockCheckoutProvider)
		users := new(MockUserServiceDB)
		svc := services.NewCreditService(ledger, users, checkout, broker.NewBroker(), testPacks)
		user := &models.User{ID: uuid.New(), StripeCustomerID: "cus_9"}

		raw := `{"id":"in_2","object":"invoice","customer":"cus_9"}`
		checkout.On("ConstructEvent", mock.Anything, "sig").Return(stripe.Event{
			Type: stripe.EventTypeInvoicePaid,
			Data: &stripe.EventData{Raw: json.RawMessage(raw)},
		}, nil).Once()
		users.On("GetUserByStripeCustomer", mock.Anything, "cus_9").Return(user, nil).Once()

		require.NoError(t, svc.HandleStripeEvent(ctx, []byte(raw), "sig"))

		balance, _ := ledger.GetBalance(ctx, user.ID)
		assert.Equal(t, int64(2000), balance)
	})
}
