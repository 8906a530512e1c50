package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"interchat_go_backend/internal/models"
	"interchat_go_backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockKnowledgeDB struct {
	mock.Mock
}

func (m *MockKnowledgeDB) CreateSource(ctx context.Context, src *models.KnowledgeSource) error {
	return m.Called(ctx, src).Error(0)
}

func (m *MockKnowledgeDB) GetSource(ctx context.Context, id uuid.UUID) (*models.KnowledgeSource, error) {
	args := m.Called(ctx, id)
	src, _ := args.Get(0).(*models.KnowledgeSource)
	return src, args.Error(1)
}

func (m *MockKnowledgeDB) ListSources(ctx context.Context, limit int) ([]models.KnowledgeSource, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]models.KnowledgeSource), args.Error(1)
}

func (m *MockKnowledgeDB) ListPendingSources(ctx context.Context, limit int) ([]models.KnowledgeSource, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]models.KnowledgeSource), args.Error(1)
}

func (m *MockKnowledgeDB) ClaimSource(ctx context.Context, id uuid.UUID) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockKnowledgeDB) CompleteSource(ctx context.Context, id uuid.UUID, title string, chunks []models.KnowledgeChunk) error {
	return m.Called(ctx, id, title, chunks).Error(0)
}

func (m *MockKnowledgeDB) FailSource(ctx context.Context, id uuid.UUID, message string) error {
	return m.Called(ctx, id, message).Error(0)
}

func (m *MockKnowledgeDB) ListChunks(ctx context.Context, sourceID uuid.UUID) ([]models.KnowledgeChunk, error) {
	args := m.Called(ctx, sourceID)
	return args.Get(0).([]models.KnowledgeChunk), args.Error(1)
}

const cronSecret = "cron-secret"

func newTestRouter(t *testing.T, user *models.User, knowledgeDB services.KnowledgeServiceDB) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	require.NoError(t, RegisterValidators())

	stripeService := services.NewStripeService("sk_test_123", "whsec_test", "http://localhost/success", "http://localhost/cancel")
	credits := services.NewCreditService(nil, nil, stripeService, nil, []services.CreditPack{
		{ID: "starter", PriceID: "price_starter", Credits: 500},
		{ID: "monthly", PriceID: "price_monthly", Credits: 2000, Recurring: true},
	})

	fakeAuth := func(c *gin.Context) {
		if user != nil {
			c.Set("user", user)
		}
		c.Next()
	}

	r := gin.New()
	SetupRoutes(r, fakeAuth, Services{
		Credits:       credits,
		Knowledge:     services.NewKnowledgeService(knowledgeDB, nil, nil, "", services.KnowledgeLimits{MaxChunks: 30, ChunkWords: 1000}),
		Line:          services.NewLineService(nil, nil, "line-secret", "ja", "en"),
		CronSecret:    cronSecret,
		CronBatchSize: 4,
	})
	return r
}

func perform(r *gin.Engine, method, path string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCurrentUserRequired(t *testing.T) {
	r := newTestRouter(t, nil, new(MockKnowledgeDB))

	w := perform(r, http.MethodGet, "/api/users/me", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGetCurrentUser(t *testing.T) {
	user := &models.User{ID: uuid.New(), Email: "ana@example.com", PreferredLanguage: "es"}
	r := newTestRouter(t, user, new(MockKnowledgeDB))

	w := perform(r, http.MethodGet, "/api/users/me", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var got models.User
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, user.ID, got.ID)
	assert.Equal(t, "es", got.PreferredLanguage)
}

func TestLanguageValidation(t *testing.T) {
	user := &models.User{ID: uuid.New()}
	r := newTestRouter(t, user, new(MockKnowledgeDB))

	w := perform(r, http.MethodPut, "/api/users/me/language", []byte(`{"language":"klingon"}`), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "langcode")

	w = perform(r, http.MethodPost, "/api/messages/"+uuid.NewString()+"/translate", []byte(`{}`), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestInvalidRoomID(t *testing.T) {
	user := &models.User{ID: uuid.New()}
	r := newTestRouter(t, user, new(MockKnowledgeDB))

	w := perform(r, http.MethodPost, "/api/rooms/not-a-uuid/messages", []byte(`{"content":"hola"}`), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid id")
}

func TestCreditPacksHidePriceIDs(t *testing.T) {
	r := newTestRouter(t, nil, new(MockKnowledgeDB))

	w := perform(r, http.MethodGet, "/api/credits/packs", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"starter"`)
	assert.NotContains(t, w.Body.String(), "price_starter")
}

func TestStripeWebhookRejectsBadSignature(t *testing.T) {
	r := newTestRouter(t, nil, new(MockKnowledgeDB))

	w := perform(r, http.MethodPost, "/api/webhooks/stripe", []byte(`{"type":"invoice.paid"}`), map[string]string{"Stripe-Signature": "t=1,v1=deadbeef"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLineWebhookRejectsBadSignature(t *testing.T) {
	r := newTestRouter(t, nil, new(MockKnowledgeDB))

	w := perform(r, http.MethodPost, "/api/webhooks/line", []byte(`{"events":[]}`), map[string]string{services.LineSignatureHeader: "bm9wZQ=="})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCronKnowledgeEndpoint(t *testing.T) {
	t.Run("Missing secret", func(t *testing.T) {
		r := newTestRouter(t, nil, new(MockKnowledgeDB))
		w := perform(r, http.MethodPost, "/api/cron/knowledge", nil, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("Wrong secret", func(t *testing.T) {
		r := newTestRouter(t, nil, new(MockKnowledgeDB))
		w := perform(r, http.MethodPost, "/api/cron/knowledge", nil, map[string]string{"Authorization": "Bearer nope"})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("Runs a batch", func(t *testing.T) {
		db := new(MockKnowledgeDB)
		db.On("ListPendingSources", mock.Anything, 3).Return([]models.KnowledgeSource{}, nil).Once()
		r := newTestRouter(t, nil, db)

		w := perform(r, http.MethodPost, "/api/cron/knowledge?limit=3", nil, map[string]string{"Authorization": "Bearer " + cronSecret})
		require.Equal(t, http.StatusOK, w.Code)

		var summary services.ProcessSummary
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summary))
		assert.Equal(t, 0, summary.Claimed)
		db.AssertExpectations(t)
	})

	t.Run("Configured batch size without a limit", func(t *testing.T) {
		db := new(MockKnowledgeDB)
		db.On("ListPendingSources", mock.Anything, 4).Return([]models.KnowledgeSource{}, nil).Once()
		r := newTestRouter(t, nil, db)

		w := perform(r, http.MethodPost, "/api/cron/knowledge", nil, map[string]string{"Authorization": "Bearer " + cronSecret})
		require.Equal(t, http.StatusOK, w.Code)
		db.AssertExpectations(t)
	})

	t.Run("Limit is capped", func(t *testing.T) {
		db := new(MockKnowledgeDB)
		db.On("ListPendingSources", mock.Anything, 50).Return([]models.KnowledgeSource{}, nil).Once()
		r := newTestRouter(t, nil, db)

		w := perform(r, http.MethodPost, "/api/cron/knowledge?limit=100000", nil, map[string]string{"Authorization": "Bearer " + cronSecret})
		require.Equal(t, http.StatusOK, w.Code)
		db.AssertExpectations(t)
	})
}
