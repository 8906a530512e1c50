package services_test

import (
	"context"
	"io"
	"sync"
	"time"

	"interchat_go_backend/internal/models"
	"interchat_go_backend/internal/services"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stripe/stripe-go/v79"
)

type MockTranslationProvider struct {
	mock.Mock
}

func (m *MockTranslationProvider) Translate(ctx context.Context, text, sourceLang, targetLang string) (services.TranslationResult, error) {
	args := m.Called(ctx, text, sourceLang, targetLang)
	return args.Get(0).(services.TranslationResult), args.Error(1)
}

func (m *MockTranslationProvider) DetectLanguage(ctx context.Context, text string) (string, error) {
	args := m.Called(ctx, text)
	return args.String(0), args.Error(1)
}

type MockTranslationCacheDB struct {
	mock.Mock
}

func (m *MockTranslationCacheDB) FindCacheEntry(ctx context.Context, sourceHash, sourceLang, targetLang string) (*models.TranslationCacheEntry, error) {
	args := m.Called(ctx, sourceHash, sourceLang, targetLang)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.TranslationCacheEntry), args.Error(1)
}

func (m *MockTranslationCacheDB) IncrementCacheUsage(ctx context.Context, id uint) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockTranslationCacheDB) UpsertCacheEntry(ctx context.Context, entry *models.TranslationCacheEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

type MockMessageServiceDB struct {
	mock.Mock
}

func (m *MockMessageServiceDB) CreateMessage(ctx context.Context, msg *models.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *MockMessageServiceDB) DeleteMessage(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockMessageServiceDB) GetMessage(ctx context.Context, id uuid.UUID) (*models.Message, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Message), args.Error(1)
}

func (m *MockMessageServiceDB) GetMessageByClientID(ctx context.Context, authorID uuid.UUID, clientMessageID string) (*models.Message, error) {
	args := m.Called(ctx, authorID, clientMessageID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Message), args.Error(1)
}

func (m *MockMessageServiceDB) CountMessagesSince(ctx context.Context, authorID uuid.UUID, since time.Time) (int64, error) {
	args := m.Called(ctx, authorID, since)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockMessageServiceDB) ListRoomMessages(ctx context.Context, roomID uuid.UUID, before *time.Time, limit int) ([]models.Message, error) {
	args := m.Called(ctx, roomID, before, limit)
	return args.Get(0).([]models.Message), args.Error(1)
}

func (m *MockMessageServiceDB) UpsertTranslation(ctx context.Context, t *models.Translation) error {
	args := m.Called(ctx, t)
	return args.Error(0)
}

func (m *MockMessageServiceDB) GetTranslation(ctx context.Context, messageID uuid.UUID, targetLang string) (*models.Translation, error) {
	args := m.Called(ctx, messageID, targetLang)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Translation), args.Error(1)
}

func (m *MockMessageServiceDB) GetTranslations(ctx context.Context, messageIDs []uuid.UUID, targetLang string) (map[uuid.UUID]models.Translation, error) {
	args := m.Called(ctx, messageIDs, targetLang)
	return args.Get(0).(map[uuid.UUID]models.Translation), args.Error(1)
}

func (m *MockMessageServiceDB) CreateUsageLog(ctx context.Context, entry *models.UsageLog) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

type MockRoomServiceDB struct {
	mock.Mock
}

func (m *MockRoomServiceDB) CreateRoom(ctx context.Context, room *models.Room) error {
	args := m.Called(ctx, room)
	return args.Error(0)
}

func (m *MockRoomServiceDB) GetRoom(ctx context.Context, id uuid.UUID) (*models.Room, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Room), args.Error(1)
}

func (m *MockRoomServiceDB) ListRoomsForUser(ctx context.Context, userID uuid.UUID) ([]models.Room, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]models.Room), args.Error(1)
}

func (m *MockRoomServiceDB) AddMember(ctx context.Context, roomID, userID uuid.UUID) error {
	args := m.Called(ctx, roomID, userID)
	return args.Error(0)
}

func (m *MockRoomServiceDB) IsMember(ctx context.Context, roomID, userID uuid.UUID) (bool, error) {
	args := m.Called(ctx, roomID, userID)
	return args.Bool(0), args.Error(1)
}

type MockCreditLedgerDB struct {
	mock.Mock
}

func (m *MockCreditLedgerDB) GetBalance(ctx context.Context, userID uuid.UUID) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockCreditLedgerDB) SpendCredits(ctx context.Context, userID uuid.UUID, amount int64, referenceID *string, description string) (int64, error) {
	args := m.Called(ctx, userID, amount, referenceID, description)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockCreditLedgerDB) AddCredits(ctx context.Context, userID uuid.UUID, amount int64, txType models.CreditTransactionType, referenceID, description string) (bool, int64, error) {
	args := m.Called(ctx, userID, amount, txType, referenceID, description)
	return args.Bool(0), args.Get(1).(int64), args.Error(2)
}

func (m *MockCreditLedgerDB) HasTransaction(ctx context.Context, referenceID string) (bool, error) {
	args := m.Called(ctx, referenceID)
	return args.Bool(0), args.Error(1)
}

func (m *MockCreditLedgerDB) ListTransactions(ctx context.Context, userID uuid.UUID, limit int) ([]models.CreditTransaction, error) {
	args := m.Called(ctx, userID, limit)
	return args.Get(0).([]models.CreditTransaction), args.Error(1)
}

// fakeLedger keeps balances in memory and honours reference idempotency.
type fakeLedger struct {
	mu         sync.Mutex
	balances   map[uuid.UUID]int64
	references map[string]bool
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{balances: map[uuid.UUID]int64{}, references: map[string]bool{}}
}

func (f *fakeLedger) GetBalance(ctx context.Context, userID uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balances[userID], nil
}

func (f *fakeLedger) SpendCredits(ctx context.Context, userID uuid.UUID, amount int64, referenceID *string, description string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.balances[userID] < amount {
		return 0, services.ErrInsufficientCredits
	}
	f.balances[userID] -= amount
	return f.balances[userID], nil
}

func (f *fakeLedger) AddCredits(ctx context.Context, userID uuid.UUID, amount int64, txType models.CreditTransactionType, referenceID, description string) (bool, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.references[referenceID] {
		return false, 0, nil
	}
	f.references[referenceID] = true
	f.balances[userID] += amount
	return true, f.balances[userID], nil
}

func (f *fakeLedger) HasTransaction(ctx context.Context, referenceID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.references[referenceID], nil
}

func (f *fakeLedger) ListTransactions(ctx context.Context, userID uuid.UUID, limit int) ([]models.CreditTransaction, error) {
	return nil, nil
}

type MockUserServiceDB struct {
	mock.Mock
}

func (m *MockUserServiceDB) UpsertUser(ctx context.Context, user *models.User) (bool, error) {
	args := m.Called(ctx, user)
	return args.Bool(0), args.Error(1)
}

func (m *MockUserServiceDB) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserServiceDB) GetUserByStripeCustomer(ctx context.Context, customerID string) (*models.User, error) {
	args := m.Called(ctx, customerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserServiceDB) UpdatePreferredLanguage(ctx context.Context, id uuid.UUID, lang string) error {
	args := m.Called(ctx, id, lang)
	return args.Error(0)
}

func (m *MockUserServiceDB) SetStripeCustomerID(ctx context.Context, id uuid.UUID, customerID string) error {
	args := m.Called(ctx, id, customerID)
	return args.Error(0)
}

type MockCheckoutProvider struct {
	mock.Mock
}

func (m *MockCheckoutProvider) CreateCheckoutSession(ctx context.Context, req services.CheckoutRequest) (*stripe.CheckoutSession, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*stripe.CheckoutSession), args.Error(1)
}

func (m *MockCheckoutProvider) GetCheckoutSession(ctx context.Context, sessionID string) (*stripe.CheckoutSession, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*stripe.CheckoutSession), args.Error(1)
}

func (m *MockCheckoutProvider) ConstructEvent(payload []byte, signatureHeader string) (stripe.Event, error) {
	args := m.Called(payload, signatureHeader)
	return args.Get(0).(stripe.Event), args.Error(1)
}

type MockKnowledgeServiceDB struct {
	mock.Mock
}

func (m *MockKnowledgeServiceDB) CreateSource(ctx context.Context, src *models.KnowledgeSource) error {
	args := m.Called(ctx, src)
	return args.Error(0)
}

func (m *MockKnowledgeServiceDB) GetSource(ctx context.Context, id uuid.UUID) (*models.KnowledgeSource, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.KnowledgeSource), args.Error(1)
}

func (m *MockKnowledgeServiceDB) ListSources(ctx context.Context, limit int) ([]models.KnowledgeSource, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]models.KnowledgeSource), args.Error(1)
}

func (m *MockKnowledgeServiceDB) ListPendingSources(ctx context.Context, limit int) ([]models.KnowledgeSource, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]models.KnowledgeSource), args.Error(1)
}

func (m *MockKnowledgeServiceDB) ClaimSource(ctx context.Context, id uuid.UUID) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockKnowledgeServiceDB) CompleteSource(ctx context.Context, id uuid.UUID, title string, chunks []models.KnowledgeChunk) error {
	args := m.Called(ctx, id, title, chunks)
	return args.Error(0)
}

func (m *MockKnowledgeServiceDB) FailSource(ctx context.Context, id uuid.UUID, message string) error {
	args := m.Called(ctx, id, message)
	return args.Error(0)
}

func (m *MockKnowledgeServiceDB) ListChunks(ctx context.Context, sourceID uuid.UUID) ([]models.KnowledgeChunk, error) {
	args := m.Called(ctx, sourceID)
	return args.Get(0).([]models.KnowledgeChunk), args.Error(1)
}

type MockContentExtractor struct {
	mock.Mock
}

func (m *MockContentExtractor) ExtractURL(ctx context.Context, rawURL string) (*services.ExtractedContent, error) {
	args := m.Called(ctx, rawURL)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.ExtractedContent), args.Error(1)
}

func (m *MockContentExtractor) ExtractPDF(data []byte) (*services.ExtractedContent, error) {
	args := m.Called(data)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.ExtractedContent), args.Error(1)
}

type MockStorage struct {
	mock.Mock
}

func (m *MockStorage) UploadFile(ctx context.Context, bucketName, objectName, contentType string, content io.Reader) error {
	args := m.Called(ctx, bucketName, objectName, contentType, content)
	return args.Error(0)
}

func (m *MockStorage) DownloadFile(ctx context.Context, bucketName, objectName string) ([]byte, error) {
	args := m.Called(ctx, bucketName, objectName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockStorage) DeleteFile(ctx context.Context, bucketName, objectName string) error {
	args := m.Called(ctx, bucketName, objectName)
	return args.Error(0)
}

type MockTranscriber struct {
	mock.Mock
}

func (m *MockTranscriber) Transcribe(ctx context.Context, filename string, audio io.Reader, languageHint string) (services.Transcription, error) {
	args := m.Called(ctx, filename, audio, languageHint)
	return args.Get(0).(services.Transcription), args.Error(1)
}

type MockLineReplier struct {
	mock.Mock
}

func (m *MockLineReplier) Reply(ctx context.Context, replyToken string, texts []string) error {
	args := m.Called(ctx, replyToken, texts)
	return args.Error(0)
}
