package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"interchat_go_backend/internal/broker"
	apperrors "interchat_go_backend/internal/errors"
	"interchat_go_backend/internal/metrics"
	"interchat_go_backend/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

const (
	EventMessage      = "message"
	EventCreditUpdate = "credit_update"
	EventError        = "error"

	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

type MessageLimits struct {
	DemoRoomID           uuid.UUID
	AnonymousWindow      time.Duration
	AnonymousWindowLimit int
	AnonymousDailyLimit  int
	MaxAttachments       int
	MaxAttachmentBytes   int64
}

type SendMessageRequest struct {
	RoomID          uuid.UUID
	AuthorID        uuid.UUID
	Content         string
	SourceLanguage  string
	TargetLanguage  string
	Attachments     []models.Attachment
	ClientMessageID string
	Source          string
}

type SendMessageResult struct {
	Message     models.Message      `json:"message"`
	Translation *models.Translation `json:"translation,omitempty"`
	UsageType   models.UsageType    `json:"usage_type"`
	Credits     int64               `json:"credits_charged"`
	Duplicate   bool                `json:"duplicate"`
}

// MessageEvent is published on a room topic for every stored message.
type MessageEvent struct {
	Message     models.Message      `json:"message"`
	Translation *models.Translation `json:"translation,omitempty"`
}

type CreditUpdateEvent struct {
	Balance int64 `json:"balance"`
	Delta   int64 `json:"delta"`
}

type RoomMessage struct {
	models.Message
	Translation *models.Translation `json:"translation,omitempty"`
}

type MessageService struct {
	db     MessageServiceDB
	rooms  RoomServiceDB
	ledger CreditLedgerDB
	engine *TranslationEngine
	broker broker.MessageBroker
	limits MessageLimits
	now    func() time.Time
}

func NewMessageService(db MessageServiceDB, rooms RoomServiceDB, ledger CreditLedgerDB, engine *TranslationEngine, b broker.MessageBroker, limits MessageLimits) *MessageService {
	return &MessageService{
		db:     db,
		rooms:  rooms,
		ledger: ledger,
		engine: engine,
		broker: b,
		limits: limits,
		now:    time.Now,
	}
}

// SetClock replaces the time source used for rate limiting.
func (s *MessageService) SetClock(now func() time.Time) {
	s.now = now
}

// SendMessage validates, translates, stores and charges for a message. On any error
// no message row is left behind.
func (s *MessageService) SendMessage(ctx context.Context, caller *models.User, req SendMessageRequest) (*SendMessageResult, error) {
	log := zerolog.Ctx(ctx).With().Str("room_id", req.RoomID.String()).Str("author_id", req.AuthorID.String()).Logger()

	content := strings.TrimSpace(req.Content)
	if err := s.validateInput(content, req.Attachments); err != nil {
		return nil, err
	}

	if caller == nil || caller.ID != req.AuthorID {
		return nil, apperrors.New403Error("You can only send messages as yourself")
	}
	if _, err := s.AuthorizeRoom(ctx, caller, req.RoomID); err != nil {
		return nil, err
	}
	if caller.IsAnonymous {
		if err := s.checkAnonymousLimits(ctx, caller.ID); err != nil {
			return nil, err
		}
	}

	targetLang := req.TargetLanguage
	if IsAutoLanguage(targetLang) {
		targetLang = caller.PreferredLanguage
	}

	if req.ClientMessageID != "" {
		existing, err := s.db.GetMessageByClientID(ctx, caller.ID, req.ClientMessageID)
		if err != nil {
			return nil, apperrors.New500Error(fmt.Errorf("failed to look up client message id: %w", err))
		}
		if existing != nil {
			return s.duplicateResult(ctx, existing, NormalizeLanguage(targetLang))
		}
	}

	var sourceLang string
	if content == "" {
		targetLang = NormalizeLanguage(targetLang)
		sourceLang = targetLang
	} else {
		sourceLang, targetLang = s.engine.ResolveLanguages(ctx, content, req.SourceLanguage, targetLang)
	}

	outcome, err := s.engine.Resolve(ctx, content, sourceLang, targetLang)
	if err != nil {
		return nil, err
	}

	msg := &models.Message{
		ID:               uuid.New(),
		RoomID:           req.RoomID,
		AuthorID:         caller.ID,
		Content:          content,
		OriginalLanguage: sourceLang,
		Metadata:         models.MessageMetadata{Attachments: req.Attachments, Source: req.Source},
	}
	if req.ClientMessageID != "" {
		clientID := req.ClientMessageID
		msg.ClientMessageID = &clientID
	}
	if err := s.db.CreateMessage(ctx, msg); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) && msg.ClientMessageID != nil {
			if existing, lookupErr := s.db.GetMessageByClientID(ctx, caller.ID, *msg.ClientMessageID); lookupErr == nil && existing != nil {
				return s.duplicateResult(ctx, existing, targetLang)
			}
		}
		return nil, apperrors.New500Error(fmt.Errorf("failed to insert message: %w", err))
	}

	var balance int64
	if outcome.Credits > 0 {
		reference := "message:" + msg.ID.String()
		balance, err = s.ledger.SpendCredits(ctx, caller.ID, outcome.Credits, &reference, fmt.Sprintf("Translation %s to %s", sourceLang, targetLang))
		if err != nil {
			if delErr := s.db.DeleteMessage(ctx, msg.ID); delErr != nil {
				log.Error().Err(delErr).Str("message_id", msg.ID.String()).Msg("Failed to delete message after charge failure")
			}
			if errors.Is(err, ErrInsufficientCredits) {
				return nil, apperrors.New402Error("Not enough credits to translate this message")
			}
			return nil, apperrors.New500Error(fmt.Errorf("failed to charge credits: %w", err))
		}
		metrics.CreditsCharged.Add(float64(outcome.Credits))
	}

	translation := &models.Translation{
		MessageID:      msg.ID,
		TargetLanguage: targetLang,
		TranslatedText: outcome.Text,
		ModelVersion:   outcome.Model,
		QualityScore:   1,
	}
	if err := s.db.UpsertTranslation(ctx, translation); err != nil {
		if delErr := s.db.DeleteMessage(ctx, msg.ID); delErr != nil {
			log.Error().Err(delErr).Str("message_id", msg.ID.String()).Msg("Failed to delete message after translation store failure")
		}
		if outcome.Credits > 0 {
			s.refund(ctx, caller.ID, outcome.Credits, "refund:message:"+msg.ID.String(), fmt.Sprintf("Refund for unsaved message %s", msg.ID))
		}
		return nil, apperrors.New500Error(fmt.Errorf("failed to store translation: %w", err))
	}
	s.engine.StoreCache(ctx, content, sourceLang, targetLang, outcome)
	s.logUsage(ctx, caller.ID, &msg.ID, sourceLang, targetLang, outcome)

	s.publish(ctx, broker.RoomTopic(msg.RoomID.String()), EventMessage, MessageEvent{Message: *msg, Translation: translation})
	if outcome.Credits > 0 {
		s.publish(ctx, broker.CreditTopic(caller.ID.String()), EventCreditUpdate, CreditUpdateEvent{Balance: balance, Delta: -outcome.Credits})
	}

	return &SendMessageResult{
		Message:     *msg,
		Translation: translation,
		UsageType:   outcome.UsageType,
		Credits:     outcome.Credits,
	}, nil
}

// TranslateMessage returns the stored translation of a message, translating and
// charging the caller when none exists yet.
func (s *MessageService) TranslateMessage(ctx context.Context, caller *models.User, messageID uuid.UUID, targetLang string) (*models.Translation, error) {
	if IsAutoLanguage(targetLang) && caller != nil {
		targetLang = caller.PreferredLanguage
	}
	if !IsSupportedLanguage(targetLang) {
		return nil, apperrors.New400Error("Unsupported target language")
	}
	targetLang = NormalizeLanguage(targetLang)

	msg, err := s.db.GetMessage(ctx, messageID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.New404Error("Message not found")
	}
	if err != nil {
		return nil, apperrors.New500Error(err)
	}
	if _, err := s.AuthorizeRoom(ctx, caller, msg.RoomID); err != nil {
		return nil, err
	}

	existing, err := s.db.GetTranslation(ctx, msg.ID, targetLang)
	if err != nil {
		return nil, apperrors.New500Error(err)
	}
	if existing != nil {
		return existing, nil
	}

	sourceLang := NormalizeLanguage(msg.OriginalLanguage)
	outcome, err := s.engine.Resolve(ctx, msg.Content, sourceLang, targetLang)
	if err != nil {
		return nil, err
	}

	var balance int64
	if outcome.Credits > 0 {
		balance, err = s.ledger.SpendCredits(ctx, caller.ID, outcome.Credits, nil, fmt.Sprintf("Translation of %s to %s", msg.ID, targetLang))
		if errors.Is(err, ErrInsufficientCredits) {
			return nil, apperrors.New402Error("Not enough credits to translate this message")
		}
		if err != nil {
			return nil, apperrors.New500Error(fmt.Errorf("failed to charge credits: %w", err))
		}
		metrics.CreditsCharged.Add(float64(outcome.Credits))
	}

	translation := &models.Translation{
		MessageID:      msg.ID,
		TargetLanguage: targetLang,
		TranslatedText: outcome.Text,
		ModelVersion:   outcome.Model,
		QualityScore:   1,
	}
	if err := s.db.UpsertTranslation(ctx, translation); err != nil {
		if outcome.Credits > 0 {
			s.refund(ctx, caller.ID, outcome.Credits, "refund:translation:"+uuid.NewString(), fmt.Sprintf("Refund for unsaved translation of %s", msg.ID))
		}
		return nil, apperrors.New500Error(fmt.Errorf("failed to store translation: %w", err))
	}
	if outcome.Credits > 0 {
		s.publish(ctx, broker.CreditTopic(caller.ID.String()), EventCreditUpdate, CreditUpdateEvent{Balance: balance, Delta: -outcome.Credits})
	}
	s.engine.StoreCache(ctx, msg.Content, sourceLang, targetLang, outcome)
	s.logUsage(ctx, caller.ID, &msg.ID, sourceLang, targetLang, outcome)
	return translation, nil
}

// ListRoomMessages returns a page of history with the translation for lang when one exists.
func (s *MessageService) ListRoomMessages(ctx context.Context, caller *models.User, roomID uuid.UUID, lang string, before *time.Time, limit int) ([]RoomMessage, error) {
	if _, err := s.AuthorizeRoom(ctx, caller, roomID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	messages, err := s.db.ListRoomMessages(ctx, roomID, before, limit)
	if err != nil {
		return nil, apperrors.New500Error(err)
	}
	ids := make([]uuid.UUID, len(messages))
	for i, m := range messages {
		ids[i] = m.ID
	}
	translations, err := s.db.GetTranslations(ctx, ids, NormalizeLanguage(lang))
	if err != nil {
		return nil, apperrors.New500Error(err)
	}

	result := make([]RoomMessage, len(messages))
	for i, m := range messages {
		result[i] = RoomMessage{Message: m}
		if t, ok := translations[m.ID]; ok {
			t := t
			result[i].Translation = &t
		}
	}
	return result, nil
}

func (s *MessageService) validateInput(content string, attachments []models.Attachment) error {
	if content == "" && len(attachments) == 0 {
		return apperrors.New400Error("Message content is required")
	}
	if len(attachments) > s.limits.MaxAttachments {
		return apperrors.New400Error(fmt.Sprintf("At most %d attachments are allowed", s.limits.MaxAttachments))
	}
	for _, a := range attachments {
		if a.Size > s.limits.MaxAttachmentBytes {
			return apperrors.New400Error(fmt.Sprintf("Attachment %q is too large", a.Name))
		}
		if a.URL == "" {
			return apperrors.New400Error("Attachment URL is required")
		}
	}
	return nil
}

// AuthorizeRoom loads the room and checks the caller may post to and read it.
func (s *MessageService) AuthorizeRoom(ctx context.Context, caller *models.User, roomID uuid.UUID) (*models.Room, error) {
	if caller == nil {
		return nil, apperrors.New401Error()
	}
	room, err := s.rooms.GetRoom(ctx, roomID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.New404Error("Room not found")
	}
	if err != nil {
		return nil, apperrors.New500Error(err)
	}
	isDemo := room.IsDemo || (s.limits.DemoRoomID != uuid.Nil && room.ID == s.limits.DemoRoomID)
	if caller.IsAnonymous {
		if !isDemo {
			return nil, apperrors.New403Error("Guests can only post in the demo room")
		}
		return room, nil
	}
	if isDemo {
		return room, nil
	}
	member, err := s.rooms.IsMember(ctx, roomID, caller.ID)
	if err != nil {
		return nil, apperrors.New500Error(err)
	}
	if !member {
		return nil, apperrors.New403Error("You are not a member of this room")
	}
	return room, nil
}

func (s *MessageService) checkAnonymousLimits(ctx context.Context, userID uuid.UUID) error {
	now := s.now().UTC()

	recent, err := s.db.CountMessagesSince(ctx, userID, now.Add(-s.limits.AnonymousWindow))
	if err != nil {
		return apperrors.New500Error(fmt.Errorf("failed to count recent messages: %w", err))
	}
	if recent >= int64(s.limits.AnonymousWindowLimit) {
		return apperrors.New429Error("Too many messages. Please wait a few minutes or sign in.")
	}

	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	today, err := s.db.CountMessagesSince(ctx, userID, startOfDay)
	if err != nil {
		return apperrors.New500Error(fmt.Errorf("failed to count daily messages: %w", err))
	}
	if today >= int64(s.limits.AnonymousDailyLimit) {
		return apperrors.New429Error("Daily guest message limit reached. Sign in to keep chatting.")
	}
	return nil
}

func (s *MessageService) duplicateResult(ctx context.Context, msg *models.Message, targetLang string) (*SendMessageResult, error) {
	translation, err := s.db.GetTranslation(ctx, msg.ID, targetLang)
	if err != nil {
		return nil, apperrors.New500Error(err)
	}
	return &SendMessageResult{Message: *msg, Translation: translation, Duplicate: true}, nil
}

func (s *MessageService) logUsage(ctx context.Context, userID uuid.UUID, messageID *uuid.UUID, sourceLang, targetLang string, outcome *TranslationOutcome) {
	entry := &models.UsageLog{
		UserID:         userID,
		MessageID:      messageID,
		UsageType:      outcome.UsageType,
		SourceLanguage: sourceLang,
		TargetLanguage: targetLang,
		TotalTokens:    outcome.TotalTokens,
		Credits:        outcome.Credits,
	}
	if err := s.db.CreateUsageLog(ctx, entry); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("Failed to write usage log")
	}
}

// refund returns a charge whose message or translation could not be stored.
func (s *MessageService) refund(ctx context.Context, userID uuid.UUID, credits int64, reference, description string) {
	if _, _, err := s.ledger.AddCredits(ctx, userID, credits, models.CreditRefund, reference, description); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("reference", reference).Int64("credits", credits).Msg("Failed to refund credits")
	}
}

func (s *MessageService) publish(ctx context.Context, topic, eventType string, data interface{}) {
	evt, err := broker.NewEvent(eventType, data)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("topic", topic).Msg("Failed to encode event")
		return
	}
	s.broker.Publish(topic, evt)
}
