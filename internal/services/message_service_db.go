package services

import (
	"context"
	"errors"
	"time"

	"interchat_go_backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MessageServiceDB persists messages, their translations and usage logs.
type MessageServiceDB interface {
	CreateMessage(ctx context.Context, msg *models.Message) error
	DeleteMessage(ctx context.Context, id uuid.UUID) error
	GetMessage(ctx context.Context, id uuid.UUID) (*models.Message, error)
	// GetMessageByClientID returns nil, nil when the author never used the key.
	GetMessageByClientID(ctx context.Context, authorID uuid.UUID, clientMessageID string) (*models.Message, error)
	CountMessagesSince(ctx context.Context, authorID uuid.UUID, since time.Time) (int64, error)
	ListRoomMessages(ctx context.Context, roomID uuid.UUID, before *time.Time, limit int) ([]models.Message, error)
	UpsertTranslation(ctx context.Context, t *models.Translation) error
	// GetTranslation returns nil, nil when no translation exists for the language.
	GetTranslation(ctx context.Context, messageID uuid.UUID, targetLang string) (*models.Translation, error)
	GetTranslations(ctx context.Context, messageIDs []uuid.UUID, targetLang string) (map[uuid.UUID]models.Translation, error)
	CreateUsageLog(ctx context.Context, entry *models.UsageLog) error
}

type DefaultMessageServiceDB struct {
	db *gorm.DB
}

func NewMessageServiceDB(db *gorm.DB) MessageServiceDB {
	return &DefaultMessageServiceDB{db: db}
}

func (s *DefaultMessageServiceDB) CreateMessage(ctx context.Context, msg *models.Message) error {
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	return s.db.WithContext(ctx).Create(msg).Error
}

func (s *DefaultMessageServiceDB) DeleteMessage(ctx context.Context, id uuid.UUID) error {
	return s.db.WithContext(ctx).Delete(&models.Message{}, "id = ?", id).Error
}

func (s *DefaultMessageServiceDB) GetMessage(ctx context.Context, id uuid.UUID) (*models.Message, error) {
	var msg models.Message
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&msg).Error; err != nil {
		return nil, err
	}
	return &msg, nil
}

func (s *DefaultMessageServiceDB) GetMessageByClientID(ctx context.Context, authorID uuid.UUID, clientMessageID string) (*models.Message, error) {
	var msg models.Message
	err := s.db.WithContext(ctx).
		Where("author_id = ? AND client_message_id = ?", authorID, clientMessageID).
		First(&msg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (s *DefaultMessageServiceDB) CountMessagesSince(ctx context.Context, authorID uuid.UUID, since time.Time) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Message{}).
		Where("author_id = ? AND created_at >= ?", authorID, since).
		Count(&count).Error
	return count, err
}

// ListRoomMessages returns the newest messages first, optionally older than before.
func (s *DefaultMessageServiceDB) ListRoomMessages(ctx context.Context, roomID uuid.UUID, before *time.Time, limit int) ([]models.Message, error) {
	query := s.db.WithContext(ctx).Where("room_id = ?", roomID)
	if before != nil {
		query = query.Where("created_at < ?", *before)
	}
	var messages []models.Message
	err := query.Order("created_at DESC").Limit(limit).Find(&messages).Error
	return messages, err
}

func (s *DefaultMessageServiceDB) UpsertTranslation(ctx context.Context, t *models.Translation) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "message_id"}, {Name: "target_language"}},
		DoUpdates: clause.AssignmentColumns([]string{"translated_text", "model_version", "quality_score", "updated_at"}),
	}).Create(t).Error
}

func (s *DefaultMessageServiceDB) GetTranslation(ctx context.Context, messageID uuid.UUID, targetLang string) (*models.Translation, error) {
	var t models.Translation
	err := s.db.WithContext(ctx).
		Where("message_id = ? AND target_language = ?", messageID, targetLang).
		First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *DefaultMessageServiceDB) GetTranslations(ctx context.Context, messageIDs []uuid.UUID, targetLang string) (map[uuid.UUID]models.Translation, error) {
	result := make(map[uuid.UUID]models.Translation, len(messageIDs))
	if len(messageIDs) == 0 {
		return result, nil
	}
	var rows []models.Translation
	err := s.db.WithContext(ctx).
		Where("message_id IN ? AND target_language = ?", messageIDs, targetLang).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, t := range rows {
		result[t.MessageID] = t
	}
	return result, nil
}

func (s *DefaultMessageServiceDB) CreateUsageLog(ctx context.Context, entry *models.UsageLog) error {
	return s.db.WithContext(ctx).Create(entry).Error
}
