package services

import (
	"context"
	"time"

	"interchat_go_backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type KnowledgeServiceDB interface {
	CreateSource(ctx context.Context, src *models.KnowledgeSource) error
	GetSource(ctx context.Context, id uuid.UUID) (*models.KnowledgeSource, error)
	ListSources(ctx context.Context, limit int) ([]models.KnowledgeSource, error)
	ListPendingSources(ctx context.Context, limit int) ([]models.KnowledgeSource, error)
	// ClaimSource moves a source from pending to processing. It returns false when
	// another worker got there first.
	ClaimSource(ctx context.Context, id uuid.UUID) (bool, error)
	// CompleteSource replaces the source's chunks and marks it ready in one transaction.
	CompleteSource(ctx context.Context, id uuid.UUID, title string, chunks []models.KnowledgeChunk) error
	FailSource(ctx context.Context, id uuid.UUID, message string) error
	ListChunks(ctx context.Context, sourceID uuid.UUID) ([]models.KnowledgeChunk, error)
}

type DefaultKnowledgeServiceDB struct {
	db *gorm.DB
}

func NewKnowledgeServiceDB(db *gorm.DB) KnowledgeServiceDB {
	return &DefaultKnowledgeServiceDB{db: db}
}

func (s *DefaultKnowledgeServiceDB) CreateSource(ctx context.Context, src *models.KnowledgeSource) error {
	if src.ID == uuid.Nil {
		src.ID = uuid.New()
	}
	return s.db.WithContext(ctx).Create(src).Error
}

func (s *DefaultKnowledgeServiceDB) GetSource(ctx context.Context, id uuid.UUID) (*models.KnowledgeSource, error) {
	var src models.KnowledgeSource
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&src).Error; err != nil {
		return nil, err
	}
	return &src, nil
}

func (s *DefaultKnowledgeServiceDB) ListSources(ctx context.Context, limit int) ([]models.KnowledgeSource, error) {
	var sources []models.KnowledgeSource
	err := s.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&sources).Error
	return sources, err
}

func (s *DefaultKnowledgeServiceDB) ListPendingSources(ctx context.Context, limit int) ([]models.KnowledgeSource, error) {
	var sources []models.KnowledgeSource
	err := s.db.WithContext(ctx).
		Where("status = ?", models.KnowledgePending).
		Order("created_at ASC").
		Limit(limit).
		Find(&sources).Error
	return sources, err
}

func (s *DefaultKnowledgeServiceDB) ClaimSource(ctx context.Context, id uuid.UUID) (bool, error) {
	result := s.db.WithContext(ctx).Model(&models.KnowledgeSource{}).
		Where("id = ? AND status = ?", id, models.KnowledgePending).
		Update("status", models.KnowledgeProcessing)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (s *DefaultKnowledgeServiceDB) CompleteSource(ctx context.Context, id uuid.UUID, title string, chunks []models.KnowledgeChunk) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("source_id = ?", id).Delete(&models.KnowledgeChunk{}).Error; err != nil {
			return err
		}
		if len(chunks) > 0 {
			if err := tx.CreateInBatches(chunks, 10).Error; err != nil {
				return err
			}
		}
		updates := map[string]interface{}{
			"status":        models.KnowledgeReady,
			"chunk_count":   len(chunks),
			"error_message": "",
			"processed_at":  time.Now(),
		}
		if title != "" {
			updates["title"] = title
		}
		return tx.Model(&models.KnowledgeSource{}).Where("id = ?", id).Updates(updates).Error
	})
}

func (s *DefaultKnowledgeServiceDB) FailSource(ctx context.Context, id uuid.UUID, message string) error {
	return s.db.WithContext(ctx).Model(&models.KnowledgeSource{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":        models.KnowledgeError,
		"error_message": message,
		"processed_at":  time.Now(),
	}).Error
}

func (s *DefaultKnowledgeServiceDB) ListChunks(ctx context.Context, sourceID uuid.UUID) ([]models.KnowledgeChunk, error) {
	var chunks []models.KnowledgeChunk
	err := s.db.WithContext(ctx).Where("source_id = ?", sourceID).Order("chunk_index ASC").Find(&chunks).Error
	return chunks, err
}
