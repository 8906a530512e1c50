package services

import (
	"context"
	"errors"

	"interchat_go_backend/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type TranslationCacheDB interface {
	// FindCacheEntry returns nil, nil on a miss.
	FindCacheEntry(ctx context.Context, sourceHash, sourceLang, targetLang string) (*models.TranslationCacheEntry, error)
	IncrementCacheUsage(ctx context.Context, id uint) error
	UpsertCacheEntry(ctx context.Context, entry *models.TranslationCacheEntry) error
}

type DefaultTranslationCacheDB struct {
	db *gorm.DB
}

func NewTranslationCacheDB(db *gorm.DB) TranslationCacheDB {
	return &DefaultTranslationCacheDB{db: db}
}

func (s *DefaultTranslationCacheDB) FindCacheEntry(ctx context.Context, sourceHash, sourceLang, targetLang string) (*models.TranslationCacheEntry, error) {
	var entry models.TranslationCacheEntry
	err := s.db.WithContext(ctx).
		Where("source_hash = ? AND source_language = ? AND target_language = ? AND context_signature IS NULL", sourceHash, sourceLang, targetLang).
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (s *DefaultTranslationCacheDB) IncrementCacheUsage(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Model(&models.TranslationCacheEntry{}).
		Where("id = ?", id).
		UpdateColumn("usage_count", gorm.Expr("usage_count + 1")).Error
}

// UpsertCacheEntry inserts or refreshes an entry in one statement. Unsigned entries
// conflict on the partial idx_cache_lookup_no_context index.
func (s *DefaultTranslationCacheDB) UpsertCacheEntry(ctx context.Context, entry *models.TranslationCacheEntry) error {
	onConflict := clause.OnConflict{
		Columns:   []clause.Column{{Name: "source_hash"}, {Name: "source_language"}, {Name: "target_language"}},
		DoUpdates: clause.AssignmentColumns([]string{"translated_text", "model_version", "updated_at"}),
	}
	if entry.ContextSignature == nil {
		onConflict.TargetWhere = clause.Where{Exprs: []clause.Expression{clause.Expr{SQL: "context_signature IS NULL"}}}
	} else {
		onConflict.Columns = append(onConflict.Columns, clause.Column{Name: "context_signature"})
	}
	return s.db.WithContext(ctx).Clauses(onConflict).Create(entry).Error
}
