package models

import (
	"time"
)

// TranslationCacheEntry is keyed by the sha256 of language and text. ContextSignature is
// always NULL today; lookups match it as NULL. NULLs never collide in idx_cache_lookup,
// so idx_cache_lookup_no_context keeps unsigned entries unique.
type TranslationCacheEntry struct {
	ID               uint    `gorm:"primaryKey"`
	SourceHash       string  `gorm:"type:char(64);uniqueIndex:idx_cache_lookup,priority:1;uniqueIndex:idx_cache_lookup_no_context,priority:1,where:context_signature IS NULL"`
	SourceLanguage   string  `gorm:"type:varchar(8);uniqueIndex:idx_cache_lookup,priority:2;uniqueIndex:idx_cache_lookup_no_context,priority:2"`
	TargetLanguage   string  `gorm:"type:varchar(8);uniqueIndex:idx_cache_lookup,priority:3;uniqueIndex:idx_cache_lookup_no_context,priority:3"`
	ContextSignature *string `gorm:"uniqueIndex:idx_cache_lookup,priority:4"`
	TranslatedText   string  `gorm:"type:text"`
	ModelVersion     string
	UsageCount       int64 `gorm:"default:0"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
