package models

import (
	"time"

	"github.com/google/uuid"
)

type KnowledgeSourceType string

const (
	KnowledgeURL     KnowledgeSourceType = "url"
	KnowledgePDF     KnowledgeSourceType = "pdf"
	KnowledgeYouTube KnowledgeSourceType = "youtube"
	KnowledgeText    KnowledgeSourceType = "text"
)

type KnowledgeStatus string

const (
	KnowledgePending    KnowledgeStatus = "pending"
	KnowledgeProcessing KnowledgeStatus = "processing"
	KnowledgeReady      KnowledgeStatus = "ready"
	KnowledgeError      KnowledgeStatus = "error"
)

type KnowledgeSource struct {
	ID            uuid.UUID           `gorm:"type:uuid;primary_key" json:"id"`
	Type          KnowledgeSourceType `gorm:"type:varchar(16)" json:"type"`
	Title         string              `json:"title"`
	URL           string              `json:"url,omitempty"`
	StorageObject string              `json:"-"`
	RawText       string              `gorm:"type:text" json:"-"`
	Status        KnowledgeStatus     `gorm:"type:varchar(16);index" json:"status"`
	ErrorMessage  string              `json:"error_message,omitempty"`
	ChunkCount    int                 `json:"chunk_count"`
	CreatedBy     uuid.UUID           `gorm:"type:uuid" json:"created_by"`
	ProcessedAt   *time.Time          `json:"processed_at,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

type KnowledgeChunk struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	SourceID   uuid.UUID `gorm:"type:uuid;index" json:"source_id"`
	ChunkIndex int       `json:"chunk_index"`
	Content    string    `gorm:"type:text" json:"content"`
	WordCount  int       `json:"word_count"`
	CreatedAt  time.Time `json:"created_at"`
}
