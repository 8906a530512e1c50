package models

import (
	"time"

	"github.com/google/uuid"
)

// Attachment is stored inside Message.Metadata; the file itself lives in object storage.
type Attachment struct {
	Name        string `json:"name"`
	URL         string `json:"url"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

type MessageMetadata struct {
	Attachments []Attachment `json:"attachments,omitempty"`
	Source      string       `json:"source,omitempty"` // "composer", "voice" or "websocket"
}

type Message struct {
	ID               uuid.UUID       `gorm:"type:uuid;primary_key" json:"id"`
	RoomID           uuid.UUID       `gorm:"type:uuid;index:idx_messages_room_created,priority:1" json:"room_id"`
	AuthorID         uuid.UUID       `gorm:"type:uuid;index;uniqueIndex:idx_messages_author_client,priority:1" json:"author_id"`
	ClientMessageID  *string         `gorm:"uniqueIndex:idx_messages_author_client,priority:2" json:"client_message_id,omitempty"`
	Content          string          `gorm:"type:text" json:"content"`
	OriginalLanguage string          `gorm:"type:varchar(8)" json:"original_language"`
	Metadata         MessageMetadata `gorm:"serializer:json;type:jsonb" json:"metadata"`
	CreatedAt        time.Time       `gorm:"index:idx_messages_room_created,priority:2" json:"created_at"`
}

type Translation struct {
	MessageID      uuid.UUID `gorm:"type:uuid;primaryKey" json:"message_id"`
	TargetLanguage string    `gorm:"type:varchar(8);primaryKey" json:"target_language"`
	TranslatedText string    `gorm:"type:text" json:"translated_text"`
	ModelVersion   string    `json:"model_version"`
	QualityScore   float64   `json:"quality_score"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type UsageType string

const (
	UsageIdentity UsageType = "identity"
	UsageCache    UsageType = "cache"
	UsageLLM      UsageType = "llm"
)

type UsageLog struct {
	ID             uint       `gorm:"primaryKey"`
	UserID         uuid.UUID  `gorm:"type:uuid;index"`
	MessageID      *uuid.UUID `gorm:"type:uuid;index"`
	UsageType      UsageType  `gorm:"type:varchar(16)"`
	SourceLanguage string     `gorm:"type:varchar(8)"`
	TargetLanguage string     `gorm:"type:varchar(8)"`
	TotalTokens    int
	Credits        int64
	CreatedAt      time.Time
}
