package models

import (
	"time"

	"github.com/google/uuid"
)

type Room struct {
	ID              uuid.UUID `gorm:"type:uuid;primary_key"`
	Name            string    `gorm:"not null"`
	DefaultLanguage string    `gorm:"type:varchar(8)"`
	IsDemo          bool
	CreatedBy       uuid.UUID `gorm:"type:uuid;index"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type RoomMember struct {
	RoomID   uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID   uuid.UUID `gorm:"type:uuid;primaryKey;index"`
	JoinedAt time.Time
}
