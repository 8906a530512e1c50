package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type User struct {
	ID                uuid.UUID      `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	AuthID            string         `gorm:"unique;not null" json:"-"`
	Email             string         `gorm:"index" json:"email"`
	DisplayName       string         `json:"display_name"`
	PreferredLanguage string         `gorm:"type:varchar(8);default:'en'" json:"preferred_language"`
	IsAnonymous       bool           `json:"is_anonymous"`
	StripeCustomerID  string         `gorm:"index" json:"-"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
	DeletedAt         gorm.DeletedAt `gorm:"index" json:"-"`
}
