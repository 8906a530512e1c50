package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type CreditBalance struct {
	UserID    uuid.UUID `gorm:"type:uuid;primaryKey" json:"user_id"`
	Balance   int64     `gorm:"not null;default:0" json:"balance"`
	UpdatedAt time.Time `json:"updated_at"`
}

type CreditTransactionType string

const (
	CreditSignupBonus  CreditTransactionType = "signup_bonus"
	CreditPurchase     CreditTransactionType = "purchase"
	CreditSubscription CreditTransactionType = "subscription"
	CreditTranslation  CreditTransactionType = "translation"
	CreditRefund       CreditTransactionType = "refund"
)

type CreditTransaction struct {
	gorm.Model
	UserID      uuid.UUID             `gorm:"type:uuid;index"`
	Amount      int64                 // positive for grants, negative for spends
	Type        CreditTransactionType `gorm:"type:varchar(32)"`
	ReferenceID *string               `gorm:"uniqueIndex"`
	Description string
}
