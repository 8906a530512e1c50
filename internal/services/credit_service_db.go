package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"interchat_go_backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var ErrInsufficientCredits = errors.New("insufficient credits")

// CreditLedgerDB is the only writer of credit balances. Every balance change is paired
// with a CreditTransaction row in the same database transaction.
type CreditLedgerDB interface {
	GetBalance(ctx context.Context, userID uuid.UUID) (int64, error)
	// SpendCredits returns ErrInsufficientCredits when the balance cannot cover amount.
	SpendCredits(ctx context.Context, userID uuid.UUID, amount int64, referenceID *string, description string) (int64, error)
	// AddCredits reports applied=false when referenceID was already credited.
	AddCredits(ctx context.Context, userID uuid.UUID, amount int64, txType models.CreditTransactionType, referenceID, description string) (applied bool, balance int64, err error)
	HasTransaction(ctx context.Context, referenceID string) (bool, error)
	ListTransactions(ctx context.Context, userID uuid.UUID, limit int) ([]models.CreditTransaction, error)
}

type DefaultCreditLedgerDB struct {
	db *gorm.DB
}

func NewCreditLedgerDB(db *gorm.DB) CreditLedgerDB {
	return &DefaultCreditLedgerDB{db: db}
}

func (s *DefaultCreditLedgerDB) GetBalance(ctx context.Context, userID uuid.UUID) (int64, error) {
	var balance models.CreditBalance
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&balance).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return balance.Balance, nil
}

func (s *DefaultCreditLedgerDB) SpendCredits(ctx context.Context, userID uuid.UUID, amount int64, referenceID *string, description string) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("spend amount must be positive, got %d", amount)
	}
	var remaining int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var balances []int64
		res := tx.Raw(
			`UPDATE credit_balances SET balance = balance - ?, updated_at = ? WHERE user_id = ? AND balance >= ? RETURNING balance`,
			amount, time.Now(), userID, amount,
		).Scan(&balances)
		if res.Error != nil {
			return res.Error
		}
		if len(balances) == 0 {
			return ErrInsufficientCredits
		}
		remaining = balances[0]

		return tx.Create(&models.CreditTransaction{
			UserID:      userID,
			Amount:      -amount,
			Type:        models.CreditTranslation,
			ReferenceID: referenceID,
			Description: description,
		}).Error
	})
	if err != nil {
		return 0, err
	}
	return remaining, nil
}

func (s *DefaultCreditLedgerDB) AddCredits(ctx context.Context, userID uuid.UUID, amount int64, txType models.CreditTransactionType, referenceID, description string) (bool, int64, error) {
	if amount <= 0 {
		return false, 0, fmt.Errorf("credit amount must be positive, got %d", amount)
	}
	exists, err := s.HasTransaction(ctx, referenceID)
	if err != nil {
		return false, 0, err
	}
	if exists {
		return false, 0, nil
	}

	var balance int64
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&models.CreditTransaction{
			UserID:      userID,
			Amount:      amount,
			Type:        txType,
			ReferenceID: &referenceID,
			Description: description,
		}).Error; err != nil {
			return err
		}

		var balances []int64
		res := tx.Raw(
			`INSERT INTO credit_balances (user_id, balance, updated_at) VALUES (?, ?, ?)
			 ON CONFLICT (user_id) DO UPDATE SET balance = credit_balances.balance + EXCLUDED.balance, updated_at = EXCLUDED.updated_at
			 RETURNING balance`,
			userID, amount, time.Now(),
		).Scan(&balances)
		if res.Error != nil {
			return res.Error
		}
		if len(balances) > 0 {
			balance = balances[0]
		}
		return nil
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		// lost a race against a concurrent grant with the same reference
		return false, 0, nil
	}
	if err != nil {
		return false, 0, err
	}
	return true, balance, nil
}

func (s *DefaultCreditLedgerDB) HasTransaction(ctx context.Context, referenceID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.CreditTransaction{}).
		Where("reference_id = ?", referenceID).
		Count(&count).Error
	return count > 0, err
}

func (s *DefaultCreditLedgerDB) ListTransactions(ctx context.Context, userID uuid.UUID, limit int) ([]models.CreditTransaction, error) {
	var txns []models.CreditTransaction
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&txns).Error
	return txns, err
}
