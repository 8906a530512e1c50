package services

import (
	"context"
	"errors"
	"fmt"

	apperrors "interchat_go_backend/internal/errors"
	"interchat_go_backend/internal/metrics"
	"interchat_go_backend/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

type UserServiceDB interface {
	// UpsertUser finds the user by auth id or creates it, reporting whether it was created.
	UpsertUser(ctx context.Context, user *models.User) (bool, error)
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetUserByStripeCustomer(ctx context.Context, customerID string) (*models.User, error)
	UpdatePreferredLanguage(ctx context.Context, id uuid.UUID, lang string) error
	SetStripeCustomerID(ctx context.Context, id uuid.UUID, customerID string) error
}

type DefaultUserServiceDB struct {
	db *gorm.DB
}

func NewUserServiceDB(db *gorm.DB) UserServiceDB {
	return &DefaultUserServiceDB{db: db}
}

func (s *DefaultUserServiceDB) UpsertUser(ctx context.Context, user *models.User) (bool, error) {
	db := s.db.WithContext(ctx)
	var existing models.User
	err := db.Where("auth_id = ?", user.AuthID).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		if user.ID == uuid.Nil {
			user.ID = uuid.New()
		}
		if err := db.Create(user).Error; err != nil {
			return false, err
		}
		return true, nil
	}
	if err != nil {
		return false, err
	}

	updates := map[string]interface{}{}
	if user.Email != "" && user.Email != existing.Email {
		updates["email"] = user.Email
		existing.Email = user.Email
	}
	if user.DisplayName != "" && user.DisplayName != existing.DisplayName {
		updates["display_name"] = user.DisplayName
		existing.DisplayName = user.DisplayName
	}
	if existing.IsAnonymous && !user.IsAnonymous {
		updates["is_anonymous"] = false
		existing.IsAnonymous = false
	}
	if len(updates) > 0 {
		if err := db.Model(&models.User{}).Where("id = ?", existing.ID).Updates(updates).Error; err != nil {
			return false, err
		}
	}
	*user = existing
	return false, nil
}

func (s *DefaultUserServiceDB) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *DefaultUserServiceDB) GetUserByStripeCustomer(ctx context.Context, customerID string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("stripe_customer_id = ?", customerID).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *DefaultUserServiceDB) UpdatePreferredLanguage(ctx context.Context, id uuid.UUID, lang string) error {
	return s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Update("preferred_language", lang).Error
}

func (s *DefaultUserServiceDB) SetStripeCustomerID(ctx context.Context, id uuid.UUID, customerID string) error {
	return s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Update("stripe_customer_id", customerID).Error
}

type UserService struct {
	db            UserServiceDB
	ledger        CreditLedgerDB
	signupCredits int64
}

func NewUserService(db UserServiceDB, ledger CreditLedgerDB, signupCredits int64) *UserService {
	return &UserService{db: db, ledger: ledger, signupCredits: signupCredits}
}

// CreateOrUpdateUser upserts the user behind a verified token. New users get the
// signup grant.
func (s *UserService) CreateOrUpdateUser(ctx context.Context, authID, email, name string, isAnonymous bool) (*models.User, error) {
	user := &models.User{
		AuthID:            authID,
		Email:             email,
		DisplayName:       name,
		PreferredLanguage: DefaultLanguage,
		IsAnonymous:       isAnonymous,
	}
	created, err := s.db.UpsertUser(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}
	if created {
		s.grantSignupCredits(ctx, user)
	}
	return user, nil
}

func (s *UserService) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, err := s.db.GetUser(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.New404Error("User not found")
	}
	if err != nil {
		return nil, apperrors.New500Error(err)
	}
	return user, nil
}

func (s *UserService) UpdatePreferredLanguage(ctx context.Context, user *models.User, lang string) error {
	if !IsSupportedLanguage(lang) {
		return apperrors.New400Error("Unsupported language")
	}
	code := NormalizeLanguage(lang)
	if err := s.db.UpdatePreferredLanguage(ctx, user.ID, code); err != nil {
		return apperrors.New500Error(err)
	}
	user.PreferredLanguage = code
	return nil
}

func (s *UserService) grantSignupCredits(ctx context.Context, user *models.User) {
	if s.signupCredits <= 0 {
		return
	}
	applied, _, err := s.ledger.AddCredits(ctx, user.ID, s.signupCredits, models.CreditSignupBonus, "signup:"+user.ID.String(), "Welcome credits")
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("user_id", user.ID.String()).Msg("Failed to grant signup credits")
		return
	}
	if applied {
		metrics.CreditsGranted.WithLabelValues(string(models.CreditSignupBonus)).Add(float64(s.signupCredits))
	}
}
