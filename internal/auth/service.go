// Package auth implements account management and the token lifecycle:
// registration, login, refresh with rotate-and-invalidate, logout, and
// profile/password updates.
package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/linksaver/linksaver/internal/apperror"
	"github.com/linksaver/linksaver/internal/models"
)

// Credential failure messages. Login uses one message for every failure
// mode so responses cannot be used to enumerate accounts.
const (
	msgInvalidCredentials  = "Invalid email or password"
	msgInvalidRefreshToken = "Invalid or expired refresh token"
)

// Service holds auth business logic. It is stateless and safe for
// concurrent use.
type Service struct {
	db     *gorm.DB
	tokens *TokenManager
}

// NewService creates an auth Service
func NewService(db *gorm.DB, tokens *TokenManager) *Service {
	return &Service{db: db, tokens: tokens}
}

// NormalizeEmail applies the canonical form used for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates a password account and mints its first token pair.
func (s *Service) Register(ctx context.Context, name, email, password string) (*models.User, TokenPair, error) {
	email = NormalizeEmail(email)
	name = strings.TrimSpace(name)

	var existing models.User
	err := s.db.WithContext(ctx).Where("email = ?", email).First(&existing).Error
	if err == nil {
		return nil, TokenPair{}, apperror.Conflict("User with this email already exists")
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, TokenPair{}, err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, TokenPair{}, err
	}

	hash := string(hashed)
	user := models.User{
		Name:     name,
		Email:    email,
		Password: &hash,
		Role:     "user",
	}

	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, TokenPair{}, err
	}

	pair, err := s.issuePair(ctx, &user)
	if err != nil {
		return nil, TokenPair{}, err
	}

	return &user, pair, nil
}

// Login authenticates a password account.
func (s *Service) Login(ctx context.Context, email, password string) (*models.User, TokenPair, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("email = ?", NormalizeEmail(email)).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, TokenPair{}, apperror.Unauthorized(msgInvalidCredentials)
		}
		return nil, TokenPair{}, err
	}

	// OAuth-only accounts have no password; fail the same way as a
	// wrong password.
	if !user.HasPassword() {
		return nil, TokenPair{}, apperror.Unauthorized(msgInvalidCredentials)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(*user.Password), []byte(password)); err != nil {
		return nil, TokenPair{}, apperror.Unauthorized(msgInvalidCredentials)
	}

	pair, err := s.issuePair(ctx, &user)
	if err != nil {
		return nil, TokenPair{}, err
	}

	return &user, pair, nil
}

// Refresh exchanges a refresh token for a new pair. The presented token
// must verify against the refresh secret, resolve to a live user and match
// a stored unexpired row. The old row is deleted and the replacement stored
// in the same transaction, so a rotated-out token can never be used twice.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*models.User, TokenPair, error) {
	claims, err := s.tokens.ParseRefresh(refreshToken)
	if err != nil {
		return nil, TokenPair{}, apperror.Unauthorized(msgInvalidRefreshToken)
	}

	var user models.User
	var pair TokenPair

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var stored models.RefreshToken
		err := tx.Where("token_hash = ? AND user_id = ?", HashToken(refreshToken), claims.Subject).
			First(&stored).Error
		if err != nil {
			return apperror.Unauthorized(msgInvalidRefreshToken)
		}
		if time.Now().After(stored.ExpiresAt) {
			return apperror.Unauthorized(msgInvalidRefreshToken)
		}

		// A valid signature for a since-deleted user is still rejected.
		if err := tx.Where("id = ?", claims.Subject).First(&user).Error; err != nil {
			return apperror.Unauthorized(msgInvalidRefreshToken)
		}

		pair, err = s.tokens.GeneratePair(&user)
		if err != nil {
			return err
		}

		if err := tx.Delete(&stored).Error; err != nil {
			return err
		}
		return tx.Create(&models.RefreshToken{
			UserID:    user.ID,
			TokenHash: HashToken(pair.RefreshToken),
			ExpiresAt: time.Now().Add(s.tokens.RefreshTTL()),
		}).Error
	})
	if err != nil {
		return nil, TokenPair{}, err
	}

	return &user, pair, nil
}

// Logout invalidates every stored refresh token for the user.
func (s *Service) Logout(ctx context.Context, userID string) error {
	return s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&models.RefreshToken{}).Error
}

// ValidateUser resolves a user ID to a user, or nil if the user no longer
// exists. Pure lookup, no side effects.
func (s *Service) ValidateUser(ctx context.Context, userID string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("id = ?", userID).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

// ProfileUpdate carries the mutable profile fields; nil means unchanged.
type ProfileUpdate struct {
	Name   *string
	Avatar *string
}

// UpdateProfile mutates name and avatar.
func (s *Service) UpdateProfile(ctx context.Context, userID string, update ProfileUpdate) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("id = ?", userID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("User")
		}
		return nil, err
	}

	if update.Name != nil {
		name := strings.TrimSpace(*update.Name)
		if name == "" {
			return nil, apperror.Validation("name", "Name must not be empty")
		}
		user.Name = name
	}
	if update.Avatar != nil {
		user.Avatar = update.Avatar
	}

	if err := s.db.WithContext(ctx).Save(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdatePassword re-verifies the current password before accepting a new
// one, and rejects a new password identical to the current one.
func (s *Service) UpdatePassword(ctx context.Context, userID, current, next string) error {
	var user models.User
	if err := s.db.WithContext(ctx).Where("id = ?", userID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperror.NotFound("User")
		}
		return err
	}

	if !user.HasPassword() {
		return apperror.Unauthorized("This account has no password set")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(*user.Password), []byte(current)); err != nil {
		return apperror.Unauthorized("Current password is incorrect")
	}

	if current == next {
		return apperror.Validation("newPassword", "New password must be different from the current one")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(next), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	hash := string(hashed)
	user.Password = &hash
	return s.db.WithContext(ctx).Save(&user).Error
}

// issuePair mints a token pair and records the refresh token hash so the
// pair participates in rotation.
func (s *Service) issuePair(ctx context.Context, user *models.User) (TokenPair, error) {
	pair, err := s.tokens.GeneratePair(user)
	if err != nil {
		return TokenPair{}, err
	}

	err = s.db.WithContext(ctx).Create(&models.RefreshToken{
		UserID:    user.ID,
		TokenHash: HashToken(pair.RefreshToken),
		ExpiresAt: time.Now().Add(s.tokens.RefreshTTL()),
	}).Error
	if err != nil {
		return TokenPair{}, err
	}

	return pair, nil
}

// CleanupExpiredTokens removes refresh tokens past their expiry. Run
// periodically from the job scheduler.
func (s *Service) CleanupExpiredTokens(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("expires_at < ?", time.Now()).
		Delete(&models.RefreshToken{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
