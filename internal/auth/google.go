package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"gorm.io/gorm"

	"github.com/linksaver/linksaver/internal/apperror"
	"github.com/linksaver/linksaver/internal/models"
)

const googleUserinfoURL = "https://www.googleapis.com/oauth2/v3/userinfo"

// GoogleUserInfo holds the subset of the userinfo response this service uses
type GoogleUserInfo struct {
	Subject string `json:"sub"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

// googleClient is shared; userinfo calls are bounded independently of the
// caller's deadline.
var googleClient = &http.Client{Timeout: 10 * time.Second}

// LoginWithGoogle signs in (or signs up) a user from a Google OAuth access
// token. Existing password accounts with the same email get the Google
// identity linked rather than duplicated.
func (s *Service) LoginWithGoogle(ctx context.Context, accessToken string) (*models.User, TokenPair, error) {
	info, err := fetchGoogleUserInfo(ctx, accessToken)
	if err != nil {
		return nil, TokenPair{}, apperror.Unauthorized("Invalid Google token")
	}

	user, err := s.upsertGoogleUser(ctx, info)
	if err != nil {
		return nil, TokenPair{}, err
	}

	pair, err := s.issuePair(ctx, user)
	if err != nil {
		return nil, TokenPair{}, err
	}

	return user, pair, nil
}

func (s *Service) upsertGoogleUser(ctx context.Context, info *GoogleUserInfo) (*models.User, error) {
	provider := "google"

	var user models.User
	err := s.db.WithContext(ctx).
		Where("oauth_provider = ? AND oauth_id = ?", provider, info.Subject).
		First(&user).Error
	if err == nil {
		return &user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	email := NormalizeEmail(info.Email)
	err = s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if err == nil {
		// Link the Google identity to the existing account.
		user.OAuthProvider = &provider
		user.OAuthID = &info.Subject
		if user.Avatar == nil && info.Picture != "" {
			avatar := info.Picture
			user.Avatar = &avatar
		}
		if err := s.db.WithContext(ctx).Save(&user).Error; err != nil {
			return nil, err
		}
		return &user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	user = models.User{
		Name:          info.Name,
		Email:         email,
		OAuthProvider: &provider,
		OAuthID:       &info.Subject,
		Role:          "user",
	}
	if info.Picture != "" {
		avatar := info.Picture
		user.Avatar = &avatar
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func fetchGoogleUserInfo(ctx context.Context, accessToken string) (*GoogleUserInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, googleUserinfoURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := googleClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("userinfo endpoint returned status %d", resp.StatusCode)
	}

	var info GoogleUserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, err
	}
	if info.Subject == "" || info.Email == "" {
		return nil, fmt.Errorf("userinfo response missing subject or email")
	}

	return &info, nil
}
