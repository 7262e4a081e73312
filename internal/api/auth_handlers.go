package api

import (
	"encoding/json"
	"net/http"
	"regexp"
	"strings"

	"github.com/linksaver/linksaver/internal/auth"
	"github.com/linksaver/linksaver/internal/models"
)

var emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// SignupRequest represents new account details
type SignupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest represents login credentials
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RefreshRequest carries the refresh token for bearer-mode clients;
// cookie-mode clients send it via cookie and an empty body.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// GoogleLoginRequest carries a Google OAuth access token
type GoogleLoginRequest struct {
	AccessToken string `json:"accessToken"`
}

func authData(user *models.User, extra any) any {
	if pair, ok := extra.(auth.TokenPair); ok {
		return map[string]any{
			"user":         user,
			"accessToken":  pair.AccessToken,
			"refreshToken": pair.RefreshToken,
		}
	}
	return map[string]any{"user": user}
}

// HandleSignup creates an account and signs the new user in.
func HandleSignup(svc *auth.Service, transport tokenTransport) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SignupRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondJSON(w, http.StatusBadRequest, Response{Success: false, Message: "Invalid request body"})
			return
		}

		errs := map[string][]string{}
		req.Name = strings.TrimSpace(req.Name)
		if req.Name == "" {
			errs["name"] = append(errs["name"], "Name is required")
		} else if len(req.Name) > 100 {
			errs["name"] = append(errs["name"], "Name must be at most 100 characters")
		}
		if !emailRe.MatchString(strings.TrimSpace(req.Email)) {
			errs["email"] = append(errs["email"], "A valid email is required")
		}
		if len(req.Password) < 8 {
			errs["password"] = append(errs["password"], "Password must be at least 8 characters")
		}
		if len(errs) > 0 {
			respondValidationErrors(w, errs)
			return
		}

		user, pair, err := svc.Register(r.Context(), req.Name, req.Email, req.Password)
		if err != nil {
			respondError(w, err)
			return
		}

		extra := transport.deliver(w, pair)
		respondSuccess(w, http.StatusCreated, "Account created successfully", authData(user, extra))
	}
}

// HandleLogin handles email and password login.
func HandleLogin(svc *auth.Service, transport tokenTransport) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LoginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondJSON(w, http.StatusBadRequest, Response{Success: false, Message: "Invalid request body"})
			return
		}

		user, pair, err := svc.Login(r.Context(), req.Email, req.Password)
		if err != nil {
			respondError(w, err)
			return
		}

		extra := transport.deliver(w, pair)
		respondSuccess(w, http.StatusOK, "Login successful", authData(user, extra))
	}
}

// HandleGoogleLogin signs a user in with a Google OAuth access token,
// creating or linking the account as needed.
func HandleGoogleLogin(svc *auth.Service, transport tokenTransport) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req GoogleLoginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AccessToken == "" {
			respondJSON(w, http.StatusBadRequest, Response{Success: false, Message: "Invalid request body"})
			return
		}

		user, pair, err := svc.LoginWithGoogle(r.Context(), req.AccessToken)
		if err != nil {
			respondError(w, err)
			return
		}

		extra := transport.deliver(w, pair)
		respondSuccess(w, http.StatusOK, "Login successful", authData(user, extra))
	}
}

// HandleRefresh rotates the refresh token and issues a fresh pair.
func HandleRefresh(svc *auth.Service, transport tokenTransport) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RefreshRequest
		// body is optional in cookie mode
		_ = json.NewDecoder(r.Body).Decode(&req)

		token := transport.refreshTokenFrom(r, req.RefreshToken)
		if token == "" {
			respondJSON(w, http.StatusUnauthorized, Response{Success: false, Message: "Invalid or expired refresh token"})
			return
		}

		user, pair, err := svc.Refresh(r.Context(), token)
		if err != nil {
			transport.clear(w)
			respondError(w, err)
			return
		}

		extra := transport.deliver(w, pair)
		respondSuccess(w, http.StatusOK, "Token refreshed successfully", authData(user, extra))
	}
}

// HandleLogout invalidates the authenticated user's refresh tokens and
// clears any cookies.
func HandleLogout(svc *auth.Service, transport tokenTransport) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := UserFromContext(r.Context())
		if err := svc.Logout(r.Context(), user.ID); err != nil {
			respondError(w, err)
			return
		}

		transport.clear(w)
		respondSuccess(w, http.StatusOK, "Logged out successfully", nil)
	}
}

// HandleGetCurrentUser returns the authenticated user.
func HandleGetCurrentUser() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := UserFromContext(r.Context())
		respondSuccess(w, http.StatusOK, "User retrieved successfully", map[string]any{"user": user})
	}
}

// ProfileRequest represents profile fields to change
type ProfileRequest struct {
	Name   *string `json:"name"`
	Avatar *string `json:"avatar"`
}

// HandleUpdateProfile updates name and avatar of the authenticated user.
func HandleUpdateProfile(svc *auth.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ProfileRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondJSON(w, http.StatusBadRequest, Response{Success: false, Message: "Invalid request body"})
			return
		}

		if req.Name != nil {
			trimmed := strings.TrimSpace(*req.Name)
			if trimmed == "" {
				respondValidationErrors(w, map[string][]string{"name": {"Name cannot be empty"}})
				return
			}
			if len(trimmed) > 100 {
				respondValidationErrors(w, map[string][]string{"name": {"Name must be at most 100 characters"}})
				return
			}
			req.Name = &trimmed
		}

		user := UserFromContext(r.Context())
		updated, err := svc.UpdateProfile(r.Context(), user.ID, auth.ProfileUpdate{
			Name:   req.Name,
			Avatar: req.Avatar,
		})
		if err != nil {
			respondError(w, err)
			return
		}

		respondSuccess(w, http.StatusOK, "Profile updated successfully", map[string]any{"user": updated})
	}
}

// PasswordRequest represents a password change
type PasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// HandleUpdatePassword changes the authenticated user's password.
func HandleUpdatePassword(svc *auth.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req PasswordRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondJSON(w, http.StatusBadRequest, Response{Success: false, Message: "Invalid request body"})
			return
		}

		if len(req.NewPassword) < 8 {
			respondValidationErrors(w, map[string][]string{"newPassword": {"Password must be at least 8 characters"}})
			return
		}

		user := UserFromContext(r.Context())
		if err := svc.UpdatePassword(r.Context(), user.ID, req.CurrentPassword, req.NewPassword); err != nil {
			respondError(w, err)
			return
		}

		respondSuccess(w, http.StatusOK, "Password updated successfully", nil)
	}
}
