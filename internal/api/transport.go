package api

import (
	"net/http"
	"time"

	"github.com/linksaver/linksaver/internal/auth"
	"github.com/linksaver/linksaver/internal/config"
)

const (
	accessTokenCookie  = "access_token"
	refreshTokenCookie = "refresh_token"
)

// tokenTransport abstracts how a token pair travels to the client: either
// HTTP-only cookies or the response body for bearer-style clients. Routes
// stay identical across the two.
type tokenTransport interface {
	// deliver hands the pair to the client and returns what, if
	// anything, belongs in the response data.
	deliver(w http.ResponseWriter, pair auth.TokenPair) any
	// refreshTokenFrom extracts the refresh token from an incoming
	// refresh request. bodyToken is the token from the decoded body,
	// empty when the body had none.
	refreshTokenFrom(r *http.Request, bodyToken string) string
	// clear removes any client-side credential state.
	clear(w http.ResponseWriter)
}

func newTokenTransport(cfg *config.Config) tokenTransport {
	if cfg.AuthTransport == config.TransportBearer {
		return bearerTransport{}
	}
	return cookieTransport{
		secure:     cfg.Environment == "production",
		accessTTL:  cfg.JWT.AccessTTL,
		refreshTTL: cfg.JWT.RefreshTTL,
	}
}

type cookieTransport struct {
	secure     bool
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func (t cookieTransport) deliver(w http.ResponseWriter, pair auth.TokenPair) any {
	http.SetCookie(w, t.cookie(accessTokenCookie, pair.AccessToken, t.accessTTL))
	http.SetCookie(w, t.cookie(refreshTokenCookie, pair.RefreshToken, t.refreshTTL))
	return nil
}

func (t cookieTransport) refreshTokenFrom(r *http.Request, bodyToken string) string {
	if cookie, err := r.Cookie(refreshTokenCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	return bodyToken
}

func (t cookieTransport) clear(w http.ResponseWriter) {
	http.SetCookie(w, t.expiredCookie(accessTokenCookie))
	http.SetCookie(w, t.expiredCookie(refreshTokenCookie))
}

func (t cookieTransport) cookie(name, value string, ttl time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(ttl / time.Second),
		HttpOnly: true,
		Secure:   t.secure,
		SameSite: http.SameSiteLaxMode,
	}
}

func (t cookieTransport) expiredCookie(name string) *http.Cookie {
	c := t.cookie(name, "", 0)
	c.MaxAge = -1
	return c
}

type bearerTransport struct{}

func (bearerTransport) deliver(w http.ResponseWriter, pair auth.TokenPair) any {
	return pair
}

func (bearerTransport) refreshTokenFrom(r *http.Request, bodyToken string) string {
	return bodyToken
}

func (bearerTransport) clear(w http.ResponseWriter) {}
