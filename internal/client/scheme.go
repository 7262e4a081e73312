package client

import (
	"net/http"
	"regexp"
)

// CredentialScheme adapts the client to the server's auth transport:
// bearer headers against a bearer-mode server, cookie headers against a
// cookie-mode one.
type CredentialScheme interface {
	// Attach adds the session credentials to an outgoing request.
	Attach(req *http.Request, pair TokenPair)
	// PairFromResponse extracts new credentials from an auth response,
	// returning ok=false when the response carried none.
	PairFromResponse(resp *http.Response, body authBody) (TokenPair, bool)
}

// BearerScheme sends the access token in the Authorization header and
// reads new pairs from response bodies.
type BearerScheme struct{}

func (BearerScheme) Attach(req *http.Request, pair TokenPair) {
	if pair.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	}
}

func (BearerScheme) PairFromResponse(resp *http.Response, body authBody) (TokenPair, bool) {
	if body.AccessToken == "" {
		return TokenPair{}, false
	}
	return TokenPair{AccessToken: body.AccessToken, RefreshToken: body.RefreshToken}, true
}

var (
	accessCookieRe  = regexp.MustCompile(`access_token=([^;]+)`)
	refreshCookieRe = regexp.MustCompile(`refresh_token=([^;]+)`)
)

// CookieScheme replays the server's HTTP-only cookies by hand, which
// keeps the transport explicit instead of relying on a cookie jar.
type CookieScheme struct{}

func (CookieScheme) Attach(req *http.Request, pair TokenPair) {
	if pair.AccessToken != "" {
		req.AddCookie(&http.Cookie{Name: "access_token", Value: pair.AccessToken})
	}
	if pair.RefreshToken != "" {
		req.AddCookie(&http.Cookie{Name: "refresh_token", Value: pair.RefreshToken})
	}
}

func (CookieScheme) PairFromResponse(resp *http.Response, body authBody) (TokenPair, bool) {
	var pair TokenPair
	for _, header := range resp.Header.Values("Set-Cookie") {
		if m := accessCookieRe.FindStringSubmatch(header); m != nil && pair.AccessToken == "" {
			pair.AccessToken = m[1]
		}
		if m := refreshCookieRe.FindStringSubmatch(header); m != nil && pair.RefreshToken == "" {
			pair.RefreshToken = m[1]
		}
	}
	if pair.AccessToken == "" {
		return TokenPair{}, false
	}
	return pair, true
}
