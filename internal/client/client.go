package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrSessionExpired reports that the refresh token was rejected and the
// stored session has been cleared.
var ErrSessionExpired = errors.New("session expired")

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Message string
	Errors  map[string][]string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: %s (status %d)", e.Message, e.Status)
}

// User mirrors the server's user representation.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Avatar    *string   `json:"avatar"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// SavedLink mirrors the server's link representation.
type SavedLink struct {
	ID           string    `json:"id"`
	URL          string    `json:"url"`
	Source       string    `json:"source"`
	Title        *string   `json:"title"`
	Category     *string   `json:"category"`
	ThumbnailURL *string   `json:"thumbnail_url"`
	CreatedAt    time.Time `json:"created_at"`
}

type envelope struct {
	Success bool                `json:"success"`
	Message string              `json:"message"`
	Data    json.RawMessage     `json:"data"`
	Errors  map[string][]string `json:"errors"`
}

// authBody is the data payload of auth endpoints. Token fields are only
// present against a bearer-mode server.
type authBody struct {
	User         *User  `json:"user"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Client talks to the link saver API.
type Client struct {
	baseURL string
	store   CredentialStore
	scheme  CredentialScheme

	// authed retries once after a refresh; plain is for the auth
	// endpoints themselves.
	authed *http.Client
	plain  *http.Client
}

// New creates a client. A nil scheme defaults to BearerScheme.
func New(baseURL string, store CredentialStore, scheme CredentialScheme) *Client {
	if scheme == nil {
		scheme = BearerScheme{}
	}

	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		store:   store,
		scheme:  scheme,
		plain:   &http.Client{Timeout: 30 * time.Second},
	}
	c.authed = &http.Client{
		Timeout: 30 * time.Second,
		Transport: &sessionTransport{
			base:    http.DefaultTransport,
			store:   store,
			scheme:  scheme,
			refresh: c.refreshSession,
		},
	}

	return c
}

// Register creates an account and stores the new session.
func (c *Client) Register(ctx context.Context, name, email, password string) (*User, error) {
	return c.authenticate(ctx, "/api/auth/signup", map[string]string{
		"name": name, "email": email, "password": password,
	})
}

// Login signs in and stores the session.
func (c *Client) Login(ctx context.Context, email, password string) (*User, error) {
	return c.authenticate(ctx, "/api/auth/login", map[string]string{
		"email": email, "password": password,
	})
}

// LoginWithGoogle signs in with a Google OAuth access token.
func (c *Client) LoginWithGoogle(ctx context.Context, accessToken string) (*User, error) {
	return c.authenticate(ctx, "/api/auth/google", map[string]string{
		"accessToken": accessToken,
	})
}

func (c *Client) authenticate(ctx context.Context, path string, body any) (*User, error) {
	resp, env, err := c.send(ctx, c.plain, http.MethodPost, path, body, TokenPair{})
	if err != nil {
		return nil, err
	}

	var data authBody
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, fmt.Errorf("decode auth response: %w", err)
	}

	pair, ok := c.scheme.PairFromResponse(resp, data)
	if !ok {
		return nil, errors.New("auth response carried no credentials")
	}
	if err := c.store.SetTokens(pair); err != nil {
		return nil, err
	}

	return data.User, nil
}

// Logout invalidates the session server-side and clears the store. The
// local session is cleared even when the server call fails.
func (c *Client) Logout(ctx context.Context) error {
	err := c.do(ctx, http.MethodPost, "/api/auth/logout", nil, nil)

	if clearErr := c.store.Clear(); clearErr != nil {
		return clearErr
	}
	return err
}

// Me returns the authenticated user.
func (c *Client) Me(ctx context.Context) (*User, error) {
	var data struct {
		User *User `json:"user"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/auth/me", nil, &data); err != nil {
		return nil, err
	}
	return data.User, nil
}

// CreateLinkInput carries optional overrides for a saved link.
type CreateLinkInput struct {
	URL      string  `json:"url"`
	Source   *string `json:"source,omitempty"`
	Title    *string `json:"title,omitempty"`
	Category *string `json:"category,omitempty"`
}

// CreateLink saves a link.
func (c *Client) CreateLink(ctx context.Context, in CreateLinkInput) (*SavedLink, error) {
	var data struct {
		Link *SavedLink `json:"link"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/links", in, &data); err != nil {
		return nil, err
	}
	return data.Link, nil
}

// ListLinksOptions filters ListLinks. Empty fields are ignored.
type ListLinksOptions struct {
	Search   string
	Source   string
	Category string
}

// ListLinks returns the user's saved links, newest first.
func (c *Client) ListLinks(ctx context.Context, opts ListLinksOptions) ([]SavedLink, error) {
	params := url.Values{}
	if opts.Search != "" {
		params.Set("search", opts.Search)
	}
	if opts.Source != "" {
		params.Set("source", opts.Source)
	}
	if opts.Category != "" {
		params.Set("category", opts.Category)
	}

	path := "/api/links"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var data struct {
		Links []SavedLink `json:"links"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &data); err != nil {
		return nil, err
	}
	return data.Links, nil
}

// DeleteLink removes a saved link.
func (c *Client) DeleteLink(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/links/"+id, nil, nil)
}

// do performs an authenticated request. Credentials are attached (and
// refreshed on 401) by the session transport.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	_, env, err := c.send(ctx, c.authed, method, path, body, TokenPair{})
	if err != nil {
		return err
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// refreshSession exchanges the stored refresh token for a new pair.
func (c *Client) refreshSession() error {
	pair := c.store.Tokens()
	if pair.RefreshToken == "" {
		return ErrSessionExpired
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	body := map[string]string{"refreshToken": pair.RefreshToken}
	resp, env, err := c.send(ctx, c.plain, http.MethodPost, "/api/auth/refresh", body, pair)
	if err != nil {
		return ErrSessionExpired
	}

	var data authBody
	_ = json.Unmarshal(env.Data, &data)

	next, ok := c.scheme.PairFromResponse(resp, data)
	if !ok {
		return ErrSessionExpired
	}
	return c.store.SetTokens(next)
}

// send issues one request and decodes the response envelope. attach
// credentials are applied only when pair is non-empty; the authed client
// attaches its own through the transport.
func (c *Client) send(ctx context.Context, hc *http.Client, method, path string, body any, pair TokenPair) (*http.Response, *envelope, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, nil, err
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if !pair.Empty() {
		c.scheme.Attach(req, pair)
	}

	resp, err := hc.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, nil, fmt.Errorf("decode envelope: %w", err)
	}

	if resp.StatusCode >= 400 || !env.Success {
		return nil, nil, &APIError{
			Status:  resp.StatusCode,
			Message: env.Message,
			Errors:  env.Errors,
		}
	}

	return resp, &env, nil
}
