package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sessionServer covers login, me and link creation for session tests.
type sessionServer struct {
	createdLinks int32
	meCalls      int32
	lastLinkURL  atomic.Value
}

func (s *sessionServer) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var req struct{ Email, Password string }
		json.NewDecoder(r.Body).Decode(&req)

		if req.Password != "s3cretpass" {
			writeEnvelope(w, http.StatusUnauthorized, false, "Invalid email or password", nil)
			return
		}
		writeEnvelope(w, http.StatusOK, true, "Login successful", map[string]any{
			"user":         map[string]string{"id": "u1", "email": req.Email},
			"accessToken":  "access-1",
			"refreshToken": "refresh-1",
		})
	})

	mux.HandleFunc("/api/auth/me", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&s.meCalls, 1)
		if r.Header.Get("Authorization") != "Bearer access-1" {
			writeEnvelope(w, http.StatusUnauthorized, false, "Invalid or expired token", nil)
			return
		}
		writeEnvelope(w, http.StatusOK, true, "User retrieved successfully", map[string]any{
			"user": map[string]string{"id": "u1", "name": "Alice", "email": "alice@example.com"},
		})
	})

	mux.HandleFunc("/api/links", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			URL string `json:"url"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		atomic.AddInt32(&s.createdLinks, 1)
		s.lastLinkURL.Store(req.URL)

		writeEnvelope(w, http.StatusCreated, true, "Link saved successfully", map[string]any{
			"link": map[string]string{"id": "l1", "url": req.URL, "source": "youtube"},
		})
	})

	mux.HandleFunc("/api/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusOK, true, "Logged out successfully", nil)
	})

	// refresh always fails so bootstrap failures stay failures
	mux.HandleFunc("/api/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusUnauthorized, false, "Invalid or expired refresh token", nil)
	})

	return mux
}

func newTestSession(t *testing.T, ts *httptest.Server, store CredentialStore) *Session {
	t.Helper()
	return NewSession(New(ts.URL, store, BearerScheme{}), store)
}

func TestBootstrap(t *testing.T) {
	server := &sessionServer{}
	ts := httptest.NewServer(server.handler())
	defer ts.Close()

	t.Run("no stored credentials", func(t *testing.T) {
		session := newTestSession(t, ts, NewMemoryStore())
		session.Bootstrap(context.Background())
		assert.Equal(t, StateUnauthenticated, session.State())
	})

	t.Run("valid credentials", func(t *testing.T) {
		store := NewMemoryStore()
		store.SetTokens(TokenPair{AccessToken: "access-1", RefreshToken: "refresh-1"})
		session := newTestSession(t, ts, store)

		session.Bootstrap(context.Background())
		assert.Equal(t, StateAuthenticated, session.State())
		require.NotNil(t, session.User())
		assert.Equal(t, "alice@example.com", session.User().Email)
	})

	t.Run("rejected credentials are cleared", func(t *testing.T) {
		store := NewMemoryStore()
		store.SetTokens(TokenPair{AccessToken: "expired", RefreshToken: "expired"})
		session := newTestSession(t, ts, store)

		session.Bootstrap(context.Background())
		assert.Equal(t, StateUnauthenticated, session.State())
		assert.True(t, store.Tokens().Empty())
	})

	t.Run("unreachable server classifies unauthenticated, keeps credentials", func(t *testing.T) {
		store := NewMemoryStore()
		store.SetTokens(TokenPair{AccessToken: "access-1", RefreshToken: "refresh-1"})
		session := NewSession(New("http://127.0.0.1:1", store, BearerScheme{}), store)

		session.Bootstrap(context.Background())
		assert.Equal(t, StateUnauthenticated, session.State())
		assert.False(t, store.Tokens().Empty())
	})
}

func TestSignInSavesPendingLink(t *testing.T) {
	server := &sessionServer{}
	ts := httptest.NewServer(server.handler())
	defer ts.Close()

	store := NewMemoryStore()
	session := newTestSession(t, ts, store)

	// saving before sign-in only remembers the link
	link, err := session.SaveLink(context.Background(), "https://youtu.be/dQw4w9WgXcQ")
	require.NoError(t, err)
	assert.Nil(t, link)
	assert.Zero(t, atomic.LoadInt32(&server.createdLinks))

	result := session.SignIn(context.Background(), "alice@example.com", "s3cretpass")
	require.True(t, result.Success)
	require.NotNil(t, result.PendingLink)
	assert.Equal(t, "https://youtu.be/dQw4w9WgXcQ", result.PendingLink.URL)
	assert.Equal(t, "https://youtu.be/dQw4w9WgXcQ", server.lastLinkURL.Load())
	assert.Equal(t, int32(1), atomic.LoadInt32(&server.createdLinks))
	assert.Empty(t, store.PendingLink())

	// saving while signed in goes straight to the server
	link, err = session.SaveLink(context.Background(), "https://example.com/now")
	require.NoError(t, err)
	require.NotNil(t, link)
	assert.Equal(t, int32(2), atomic.LoadInt32(&server.createdLinks))
}

func TestSignInRefetchesUser(t *testing.T) {
	server := &sessionServer{}
	ts := httptest.NewServer(server.handler())
	defer ts.Close()

	session := newTestSession(t, ts, NewMemoryStore())
	result := session.SignIn(context.Background(), "alice@example.com", "s3cretpass")
	require.True(t, result.Success)

	// the session holds the server's view, not the login payload
	assert.Equal(t, int32(1), atomic.LoadInt32(&server.meCalls))
	require.NotNil(t, session.User())
	assert.Equal(t, "Alice", session.User().Name)
	assert.Equal(t, StateAuthenticated, session.State())
}

func TestSignInFailure(t *testing.T) {
	server := &sessionServer{}
	ts := httptest.NewServer(server.handler())
	defer ts.Close()

	session := newTestSession(t, ts, NewMemoryStore())
	result := session.SignIn(context.Background(), "alice@example.com", "wrong")

	assert.False(t, result.Success)
	assert.Equal(t, "Invalid email or password", result.Message)
	assert.NotEqual(t, StateAuthenticated, session.State())
}

func TestSignOutClearsEvenWhenServerUnreachable(t *testing.T) {
	store := NewMemoryStore()
	store.SetTokens(TokenPair{AccessToken: "access-1", RefreshToken: "refresh-1"})
	session := NewSession(New("http://127.0.0.1:1", store, BearerScheme{}), store)

	session.SignOut(context.Background())
	assert.Equal(t, StateUnauthenticated, session.State())
	assert.True(t, store.Tokens().Empty())
}

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds", "session.json")

	store, err := NewFileStore(path)
	require.NoError(t, err)
	require.NoError(t, store.SetTokens(TokenPair{AccessToken: "aaa", RefreshToken: "rrr"}))
	require.NoError(t, store.SetPendingLink("https://example.com/later"))

	reloaded, err := NewFileStore(path)
	require.NoError(t, err)
	assert.Equal(t, TokenPair{AccessToken: "aaa", RefreshToken: "rrr"}, reloaded.Tokens())
	assert.Equal(t, "https://example.com/later", reloaded.PendingLink())

	require.NoError(t, reloaded.Clear())
	reloaded2, err := NewFileStore(path)
	require.NoError(t, err)
	assert.True(t, reloaded2.Tokens().Empty())
	assert.Equal(t, "https://example.com/later", reloaded2.PendingLink())
}
