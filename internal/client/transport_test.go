package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// authServer simulates the API's bearer-mode auth behavior: one access
// token is valid at a time and refresh rotates it.
type authServer struct {
	mu           sync.Mutex
	access       string
	refresh      string
	refreshCalls int32
	refreshDelay time.Duration
	refreshFails bool
}

func (s *authServer) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&s.refreshCalls, 1)
		time.Sleep(s.refreshDelay)

		if s.refreshFails {
			writeEnvelope(w, http.StatusUnauthorized, false, "Invalid or expired refresh token", nil)
			return
		}

		s.mu.Lock()
		s.access = s.access + "+"
		s.refresh = s.refresh + "+"
		data := map[string]string{"accessToken": s.access, "refreshToken": s.refresh}
		s.mu.Unlock()

		writeEnvelope(w, http.StatusOK, true, "Token refreshed successfully", data)
	})

	mux.HandleFunc("/api/auth/me", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		valid := r.Header.Get("Authorization") == "Bearer "+s.access
		s.mu.Unlock()

		if !valid {
			writeEnvelope(w, http.StatusUnauthorized, false, "Invalid or expired token", nil)
			return
		}
		writeEnvelope(w, http.StatusOK, true, "User retrieved successfully", map[string]any{
			"user": map[string]string{"id": "u1", "email": "alice@example.com"},
		})
	})

	return mux
}

func writeEnvelope(w http.ResponseWriter, status int, success bool, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"success": success,
		"message": message,
		"data":    data,
	})
}

func staleStore() *MemoryStore {
	store := NewMemoryStore()
	store.SetTokens(TokenPair{AccessToken: "stale", RefreshToken: "r1"})
	return store
}

func TestTransportRefreshesAndReplays(t *testing.T) {
	server := &authServer{access: "a1", refresh: "r1"}
	ts := httptest.NewServer(server.handler())
	defer ts.Close()

	store := staleStore()
	c := New(ts.URL, store, BearerScheme{})

	user, err := c.Me(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.Equal(t, int32(1), atomic.LoadInt32(&server.refreshCalls))
	assert.Equal(t, "a1+", store.Tokens().AccessToken)
}

func TestTransportConcurrent401sRefreshOnce(t *testing.T) {
	server := &authServer{access: "a1", refresh: "r1", refreshDelay: 50 * time.Millisecond}
	ts := httptest.NewServer(server.handler())
	defer ts.Close()

	c := New(ts.URL, staleStore(), BearerScheme{})

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.Me(context.Background())
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "request %d", i)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&server.refreshCalls))
}

func TestTransportReplaysAtMostOnce(t *testing.T) {
	var meCalls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusOK, true, "ok", map[string]string{
			"accessToken": "fresh", "refreshToken": "r2",
		})
	})
	mux.HandleFunc("/api/auth/me", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&meCalls, 1)
		writeEnvelope(w, http.StatusUnauthorized, false, "Invalid or expired token", nil)
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	c := New(ts.URL, staleStore(), BearerScheme{})

	_, err := c.Me(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, int32(2), atomic.LoadInt32(&meCalls))
}

func TestTransportClearsStoreWhenRefreshFails(t *testing.T) {
	server := &authServer{access: "a1", refresh: "r1", refreshFails: true}
	ts := httptest.NewServer(server.handler())
	defer ts.Close()

	store := staleStore()
	c := New(ts.URL, store, BearerScheme{})

	_, err := c.Me(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.True(t, store.Tokens().Empty())
}

func TestCookieScheme(t *testing.T) {
	t.Run("attach", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "http://example.com/", nil)
		CookieScheme{}.Attach(req, TokenPair{AccessToken: "aaa", RefreshToken: "rrr"})

		header := req.Header.Get("Cookie")
		assert.Contains(t, header, "access_token=aaa")
		assert.Contains(t, header, "refresh_token=rrr")
	})

	t.Run("pair from set-cookie", func(t *testing.T) {
		resp := &http.Response{Header: http.Header{}}
		resp.Header.Add("Set-Cookie", "access_token=aaa; Path=/; HttpOnly")
		resp.Header.Add("Set-Cookie", "refresh_token=rrr; Path=/; HttpOnly")

		pair, ok := CookieScheme{}.PairFromResponse(resp, authBody{})
		require.True(t, ok)
		assert.Equal(t, TokenPair{AccessToken: "aaa", RefreshToken: "rrr"}, pair)
	})

	t.Run("cleared cookies carry no pair", func(t *testing.T) {
		resp := &http.Response{Header: http.Header{}}
		resp.Header.Add("Set-Cookie", "access_token=; Path=/; Max-Age=-1")

		_, ok := CookieScheme{}.PairFromResponse(resp, authBody{})
		assert.False(t, ok)
	})
}

func TestBearerSchemeAttachSkipsEmptyToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://example.com/", nil)
	BearerScheme{}.Attach(req, TokenPair{})
	assert.False(t, strings.Contains(req.Header.Get("Authorization"), "Bearer"))
}
