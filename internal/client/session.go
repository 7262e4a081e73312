package client

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State is the session's authentication state.
type State int

const (
	// StateUnknown means bootstrap has not run yet.
	StateUnknown State = iota
	StateAuthenticated
	StateUnauthenticated
)

const bootstrapTimeout = 10 * time.Second

// Session tracks who is signed in and remembers a link the user tried to
// save before authenticating, saving it right after sign-in.
type Session struct {
	client *Client
	store  CredentialStore

	mu    sync.Mutex
	state State
	user  *User
}

func NewSession(client *Client, store CredentialStore) *Session {
	return &Session{client: client, store: store}
}

// State returns the current authentication state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// User returns the signed-in user, nil otherwise.
func (s *Session) User() *User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user
}

// Bootstrap restores the session from stored credentials. It never
// returns an error: any failure classifies as StateUnauthenticated. A
// server rejection also clears the stored credentials; an unreachable
// server keeps them so a later sign-in or retry can reuse them.
func (s *Session) Bootstrap(ctx context.Context) {
	if s.store.Tokens().Empty() {
		s.setState(StateUnauthenticated, nil)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, bootstrapTimeout)
	defer cancel()

	user, err := s.client.Me(ctx)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			_ = s.store.Clear()
		}
		s.setState(StateUnauthenticated, nil)
		return
	}

	s.setState(StateAuthenticated, user)
}

// Result is the outcome of a sign-in or sign-up attempt. PendingLink is
// set when a remembered link was saved as part of the attempt.
type Result struct {
	Success     bool
	Message     string
	PendingLink *SavedLink
}

// SignIn authenticates and saves any pending link.
func (s *Session) SignIn(ctx context.Context, email, password string) Result {
	user, err := s.client.Login(ctx, email, password)
	return s.finishAuth(ctx, user, err)
}

// SignUp creates an account and saves any pending link.
func (s *Session) SignUp(ctx context.Context, name, email, password string) Result {
	user, err := s.client.Register(ctx, name, email, password)
	return s.finishAuth(ctx, user, err)
}

func (s *Session) finishAuth(ctx context.Context, user *User, err error) Result {
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return Result{Message: apiErr.Message}
		}
		return Result{Message: "Could not reach the server"}
	}

	// normalize through the server's view of the session; the login
	// payload stands in if the follow-up fetch fails
	if fetched, ferr := s.client.Me(ctx); ferr == nil {
		user = fetched
	}
	s.setState(StateAuthenticated, user)

	result := Result{Success: true, Message: "Signed in"}
	if pending := s.store.PendingLink(); pending != "" {
		if link, err := s.client.CreateLink(ctx, CreateLinkInput{URL: pending}); err == nil {
			result.PendingLink = link
		}
		// consumed either way; a bad URL should not wedge sign-in
		_ = s.store.ClearPendingLink()
	}

	return result
}

// SaveLink saves a link now when signed in, or remembers it to be saved
// right after the next sign-in.
func (s *Session) SaveLink(ctx context.Context, url string) (*SavedLink, error) {
	if s.State() == StateAuthenticated {
		return s.client.CreateLink(ctx, CreateLinkInput{URL: url})
	}

	if err := s.store.SetPendingLink(url); err != nil {
		return nil, err
	}
	return nil, nil
}

// SignOut tells the server to drop the session and clears local state.
// The local session is cleared even when the server is unreachable.
func (s *Session) SignOut(ctx context.Context) {
	_ = s.client.Logout(ctx)
	s.setState(StateUnauthenticated, nil)
}

// ApplyProfile patches the locally cached user after a profile update.
func (s *Session) ApplyProfile(user *User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateAuthenticated && user != nil {
		s.user = user
	}
}

func (s *Session) setState(state State, user *User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	s.user = user
}
