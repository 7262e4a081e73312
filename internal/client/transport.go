package client

import (
	"net/http"

	"golang.org/x/sync/singleflight"
)

// sessionTransport attaches credentials to every request and, on a 401,
// refreshes the session and replays the request once. Concurrent 401s
// trigger a single refresh; the rest wait for its result.
type sessionTransport struct {
	base    http.RoundTripper
	store   CredentialStore
	scheme  CredentialScheme
	refresh func() error

	group singleflight.Group
}

func (t *sessionTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	pair := t.store.Tokens()
	t.scheme.Attach(req, pair)

	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized || pair.RefreshToken == "" {
		return resp, nil
	}

	// A replay needs a fresh body; requests without GetBody cannot be
	// retried safely.
	if req.Body != nil && req.GetBody == nil {
		return resp, nil
	}

	_, refreshErr, _ := t.group.Do("refresh", func() (any, error) {
		return nil, t.refresh()
	})
	if refreshErr != nil {
		// Session is gone; surface the original 401.
		_ = t.store.Clear()
		return resp, nil
	}

	resp.Body.Close()

	retry := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		retry.Body = body
	}

	retry.Header.Del("Authorization")
	retry.Header.Del("Cookie")
	t.scheme.Attach(retry, t.store.Tokens())

	return t.base.RoundTrip(retry)
}
