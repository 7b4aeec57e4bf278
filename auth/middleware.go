package auth

import (
	"context"
	"net/http"
	"strings"

	"vidtube/apperr"
	"vidtube/httputil"
	"vidtube/logging"
)

// Principal is the authenticated caller handed to protected handlers.
type Principal struct {
	UserID   string
	Username string
}

// PrincipalLoader resolves a token subject to a live user.
type PrincipalLoader interface {
	LoadPrincipal(ctx context.Context, userID string) (Principal, error)
}

// AuthedHandlerFunc is a handler that runs only for authenticated callers.
type AuthedHandlerFunc func(w http.ResponseWriter, r *http.Request, p Principal)

// Middleware authenticates requests by access token.
type Middleware struct {
	Tokens *Tokens
	Users  PrincipalLoader
}

// Require rejects requests without a valid access token with a single 401.
// The concrete cause is only logged at debug level.
func (m *Middleware) Require(next AuthedHandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := m.authenticate(r)
		if err != nil {
			logging.FromContext(r.Context()).Debug("authentication failed", "error", err)
			httputil.WriteError(r.Context(), w, apperr.Auth("authentication failed"))
			return
		}
		ctx := logging.WithLogger(r.Context(), logging.FromContext(r.Context()).With("userId", p.UserID))
		next(w, r.WithContext(ctx), p)
	}
}

func (m *Middleware) authenticate(r *http.Request) (Principal, error) {
	userID, err := m.Tokens.ParseAccess(AccessTokenFrom(r))
	if err != nil {
		return Principal{}, err
	}
	return m.Users.LoadPrincipal(r.Context(), userID)
}

// AccessTokenFrom returns the bearer token, falling back to the access
// cookie.
func AccessTokenFrom(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	if c, err := r.Cookie(AccessCookie); err == nil {
		return c.Value
	}
	return ""
}
