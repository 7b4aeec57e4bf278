package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type stubLoader map[string]Principal

func (s stubLoader) LoadPrincipal(_ context.Context, userID string) (Principal, error) {
	p, ok := s[userID]
	if !ok {
		return Principal{}, errors.New("no such user")
	}
	return p, nil
}

func newTestMiddleware() *Middleware {
	return &Middleware{
		Tokens: newTestTokens(),
		Users:  stubLoader{"user-1": {UserID: "user-1", Username: "alice"}},
	}
}

func echoPrincipal(w http.ResponseWriter, _ *http.Request, p Principal) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(p.Username))
}

func assertUnauthorized(t *testing.T, rec *httptest.ResponseRecorder) {
	t.Helper()
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	var body map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["message"] != "authentication failed" {
		t.Fatalf("unexpected message: %v", body["message"])
	}
	if _, ok := body["data"]; ok {
		t.Fatal("failure envelope must not carry data")
	}
}

func TestRequire_Bearer(t *testing.T) {
	m := newTestMiddleware()
	pair, _ := m.Tokens.Issue("user-1")

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	rec := httptest.NewRecorder()
	m.Require(echoPrincipal)(rec, req)

	if rec.Code != http.StatusOK || rec.Body.String() != "alice" {
		t.Fatalf("got %d %q", rec.Code, rec.Body.String())
	}
}

func TestRequire_Cookie(t *testing.T) {
	m := newTestMiddleware()
	pair, _ := m.Tokens.Issue("user-1")

	req := httptest.NewRequest("GET", "/", nil)
	req.AddCookie(&http.Cookie{Name: AccessCookie, Value: pair.AccessToken})
	rec := httptest.NewRecorder()
	m.Require(echoPrincipal)(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestRequire_FailuresCollapse(t *testing.T) {
	m := newTestMiddleware()
	pair, _ := m.Tokens.Issue("user-1")
	ghost, _ := m.Tokens.Issue("deleted-user")

	cases := map[string]string{
		"missing":       "",
		"garbage":       "Bearer nope",
		"refresh token": "Bearer " + pair.RefreshToken,
		"unknown user":  "Bearer " + ghost.AccessToken,
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			rec := httptest.NewRecorder()
			called := false
			m.Require(func(http.ResponseWriter, *http.Request, Principal) { called = true })(rec, req)

			if called {
				t.Fatal("handler must not run")
			}
			assertUnauthorized(t, rec)
		})
	}
}

func TestAccessTokenFrom_PrefersHeader(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer from-header")
	req.AddCookie(&http.Cookie{Name: AccessCookie, Value: "from-cookie"})

	if got := AccessTokenFrom(req); got != "from-header" {
		t.Fatalf("got %q", got)
	}
}
