package auth

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Cookie names carrying the token pair.
const (
	AccessCookie  = "accessToken"
	RefreshCookie = "refreshToken"
)

// TokenType distinguishes access from refresh tokens.
type TokenType string

const (
	TypeAccess  TokenType = "access"
	TypeRefresh TokenType = "refresh"
)

// ErrInvalidToken is returned for any token that fails verification.
var ErrInvalidToken = errors.New("invalid token")

// Claims are the registered claims plus the token type.
type Claims struct {
	jwt.RegisteredClaims
	Type TokenType `json:"typ"`
}

// Pair is an access/refresh token pair issued together.
type Pair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Tokens signs and verifies access and refresh JWTs. Each type has its own
// secret and lifetime.
type Tokens struct {
	accessSecret  []byte
	refreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	// SecureCookies sets the Secure attribute on token cookies.
	SecureCookies bool

	now func() time.Time
}

func NewTokens(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration, secureCookies bool) *Tokens {
	return &Tokens{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		AccessTTL:     accessTTL,
		RefreshTTL:    refreshTTL,
		SecureCookies: secureCookies,
		now:           time.Now,
	}
}

// Issue mints a fresh access/refresh pair for userID.
func (t *Tokens) Issue(userID string) (Pair, error) {
	access, err := t.sign(userID, TypeAccess, t.accessSecret, t.AccessTTL)
	if err != nil {
		return Pair{}, fmt.Errorf("sign access token: %w", err)
	}
	refresh, err := t.sign(userID, TypeRefresh, t.refreshSecret, t.RefreshTTL)
	if err != nil {
		return Pair{}, fmt.Errorf("sign refresh token: %w", err)
	}
	return Pair{AccessToken: access, RefreshToken: refresh}, nil
}

// ParseAccess verifies an access token and returns its subject.
func (t *Tokens) ParseAccess(token string) (string, error) {
	return t.parse(token, TypeAccess, t.accessSecret)
}

// ParseRefresh verifies a refresh token and returns its subject.
func (t *Tokens) ParseRefresh(token string) (string, error) {
	return t.parse(token, TypeRefresh, t.refreshSecret)
}

func (t *Tokens) sign(userID string, typ TokenType, secret []byte, ttl time.Duration) (string, error) {
	now := t.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Type: typ,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func (t *Tokens) parse(token string, want TokenType, secret []byte) (string, error) {
	if token == "" {
		return "", ErrInvalidToken
	}
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid || claims.Type != want || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

// SetCookies writes both tokens as HttpOnly cookies living as long as the
// tokens themselves.
func (t *Tokens) SetCookies(w http.ResponseWriter, p Pair) {
	http.SetCookie(w, t.cookie(AccessCookie, p.AccessToken, int(t.AccessTTL.Seconds())))
	http.SetCookie(w, t.cookie(RefreshCookie, p.RefreshToken, int(t.RefreshTTL.Seconds())))
}

// ClearCookies expires both token cookies.
func (t *Tokens) ClearCookies(w http.ResponseWriter) {
	http.SetCookie(w, t.cookie(AccessCookie, "", -1))
	http.SetCookie(w, t.cookie(RefreshCookie, "", -1))
}

func (t *Tokens) cookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   t.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	}
}
