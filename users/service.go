// Package users owns accounts: registration, credentials, token rotation
// and profile updates.
package users

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"

	"vidtube/apperr"
	"vidtube/auth"
	"vidtube/db"
	"vidtube/logging"
	"vidtube/media"
)

const maxPasswordLen = 72 // bcrypt truncates at 72 bytes

// Service implements the account operations.
type Service struct {
	Store  *Store
	Tokens *auth.Tokens
	Media  media.Uploader

	now func() time.Time
}

func NewService(store *Store, tokens *auth.Tokens, uploader media.Uploader) *Service {
	return &Service{Store: store, Tokens: tokens, Media: uploader, now: time.Now}
}

func (s *Service) timestamp() string {
	if s.now == nil {
		return db.Timestamp(time.Now())
	}
	return db.Timestamp(s.now())
}

// RegisterInput carries the registration form. AvatarPath and CoverPath are
// spooled local files; CoverPath may be empty.
type RegisterInput struct {
	Username   string
	Email      string
	Fullname   string
	Password   string
	AvatarPath string
	CoverPath  string
}

// Register creates an account and returns it sanitized.
func (s *Service) Register(ctx context.Context, in RegisterInput) (User, error) {
	for _, v := range []string{in.Username, in.Email, in.Fullname, in.Password} {
		if strings.TrimSpace(v) == "" {
			return User{}, apperr.Validation("all fields are required")
		}
	}
	if len(in.Password) > maxPasswordLen {
		return User{}, apperr.Validation("password must not exceed 72 characters")
	}
	username := strings.ToLower(strings.TrimSpace(in.Username))
	email := strings.ToLower(strings.TrimSpace(in.Email))

	taken, err := s.Store.Taken(ctx, username, email, "")
	if err != nil {
		return User{}, apperr.Internal("failed to check existing users", err)
	}
	if taken {
		return User{}, apperr.Conflict("user already exists")
	}
	if in.AvatarPath == "" {
		return User{}, apperr.Validation("avatar file is required")
	}

	var avatar, cover media.Asset
	var g errgroup.Group
	g.Go(func() error {
		var err error
		avatar, err = s.Media.Upload(ctx, in.AvatarPath)
		return err
	})
	if in.CoverPath != "" {
		g.Go(func() error {
			a, err := s.Media.Upload(ctx, in.CoverPath)
			if err != nil {
				logging.FromContext(ctx).Warn("cover image upload failed", "error", err)
				return nil
			}
			cover = a
			return nil
		})
	}
	if err := g.Wait(); err != nil || avatar.URL == "" {
		return User{}, apperr.Upload("failed to upload avatar", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, apperr.Internal("failed to hash password", err)
	}

	now := s.timestamp()
	u := User{
		ID:            uuid.NewString(),
		Username:      username,
		Email:         email,
		Fullname:      strings.TrimSpace(in.Fullname),
		AvatarURL:     avatar.URL,
		CoverImageURL: cover.URL,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.Store.Insert(ctx, u, string(hash)); err != nil {
		if db.IsUniqueViolation(err) {
			return User{}, apperr.Conflict("user already exists")
		}
		return User{}, apperr.Internal("failed to create user", err)
	}

	logging.FromContext(ctx).Info("user registered", "userId", u.ID, "username", u.Username)
	return u, nil
}

// LoginResult is returned by Login.
type LoginResult struct {
	User         User   `json:"user"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Login verifies credentials by username or email and issues a token pair.
// The new refresh token replaces any previous one.
func (s *Service) Login(ctx context.Context, username, email, password string) (LoginResult, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	email = strings.ToLower(strings.TrimSpace(email))
	if username == "" && email == "" {
		return LoginResult{}, apperr.Validation("username or email is required")
	}

	u, hash, err := s.Store.ByLogin(ctx, username, email)
	if errors.Is(err, db.ErrNotFound) {
		return LoginResult{}, apperr.NotFound("user not found")
	}
	if err != nil {
		return LoginResult{}, apperr.Internal("failed to load user", err)
	}
	if len(password) > maxPasswordLen || bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return LoginResult{}, apperr.Auth("invalid password")
	}

	pair, err := s.Tokens.Issue(u.ID)
	if err != nil {
		return LoginResult{}, apperr.Internal("failed to generate tokens", err)
	}
	if err := s.Store.SetRefreshToken(ctx, u.ID, &pair.RefreshToken); err != nil {
		return LoginResult{}, apperr.Internal("failed to persist refresh token", err)
	}
	return LoginResult{User: u, AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken}, nil
}

// Logout clears the persisted refresh token.
func (s *Service) Logout(ctx context.Context, userID string) error {
	if err := s.Store.SetRefreshToken(ctx, userID, nil); err != nil && !errors.Is(err, db.ErrNotFound) {
		return apperr.Internal("failed to log out", err)
	}
	return nil
}

// Refresh redeems a refresh token for a new pair. The token must match the
// one persisted for its subject.
func (s *Service) Refresh(ctx context.Context, token string) (auth.Pair, error) {
	invalid := apperr.Auth("invalid refresh token")
	if token == "" {
		return auth.Pair{}, apperr.Auth("unauthorized access")
	}

	userID, err := s.Tokens.ParseRefresh(token)
	if err != nil {
		logging.FromContext(ctx).Debug("refresh token rejected", "error", err)
		return auth.Pair{}, invalid
	}
	stored, err := s.Store.RefreshToken(ctx, userID)
	if errors.Is(err, db.ErrNotFound) {
		return auth.Pair{}, invalid
	}
	if err != nil {
		return auth.Pair{}, apperr.Internal("failed to load refresh token", err)
	}
	if stored == "" || stored != token {
		return auth.Pair{}, invalid
	}

	pair, err := s.Tokens.Issue(userID)
	if err != nil {
		return auth.Pair{}, apperr.Internal("failed to generate tokens", err)
	}
	rotated, err := s.Store.RotateRefreshToken(ctx, userID, token, pair.RefreshToken)
	if err != nil {
		return auth.Pair{}, apperr.Internal("failed to persist refresh token", err)
	}
	if !rotated {
		return auth.Pair{}, invalid
	}
	return pair, nil
}

// ChangePassword replaces the password after checking the old one, then
// reads the stored hash back to confirm the write.
func (s *Service) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	if oldPassword == "" {
		return apperr.Validation("old password is required")
	}
	if newPassword == "" {
		return apperr.Validation("new password is required")
	}
	if len(newPassword) > maxPasswordLen {
		return apperr.Validation("password must not exceed 72 characters")
	}

	hash, err := s.Store.PasswordHash(ctx, userID)
	if err != nil {
		return apperr.Internal("failed to load user", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(oldPassword)) != nil {
		return apperr.Auth("old password is incorrect")
	}

	next, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return apperr.Internal("failed to hash password", err)
	}
	if err := s.Store.SetPasswordHash(ctx, userID, string(next), s.timestamp()); err != nil {
		return apperr.Internal("failed to update password", err)
	}

	stored, err := s.Store.PasswordHash(ctx, userID)
	if err != nil || bcrypt.CompareHashAndPassword([]byte(stored), []byte(newPassword)) != nil {
		return apperr.Internal("password not changed", err)
	}
	return nil
}

// Profile returns the current user.
func (s *Service) Profile(ctx context.Context, userID string) (User, error) {
	u, err := s.Store.ByID(ctx, userID)
	if errors.Is(err, db.ErrNotFound) {
		return User{}, apperr.NotFound("user not found")
	}
	if err != nil {
		return User{}, apperr.Internal("failed to load user", err)
	}
	return u, nil
}

// UpdateInput lists profile changes. Nil fields are left untouched.
type UpdateInput struct {
	Fullname   *string
	Email      *string
	Username   *string
	AvatarPath string
	CoverPath  string
}

// UpdateProfile applies the given changes and returns the updated user.
func (s *Service) UpdateProfile(ctx context.Context, userID string, in UpdateInput) (User, error) {
	changes := make(map[string]string)
	for _, f := range []struct {
		column string
		value  *string
		lower  bool
	}{
		{"fullname", in.Fullname, false},
		{"email", in.Email, true},
		{"username", in.Username, true},
	} {
		if f.value == nil {
			continue
		}
		v := strings.TrimSpace(*f.value)
		if v == "" {
			return User{}, apperr.Validation(f.column + " cannot be empty")
		}
		if f.lower {
			v = strings.ToLower(v)
		}
		changes[f.column] = v
	}
	if len(changes) == 0 && in.AvatarPath == "" && in.CoverPath == "" {
		return User{}, apperr.Validation("nothing to update")
	}

	_, hasUsername := changes["username"]
	_, hasEmail := changes["email"]
	if hasUsername || hasEmail {
		taken, err := s.Store.Taken(ctx, changes["username"], changes["email"], userID)
		if err != nil {
			return User{}, apperr.Internal("failed to check existing users", err)
		}
		if taken {
			return User{}, apperr.Conflict("username or email already taken")
		}
	}

	if in.AvatarPath != "" {
		a, err := s.Media.Upload(ctx, in.AvatarPath)
		if err != nil || a.URL == "" {
			return User{}, apperr.Upload("failed to upload avatar", err)
		}
		changes["avatar_url"] = a.URL
	}
	if in.CoverPath != "" {
		a, err := s.Media.Upload(ctx, in.CoverPath)
		if err != nil || a.URL == "" {
			return User{}, apperr.Upload("failed to upload cover image", err)
		}
		changes["cover_image_url"] = a.URL
	}

	if err := s.Store.Update(ctx, userID, changes, s.timestamp()); err != nil {
		if db.IsUniqueViolation(err) {
			return User{}, apperr.Conflict("username or email already taken")
		}
		if errors.Is(err, db.ErrNotFound) {
			return User{}, apperr.NotFound("user not found")
		}
		return User{}, apperr.Internal("failed to update user", err)
	}
	return s.Profile(ctx, userID)
}
