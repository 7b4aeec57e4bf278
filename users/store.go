package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"vidtube/auth"
	"vidtube/db"
)

// User is the sanitized account record. The password hash and refresh token
// never leave the store.
type User struct {
	ID            string `json:"id"`
	Username      string `json:"username"`
	Email         string `json:"email"`
	Fullname      string `json:"fullname"`
	AvatarURL     string `json:"avatarUrl"`
	CoverImageURL string `json:"coverImageUrl"`
	CreatedAt     string `json:"createdAt"`
	UpdatedAt     string `json:"updatedAt"`
}

const userColumns = `id, username, email, fullname, avatar_url, cover_image_url, created_at, updated_at`

// Store reads and writes the users table.
type Store struct {
	DB *db.CompatDB
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(row rowScanner, extra ...interface{}) (User, error) {
	var u User
	dest := append([]interface{}{
		&u.ID, &u.Username, &u.Email, &u.Fullname,
		&u.AvatarURL, &u.CoverImageURL, &u.CreatedAt, &u.UpdatedAt,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, db.ErrNotFound
		}
		return User{}, err
	}
	return u, nil
}

// Insert stores a new user. Unique violations are returned unchanged so the
// caller can map them.
func (s *Store) Insert(ctx context.Context, u User, passwordHash string) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO users (id, username, email, fullname, password_hash, avatar_url, cover_image_url, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, u.ID, u.Username, u.Email, u.Fullname, passwordHash, u.AvatarURL, u.CoverImageURL, u.CreatedAt, u.UpdatedAt)
	return err
}

// ByID returns the user with id or db.ErrNotFound.
func (s *Store) ByID(ctx context.Context, id string) (User, error) {
	return scanUser(s.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
}

// ByUsername looks a user up by its stored (lowercase) username.
func (s *Store) ByUsername(ctx context.Context, username string) (User, error) {
	return scanUser(s.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username = ?`, username))
}

// ByLogin matches either identifier and also returns the password hash.
func (s *Store) ByLogin(ctx context.Context, username, email string) (User, string, error) {
	var hash string
	u, err := scanUser(s.DB.QueryRowContext(ctx,
		`SELECT `+userColumns+`, password_hash FROM users WHERE username = ? OR email = ? LIMIT 1`,
		username, email), &hash)
	return u, hash, err
}

// Taken reports whether another account already uses username or email.
// excludeID skips the caller's own row; pass "" on registration.
func (s *Store) Taken(ctx context.Context, username, email, excludeID string) (bool, error) {
	var n int
	err := s.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE (username = ? OR email = ?) AND id <> ?`,
		username, email, excludeID).Scan(&n)
	return n > 0, err
}

func (s *Store) PasswordHash(ctx context.Context, id string) (string, error) {
	var hash string
	err := s.DB.QueryRowContext(ctx, `SELECT password_hash FROM users WHERE id = ?`, id).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", db.ErrNotFound
	}
	return hash, err
}

func (s *Store) SetPasswordHash(ctx context.Context, id, hash, now string) error {
	return s.execOne(ctx, `UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`, hash, now, id)
}

// RefreshToken returns the persisted refresh token, "" when none is set.
func (s *Store) RefreshToken(ctx context.Context, id string) (string, error) {
	var token sql.NullString
	err := s.DB.QueryRowContext(ctx, `SELECT refresh_token FROM users WHERE id = ?`, id).Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return "", db.ErrNotFound
	}
	return token.String, err
}

// SetRefreshToken overwrites the persisted token. A nil token clears it.
func (s *Store) SetRefreshToken(ctx context.Context, id string, token *string) error {
	return s.execOne(ctx, `UPDATE users SET refresh_token = ? WHERE id = ?`, token, id)
}

// RotateRefreshToken replaces old with next only if old is still current,
// so a refresh token can be redeemed once.
func (s *Store) RotateRefreshToken(ctx context.Context, id, old, next string) (bool, error) {
	res, err := s.DB.ExecContext(ctx,
		`UPDATE users SET refresh_token = ? WHERE id = ? AND refresh_token = ?`, next, id, old)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// profileColumns are the columns Update may change.
var profileColumns = []string{"fullname", "email", "username", "avatar_url", "cover_image_url"}

// Update applies changes keyed by column name. Unknown keys are ignored.
func (s *Store) Update(ctx context.Context, id string, changes map[string]string, now string) error {
	var sets []string
	var args []interface{}
	for _, col := range profileColumns {
		if v, ok := changes[col]; ok {
			sets = append(sets, col+" = ?")
			args = append(args, v)
		}
	}
	if len(sets) == 0 {
		return nil
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, now, id)
	return s.execOne(ctx, `UPDATE users SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
}

// LoadPrincipal implements auth.PrincipalLoader.
func (s *Store) LoadPrincipal(ctx context.Context, userID string) (auth.Principal, error) {
	var p auth.Principal
	err := s.DB.QueryRowContext(ctx, `SELECT id, username FROM users WHERE id = ?`, userID).Scan(&p.UserID, &p.Username)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.Principal{}, db.ErrNotFound
	}
	return p, err
}

func (s *Store) execOne(ctx context.Context, query string, args ...interface{}) error {
	res, err := s.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return db.ErrNotFound
	}
	return nil
}
