package videos

import (
	"context"
	"database/sql"
	"errors"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"vidtube/db"
)

// Video is a catalog entry.
type Video struct {
	ID              string   `json:"id"`
	OwnerID         string   `json:"ownerId"`
	Title           string   `json:"title"`
	Description     string   `json:"description"`
	VideoURL        string   `json:"videoUrl"`
	ThumbnailURL    string   `json:"thumbnailUrl"`
	DurationSeconds *float64 `json:"durationSeconds"`
	ViewCount       int64    `json:"viewCount"`
	IsPublished     bool     `json:"isPublished"`
	CreatedAt       string   `json:"createdAt"`
	UpdatedAt       string   `json:"updatedAt"`
}

// Owner is the public projection of a video's uploader.
type Owner struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	Fullname  string `json:"fullname"`
	AvatarURL string `json:"avatarUrl"`
}

// WithOwner is a video with its uploader inlined.
type WithOwner struct {
	Video
	Owner Owner `json:"owner"`
}

// Fold lower-cases s for case-insensitive matching. Titles and
// descriptions are stored folded next to the originals because SQLite's
// LOWER only handles ASCII. Casers are stateful, so each call builds its own.
func Fold(s string) string {
	return cases.Lower(language.Und).String(s)
}

// Columns selects every video column, qualified with the alias v.
const Columns = `v.id, v.owner_id, v.title, v.description, v.video_url, v.thumbnail_url,
	v.duration_seconds, v.view_count, v.is_published, v.created_at, v.updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// Scan reads a row selected with Columns, followed by any extra columns.
func Scan(row rowScanner, extra ...interface{}) (Video, error) {
	var v Video
	dest := append([]interface{}{
		&v.ID, &v.OwnerID, &v.Title, &v.Description, &v.VideoURL, &v.ThumbnailURL,
		&v.DurationSeconds, &v.ViewCount, &v.IsPublished, &v.CreatedAt, &v.UpdatedAt,
	}, extra...)
	err := row.Scan(dest...)
	return v, err
}

// ScanAll drains rows selected with Columns.
func ScanAll(rows *sql.Rows) ([]Video, error) {
	defer rows.Close()
	out := make([]Video, 0)
	for rows.Next() {
		v, err := Scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// Store reads and writes the videos table.
type Store struct {
	DB *db.CompatDB
}

func (s *Store) Insert(ctx context.Context, v Video) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO videos (id, owner_id, title, description, title_folded, description_folded,
		                    video_url, thumbnail_url, duration_seconds, view_count, is_published, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, v.ID, v.OwnerID, v.Title, v.Description, Fold(v.Title), Fold(v.Description), v.VideoURL, v.ThumbnailURL,
		v.DurationSeconds, v.ViewCount, v.IsPublished, v.CreatedAt, v.UpdatedAt)
	return err
}

// Exists reports whether id names a video.
func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	var one int
	err := s.DB.QueryRowContext(ctx, `SELECT 1 FROM videos WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

// WithOwnerByID loads a video joined to its uploader.
func (s *Store) WithOwnerByID(ctx context.Context, id string) (WithOwner, error) {
	var o Owner
	v, err := Scan(s.DB.QueryRowContext(ctx, `
		SELECT `+Columns+`, u.id, u.username, u.email, u.fullname, u.avatar_url
		FROM videos v
		JOIN users u ON u.id = v.owner_id
		WHERE v.id = ?
	`, id), &o.ID, &o.Username, &o.Email, &o.Fullname, &o.AvatarURL)
	if errors.Is(err, sql.ErrNoRows) {
		return WithOwner{}, db.ErrNotFound
	}
	if err != nil {
		return WithOwner{}, err
	}
	return WithOwner{Video: v, Owner: o}, nil
}

// ListByOwner returns the owner's videos in upload order.
func (s *Store) ListByOwner(ctx context.Context, ownerID string) ([]Video, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+Columns+` FROM videos v WHERE v.owner_id = ? ORDER BY v.created_at, v.id`, ownerID)
	if err != nil {
		return nil, err
	}
	return ScanAll(rows)
}

// ListAll returns every video, oldest first.
func (s *Store) ListAll(ctx context.Context) ([]Video, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT `+Columns+` FROM videos v ORDER BY v.created_at, v.id`)
	if err != nil {
		return nil, err
	}
	return ScanAll(rows)
}

// IncrementViews bumps view_count in place.
func (s *Store) IncrementViews(ctx context.Context, id string) error {
	res, err := s.DB.ExecContext(ctx, `UPDATE videos SET view_count = view_count + 1 WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return db.ErrNotFound
	}
	return nil
}
