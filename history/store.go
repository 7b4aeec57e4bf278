// Package history keeps the append-only watch history.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"vidtube/db"
)

// Entry is one watched video as shown to its viewer.
type Entry struct {
	Video Video `json:"video"`
}

type Video struct {
	ID              string   `json:"id"`
	Title           string   `json:"title"`
	Description     string   `json:"description"`
	VideoURL        string   `json:"videoUrl"`
	ThumbnailURL    string   `json:"thumbnailUrl"`
	DurationSeconds *float64 `json:"durationSeconds"`
	ViewCount       int64    `json:"viewCount"`
	CreatedAt       string   `json:"createdAt"`
	Owner           Owner    `json:"owner"`
}

type Owner struct {
	Username  string `json:"username"`
	Fullname  string `json:"fullname"`
	AvatarURL string `json:"avatarUrl"`
}

// Store reads and writes watch_history.
type Store struct {
	DB  *db.CompatDB
	now func() time.Time
}

func NewStore(d *db.CompatDB) *Store {
	return &Store{DB: d, now: time.Now}
}

// Record appends a view. Ids are UUIDv7 so they sort by creation time and
// break ties between views sharing a timestamp.
func (s *Store) Record(ctx context.Context, userID, videoID string) error {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("history id: %w", err)
	}
	now := time.Now
	if s.now != nil {
		now = s.now
	}
	_, err = s.DB.ExecContext(ctx,
		`INSERT INTO watch_history (id, user_id, video_id, watched_at) VALUES (?, ?, ?, ?)`,
		id.String(), userID, videoID, db.Timestamp(now()))
	return err
}

// List returns the user's history, newest first.
func (s *Store) List(ctx context.Context, userID string) ([]Entry, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT v.id, v.title, v.description, v.video_url, v.thumbnail_url,
		       v.duration_seconds, v.view_count, v.created_at,
		       u.username, u.fullname, u.avatar_url
		FROM watch_history h
		JOIN videos v ON v.id = h.video_id
		JOIN users u ON u.id = v.owner_id
		WHERE h.user_id = ?
		ORDER BY h.watched_at DESC, h.id DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]Entry, 0)
	for rows.Next() {
		var e Entry
		v := &e.Video
		if err := rows.Scan(&v.ID, &v.Title, &v.Description, &v.VideoURL, &v.ThumbnailURL,
			&v.DurationSeconds, &v.ViewCount, &v.CreatedAt,
			&v.Owner.Username, &v.Owner.Fullname, &v.Owner.AvatarURL); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
