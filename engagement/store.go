// Package engagement records likes, dislikes and comments on videos.
//
// A user holds at most one reaction per video. Submitting Like or DisLike
// when a reaction exists flips it to the opposite kind, whichever kind was
// submitted; comments are unlimited.
package engagement

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"vidtube/apperr"
	"vidtube/db"
	"vidtube/logging"
)

// Kind is the type of an engagement record.
type Kind string

const (
	Like    Kind = "Like"
	DisLike Kind = "DisLike"
	Comment Kind = "Comment"
)

// ParseKind matches s against the known kinds ignoring case.
func ParseKind(s string) (Kind, bool) {
	s = strings.TrimSpace(s)
	for _, k := range []Kind{Like, DisLike, Comment} {
		if strings.EqualFold(s, string(k)) {
			return k, true
		}
	}
	return "", false
}

// Stats counts records per kind for one video.
type Stats struct {
	Like    int `json:"Like"`
	DisLike int `json:"DisLike"`
	Comment int `json:"Comment"`
}

// CommentView is a comment with its author's username.
type CommentView struct {
	Content string      `json:"content"`
	User    CommentUser `json:"user"`
}

type CommentUser struct {
	Username string `json:"username"`
}

// Store reads and writes the engagements table.
type Store struct {
	DB  *db.CompatDB
	now func() time.Time
}

func NewStore(d *db.CompatDB) *Store {
	return &Store{DB: d, now: time.Now}
}

// Apply records kind for (userID, videoID). content is only used for
// comments and must not be blank.
func (s *Store) Apply(ctx context.Context, userID, videoID string, kind Kind, content string) error {
	switch kind {
	case Comment:
		content = strings.TrimSpace(content)
		if content == "" {
			return apperr.Validation("comment content is required")
		}
		if err := s.insert(ctx, s.DB, userID, videoID, Comment, &content); err != nil {
			return apperr.Internal("failed to add comment", err)
		}
		return nil

	case Like, DisLike:
		err := s.react(ctx, userID, videoID, kind)
		if db.IsUniqueViolation(err) {
			// A concurrent first reaction won the insert; the retry toggles it.
			logging.FromContext(ctx).Debug("reaction insert raced, retrying", "videoId", videoID)
			err = s.react(ctx, userID, videoID, kind)
		}
		if err != nil {
			return apperr.Internal("failed to record reaction", err)
		}
		return nil
	}
	return apperr.Validation("unknown activity")
}

func (s *Store) react(ctx context.Context, userID, videoID string, kind Kind) error {
	return db.WithTx(ctx, s.DB, func(conn *db.CompatConn) error {
		res, err := conn.ExecContext(ctx, `
			UPDATE engagements
			SET kind = CASE WHEN kind = 'Like' THEN 'DisLike' ELSE 'Like' END
			WHERE user_id = ? AND video_id = ? AND kind <> 'Comment'
		`, userID, videoID)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil || n > 0 {
			return err
		}
		return s.insert(ctx, conn, userID, videoID, kind, nil)
	})
}

func (s *Store) insert(ctx context.Context, q db.Querier, userID, videoID string, kind Kind, content *string) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO engagements (id, user_id, video_id, kind, content, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), userID, videoID, string(kind), content, s.timestamp())
	return err
}

// Stats counts every kind for videoID. Absent kinds are zero.
func (s *Store) Stats(ctx context.Context, videoID string) (Stats, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT kind, COUNT(*) FROM engagements WHERE video_id = ? GROUP BY kind`, videoID)
	if err != nil {
		return Stats{}, err
	}
	defer rows.Close()

	var st Stats
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return Stats{}, err
		}
		switch Kind(kind) {
		case Like:
			st.Like = n
		case DisLike:
			st.DisLike = n
		case Comment:
			st.Comment = n
		}
	}
	return st, rows.Err()
}

// Comments lists the comments on videoID oldest first.
func (s *Store) Comments(ctx context.Context, videoID string) ([]CommentView, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT e.content, u.username
		FROM engagements e
		JOIN users u ON u.id = e.user_id
		WHERE e.video_id = ? AND e.kind = 'Comment'
		ORDER BY e.created_at, e.id
	`, videoID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	comments := make([]CommentView, 0)
	for rows.Next() {
		var c CommentView
		if err := rows.Scan(&c.Content, &c.User.Username); err != nil {
			return nil, err
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

func (s *Store) timestamp() string {
	if s.now == nil {
		return db.Timestamp(time.Now())
	}
	return db.Timestamp(s.now())
}
