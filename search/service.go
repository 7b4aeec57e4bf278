// Package search finds videos by text and recommends videos from a user's
// search history.
package search

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"vidtube/apperr"
	"vidtube/db"
	"vidtube/logging"
	"vidtube/videos"
)

// minHistoryTerms is the history size below which recommendations fall back
// to the full catalog.
const minHistoryTerms = 3

// termsPerQuery bounds the OR clauses of one recommendation query so the
// bind parameters stay within driver limits.
const termsPerQuery = 200

const matchClause = `(v.title_folded LIKE ? ESCAPE '\' OR v.description_folded LIKE ? ESCAPE '\')`

// Service implements search and recommendation.
type Service struct {
	DB     *db.CompatDB
	Videos *videos.Store

	now func() time.Time
}

func NewService(d *db.CompatDB, videoStore *videos.Store) *Service {
	return &Service{DB: d, Videos: videoStore, now: time.Now}
}

// Normalize trims and folds a search term the same way stored titles and
// descriptions are folded.
func Normalize(term string) string {
	return videos.Fold(strings.TrimSpace(term))
}

// Result is the outcome of a search.
type Result struct {
	Videos  []videos.Video
	Message string
}

// Search matches term against titles and descriptions. A search with at
// least one match is counted in the user's search history.
func (s *Service) Search(ctx context.Context, userID, term string) (Result, error) {
	term = Normalize(term)
	if term == "" {
		return Result{}, apperr.Validation("search term is required")
	}

	pattern := db.ContainsPattern(term)
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+videos.Columns+` FROM videos v WHERE `+matchClause+` ORDER BY v.created_at, v.id`,
		pattern, pattern)
	if err != nil {
		return Result{}, apperr.Internal("failed to search videos", err)
	}
	found, err := videos.ScanAll(rows)
	if err != nil {
		return Result{}, apperr.Internal("failed to search videos", err)
	}

	if len(found) == 0 {
		return Result{Videos: found, Message: "no videos found"}, nil
	}
	if err := s.recordTerm(ctx, userID, term); err != nil {
		return Result{}, apperr.Internal("failed to save search history", err)
	}
	logging.FromContext(ctx).Debug("search matched", "term", term, "count", len(found))
	return Result{Videos: found, Message: "videos found"}, nil
}

func (s *Service) recordTerm(ctx context.Context, userID, term string) error {
	now := db.Timestamp(s.clock())
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO search_history (id, user_id, search_term, search_count, created_at, updated_at)
		VALUES (?, ?, ?, 1, ?, ?)
		ON CONFLICT (user_id, search_term) DO UPDATE
		SET search_count = search_history.search_count + 1, updated_at = excluded.updated_at
	`, uuid.NewString(), userID, term, now, now)
	return err
}

// Terms returns all of the user's search terms, most frequent first.
func (s *Service) Terms(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT search_term FROM search_history
		WHERE user_id = ?
		ORDER BY search_count DESC, updated_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var terms []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		terms = append(terms, t)
	}
	return terms, rows.Err()
}

// Recommend returns videos matching any of the user's search terms, each
// video once, oldest first. With too little history it returns the whole
// catalog.
func (s *Service) Recommend(ctx context.Context, userID string) ([]videos.Video, error) {
	terms, err := s.Terms(ctx, userID)
	if err != nil {
		return nil, apperr.Internal("failed to load search history", err)
	}
	if len(terms) < minHistoryTerms {
		all, err := s.Videos.ListAll(ctx)
		if err != nil {
			return nil, apperr.Internal("failed to list videos", err)
		}
		return all, nil
	}

	var out []videos.Video
	seen := make(map[string]bool)
	for start := 0; start < len(terms); start += termsPerQuery {
		end := start + termsPerQuery
		if end > len(terms) {
			end = len(terms)
		}
		batch, err := s.matchAny(ctx, terms[start:end])
		if err != nil {
			return nil, apperr.Internal("failed to recommend videos", err)
		}
		for _, v := range batch {
			if !seen[v.ID] {
				seen[v.ID] = true
				out = append(out, v)
			}
		}
	}
	if len(terms) > termsPerQuery {
		sort.Slice(out, func(i, j int) bool {
			if out[i].CreatedAt != out[j].CreatedAt {
				return out[i].CreatedAt < out[j].CreatedAt
			}
			return out[i].ID < out[j].ID
		})
	}
	if out == nil {
		out = make([]videos.Video, 0)
	}
	return out, nil
}

// matchAny returns the videos matching at least one of terms.
func (s *Service) matchAny(ctx context.Context, terms []string) ([]videos.Video, error) {
	clauses := make([]string, 0, len(terms))
	args := make([]interface{}, 0, 2*len(terms))
	for _, t := range terms {
		p := db.ContainsPattern(t)
		clauses = append(clauses, matchClause)
		args = append(args, p, p)
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+videos.Columns+` FROM videos v WHERE `+strings.Join(clauses, " OR ")+` ORDER BY v.created_at, v.id`,
		args...)
	if err != nil {
		return nil, err
	}
	return videos.ScanAll(rows)
}

func (s *Service) clock() time.Time {
	if s.now == nil {
		return time.Now()
	}
	return s.now()
}
