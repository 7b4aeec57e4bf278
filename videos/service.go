// Package videos is the video catalog: uploads, listings and the detail view
// that also records engagement, views and watch history.
package videos

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"vidtube/apperr"
	"vidtube/db"
	"vidtube/engagement"
	"vidtube/history"
	"vidtube/logging"
	"vidtube/media"
)

// Service implements the catalog operations.
type Service struct {
	Store      *Store
	Engagement *engagement.Store
	History    *history.Store
	Media      media.Uploader

	now func() time.Time
}

func NewService(store *Store, eng *engagement.Store, hist *history.Store, uploader media.Uploader) *Service {
	return &Service{Store: store, Engagement: eng, History: hist, Media: uploader, now: time.Now}
}

// UploadInput carries the upload form. Paths are spooled local files.
type UploadInput struct {
	Title         string
	Description   string
	VideoPath     string
	ThumbnailPath string
}

// Upload stores the thumbnail and the video, then records the catalog
// entry. Nothing is persisted when either upload fails.
func (s *Service) Upload(ctx context.Context, ownerID string, in UploadInput) (Video, error) {
	title := strings.TrimSpace(in.Title)
	description := strings.TrimSpace(in.Description)
	switch {
	case title == "":
		return Video{}, apperr.Validation("video title is required")
	case description == "":
		return Video{}, apperr.Validation("video description is required")
	case in.VideoPath == "":
		return Video{}, apperr.Validation("video file is required")
	case in.ThumbnailPath == "":
		return Video{}, apperr.Validation("thumbnail is required")
	}

	thumb, err := s.Media.Upload(ctx, in.ThumbnailPath)
	if err != nil || thumb.URL == "" {
		return Video{}, apperr.Upload("failed to upload thumbnail", err)
	}
	file, err := s.Media.Upload(ctx, in.VideoPath)
	if err != nil || file.URL == "" {
		return Video{}, apperr.Upload("failed to upload video file", err)
	}

	now := db.Timestamp(s.clock())
	v := Video{
		ID:              uuid.NewString(),
		OwnerID:         ownerID,
		Title:           title,
		Description:     description,
		VideoURL:        file.URL,
		ThumbnailURL:    thumb.URL,
		DurationSeconds: file.DurationSeconds,
		IsPublished:     true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.Store.Insert(ctx, v); err != nil {
		return Video{}, apperr.Internal("failed to save video", err)
	}
	logging.FromContext(ctx).Info("video uploaded", "videoId", v.ID, "title", v.Title)
	return v, nil
}

// ListByOwner returns the owner's uploads.
func (s *Service) ListByOwner(ctx context.Context, ownerID string) ([]Video, error) {
	out, err := s.Store.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, apperr.Internal("failed to list videos", err)
	}
	return out, nil
}

// ListAll returns the whole catalog, oldest first.
func (s *Service) ListAll(ctx context.Context) ([]Video, error) {
	out, err := s.Store.ListAll(ctx)
	if err != nil {
		return nil, apperr.Internal("failed to list videos", err)
	}
	return out, nil
}

// Detail is the response of GetDetail.
type Detail struct {
	VideoDetails  WithOwner                `json:"videoDetails"`
	VideoStatus   engagement.Stats         `json:"videoStatus"`
	VideoComments []engagement.CommentView `json:"videoComments"`
}

// GetDetail applies an optional activity, counts the view, records it in
// the viewer's history and returns the video with its engagement. Unknown
// activities are ignored.
func (s *Service) GetDetail(ctx context.Context, videoID, viewerID, activity, content string) (Detail, error) {
	exists, err := s.Store.Exists(ctx, videoID)
	if err != nil {
		return Detail{}, apperr.Internal("failed to load video", err)
	}
	if !exists {
		return Detail{}, apperr.NotFound("video not found")
	}

	if kind, ok := engagement.ParseKind(activity); ok {
		if err := s.Engagement.Apply(ctx, viewerID, videoID, kind, content); err != nil {
			return Detail{}, err
		}
	} else if strings.TrimSpace(activity) != "" {
		logging.FromContext(ctx).Debug("ignoring unknown activity", "activity", activity)
	}

	if err := s.Store.IncrementViews(ctx, videoID); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return Detail{}, apperr.NotFound("video not found")
		}
		return Detail{}, apperr.Internal("failed to count view", err)
	}
	if err := s.History.Record(ctx, viewerID, videoID); err != nil {
		return Detail{}, apperr.Internal("failed to record watch history", err)
	}

	var d Detail
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		d.VideoDetails, err = s.Store.WithOwnerByID(gctx, videoID)
		return err
	})
	g.Go(func() error {
		var err error
		d.VideoStatus, err = s.Engagement.Stats(gctx, videoID)
		return err
	})
	g.Go(func() error {
		var err error
		d.VideoComments, err = s.Engagement.Comments(gctx, videoID)
		return err
	})
	if err := g.Wait(); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return Detail{}, apperr.NotFound("video not found")
		}
		return Detail{}, apperr.Internal("failed to load video", err)
	}
	return d, nil
}

func (s *Service) clock() time.Time {
	if s.now == nil {
		return time.Now()
	}
	return s.now()
}
