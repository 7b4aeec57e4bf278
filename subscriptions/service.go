// Package subscriptions manages the subscriber graph between users.
package subscriptions

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"vidtube/apperr"
	"vidtube/db"
	"vidtube/users"
)

// Subscription is one subscriber to channel edge.
type Subscription struct {
	ID           string `json:"id"`
	SubscriberID string `json:"subscriberId"`
	ChannelID    string `json:"channelId"`
	CreatedAt    string `json:"createdAt"`
}

// Channel is a user's public profile with subscription counts.
type Channel struct {
	ID                string `json:"id"`
	Username          string `json:"username"`
	Fullname          string `json:"fullname"`
	Email             string `json:"email"`
	AvatarURL         string `json:"avatarUrl"`
	CoverImageURL     string `json:"coverImageUrl"`
	CreatedAt         string `json:"createdAt"`
	SubscriberCount   int64  `json:"subscriberCount"`
	SubscribedToCount int64  `json:"subscribedToCount"`
	IsSubscribed      bool   `json:"isSubscribed"`
}

// Service implements subscribe and channel lookups.
type Service struct {
	DB    *db.CompatDB
	Users *users.Store

	now func() time.Time
}

func NewService(d *db.CompatDB, userStore *users.Store) *Service {
	return &Service{DB: d, Users: userStore, now: time.Now}
}

// Subscribe adds the edge subscriberID -> channelID.
func (s *Service) Subscribe(ctx context.Context, subscriberID, channelID string) (Subscription, error) {
	channelID = strings.TrimSpace(channelID)
	if channelID == "" {
		return Subscription{}, apperr.Validation("channel id is required")
	}
	if subscriberID == channelID {
		return Subscription{}, apperr.Validation("cannot subscribe to your own channel")
	}
	if _, err := s.Users.ByID(ctx, channelID); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return Subscription{}, apperr.NotFound("channel not found")
		}
		return Subscription{}, apperr.Internal("failed to load channel", err)
	}

	now := time.Now
	if s.now != nil {
		now = s.now
	}
	sub := Subscription{
		ID:           uuid.NewString(),
		SubscriberID: subscriberID,
		ChannelID:    channelID,
		CreatedAt:    db.Timestamp(now()),
	}
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO subscriptions (id, subscriber_id, channel_id, created_at) VALUES (?, ?, ?, ?)`,
		sub.ID, sub.SubscriberID, sub.ChannelID, sub.CreatedAt)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Subscription{}, apperr.Conflict("already subscribed")
		}
		return Subscription{}, apperr.Internal("failed to subscribe", err)
	}
	return sub, nil
}

// ChannelDetails resolves username and computes its subscription counts and
// whether viewerID follows it.
func (s *Service) ChannelDetails(ctx context.Context, username, viewerID string) (Channel, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" {
		return Channel{}, apperr.Validation("username is required")
	}
	u, err := s.Users.ByUsername(ctx, username)
	if errors.Is(err, db.ErrNotFound) {
		return Channel{}, apperr.NotFound("channel does not exist")
	}
	if err != nil {
		return Channel{}, apperr.Internal("failed to load channel", err)
	}

	ch := Channel{
		ID:            u.ID,
		Username:      u.Username,
		Fullname:      u.Fullname,
		Email:         u.Email,
		AvatarURL:     u.AvatarURL,
		CoverImageURL: u.CoverImageURL,
		CreatedAt:     u.CreatedAt,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.DB.QueryRowContext(gctx,
			`SELECT COUNT(*) FROM subscriptions WHERE channel_id = ?`, u.ID).Scan(&ch.SubscriberCount)
	})
	g.Go(func() error {
		return s.DB.QueryRowContext(gctx,
			`SELECT COUNT(*) FROM subscriptions WHERE subscriber_id = ?`, u.ID).Scan(&ch.SubscribedToCount)
	})
	g.Go(func() error {
		var n int
		err := s.DB.QueryRowContext(gctx,
			`SELECT COUNT(*) FROM subscriptions WHERE channel_id = ? AND subscriber_id = ?`, u.ID, viewerID).Scan(&n)
		ch.IsSubscribed = n > 0
		return err
	})
	if err := g.Wait(); err != nil {
		return Channel{}, apperr.Internal("failed to count subscriptions", err)
	}
	return ch, nil
}
