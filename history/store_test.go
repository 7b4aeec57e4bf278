package history

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"vidtube/auth"
	"vidtube/db"
	"vidtube/db/dbtest"
)

const ts = "2024-01-01T00:00:00.000000Z"

func seed(t *testing.T, d *db.CompatDB) {
	t.Helper()
	ctx := context.Background()
	stmts := []string{
		`INSERT INTO users (id, username, email, fullname, password_hash, avatar_url, created_at, updated_at)
		 VALUES ('alice', 'alice', 'alice@x.com', 'Alice', 'x', 'http://a/alice.png', '` + ts + `', '` + ts + `')`,
		`INSERT INTO users (id, username, email, fullname, password_hash, avatar_url, created_at, updated_at)
		 VALUES ('bob', 'bob', 'bob@x.com', 'Bob', 'x', 'http://a/bob.png', '` + ts + `', '` + ts + `')`,
		`INSERT INTO videos (id, owner_id, title, description, video_url, thumbnail_url, duration_seconds, created_at, updated_at)
		 VALUES ('v1', 'alice', 'Cats', 'cute cats', 'http://v/1', 'http://t/1', 12.5, '` + ts + `', '` + ts + `')`,
		`INSERT INTO videos (id, owner_id, title, description, video_url, thumbnail_url, created_at, updated_at)
		 VALUES ('v2', 'alice', 'Dogs', 'good dogs', 'http://v/2', 'http://t/2', '` + ts + `', '` + ts + `')`,
	}
	for _, stmt := range stmts {
		if _, err := d.ExecContext(ctx, stmt); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
}

func TestRecordAndList(t *testing.T) {
	d := dbtest.New(t)
	seed(t, d)
	s := NewStore(d)
	// Every view shares one timestamp; ordering must fall back to the id.
	s.now = func() time.Time { return time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC) }
	ctx := context.Background()

	for _, v := range []string{"v1", "v2", "v1"} {
		if err := s.Record(ctx, "bob", v); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	entries, err := s.List(ctx, "bob")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	want := []string{"v1", "v2", "v1"}
	for i, e := range entries {
		if e.Video.ID != want[i] {
			t.Errorf("entry %d = %s, want %s", i, e.Video.ID, want[i])
		}
	}
	first := entries[0].Video
	if first.Owner.Username != "alice" || first.Owner.AvatarURL != "http://a/alice.png" {
		t.Errorf("unexpected owner: %+v", first.Owner)
	}
	if first.DurationSeconds == nil || *first.DurationSeconds != 12.5 {
		t.Errorf("unexpected duration: %v", first.DurationSeconds)
	}
	if entries[1].Video.DurationSeconds != nil {
		t.Errorf("expected nil duration for v2")
	}

	other, err := s.List(ctx, "alice")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(other) != 0 {
		t.Fatalf("expected empty history for alice, got %d", len(other))
	}
}

func TestHandleList(t *testing.T) {
	d := dbtest.New(t)
	seed(t, d)
	s := NewStore(d)
	if err := s.Record(context.Background(), "bob", "v2"); err != nil {
		t.Fatalf("Record: %v", err)
	}

	h := &Handler{History: s}
	rec := httptest.NewRecorder()
	h.HandleList(rec, httptest.NewRequest("GET", "/api/v1/users/watchHistory", nil), auth.Principal{UserID: "bob"})

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Data []map[string]map[string]interface{} `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Data) != 1 || body.Data[0]["video"]["title"] != "Dogs" {
		t.Fatalf("unexpected history: %+v", body.Data)
	}
	if _, ok := body.Data[0]["video"]["watched_at"]; ok {
		t.Fatal("history metadata must not be exposed")
	}
}
