// Package mediatest provides an in-memory media uploader for tests.
package mediatest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"vidtube/media"
)

// Uploader mimics media.Adapter: it removes the local file and hands back a
// fake URL. Paths listed in Fail return that error instead.
type Uploader struct {
	Duration *float64
	Fail     map[string]error

	mu       sync.Mutex
	uploaded []string
}

func (u *Uploader) Upload(_ context.Context, localPath string) (media.Asset, error) {
	if localPath == "" {
		return media.Asset{}, media.ErrNoFile
	}
	defer os.Remove(localPath)

	u.mu.Lock()
	defer u.mu.Unlock()
	if err := u.Fail[localPath]; err != nil {
		return media.Asset{}, err
	}
	u.uploaded = append(u.uploaded, localPath)
	key := fmt.Sprintf("2024/01/%d%s", len(u.uploaded), filepath.Ext(localPath))
	return media.Asset{
		URL:             "http://media.test/" + key,
		Key:             key,
		DurationSeconds: u.Duration,
	}, nil
}

// Uploaded returns the local paths that were uploaded successfully.
func (u *Uploader) Uploaded() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]string(nil), u.uploaded...)
}

// File writes a throwaway local file for an upload.
func File(t testing.TB, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte("data:"+name), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}
