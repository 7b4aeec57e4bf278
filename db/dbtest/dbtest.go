// Package dbtest opens migrated SQLite databases for tests.
package dbtest

import (
	"context"
	"path/filepath"
	"testing"

	"vidtube/db"
)

// New returns a freshly migrated SQLite database that is closed when the
// test ends.
func New(t testing.TB) *db.CompatDB {
	t.Helper()
	d, err := db.Open(context.Background(), "sqlite:"+filepath.ToSlash(t.TempDir())+"/", "test")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	if err := db.RunMigrations(context.Background(), d); err != nil {
		t.Fatalf("schema migration: %v", err)
	}
	return d
}
