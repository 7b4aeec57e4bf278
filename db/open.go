package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by stores when a lookup matches no row.
var ErrNotFound = errors.New("record not found")

var sqlitePragmas = []string{
	"busy_timeout(5000)",
	"foreign_keys(1)",
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
}

// ResolveDSN maps a DATABASE_URL plus database name to a driver name, DSN and
// dialect. Postgres URLs get the database name as their path; sqlite:<dir>/
// URLs get <name>.db appended.
func ResolveDSN(rawURL, name string) (driver, dsn string, dialect Dialect, err error) {
	switch {
	case strings.HasPrefix(rawURL, "postgres://"), strings.HasPrefix(rawURL, "postgresql://"):
		u, err := url.Parse(rawURL)
		if err != nil {
			return "", "", "", fmt.Errorf("parse database url: %w", err)
		}
		if name != "" {
			u.Path = "/" + name
		}
		return "pgx", u.String(), DialectPostgres, nil

	case strings.HasPrefix(rawURL, "sqlite:"):
		path := strings.TrimPrefix(rawURL, "sqlite:")
		if path != ":memory:" && (path == "" || strings.HasSuffix(path, "/")) {
			if name == "" {
				name = "vidtube"
			}
			path = filepath.Join(path, name+".db")
		}
		q := make([]string, 0, len(sqlitePragmas))
		for _, p := range sqlitePragmas {
			q = append(q, "_pragma="+p)
		}
		return "sqlite", "file:" + path + "?" + strings.Join(q, "&"), DialectSQLite, nil
	}
	return "", "", "", fmt.Errorf("unsupported database url %q", rawURL)
}

// Open connects to the database named by rawURL and verifies the connection.
func Open(ctx context.Context, rawURL, name string) (*CompatDB, error) {
	driver, dsn, dialect, err := ResolveDSN(rawURL, name)
	if err != nil {
		return nil, err
	}

	raw, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect, err)
	}

	if dialect == DialectSQLite {
		// Single connection: prevents concurrent write conflicts
		raw.SetMaxOpenConns(1)
		raw.SetMaxIdleConns(1)
		raw.SetConnMaxLifetime(0)
	} else {
		raw.SetMaxOpenConns(25)
		raw.SetMaxIdleConns(5)
		raw.SetConnMaxLifetime(30 * time.Minute)
	}

	if err := raw.PingContext(ctx); err != nil {
		raw.Close()
		return nil, fmt.Errorf("ping %s: %w", dialect, err)
	}
	return NewCompatDB(raw, dialect), nil
}

// IsUniqueViolation reports whether err is a unique-constraint failure on
// either backend.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// TimeLayout is fixed width so that text ordering matches time ordering.
const TimeLayout = "2006-01-02T15:04:05.000000Z"

// Timestamp formats t for storage.
func Timestamp(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}
