package db

import (
	"context"
	"embed"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"

	"vidtube/logging"
)

//go:embed migrations/*
var migrationsFS embed.FS

// RunMigrations applies the embedded migrations for the database's dialect.
func RunMigrations(ctx context.Context, d *CompatDB) error {
	dir, err := fs.Sub(migrationsFS, "migrations/"+string(d.Dialect))
	if err != nil {
		return fmt.Errorf("migrations for %s: %w", d.Dialect, err)
	}

	gooseDialect := goose.DialectSQLite3
	if d.IsPostgres() {
		gooseDialect = goose.DialectPostgres
	}

	provider, err := goose.NewProvider(gooseDialect, d.DB, dir)
	if err != nil {
		return fmt.Errorf("create migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}

	logger := logging.FromContext(ctx)
	for _, r := range results {
		logger.Info("applied migration", "version", r.Source.Version, "path", r.Source.Path, "duration", r.Duration)
	}
	return nil
}
