package postgres

import (
	"context"
	"embed"
	"io/fs"

	ierr "github.com/ledgerline/ledgerline/internal/errors"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migrate applies every pending migration
func Migrate(ctx context.Context, db *DB) error {
	provider, err := newMigrationProvider(db)
	if err != nil {
		return err
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to apply database migrations").
			Mark(ierr.ErrDatabase)
	}
	for _, r := range results {
		db.logger.Infow("applied migration",
			"version", r.Source.Version,
			"path", r.Source.Path,
			"duration_ms", r.Duration.Milliseconds(),
		)
	}
	return nil
}

// MigrateDown rolls back the most recent migration
func MigrateDown(ctx context.Context, db *DB) error {
	provider, err := newMigrationProvider(db)
	if err != nil {
		return err
	}
	r, err := provider.Down(ctx)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to roll back database migration").
			Mark(ierr.ErrDatabase)
	}
	if r != nil {
		db.logger.Infow("rolled back migration", "version", r.Source.Version)
	}
	return nil
}

// MigrationStatus logs the state of every known migration
func MigrationStatus(ctx context.Context, db *DB) error {
	provider, err := newMigrationProvider(db)
	if err != nil {
		return err
	}
	statuses, err := provider.Status(ctx)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to read migration status").
			Mark(ierr.ErrDatabase)
	}
	for _, s := range statuses {
		db.logger.Infow("migration", "version", s.Source.Version, "state", s.State, "applied_at", s.AppliedAt)
	}
	return nil
}

func newMigrationProvider(db *DB) (*goose.Provider, error) {
	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return nil, ierr.WithError(err).Mark(ierr.ErrSystem)
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, db.DB.DB, fsys)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to load database migrations").
			Mark(ierr.ErrDatabase)
	}
	return provider, nil
}
