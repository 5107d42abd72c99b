package storage

import (
	"context"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"

	// Go migrations register themselves with goose on import
	_ "github.com/eshaffer321/reconcile-backend/internal/infrastructure/storage/migrations"
)

// LatestSchemaVersion is the version reached once every migration has run
const LatestSchemaVersion int64 = 3

//go:embed migrations/*.sql
var embedMigrations embed.FS

// runMigrations applies all pending goose migrations
func (s *Storage) runMigrations(ctx context.Context) error {
	goose.SetBaseFS(embedMigrations)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set migration dialect: %w", err)
	}

	if err := goose.UpContext(ctx, s.db, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// SchemaVersion returns the latest applied migration version
func (s *Storage) SchemaVersion(ctx context.Context) (int64, error) {
	return goose.GetDBVersionContext(ctx, s.db)
}
