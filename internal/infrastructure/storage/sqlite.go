package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/eshaffer321/reconcile-backend/internal/domain/model"
)

// Storage provides SQLite database access for aliases, matches and history.
// It implements the Repository interface.
type Storage struct {
	db *sql.DB
}

// Compile-time check that Storage implements Repository
var _ Repository = (*Storage)(nil)

// NewStorage creates a new storage instance with SQLite database
func NewStorage(dbPath string) (*Storage, error) {
	return NewStorageContext(context.Background(), dbPath)
}

// NewStorageContext creates a storage instance, running migrations under ctx
func NewStorageContext(ctx context.Context, dbPath string) (*Storage, error) {
	// Connection options go in the DSN so every pooled connection gets them
	db, err := sql.Open("sqlite3", withPragmas(dbPath))
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to open database %s: %w", dbPath, err)
	}

	s := &Storage{db: db}

	// Run all pending migrations
	if err := s.runMigrations(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

// withPragmas enables foreign keys and a busy timeout for the go-sqlite3 driver
func withPragmas(dbPath string) string {
	sep := "?"
	if strings.Contains(dbPath, "?") {
		sep = "&"
	}
	return dbPath + sep + "_foreign_keys=on&_busy_timeout=5000"
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}

// SaveAlias saves or updates an alias
func (s *Storage) SaveAlias(ctx context.Context, alias *model.Alias) error {
	query := `
	INSERT INTO aliases (id, counterparty_id, text, normalized_text, created_by, created_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		counterparty_id = excluded.counterparty_id,
		text = excluded.text,
		normalized_text = excluded.normalized_text,
		created_by = excluded.created_by,
		created_at = excluded.created_at
	`

	_, err := s.db.ExecContext(ctx, query,
		alias.ID,
		alias.CounterpartyID,
		alias.Text,
		model.NormalizeName(alias.Text),
		alias.CreatedBy,
		alias.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save alias %s: %w", alias.ID, err)
	}
	return nil
}

// ListAliases returns every alias ordered by creation time
func (s *Storage) ListAliases(ctx context.Context) ([]model.Alias, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, counterparty_id, text, created_by, created_at
		FROM aliases
		ORDER BY created_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list aliases: %w", err)
	}
	return scanAliases(rows)
}

// FindAliasesByText returns the aliases stored under a normalized text key
func (s *Storage) FindAliasesByText(ctx context.Context, key string) ([]model.Alias, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, counterparty_id, text, created_by, created_at
		FROM aliases
		WHERE normalized_text = ?
		ORDER BY created_at, id
	`, key)
	if err != nil {
		return nil, fmt.Errorf("failed to find aliases for %q: %w", key, err)
	}
	return scanAliases(rows)
}

func scanAliases(rows *sql.Rows) ([]model.Alias, error) {
	defer func() { _ = rows.Close() }()

	aliases := make([]model.Alias, 0)
	for rows.Next() {
		var a model.Alias
		if err := rows.Scan(&a.ID, &a.CounterpartyID, &a.Text, &a.CreatedBy, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan alias: %w", err)
		}
		a.CreatedAt = a.CreatedAt.UTC()
		aliases = append(aliases, a)
	}

	return aliases, rows.Err()
}
