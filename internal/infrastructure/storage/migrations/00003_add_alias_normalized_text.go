package migrations

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"

	"github.com/eshaffer321/reconcile-backend/internal/domain/model"
)

func init() {
	goose.AddMigrationContext(upAliasNormalizedText, downAliasNormalizedText)
}

// upAliasNormalizedText adds the lookup key used for alias uniqueness checks and
// backfills it for existing rows. The key must match model.NormalizeName, which
// cannot be expressed in SQL, so this migration is written in Go.
func upAliasNormalizedText(ctx context.Context, tx *sql.Tx) error {
	if _, err := tx.ExecContext(ctx, `ALTER TABLE aliases ADD COLUMN normalized_text TEXT NOT NULL DEFAULT ''`); err != nil {
		return err
	}

	rows, err := tx.QueryContext(ctx, `SELECT id, text FROM aliases`)
	if err != nil {
		return err
	}

	type pending struct{ id, key string }
	var updates []pending
	for rows.Next() {
		var id, text string
		if err := rows.Scan(&id, &text); err != nil {
			_ = rows.Close()
			return err
		}
		updates = append(updates, pending{id: id, key: model.NormalizeName(text)})
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return err
	}
	_ = rows.Close()

	for _, u := range updates {
		if _, err := tx.ExecContext(ctx, `UPDATE aliases SET normalized_text = ? WHERE id = ?`, u.key, u.id); err != nil {
			return err
		}
	}

	_, err = tx.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_aliases_normalized_text ON aliases(normalized_text)`)
	return err
}

// downAliasNormalizedText drops the lookup key
func downAliasNormalizedText(ctx context.Context, tx *sql.Tx) error {
	if _, err := tx.ExecContext(ctx, `DROP INDEX IF EXISTS idx_aliases_normalized_text`); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, `ALTER TABLE aliases DROP COLUMN normalized_text`)
	return err
}
