package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/eshaffer321/reconcile-backend/internal/domain/model"
)

const matchColumns = `id, bank_record_ids, obligation_ids, allocations_json, bank_sum, obligation_sum,
	balance, created_at, created_by, reversed, reversed_at, reversed_by`

const historyColumns = `id, match_id, action, before_json, after_json, actor, timestamp`

// SaveMatch upserts the match and appends its history entry in one transaction
func (s *Storage) SaveMatch(ctx context.Context, match *model.Match, entry model.HistoryEntry) error {
	row, err := newMatchRow(match)
	if err != nil {
		return err
	}
	before, err := encodeState(entry.Before)
	if err != nil {
		return err
	}
	after, err := encodeState(entry.After)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// ON CONFLICT keeps the row in place so history foreign keys stay valid
	_, err = tx.ExecContext(ctx, `
		INSERT INTO matches (`+matchColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			bank_record_ids = excluded.bank_record_ids,
			obligation_ids = excluded.obligation_ids,
			allocations_json = excluded.allocations_json,
			bank_sum = excluded.bank_sum,
			obligation_sum = excluded.obligation_sum,
			balance = excluded.balance,
			reversed = excluded.reversed,
			reversed_at = excluded.reversed_at,
			reversed_by = excluded.reversed_by
	`,
		row.ID,
		row.BankRecordIDs,
		row.ObligationIDs,
		row.AllocationsJSON,
		row.BankSum.String(),
		row.ObligationSum.String(),
		row.Balance.String(),
		row.CreatedAt,
		row.CreatedBy,
		row.Reversed,
		row.ReversedAt,
		row.ReversedBy,
	)
	if err != nil {
		return fmt.Errorf("failed to save match %s: %w", match.ID, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO match_history (`+historyColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		entry.ID,
		entry.MatchID,
		string(entry.Action),
		before,
		after,
		entry.Actor,
		entry.Timestamp.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save history entry %s: %w", entry.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit match %s: %w", match.ID, err)
	}
	return nil
}

// GetMatch retrieves a match by ID
func (s *Storage) GetMatch(ctx context.Context, id string) (*model.Match, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+matchColumns+` FROM matches WHERE id = ?`, id)

	m, err := scanMatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("match %s: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// ListMatches returns matches with optional filters
func (s *Storage) ListMatches(ctx context.Context, filters MatchFilters) ([]*model.Match, error) {
	query := `SELECT ` + matchColumns + ` FROM matches WHERE 1=1`
	var args []any

	if !filters.IncludeReversed {
		query += ` AND reversed = 0`
	}
	if filters.OpenOnly {
		query += ` AND CAST(balance AS REAL) != 0`
	}

	query += ` ORDER BY created_at, id`

	if filters.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, filters.Limit, filters.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list matches: %w", err)
	}
	defer func() { _ = rows.Close() }()

	matches := make([]*model.Match, 0)
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, err
		}
		matches = append(matches, m)
	}

	return matches, rows.Err()
}

// GetStats returns aggregate counts
func (s *Storage) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN reversed = 0 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN reversed = 1 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN reversed = 0 AND CAST(balance AS REAL) != 0 THEN 1 ELSE 0 END), 0)
		FROM matches
	`).Scan(&stats.TotalMatches, &stats.LiveMatches, &stats.ReversedMatches, &stats.OpenBalances)
	if err != nil {
		return nil, fmt.Errorf("failed to count matches: %w", err)
	}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM aliases`).Scan(&stats.Aliases); err != nil {
		return nil, fmt.Errorf("failed to count aliases: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM match_history`).Scan(&stats.HistoryEntries); err != nil {
		return nil, fmt.Errorf("failed to count history entries: %w", err)
	}

	return stats, nil
}

// ListHistory returns entries ordered by timestamp with pagination (limit 0 = all)
func (s *Storage) ListHistory(ctx context.Context, limit, offset int) ([]model.HistoryEntry, error) {
	query := `SELECT ` + historyColumns + ` FROM match_history ORDER BY timestamp, rowid`
	var args []any
	if limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, limit, offset)
	}
	return s.queryHistory(ctx, query, args...)
}

// HistoryForMatch returns one match's entries in the order they were recorded
func (s *Storage) HistoryForMatch(ctx context.Context, matchID string) ([]model.HistoryEntry, error) {
	return s.queryHistory(ctx,
		`SELECT `+historyColumns+` FROM match_history WHERE match_id = ? ORDER BY timestamp, rowid`,
		matchID)
}

// HistorySince returns entries stamped at or after since
func (s *Storage) HistorySince(ctx context.Context, since time.Time) ([]model.HistoryEntry, error) {
	return s.queryHistory(ctx,
		`SELECT `+historyColumns+` FROM match_history WHERE timestamp >= ? ORDER BY timestamp, rowid`,
		since.UTC())
}

func (s *Storage) queryHistory(ctx context.Context, query string, args ...any) ([]model.HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	entries := make([]model.HistoryEntry, 0)
	for rows.Next() {
		var (
			e             model.HistoryEntry
			action        string
			before, after sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.MatchID, &action, &before, &after, &e.Actor, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		e.Action = model.HistoryAction(action)
		e.Timestamp = e.Timestamp.UTC()
		if e.Before, err = decodeState(before); err != nil {
			return nil, err
		}
		if e.After, err = decodeState(after); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// scanner is satisfied by *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...any) error
}

func scanMatch(sc scanner) (*model.Match, error) {
	var r matchRow
	err := sc.Scan(
		&r.ID,
		&r.BankRecordIDs,
		&r.ObligationIDs,
		&r.AllocationsJSON,
		&r.BankSum,
		&r.ObligationSum,
		&r.Balance,
		&r.CreatedAt,
		&r.CreatedBy,
		&r.Reversed,
		&r.ReversedAt,
		&r.ReversedBy,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan match: %w", err)
	}
	return r.toMatch()
}
