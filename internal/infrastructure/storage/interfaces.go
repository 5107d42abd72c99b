package storage

import (
	"context"
	"time"

	"github.com/eshaffer321/reconcile-backend/internal/domain/model"
)

// Repository defines the complete storage interface.
// This interface allows swapping implementations (SQLite, in-memory mock)
// and makes testing with mocks straightforward.
type Repository interface {
	AliasRepository
	MatchRepository
	HistoryRepository

	// SchemaVersion returns the latest applied migration version
	SchemaVersion(ctx context.Context) (int64, error)

	Close() error
}

// AliasRepository persists counterparty aliases
type AliasRepository interface {
	// SaveAlias inserts an alias, or updates it when the id already exists
	SaveAlias(ctx context.Context, alias *model.Alias) error

	// ListAliases returns every alias ordered by creation time
	ListAliases(ctx context.Context) ([]model.Alias, error)

	// FindAliasesByText returns the aliases whose normalized text equals key
	FindAliasesByText(ctx context.Context, key string) ([]model.Alias, error)
}

// MatchRepository persists reconciliation matches
type MatchRepository interface {
	// SaveMatch upserts the match and appends its history entry in one transaction
	SaveMatch(ctx context.Context, match *model.Match, entry model.HistoryEntry) error

	// GetMatch retrieves a match by ID, returning model.ErrNotFound when missing
	GetMatch(ctx context.Context, id string) (*model.Match, error)

	// ListMatches returns matches ordered by creation time
	ListMatches(ctx context.Context, filters MatchFilters) ([]*model.Match, error)

	// GetStats returns aggregate counts
	GetStats(ctx context.Context) (*Stats, error)
}

// HistoryRepository reads the persisted audit trail
type HistoryRepository interface {
	// ListHistory returns entries ordered by timestamp with pagination (limit 0 = all)
	ListHistory(ctx context.Context, limit, offset int) ([]model.HistoryEntry, error)

	// HistoryForMatch returns one match's entries in the order they were recorded
	HistoryForMatch(ctx context.Context, matchID string) ([]model.HistoryEntry, error)

	// HistorySince returns entries stamped at or after since
	HistorySince(ctx context.Context, since time.Time) ([]model.HistoryEntry, error)
}

// MatchFilters defines filters for listing matches
type MatchFilters struct {
	IncludeReversed bool // Include reversed matches (default: live only)
	OpenOnly        bool // Only matches with a non-zero balance
	Limit           int  // Max results (0 = all)
	Offset          int  // Pagination offset
}

// Stats contains aggregate counts for the review dashboard
type Stats struct {
	TotalMatches    int `json:"total_matches"`
	LiveMatches     int `json:"live_matches"`
	ReversedMatches int `json:"reversed_matches"`
	OpenBalances    int `json:"open_balances"`
	Aliases         int `json:"aliases"`
	HistoryEntries  int `json:"history_entries"`
}
