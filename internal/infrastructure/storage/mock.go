package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/eshaffer321/reconcile-backend/internal/domain/model"
)

// MockRepository is an in-memory implementation of Repository for testing.
// It stores all data in maps and slices, making tests fast and isolated.
type MockRepository struct {
	mu         sync.Mutex
	aliases    map[string]model.Alias
	aliasOrder []string
	matches    map[string]*model.Match
	matchOrder []string
	history    []model.HistoryEntry

	// Hooks for test assertions
	SaveAliasCalls int
	SaveMatchCalls int
	LastSavedMatch *model.Match
	Closed         bool

	// Version is reported by SchemaVersion
	Version int64

	// Error injection for testing error paths
	SchemaVersionErr error
	SaveAliasErr     error
	ListAliasesErr   error
	FindAliasesErr   error
	SaveMatchErr     error
	ListMatchesErr   error
	ListHistoryErr   error
}

// NewMockRepository creates a new mock repository for testing
func NewMockRepository() *MockRepository {
	return &MockRepository{
		aliases: make(map[string]model.Alias),
		matches: make(map[string]*model.Match),
		Version: LatestSchemaVersion,
	}
}

// Compile-time check that MockRepository implements Repository
var _ Repository = (*MockRepository)(nil)

// Close marks the mock as closed
func (m *MockRepository) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed = true
	return nil
}

// SaveAlias saves an alias to the in-memory map
func (m *MockRepository) SaveAlias(_ context.Context, alias *model.Alias) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.SaveAliasCalls++
	if m.SaveAliasErr != nil {
		return m.SaveAliasErr
	}
	if _, ok := m.aliases[alias.ID]; !ok {
		m.aliasOrder = append(m.aliasOrder, alias.ID)
	}
	m.aliases[alias.ID] = *alias
	return nil
}

// ListAliases returns aliases in insertion order
func (m *MockRepository) ListAliases(_ context.Context) ([]model.Alias, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ListAliasesErr != nil {
		return nil, m.ListAliasesErr
	}
	out := make([]model.Alias, 0, len(m.aliasOrder))
	for _, id := range m.aliasOrder {
		out = append(out, m.aliases[id])
	}
	return out, nil
}

// FindAliasesByText returns aliases whose normalized text equals key
func (m *MockRepository) FindAliasesByText(_ context.Context, key string) ([]model.Alias, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FindAliasesErr != nil {
		return nil, m.FindAliasesErr
	}
	var out []model.Alias
	for _, id := range m.aliasOrder {
		if model.NormalizeName(m.aliases[id].Text) == key {
			out = append(out, m.aliases[id])
		}
	}
	return out, nil
}

// SaveMatch stores a copy of the match and appends the history entry
func (m *MockRepository) SaveMatch(_ context.Context, match *model.Match, entry model.HistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.SaveMatchCalls++
	m.LastSavedMatch = match.Clone()
	if m.SaveMatchErr != nil {
		return m.SaveMatchErr
	}
	if _, ok := m.matches[match.ID]; !ok {
		m.matchOrder = append(m.matchOrder, match.ID)
	}
	// Deep copy to avoid test mutations
	m.matches[match.ID] = match.Clone()
	m.history = append(m.history, entry)
	return nil
}

// GetMatch retrieves a match by ID
func (m *MockRepository) GetMatch(_ context.Context, id string) (*model.Match, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	match, ok := m.matches[id]
	if !ok {
		return nil, fmt.Errorf("match %s: %w", id, model.ErrNotFound)
	}
	return match.Clone(), nil
}

// ListMatches returns matches in insertion order with filters applied
func (m *MockRepository) ListMatches(_ context.Context, filters MatchFilters) ([]*model.Match, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ListMatchesErr != nil {
		return nil, m.ListMatchesErr
	}

	out := make([]*model.Match, 0)
	for _, id := range m.matchOrder {
		match := m.matches[id]
		if match.Reversed && !filters.IncludeReversed {
			continue
		}
		if filters.OpenOnly && match.Balance.IsZero() {
			continue
		}
		out = append(out, match.Clone())
	}

	if filters.Offset > 0 {
		if filters.Offset >= len(out) {
			return []*model.Match{}, nil
		}
		out = out[filters.Offset:]
	}
	if filters.Limit > 0 && len(out) > filters.Limit {
		out = out[:filters.Limit]
	}
	return out, nil
}

// GetStats calculates counts from in-memory data
func (m *MockRepository) GetStats(_ context.Context) (*Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := &Stats{
		TotalMatches:   len(m.matches),
		Aliases:        len(m.aliases),
		HistoryEntries: len(m.history),
	}
	for _, match := range m.matches {
		if match.Reversed {
			stats.ReversedMatches++
			continue
		}
		stats.LiveMatches++
		if !match.Balance.IsZero() {
			stats.OpenBalances++
		}
	}
	return stats, nil
}

// ListHistory returns entries ordered by timestamp with pagination
func (m *MockRepository) ListHistory(_ context.Context, limit, offset int) ([]model.HistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ListHistoryErr != nil {
		return nil, m.ListHistoryErr
	}

	out := m.sortedHistory(func(model.HistoryEntry) bool { return true })
	if offset > 0 {
		if offset >= len(out) {
			return []model.HistoryEntry{}, nil
		}
		out = out[offset:]
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// HistoryForMatch returns one match's entries
func (m *MockRepository) HistoryForMatch(_ context.Context, matchID string) ([]model.HistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sortedHistory(func(e model.HistoryEntry) bool { return e.MatchID == matchID }), nil
}

// HistorySince returns entries stamped at or after since
func (m *MockRepository) HistorySince(_ context.Context, since time.Time) ([]model.HistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sortedHistory(func(e model.HistoryEntry) bool { return !e.Timestamp.Before(since) }), nil
}

// SchemaVersion returns the configured version
func (m *MockRepository) SchemaVersion(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.SchemaVersionErr != nil {
		return 0, m.SchemaVersionErr
	}
	return m.Version, nil
}

// AddAlias seeds an alias directly (test helper)
func (m *MockRepository) AddAlias(alias model.Alias) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.aliases[alias.ID]; !ok {
		m.aliasOrder = append(m.aliasOrder, alias.ID)
	}
	m.aliases[alias.ID] = alias
}

// AddMatch seeds a match and its history directly (test helper)
func (m *MockRepository) AddMatch(match *model.Match, entries ...model.HistoryEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.matches[match.ID]; !ok {
		m.matchOrder = append(m.matchOrder, match.ID)
	}
	m.matches[match.ID] = match.Clone()
	m.history = append(m.history, entries...)
}

// Reset clears all data and hooks
func (m *MockRepository) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.aliases = make(map[string]model.Alias)
	m.aliasOrder = nil
	m.matches = make(map[string]*model.Match)
	m.matchOrder = nil
	m.history = nil

	m.SaveAliasCalls = 0
	m.SaveMatchCalls = 0
	m.LastSavedMatch = nil
	m.Closed = false

	m.Version = LatestSchemaVersion
	m.SchemaVersionErr = nil
	m.SaveAliasErr = nil
	m.ListAliasesErr = nil
	m.FindAliasesErr = nil
	m.SaveMatchErr = nil
	m.ListMatchesErr = nil
	m.ListHistoryErr = nil
}

func (m *MockRepository) sortedHistory(keep func(model.HistoryEntry) bool) []model.HistoryEntry {
	out := make([]model.HistoryEntry, 0, len(m.history))
	for _, e := range m.history {
		if keep(e) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}
