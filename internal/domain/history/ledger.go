// Package history keeps the append-only audit trail of match mutations.
//
// The ledger has no update or delete operation. Entries are copied on the way
// in and on the way out, so callers can never change what was recorded.
package history

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/eshaffer321/reconcile-backend/internal/domain/model"
)

// Ledger is an in-process append-only history of match mutations.
// One ledger is created per workspace and lives as long as the workspace.
type Ledger struct {
	mu      sync.RWMutex
	entries []model.HistoryEntry
	byMatch map[string][]int // match id -> indexes into entries
	now     func() time.Time
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the time source used to stamp entries.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// NewLedger creates an empty ledger.
func NewLedger(opts ...Option) *Ledger {
	l := &Ledger{
		byMatch: make(map[string][]int),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// NewEntry builds an entry with a fresh id and timestamp. It is not recorded
// until Append is called, which lets the engine persist it first.
func (l *Ledger) NewEntry(matchID string, action model.HistoryAction, before, after *model.MatchState, actor string) model.HistoryEntry {
	return model.HistoryEntry{
		ID:        uuid.NewString(),
		MatchID:   matchID,
		Action:    action,
		Before:    before,
		After:     after,
		Actor:     actor,
		Timestamp: l.now().UTC(),
	}
}

// Append records an entry and returns its id. Entries without an id or
// timestamp get one assigned.
func (l *Ledger) Append(entry model.HistoryEntry) string {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = l.now().UTC()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append(l.entries, copyEntry(entry))
	l.byMatch[entry.MatchID] = append(l.byMatch[entry.MatchID], len(l.entries)-1)
	return entry.ID
}

// Load restores previously persisted entries, keeping them in timestamp order.
func (l *Ledger) Load(entries []model.HistoryEntry) {
	sorted := append([]model.HistoryEntry(nil), entries...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})
	for _, e := range sorted {
		l.Append(e)
	}
}

// HistoryFor returns all entries for a match in append order.
func (l *Ledger) HistoryFor(matchID string) []model.HistoryEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	idxs := l.byMatch[matchID]
	out := make([]model.HistoryEntry, 0, len(idxs))
	for _, i := range idxs {
		out = append(out, copyEntry(l.entries[i]))
	}
	return out
}

// AllSince returns entries stamped at or after since, in append order.
func (l *Ledger) AllSince(since time.Time) []model.HistoryEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []model.HistoryEntry
	for _, e := range l.entries {
		if !e.Timestamp.Before(since) {
			out = append(out, copyEntry(e))
		}
	}
	return out
}

// Len returns the number of recorded entries.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

func copyEntry(e model.HistoryEntry) model.HistoryEntry {
	e.Before = copyState(e.Before)
	e.After = copyState(e.After)
	return e
}

func copyState(s *model.MatchState) *model.MatchState {
	if s == nil {
		return nil
	}
	c := *s
	c.BankRecordIDs = append([]string(nil), s.BankRecordIDs...)
	c.ObligationIDs = append([]string(nil), s.ObligationIDs...)
	c.Allocations = append([]model.Allocation(nil), s.Allocations...)
	return &c
}
