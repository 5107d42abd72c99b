// Package engine owns reconciliation matches and the settled amount of every
// obligation.
//
// A match links one or more bank records to one or more obligations. The
// engine validates allocations, applies them, records a history entry and
// flushes the result to the configured Store while still holding the per-record
// locks, so callers never observe a half-applied match.
//
// Example usage:
//
//	eng := engine.New(ledger, engine.WithStore(repo), engine.WithLogger(logger))
//	eng.LoadBankRecords(bankFeed)
//	eng.LoadObligations(obligationFeed)
//
//	m, err := eng.Commit(ctx, engine.CommitRequest{
//		BankRecordIDs: []string{"B1"},
//		ObligationIDs: []string{"O1", "O2"},
//		Actor:         "alice",
//	})
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/eshaffer321/reconcile-backend/internal/domain/history"
	"github.com/eshaffer321/reconcile-backend/internal/domain/model"
)

// Store persists a match together with the history entry describing the change.
// Implementations must write both atomically.
type Store interface {
	SaveMatch(ctx context.Context, match *model.Match, entry model.HistoryEntry) error
}

// Balance summarises a counterparty's obligations.
type Balance struct {
	CounterpartyID string          `json:"counterparty_id"`
	TotalObligated decimal.Decimal `json:"total_obligated"`
	TotalSettled   decimal.Decimal `json:"total_settled"`
	Outstanding    decimal.Decimal `json:"outstanding"`
}

// Engine holds bank records, obligations and matches for one workspace.
type Engine struct {
	ledger *history.Ledger
	store  Store
	logger *slog.Logger
	now    func() time.Time

	locks *keyedLocks

	// mu guards the maps below. It is only held for map reads and writes,
	// never across a Store call.
	mu          sync.RWMutex
	bankRecords map[string]model.BankRecord
	obligations map[string]*model.Obligation
	matches     map[string]*model.Match
	matchOrder  []string
	bankOwner   map[string]string // bank record id -> live match id
}

// Option configures an Engine.
type Option func(*Engine)

// WithStore sets the persistence target flushed on every mutation.
func WithStore(s Store) Option {
	return func(e *Engine) { e.store = s }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an engine that records history in ledger.
func New(ledger *history.Ledger, opts ...Option) *Engine {
	e := &Engine{
		ledger:      ledger,
		logger:      slog.Default(),
		now:         time.Now,
		locks:       newKeyedLocks(),
		bankRecords: make(map[string]model.BankRecord),
		obligations: make(map[string]*model.Obligation),
		matches:     make(map[string]*model.Match),
		bankOwner:   make(map[string]string),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("system", "engine")
	return e
}

// LoadBankRecords adds or replaces bank records from a feed.
func (e *Engine) LoadBankRecords(records []model.BankRecord) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, r := range records {
		e.bankRecords[r.ID] = r
	}
}

// LoadObligations adds obligations from a feed. For an obligation the engine
// already knows, the engine's settled amount is kept and the remaining fields
// are refreshed.
func (e *Engine) LoadObligations(obligations []model.Obligation) error {
	for _, o := range obligations {
		if o.SettledAmount.IsNegative() || o.SettledAmount.GreaterThan(o.TotalAmount) {
			return fmt.Errorf("obligation %s settled %s outside [0, %s]: %w",
				o.ID, o.SettledAmount, o.TotalAmount, model.ErrInvalidRequest)
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, o := range obligations {
		o := o
		if existing, ok := e.obligations[o.ID]; ok {
			o.SettledAmount = existing.SettledAmount
		}
		e.obligations[o.ID] = &o
	}
	return nil
}

// Restore reinstates persisted matches. Settled amounts are not recomputed:
// obligations are expected to carry the settled amounts that were current when
// the matches were saved. Use CheckInvariants to verify the result.
func (e *Engine) Restore(matches []*model.Match) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	sorted := append([]*model.Match(nil), matches...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})

	for _, m := range sorted {
		if _, ok := e.matches[m.ID]; ok {
			return fmt.Errorf("match %s restored twice: %w", m.ID, model.ErrInvalidRequest)
		}
		if !m.Reversed {
			for _, id := range m.BankRecordIDs {
				if owner, ok := e.bankOwner[id]; ok {
					return fmt.Errorf("bank record %s in matches %s and %s: %w",
						id, owner, m.ID, model.ErrRecordAlreadyMatched)
				}
			}
			for _, id := range m.BankRecordIDs {
				e.bankOwner[id] = m.ID
			}
		}
		e.matches[m.ID] = m.Clone()
		e.matchOrder = append(e.matchOrder, m.ID)
	}
	return nil
}

// Match returns a copy of the match with the given id.
func (e *Engine) Match(id string) (*model.Match, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	m, ok := e.matches[id]
	if !ok {
		return nil, fmt.Errorf("match %s: %w", id, model.ErrNotFound)
	}
	return m.Clone(), nil
}

// Matches returns copies of all matches in creation order, reversed ones included.
func (e *Engine) Matches() []*model.Match {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]*model.Match, 0, len(e.matchOrder))
	for _, id := range e.matchOrder {
		out = append(out, e.matches[id].Clone())
	}
	return out
}

// Obligation returns a copy of one obligation.
func (e *Engine) Obligation(id string) (model.Obligation, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	o, ok := e.obligations[id]
	if !ok {
		return model.Obligation{}, false
	}
	return *o, true
}

// Obligations returns copies of all obligations sorted by id.
func (e *Engine) Obligations() []model.Obligation {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]model.Obligation, 0, len(e.obligations))
	for _, o := range e.obligations {
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// BankRecord returns one bank record.
func (e *Engine) BankRecord(id string) (model.BankRecord, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	r, ok := e.bankRecords[id]
	return r, ok
}

// BankRecords returns all bank records ordered by date, then id.
func (e *Engine) BankRecords() []model.BankRecord {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]model.BankRecord, 0, len(e.bankRecords))
	for _, r := range e.bankRecords {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// IsBankRecordMatched reports whether a bank record belongs to a live match.
func (e *Engine) IsBankRecordMatched(id string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()

	_, ok := e.bankOwner[id]
	return ok
}

// CounterpartyBalance sums every obligation of a counterparty.
func (e *Engine) CounterpartyBalance(counterpartyID string) Balance {
	e.mu.RLock()
	defer e.mu.RUnlock()

	b := Balance{
		CounterpartyID: counterpartyID,
		TotalObligated: decimal.Zero,
		TotalSettled:   decimal.Zero,
	}
	for _, o := range e.obligations {
		if o.CounterpartyID != counterpartyID {
			continue
		}
		b.TotalObligated = b.TotalObligated.Add(o.TotalAmount)
		b.TotalSettled = b.TotalSettled.Add(o.SettledAmount)
	}
	b.Outstanding = b.TotalObligated.Sub(b.TotalSettled)
	return b
}

// CheckInvariants verifies settled amounts against live allocations and bank
// record ownership. It returns one message per violation.
func (e *Engine) CheckInvariants() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var violations []string

	applied := make(map[string]decimal.Decimal)
	owners := make(map[string]string)
	for _, id := range e.matchOrder {
		m := e.matches[id]
		if m.Reversed {
			continue
		}
		for _, a := range m.Allocations {
			applied[a.ObligationID] = applied[a.ObligationID].Add(a.Amount)
		}
		for _, bankID := range m.BankRecordIDs {
			if other, ok := owners[bankID]; ok {
				violations = append(violations,
					fmt.Sprintf("bank record %s is in live matches %s and %s", bankID, other, m.ID))
			}
			owners[bankID] = m.ID
		}
		if m.AllocatedTotal().GreaterThan(m.BankSum) {
			violations = append(violations,
				fmt.Sprintf("match %s allocates %s of %s", m.ID, m.AllocatedTotal(), m.BankSum))
		}
	}

	ids := make([]string, 0, len(e.obligations))
	for id := range e.obligations {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		o := e.obligations[id]
		if o.SettledAmount.IsNegative() || o.SettledAmount.GreaterThan(o.TotalAmount) {
			violations = append(violations,
				fmt.Sprintf("obligation %s settled %s outside [0, %s]", id, o.SettledAmount, o.TotalAmount))
		}
		if sum, ok := applied[id]; ok && sum.GreaterThan(o.SettledAmount) {
			violations = append(violations,
				fmt.Sprintf("obligation %s settled %s below live allocations %s", id, o.SettledAmount, sum))
		}
	}

	return violations
}
