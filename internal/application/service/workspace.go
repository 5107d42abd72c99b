// Package service wires the reconciliation components into one workspace.
//
// A Workspace owns the alias registry, history ledger, match engine, matcher
// and discrepancy reporter for one process. State is restored from the
// repository on Load and every mutation is written through to it.
//
// Example usage:
//
//	ws := service.NewWorkspace(cfg, repo, service.WithLogger(logger))
//	if err := ws.Load(ctx); err != nil { ... }
//	if err := ws.LoadFeed(feed); err != nil { ... }
//	report, err := ws.AutoMatch(ctx)
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/eshaffer321/reconcile-backend/internal/domain/alias"
	"github.com/eshaffer321/reconcile-backend/internal/domain/allocator"
	"github.com/eshaffer321/reconcile-backend/internal/domain/discrepancy"
	"github.com/eshaffer321/reconcile-backend/internal/domain/engine"
	"github.com/eshaffer321/reconcile-backend/internal/domain/history"
	"github.com/eshaffer321/reconcile-backend/internal/domain/matcher"
	"github.com/eshaffer321/reconcile-backend/internal/domain/model"
	"github.com/eshaffer321/reconcile-backend/internal/infrastructure/config"
	"github.com/eshaffer321/reconcile-backend/internal/infrastructure/storage"
)

// Workspace is the process-scoped reconciliation state.
type Workspace struct {
	cfg    *config.Config
	repo   storage.Repository
	logger *slog.Logger
	now    func() time.Time

	registry *alias.Registry
	ledger   *history.Ledger
	engine   *engine.Engine
	matcher  *matcher.Matcher
	reporter *discrepancy.Reporter

	// Allocations of restored live matches, added to the settled amount of
	// obligations the first time the feed delivers them.
	mu                sync.Mutex
	restoredAllocated map[string]decimal.Decimal
}

// Option configures a Workspace.
type Option func(*Workspace)

// WithLogger sets the logger passed to every component.
func WithLogger(l *slog.Logger) Option {
	return func(w *Workspace) { w.logger = l }
}

// WithClock overrides the time source of every component.
func WithClock(now func() time.Time) Option {
	return func(w *Workspace) { w.now = now }
}

// NewWorkspace builds the components from config. A nil repo keeps all state
// in memory.
func NewWorkspace(cfg *config.Config, repo storage.Repository, opts ...Option) *Workspace {
	w := &Workspace{
		cfg:               cfg,
		repo:              repo,
		logger:            slog.Default(),
		now:               time.Now,
		restoredAllocated: make(map[string]decimal.Decimal),
	}
	for _, opt := range opts {
		opt(w)
	}

	registryOpts := []alias.Option{alias.WithLogger(w.logger), alias.WithClock(w.now)}
	engineOpts := []engine.Option{engine.WithLogger(w.logger), engine.WithClock(w.now)}
	if repo != nil {
		registryOpts = append(registryOpts, alias.WithStore(repo))
		engineOpts = append(engineOpts, engine.WithStore(repo))
	}

	w.registry = alias.NewRegistry(cfg.AliasConfig(), registryOpts...)
	w.ledger = history.NewLedger(history.WithClock(w.now))
	w.engine = engine.New(w.ledger, engineOpts...)
	w.matcher = matcher.NewMatcher(cfg.MatcherConfig(), w.registry, w.engine, matcher.WithLogger(w.logger))
	w.reporter = discrepancy.NewReporter(discrepancy.WithClock(w.now))
	w.logger = w.logger.With("system", "workspace")
	return w
}

// Load restores aliases, matches and history from the repository.
func (w *Workspace) Load(ctx context.Context) error {
	if w.repo == nil {
		return nil
	}

	aliases, err := w.repo.ListAliases(ctx)
	if err != nil {
		return fmt.Errorf("failed to load aliases: %w", err)
	}
	matches, err := w.repo.ListMatches(ctx, storage.MatchFilters{IncludeReversed: true})
	if err != nil {
		return fmt.Errorf("failed to load matches: %w", err)
	}
	entries, err := w.repo.ListHistory(ctx, 0, 0)
	if err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}

	if err := w.engine.Restore(matches); err != nil {
		return fmt.Errorf("failed to restore matches: %w", err)
	}
	w.registry.Load(aliases)
	w.ledger.Load(entries)

	w.mu.Lock()
	for _, m := range matches {
		if m.Reversed {
			continue
		}
		for _, a := range m.Allocations {
			w.restoredAllocated[a.ObligationID] = w.restoredAllocated[a.ObligationID].Add(a.Amount)
		}
	}
	w.mu.Unlock()

	w.logger.Info("workspace restored",
		"aliases", len(aliases),
		"matches", len(matches),
		"history_entries", len(entries))
	return nil
}

// LoadFeed registers counterparties and loads bank records and obligations.
func (w *Workspace) LoadFeed(feed *Feed) error {
	w.RegisterCounterparties(feed.Counterparties)
	w.LoadBankRecords(feed.BankRecords)
	if err := w.LoadObligations(feed.Obligations); err != nil {
		return err
	}
	w.logger.Info("feed loaded",
		"counterparties", len(feed.Counterparties),
		"bank_records", len(feed.BankRecords),
		"obligations", len(feed.Obligations))
	return nil
}

// RegisterCounterparties adds counterparty identities to the registry.
func (w *Workspace) RegisterCounterparties(counterparties []model.Counterparty) {
	for _, c := range counterparties {
		w.registry.RegisterCounterparty(c)
	}
}

// LoadBankRecords adds bank records to the engine.
func (w *Workspace) LoadBankRecords(records []model.BankRecord) {
	w.engine.LoadBankRecords(records)
}

// LoadObligations adds obligations to the engine. The feed's settled amount
// covers settlement made outside the engine; allocations from restored
// matches are added on top the first time an obligation is seen.
func (w *Workspace) LoadObligations(obligations []model.Obligation) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	adjusted := make([]model.Obligation, len(obligations))
	for i, o := range obligations {
		if _, known := w.engine.Obligation(o.ID); !known {
			if applied, ok := w.restoredAllocated[o.ID]; ok {
				o.SettledAmount = o.SettledAmount.Add(applied)
			}
		}
		adjusted[i] = o
	}

	if err := w.engine.LoadObligations(adjusted); err != nil {
		return fmt.Errorf("failed to load obligations: %w", err)
	}
	return nil
}

// AddAlias maps text to a counterparty.
func (w *Workspace) AddAlias(ctx context.Context, counterpartyID, text, actor string) (*model.Alias, error) {
	return w.registry.AddAlias(ctx, counterpartyID, text, actor)
}

// Resolve maps a raw bank counterparty string to a counterparty.
func (w *Workspace) Resolve(raw string) (*alias.Candidate, bool) {
	return w.registry.Resolve(raw)
}

// SuggestAliases proposes alias texts for a counterparty. Without explicit
// texts the raw counterparties of unmatched bank records are used.
func (w *Workspace) SuggestAliases(counterpartyID string, texts []string) ([]alias.Suggestion, error) {
	if len(texts) == 0 {
		for _, r := range w.UnmatchedBankRecords() {
			texts = append(texts, r.RawCounterparty)
		}
	}
	return w.registry.SuggestAliases(texts, counterpartyID)
}

// Aliases returns the aliases of one counterparty, or all aliases when
// counterpartyID is empty.
func (w *Workspace) Aliases(counterpartyID string) []model.Alias {
	if counterpartyID == "" {
		return w.registry.AllAliases()
	}
	return w.registry.Aliases(counterpartyID)
}

// Counterparties returns the registered counterparties.
func (w *Workspace) Counterparties() []model.Counterparty {
	return w.registry.Counterparties()
}

// AliasConflicts lists alias texts mapped to more than one counterparty.
func (w *Workspace) AliasConflicts() []string {
	return w.registry.DetectConflicts()
}

// Commit creates a match. The configured allocation strategy applies when the
// request names neither allocations nor a strategy.
func (w *Workspace) Commit(ctx context.Context, req engine.CommitRequest) (*model.Match, error) {
	if req.Strategy == "" && len(req.Allocations) == 0 {
		req.Strategy = allocator.Strategy(w.cfg.Matching.AllocationStrategy)
	}
	return w.engine.Commit(ctx, req)
}

// Extend adds bank records or obligations to a live match.
func (w *Workspace) Extend(ctx context.Context, matchID string, req engine.ExtendRequest) (*model.Match, error) {
	if req.Strategy == "" && len(req.Allocations) == 0 {
		req.Strategy = allocator.Strategy(w.cfg.Matching.AllocationStrategy)
	}
	return w.engine.Extend(ctx, matchID, req)
}

// Reverse undoes a live match.
func (w *Workspace) Reverse(ctx context.Context, matchID, actor string) (*model.Match, error) {
	return w.engine.Reverse(ctx, matchID, actor)
}

// Match returns one match.
func (w *Workspace) Match(id string) (*model.Match, error) {
	return w.engine.Match(id)
}

// Matches returns matches in creation order.
func (w *Workspace) Matches(includeReversed bool) []*model.Match {
	all := w.engine.Matches()
	if includeReversed {
		return all
	}
	live := make([]*model.Match, 0, len(all))
	for _, m := range all {
		if !m.Reversed {
			live = append(live, m)
		}
	}
	return live
}

// History returns the audit trail of one match.
func (w *Workspace) History(matchID string) ([]model.HistoryEntry, error) {
	if _, err := w.engine.Match(matchID); err != nil {
		return nil, err
	}
	return w.ledger.HistoryFor(matchID), nil
}

// HistorySince returns all entries stamped at or after since.
func (w *Workspace) HistorySince(since time.Time) []model.HistoryEntry {
	return w.ledger.AllSince(since)
}

// AutoMatch runs the matcher over every loaded bank record and obligation.
func (w *Workspace) AutoMatch(ctx context.Context) (*matcher.Report, error) {
	return w.matcher.AutoMatch(ctx, w.engine.BankRecords(), w.engine.Obligations())
}

// BankRecords returns the loaded bank records.
func (w *Workspace) BankRecords() []model.BankRecord {
	return w.engine.BankRecords()
}

// Obligations returns the loaded obligations with their current settled amounts.
func (w *Workspace) Obligations() []model.Obligation {
	return w.engine.Obligations()
}

// UnmatchedBankRecords lists bank records outside every live match.
func (w *Workspace) UnmatchedBankRecords() []model.BankRecord {
	return w.reporter.UnmatchedBankRecords(w.engine.BankRecords(), w.engine.Matches())
}

// UnmatchedObligations lists obligations with something left to settle.
func (w *Workspace) UnmatchedObligations() []model.Obligation {
	return w.reporter.UnmatchedObligations(w.engine.Obligations())
}

// OpenBalances lists live matches whose bank and obligation sums differ.
func (w *Workspace) OpenBalances() []discrepancy.OpenBalance {
	return w.reporter.OpenBalances(w.engine.Matches())
}

// Discrepancies builds the full discrepancy summary.
func (w *Workspace) Discrepancies() *discrepancy.Summary {
	return w.reporter.Build(w.engine.BankRecords(), w.engine.Obligations(), w.engine.Matches())
}

// CounterpartyBalance sums a counterparty's obligations.
func (w *Workspace) CounterpartyBalance(counterpartyID string) engine.Balance {
	return w.engine.CounterpartyBalance(counterpartyID)
}

// CheckInvariants reports inconsistencies between matches and obligations.
func (w *Workspace) CheckInvariants() []string {
	return w.engine.CheckInvariants()
}

// Stats returns persisted counts, or nil without a repository.
func (w *Workspace) Stats(ctx context.Context) (*storage.Stats, error) {
	if w.repo == nil {
		return nil, nil
	}
	return w.repo.GetStats(ctx)
}

// Health summarises what the workspace holds.
type Health struct {
	Persistent    bool  `json:"persistent"`
	SchemaVersion int64 `json:"schema_version,omitempty"`
	BankRecords   int   `json:"bank_records"`
	Obligations   int   `json:"obligations"`
	LiveMatches   int   `json:"live_matches"`
}

// Health reports loaded record counts and, with a repository, its schema
// version. An error means the repository could not be reached.
func (w *Workspace) Health(ctx context.Context) (Health, error) {
	h := Health{
		Persistent:  w.repo != nil,
		BankRecords: len(w.engine.BankRecords()),
		Obligations: len(w.engine.Obligations()),
	}
	for _, m := range w.engine.Matches() {
		if !m.Reversed {
			h.LiveMatches++
		}
	}

	if w.repo == nil {
		return h, nil
	}
	version, err := w.repo.SchemaVersion(ctx)
	if err != nil {
		return h, fmt.Errorf("failed to read schema version: %w", err)
	}
	h.SchemaVersion = version
	return h, nil
}

// Close releases the repository.
func (w *Workspace) Close() error {
	if w.repo == nil {
		return nil
	}
	return w.repo.Close()
}
