// Package matcher provides bulk auto-matching of bank records against
// outstanding obligations.
//
// The matcher uses strict auto-commit criteria:
//   - The counterparty must resolve through the alias registry
//   - Allocated amounts must equal the bank amount exactly (no tolerance)
//   - A 1:1 match must also score above the auto-commit threshold
//   - A 1:many match needs every obligation inside the date window (or undated)
//
// Everything else is queued with ranked candidates for a human to decide.
//
// Example usage:
//
//	config := matcher.DefaultConfig()
//	m := matcher.NewMatcher(config, registry, eng)
//	report, err := m.AutoMatch(ctx, bankRecords, obligations)
//	for _, q := range report.Queued {
//		// Needs manual review
//	}
package matcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/eshaffer321/reconcile-backend/internal/domain/alias"
	"github.com/eshaffer321/reconcile-backend/internal/domain/engine"
	"github.com/eshaffer321/reconcile-backend/internal/domain/model"
)

// Resolver maps raw counterparty text to a known counterparty.
type Resolver interface {
	Resolve(raw string) (*alias.Candidate, bool)
}

// Engine is the part of the match engine the matcher needs.
type Engine interface {
	Commit(ctx context.Context, req engine.CommitRequest) (*model.Match, error)
	Obligation(id string) (model.Obligation, bool)
	IsBankRecordMatched(id string) bool
}

// Matcher matches bank records with obligations
type Matcher struct {
	config   Config
	resolver Resolver
	engine   Engine
	logger   *slog.Logger
}

// Option configures a Matcher.
type Option func(*Matcher)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Matcher) { m.logger = l }
}

// NewMatcher creates a new matcher with the given config
func NewMatcher(config Config, resolver Resolver, eng Engine, opts ...Option) *Matcher {
	m := &Matcher{
		config:   config,
		resolver: resolver,
		engine:   eng,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("system", "matcher")
	return m
}

// AutoMatch processes bank records in order. Records and obligations must
// already be loaded into the engine; candidateObligations limits which of them
// are considered, and their current settled amounts are read from the engine.
//
// Cancelling ctx stops the run between records: the rest go to Unmatched and
// the report is marked Partial. Only failures to commit are returned as errors.
func (m *Matcher) AutoMatch(ctx context.Context, bankRecords []model.BankRecord, candidateObligations []model.Obligation) (*Report, error) {
	report := &Report{}

	byCounterparty := make(map[string][]string)
	for _, o := range candidateObligations {
		byCounterparty[o.CounterpartyID] = append(byCounterparty[o.CounterpartyID], o.ID)
	}

	for i, record := range bankRecords {
		if err := ctx.Err(); err != nil {
			report.Unmatched = append(report.Unmatched, bankRecords[i:]...)
			report.Partial = true
			m.logger.Warn("auto-match cancelled",
				"processed", i,
				"remaining", len(bankRecords)-i,
				"error", err)
			break
		}

		if err := m.matchRecord(ctx, record, byCounterparty, report); err != nil {
			return report, err
		}
	}

	m.logger.Info("auto-match finished",
		"records", len(bankRecords),
		"matched", len(report.Matched),
		"queued", len(report.Queued),
		"unmatched", len(report.Unmatched),
		"already_matched", len(report.AlreadyMatched),
		"partial", report.Partial)

	return report, nil
}

func (m *Matcher) matchRecord(ctx context.Context, record model.BankRecord, byCounterparty map[string][]string, report *Report) error {
	if m.engine.IsBankRecordMatched(record.ID) {
		report.AlreadyMatched = append(report.AlreadyMatched, record)
		return nil
	}
	if !record.Magnitude().IsPositive() {
		report.Unmatched = append(report.Unmatched, record)
		return nil
	}

	resolved, ok := m.resolver.Resolve(record.RawCounterparty)
	if !ok {
		m.logger.Debug("counterparty not resolved", "bank_record", record.ID, "raw", record.RawCounterparty)
		report.Unmatched = append(report.Unmatched, record)
		return nil
	}

	open := m.openObligations(record, byCounterparty[resolved.CounterpartyID])
	if len(open) == 0 {
		report.Unmatched = append(report.Unmatched, record)
		return nil
	}

	ranked := m.rank(record, open, resolved.Confidence)

	// 1:1 exact match
	best := ranked[0]
	if best.Obligation.Remaining().Equal(record.Magnitude()) && best.Score > m.config.AutoCommitThreshold {
		committed, err := m.commit(ctx, record, []model.Obligation{best.Obligation}, best.Score)
		if err != nil {
			return err
		}
		if committed != nil {
			report.Matched = append(report.Matched, committed)
			return nil
		}
	}

	// 1:many exact sum inside the date window
	if subset, score, found := m.findExactSubset(record, ranked, resolved.Confidence); found && score >= m.config.SubsetFloor {
		committed, err := m.commit(ctx, record, subset, score)
		if err != nil {
			return err
		}
		if committed != nil {
			report.Matched = append(report.Matched, committed)
			return nil
		}
	}

	if m.engine.IsBankRecordMatched(record.ID) {
		report.AlreadyMatched = append(report.AlreadyMatched, record)
		return nil
	}

	limit := m.config.MaxQueuedCandidates
	if limit <= 0 || limit > len(ranked) {
		limit = len(ranked)
	}
	report.Queued = append(report.Queued, QueuedRecord{
		BankRecord:     record,
		CounterpartyID: resolved.CounterpartyID,
		Candidates:     append([]Candidate(nil), ranked[:limit]...),
	})
	return nil
}

// commit auto-commits a match. It returns nil without an error when the
// records were taken by someone else in the meantime.
func (m *Matcher) commit(ctx context.Context, record model.BankRecord, obligations []model.Obligation, score float64) (*model.Match, error) {
	req := engine.CommitRequest{
		BankRecordIDs: []string{record.ID},
		ObligationIDs: make([]string, len(obligations)),
		Allocations:   make(map[string]decimal.Decimal, len(obligations)),
		Actor:         m.config.Actor,
	}
	for i, o := range obligations {
		req.ObligationIDs[i] = o.ID
		req.Allocations[o.ID] = o.Remaining()
	}

	match, err := m.engine.Commit(ctx, req)
	if err != nil {
		if errors.Is(err, model.ErrRecordAlreadyMatched) || errors.Is(err, model.ErrAllocationMismatch) {
			m.logger.Warn("auto-commit skipped, records changed", "bank_record", record.ID, "error", err)
			return nil, nil
		}
		return nil, fmt.Errorf("failed to auto-commit bank record %s: %w", record.ID, err)
	}

	m.logger.Info("auto-committed match",
		"bank_record", record.ID,
		"obligations", len(obligations),
		"score", score,
		"match_id", match.ID)
	return match, nil
}

// openObligations returns the current state of the counterparty's obligations
// that share the record's direction and still have something left to settle.
func (m *Matcher) openObligations(record model.BankRecord, ids []string) []model.Obligation {
	var open []model.Obligation
	for _, id := range ids {
		o, ok := m.engine.Obligation(id)
		if !ok {
			continue
		}
		if o.Direction != record.Direction || !o.Remaining().IsPositive() {
			continue
		}
		open = append(open, o)
	}
	return open
}

// rank scores every obligation and orders by score descending, then due date
// ascending with missing due dates last, then id.
func (m *Matcher) rank(record model.BankRecord, obligations []model.Obligation, aliasConfidence float64) []Candidate {
	candidates := make([]Candidate, len(obligations))
	for i, o := range obligations {
		candidates[i] = Candidate{Obligation: o, Score: m.score(record, o, aliasConfidence)}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		ad, bd := a.Obligation.DueDate, b.Obligation.DueDate
		switch {
		case ad != nil && bd != nil && !ad.Equal(*bd):
			return ad.Before(*bd)
		case ad != nil && bd == nil:
			return true
		case ad == nil && bd != nil:
			return false
		}
		return a.Obligation.ID < b.Obligation.ID
	})
	return candidates
}

func (m *Matcher) score(record model.BankRecord, o model.Obligation, aliasConfidence float64) float64 {
	return m.config.AmountWeight*amountProximity(record.Magnitude(), o.Remaining()) +
		m.config.DateWeight*m.dateProximity(record, o) +
		m.config.AliasWeight*aliasConfidence
}

// amountProximity is 1 for an exact amount and falls to 0 once the difference
// reaches the bank amount.
func amountProximity(bankAmount, remaining decimal.Decimal) float64 {
	if !bankAmount.IsPositive() {
		return 0
	}
	ratio := bankAmount.Sub(remaining).Abs().Div(bankAmount).InexactFloat64()
	return 1 - math.Min(1, ratio)
}

// dateProximity decays linearly from 1 on the due date to 0 at the edge of the
// date window. Obligations without a due date score 0.
func (m *Matcher) dateProximity(record model.BankRecord, o model.Obligation) float64 {
	if o.DueDate == nil || m.config.DateWindowDays <= 0 {
		return 0
	}
	days := daysBetween(record, o)
	return 1 - math.Min(1, days/float64(m.config.DateWindowDays))
}

func daysBetween(record model.BankRecord, o model.Obligation) float64 {
	return math.Abs(record.Date.Sub(*o.DueDate).Hours() / 24)
}
