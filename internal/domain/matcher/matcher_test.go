package matcher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eshaffer321/reconcile-backend/internal/domain/alias"
	"github.com/eshaffer321/reconcile-backend/internal/domain/engine"
	"github.com/eshaffer321/reconcile-backend/internal/domain/history"
	"github.com/eshaffer321/reconcile-backend/internal/domain/model"
)

var baseDate = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func due(days int) *time.Time {
	t := baseDate.AddDate(0, 0, days)
	return &t
}

func record(id, amount, raw string) model.BankRecord {
	return model.BankRecord{ID: id, Amount: d(amount), Date: baseDate, RawCounterparty: raw, Direction: model.DirectionCredit}
}

func invoice(id, cp, total string, dueDate *time.Time) model.Obligation {
	return model.Obligation{ID: id, CounterpartyID: cp, TotalAmount: d(total), SettledAmount: decimal.Zero, Direction: model.DirectionCredit, DueDate: dueDate}
}

type fixture struct {
	registry *alias.Registry
	engine   *engine.Engine
	matcher  *Matcher
}

func newFixture(t *testing.T, records []model.BankRecord, obligations []model.Obligation) *fixture {
	t.Helper()

	reg := alias.NewRegistry(alias.DefaultConfig())
	reg.RegisterCounterparty(model.Counterparty{ID: "C", CanonicalName: "Acme Trading"})
	reg.RegisterCounterparty(model.Counterparty{ID: "Y", CanonicalName: "Globex Corp"})

	eng := engine.New(history.NewLedger())
	eng.LoadBankRecords(records)
	require.NoError(t, eng.LoadObligations(obligations))

	return &fixture{
		registry: reg,
		engine:   eng,
		matcher:  NewMatcher(DefaultConfig(), reg, eng),
	}
}

func candidateIDs(q QueuedRecord) []string {
	ids := make([]string, len(q.Candidates))
	for i, c := range q.Candidates {
		ids[i] = c.Obligation.ID
	}
	return ids
}

func TestAutoMatch_OneRecordSettlesTwoObligations(t *testing.T) {
	records := []model.BankRecord{record("B", "1500", "ACME TRADING")}
	obligations := []model.Obligation{
		invoice("O1", "C", "1000", due(0)),
		invoice("O2", "C", "500", due(0)),
	}
	f := newFixture(t, records, obligations)

	report, err := f.matcher.AutoMatch(context.Background(), records, obligations)
	require.NoError(t, err)

	require.Len(t, report.Matched, 1)
	assert.Empty(t, report.Queued)
	assert.Empty(t, report.Unmatched)

	m := report.Matched[0]
	assert.Equal(t, []string{"B"}, m.BankRecordIDs)
	assert.ElementsMatch(t, []string{"O1", "O2"}, m.ObligationIDs)
	assert.True(t, m.Balance.IsZero())

	a1, ok := m.AllocationFor("O1")
	require.True(t, ok)
	assert.True(t, d("1000").Equal(a1.Amount))
	a2, ok := m.AllocationFor("O2")
	require.True(t, ok)
	assert.True(t, d("500").Equal(a2.Amount))

	for _, id := range []string{"O1", "O2"} {
		o, ok := f.engine.Obligation(id)
		require.True(t, ok)
		assert.True(t, o.Remaining().IsZero(), "obligation %s should be settled", id)
	}
	assert.Equal(t, "auto-matcher", m.CreatedBy)
}

func TestAutoMatch_ExactSingleObligation(t *testing.T) {
	records := []model.BankRecord{record("B", "1000", "Acme Trading")}
	obligations := []model.Obligation{
		invoice("O1", "C", "1000", due(0)),
		invoice("O2", "C", "500", due(0)),
	}
	f := newFixture(t, records, obligations)

	report, err := f.matcher.AutoMatch(context.Background(), records, obligations)
	require.NoError(t, err)

	require.Len(t, report.Matched, 1)
	assert.Equal(t, []string{"O1"}, report.Matched[0].ObligationIDs)

	o2, _ := f.engine.Obligation("O2")
	assert.True(t, o2.SettledAmount.IsZero())
}

func TestAutoMatch_FuzzyCounterpartyWithoutExactSumIsQueued(t *testing.T) {
	records := []model.BankRecord{record("B", "1000", "Globex Co")}
	obligations := []model.Obligation{
		invoice("Y1", "Y", "450", due(0)),
		invoice("Y2", "Y", "700", due(0)),
	}
	f := newFixture(t, records, obligations)

	resolved, ok := f.registry.Resolve("Globex Co")
	require.True(t, ok)
	assert.InDelta(t, 0.8, resolved.Confidence, 0.05)

	report, err := f.matcher.AutoMatch(context.Background(), records, obligations)
	require.NoError(t, err)

	assert.Empty(t, report.Matched)
	require.Len(t, report.Queued, 1)
	q := report.Queued[0]
	assert.Equal(t, "B", q.BankRecord.ID)
	assert.Equal(t, "Y", q.CounterpartyID)
	assert.Equal(t, []string{"Y2", "Y1"}, candidateIDs(q))
	assert.Greater(t, q.Candidates[0].Score, q.Candidates[1].Score)

	for _, id := range []string{"Y1", "Y2"} {
		o, _ := f.engine.Obligation(id)
		assert.True(t, o.SettledAmount.IsZero())
	}
	assert.False(t, f.engine.IsBankRecordMatched("B"))
}

func TestAutoMatch_RequiresExactSumAndThreshold(t *testing.T) {
	t.Run("exact amount below threshold is queued", func(t *testing.T) {
		// Fuzzy name and a due date 20 days out keep the score near 0.78
		records := []model.BankRecord{record("B", "1000", "Globex Co")}
		obligations := []model.Obligation{invoice("Y1", "Y", "1000", due(20))}
		f := newFixture(t, records, obligations)

		report, err := f.matcher.AutoMatch(context.Background(), records, obligations)
		require.NoError(t, err)

		assert.Empty(t, report.Matched)
		require.Len(t, report.Queued, 1)
		assert.Less(t, report.Queued[0].Candidates[0].Score, 0.95)
	})

	t.Run("high score without exact amount is queued", func(t *testing.T) {
		records := []model.BankRecord{record("B", "1000", "Acme Trading")}
		obligations := []model.Obligation{invoice("O1", "C", "999.99", due(0))}
		f := newFixture(t, records, obligations)

		report, err := f.matcher.AutoMatch(context.Background(), records, obligations)
		require.NoError(t, err)

		assert.Empty(t, report.Matched)
		require.Len(t, report.Queued, 1)
		assert.Greater(t, report.Queued[0].Candidates[0].Score, 0.95)
	})

	t.Run("exact sum outside the date window is queued", func(t *testing.T) {
		records := []model.BankRecord{record("B", "1500", "Acme Trading")}
		obligations := []model.Obligation{
			invoice("O1", "C", "1000", due(-40)),
			invoice("O2", "C", "500", due(0)),
		}
		f := newFixture(t, records, obligations)

		report, err := f.matcher.AutoMatch(context.Background(), records, obligations)
		require.NoError(t, err)

		assert.Empty(t, report.Matched)
		require.Len(t, report.Queued, 1)
	})

	t.Run("exact sum inside the window is committed whatever its date score", func(t *testing.T) {
		records := []model.BankRecord{record("B", "1500", "Acme Trading")}
		obligations := []model.Obligation{
			invoice("O1", "C", "1000", due(-25)),
			invoice("O2", "C", "500", due(0)),
		}
		f := newFixture(t, records, obligations)

		report, err := f.matcher.AutoMatch(context.Background(), records, obligations)
		require.NoError(t, err)

		assert.Empty(t, report.Queued)
		require.Len(t, report.Matched, 1)
		assert.ElementsMatch(t, []string{"O1", "O2"}, report.Matched[0].ObligationIDs)
	})
}

func TestAutoMatch_ExactSumWithinWindow(t *testing.T) {
	tests := []struct {
		name  string
		o1Due *time.Time
		o2Due *time.Time
	}{
		{"no due dates", nil, nil},
		{"both due ten days earlier", due(-10), due(-10)},
		{"one due at the window edge", due(-25), due(0)},
		{"one dated one undated", due(20), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records := []model.BankRecord{record("B", "1500", "Acme Trading")}
			obligations := []model.Obligation{
				invoice("O1", "C", "1000", tt.o1Due),
				invoice("O2", "C", "500", tt.o2Due),
			}
			f := newFixture(t, records, obligations)

			report, err := f.matcher.AutoMatch(context.Background(), records, obligations)
			require.NoError(t, err)

			assert.Empty(t, report.Queued)
			require.Len(t, report.Matched, 1)

			m := report.Matched[0]
			assert.Equal(t, []string{"B"}, m.BankRecordIDs)
			assert.ElementsMatch(t, []string{"O1", "O2"}, m.ObligationIDs)
			assert.True(t, m.Balance.IsZero())

			a1, ok := m.AllocationFor("O1")
			require.True(t, ok)
			assert.True(t, d("1000").Equal(a1.Amount))
			a2, ok := m.AllocationFor("O2")
			require.True(t, ok)
			assert.True(t, d("500").Equal(a2.Amount))

			for _, id := range []string{"O1", "O2"} {
				o, _ := f.engine.Obligation(id)
				assert.True(t, o.Remaining().IsZero(), "obligation %s should be settled", id)
			}
		})
	}
}

func TestAutoMatch_SubsetFloor(t *testing.T) {
	records := []model.BankRecord{record("B", "1500", "Acme Trading")}
	obligations := []model.Obligation{
		invoice("O1", "C", "1000", nil),
		invoice("O2", "C", "500", nil),
	}
	f := newFixture(t, records, obligations)

	// Undated exact sum scores amount + alias only (0.7)
	config := DefaultConfig()
	config.SubsetFloor = 0.8
	m := NewMatcher(config, f.registry, f.engine)

	report, err := m.AutoMatch(context.Background(), records, obligations)
	require.NoError(t, err)

	assert.Empty(t, report.Matched)
	require.Len(t, report.Queued, 1)
	assert.False(t, f.engine.IsBankRecordMatched("B"))
}

func TestAutoMatch_Partitions(t *testing.T) {
	records := []model.BankRecord{
		record("B1", "1000", "Acme Trading"),
		record("B2", "50", "Unknown Payee Inc"),
		record("B3", "75", "Globex Corp"), // resolves, but Y has nothing open
		record("B4", "1000", "Acme Trading"),
	}
	obligations := []model.Obligation{invoice("O1", "C", "1000", due(0))}
	f := newFixture(t, records, obligations)

	_, err := f.engine.Commit(context.Background(), engine.CommitRequest{
		BankRecordIDs: []string{"B4"},
		ObligationIDs: []string{"O1"},
		Allocations:   map[string]decimal.Decimal{"O1": d("100")},
		Actor:         "alice",
	})
	// B4 cannot be committed for only 100 of 1000 with O1 still open
	require.Error(t, err)

	require.NoError(t, f.engine.LoadObligations([]model.Obligation{invoice("O9", "C", "1000", nil)}))
	_, err = f.engine.Commit(context.Background(), engine.CommitRequest{
		BankRecordIDs: []string{"B4"},
		ObligationIDs: []string{"O9"},
		Actor:         "alice",
	})
	require.NoError(t, err)

	report, err := f.matcher.AutoMatch(context.Background(), records, obligations)
	require.NoError(t, err)

	require.Len(t, report.Matched, 1)
	assert.Equal(t, []string{"B1"}, report.Matched[0].BankRecordIDs)

	unmatched := make([]string, 0, len(report.Unmatched))
	for _, r := range report.Unmatched {
		unmatched = append(unmatched, r.ID)
	}
	assert.Equal(t, []string{"B2", "B3"}, unmatched)

	require.Len(t, report.AlreadyMatched, 1)
	assert.Equal(t, "B4", report.AlreadyMatched[0].ID)
	assert.False(t, report.Partial)
}

func TestAutoMatch_RankingTieBreaks(t *testing.T) {
	records := []model.BankRecord{record("B", "300", "Acme Trading")}
	obligations := []model.Obligation{
		invoice("O-c", "C", "100", nil),
		invoice("O-b", "C", "100", due(-5)),
		invoice("O-a", "C", "100", due(5)),
		invoice("O-d", "C", "100", due(-10)),
		invoice("O-e", "C", "100", nil),
		invoice("O-f", "C", "100", nil),
	}
	f := newFixture(t, records, obligations)
	f.matcher.config.MaxQueuedCandidates = 10
	f.matcher.config.MaxSubsetCandidates = 0

	report, err := f.matcher.AutoMatch(context.Background(), records, obligations)
	require.NoError(t, err)
	require.Len(t, report.Queued, 1)

	// O-b and O-a share a score; the earlier due date goes first. Missing due
	// dates score lowest and fall back to id order.
	assert.Equal(t, []string{"O-b", "O-a", "O-d", "O-c", "O-e", "O-f"}, candidateIDs(report.Queued[0]))
}

func TestAutoMatch_QueueKeepsTopCandidates(t *testing.T) {
	records := []model.BankRecord{record("B", "10000", "Acme Trading")}
	var obligations []model.Obligation
	for _, id := range []string{"O1", "O2", "O3", "O4", "O5", "O6", "O7"} {
		obligations = append(obligations, invoice(id, "C", "20000", due(0)))
	}
	f := newFixture(t, records, obligations)

	report, err := f.matcher.AutoMatch(context.Background(), records, obligations)
	require.NoError(t, err)

	require.Len(t, report.Queued, 1)
	assert.Equal(t, []string{"O1", "O2", "O3", "O4", "O5"}, candidateIDs(report.Queued[0]))
}

func TestAutoMatch_IsDeterministic(t *testing.T) {
	records := []model.BankRecord{
		record("B1", "1500", "Acme Trading"),
		record("B2", "1000", "Globex Co"),
		record("B3", "42", "Nobody"),
		record("B4", "300", "acme trading"),
	}
	obligations := []model.Obligation{
		invoice("O1", "C", "1000", due(0)),
		invoice("O2", "C", "500", due(1)),
		invoice("O3", "C", "200", due(3)),
		invoice("O4", "C", "100", nil),
		invoice("Y1", "Y", "450", due(2)),
		invoice("Y2", "Y", "700", due(-2)),
	}

	type summary struct {
		matched   [][]string
		queued    map[string][]string
		scores    map[string][]float64
		unmatched []string
	}
	run := func() summary {
		f := newFixture(t, records, obligations)
		report, err := f.matcher.AutoMatch(context.Background(), records, obligations)
		require.NoError(t, err)

		s := summary{queued: map[string][]string{}, scores: map[string][]float64{}}
		for _, m := range report.Matched {
			s.matched = append(s.matched, append(append([]string(nil), m.BankRecordIDs...), m.ObligationIDs...))
		}
		for _, q := range report.Queued {
			s.queued[q.BankRecord.ID] = candidateIDs(q)
			for _, c := range q.Candidates {
				s.scores[q.BankRecord.ID] = append(s.scores[q.BankRecord.ID], c.Score)
			}
		}
		for _, r := range report.Unmatched {
			s.unmatched = append(s.unmatched, r.ID)
		}
		return s
	}

	first := run()
	second := run()
	assert.Equal(t, first, second)
	assert.NotEmpty(t, first.matched)
	assert.NotEmpty(t, first.queued)
}

// cancellingResolver cancels the run after the first lookup.
type cancellingResolver struct {
	inner  Resolver
	cancel context.CancelFunc
}

func (r *cancellingResolver) Resolve(raw string) (*alias.Candidate, bool) {
	defer r.cancel()
	return r.inner.Resolve(raw)
}

func TestAutoMatch_CancellationReturnsPartialReport(t *testing.T) {
	records := []model.BankRecord{
		record("B1", "1000", "Acme Trading"),
		record("B2", "500", "Acme Trading"),
		record("B3", "200", "Acme Trading"),
	}
	obligations := []model.Obligation{
		invoice("O1", "C", "1000", due(0)),
		invoice("O2", "C", "500", due(0)),
		invoice("O3", "C", "200", due(0)),
	}

	t.Run("cancelled before start", func(t *testing.T) {
		f := newFixture(t, records, obligations)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		report, err := f.matcher.AutoMatch(ctx, records, obligations)
		require.NoError(t, err)
		assert.True(t, report.Partial)
		assert.Len(t, report.Unmatched, 3)
		assert.Empty(t, report.Matched)
	})

	t.Run("cancelled mid-run", func(t *testing.T) {
		f := newFixture(t, records, obligations)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		m := NewMatcher(DefaultConfig(), &cancellingResolver{inner: f.registry, cancel: cancel}, f.engine)

		report, err := m.AutoMatch(ctx, records, obligations)
		require.NoError(t, err)
		assert.True(t, report.Partial)
		require.Len(t, report.Matched, 1)
		assert.Equal(t, []string{"B1"}, report.Matched[0].BankRecordIDs)
		require.Len(t, report.Unmatched, 2)
		assert.Equal(t, "B2", report.Unmatched[0].ID)
	})
}

// failingEngine wraps a real engine but cannot persist commits.
type failingEngine struct {
	*engine.Engine
}

func (e failingEngine) Commit(ctx context.Context, req engine.CommitRequest) (*model.Match, error) {
	return nil, errors.New("database is locked")
}

func TestAutoMatch_CommitFailureIsReturned(t *testing.T) {
	records := []model.BankRecord{record("B1", "1000", "Acme Trading")}
	obligations := []model.Obligation{invoice("O1", "C", "1000", due(0))}
	f := newFixture(t, records, obligations)

	m := NewMatcher(DefaultConfig(), f.registry, failingEngine{f.engine})
	report, err := m.AutoMatch(context.Background(), records, obligations)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database is locked")
	require.NotNil(t, report)
	assert.Empty(t, report.Matched)
}

func TestAmountProximity(t *testing.T) {
	tests := []struct {
		bank, remaining string
		want            float64
	}{
		{"1000", "1000", 1.0},
		{"1000", "700", 0.7},
		{"1000", "1300", 0.7},
		{"1000", "3000", 0.0},
		{"0", "10", 0.0},
	}

	for _, tt := range tests {
		assert.InDelta(t, tt.want, amountProximity(d(tt.bank), d(tt.remaining)), 0.0001, "%s vs %s", tt.bank, tt.remaining)
	}
}
