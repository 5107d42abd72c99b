// Package discrepancy derives the review surface from current match state.
//
// The reporter never mutates anything. It answers three questions for the
// bookkeeper: which bank lines are not reconciled yet, which obligations still
// have money outstanding, and which matches were settled for more or less than
// the obligations they claimed.
package discrepancy

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/eshaffer321/reconcile-backend/internal/domain/model"
)

// Kind classifies a non-zero match balance.
type Kind string

const (
	// Overpayment means the bank money exceeded what the obligations claimed.
	Overpayment Kind = "OVERPAYMENT"
	// Underpayment means the obligations claimed more than was paid.
	Underpayment Kind = "UNDERPAYMENT"
)

// OpenBalance is a live match whose balance is not zero.
type OpenBalance struct {
	Match  *model.Match    `json:"match"`
	Kind   Kind            `json:"kind"`
	Amount decimal.Decimal `json:"amount"` // absolute value of the balance
	Reason string          `json:"reason"`
}

// Summary combines the three lists with their totals.
type Summary struct {
	GeneratedAt time.Time `json:"generated_at"`

	UnmatchedBankRecords []model.BankRecord `json:"unmatched_bank_records"`
	UnmatchedBankTotal   decimal.Decimal    `json:"unmatched_bank_total"`

	UnmatchedObligations []model.Obligation `json:"unmatched_obligations"`
	OutstandingTotal     decimal.Decimal    `json:"outstanding_total"`

	OpenBalances   []OpenBalance   `json:"open_balances"`
	OverpaidTotal  decimal.Decimal `json:"overpaid_total"`
	UnderpaidTotal decimal.Decimal `json:"underpaid_total"`
}

// Clean reports whether there is nothing left to review.
func (s *Summary) Clean() bool {
	return len(s.UnmatchedBankRecords) == 0 && len(s.UnmatchedObligations) == 0 && len(s.OpenBalances) == 0
}

// Reporter builds discrepancy lists.
type Reporter struct {
	now func() time.Time
}

// Option configures a Reporter.
type Option func(*Reporter)

// WithClock overrides the time source used for GeneratedAt.
func WithClock(now func() time.Time) Option {
	return func(r *Reporter) { r.now = now }
}

// NewReporter creates a reporter.
func NewReporter(opts ...Option) *Reporter {
	r := &Reporter{now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// UnmatchedBankRecords returns the records not referenced by any live match,
// in input order.
func (r *Reporter) UnmatchedBankRecords(records []model.BankRecord, matches []*model.Match) []model.BankRecord {
	matched := make(map[string]bool)
	for _, m := range matches {
		if m.Reversed {
			continue
		}
		for _, id := range m.BankRecordIDs {
			matched[id] = true
		}
	}

	out := make([]model.BankRecord, 0)
	for _, rec := range records {
		if !matched[rec.ID] {
			out = append(out, rec)
		}
	}
	return out
}

// UnmatchedObligations returns obligations with a positive remaining balance,
// in input order.
func (r *Reporter) UnmatchedObligations(obligations []model.Obligation) []model.Obligation {
	out := make([]model.Obligation, 0)
	for _, o := range obligations {
		if o.Remaining().IsPositive() {
			out = append(out, o)
		}
	}
	return out
}

// OpenBalances returns live matches with a non-zero balance, annotated as
// overpayment (positive) or underpayment (negative).
func (r *Reporter) OpenBalances(matches []*model.Match) []OpenBalance {
	out := make([]OpenBalance, 0)
	for _, m := range matches {
		if m.Reversed || m.Balance.IsZero() {
			continue
		}

		ob := OpenBalance{Match: m.Clone(), Amount: m.Balance.Abs()}
		if m.Balance.IsPositive() {
			ob.Kind = Overpayment
			ob.Reason = fmt.Sprintf("bank sum %s exceeds claimed %s by %s",
				m.BankSum.StringFixed(2), m.ObligationSum.StringFixed(2), ob.Amount.StringFixed(2))
		} else {
			ob.Kind = Underpayment
			ob.Reason = fmt.Sprintf("bank sum %s is short of claimed %s by %s",
				m.BankSum.StringFixed(2), m.ObligationSum.StringFixed(2), ob.Amount.StringFixed(2))
		}
		out = append(out, ob)
	}
	return out
}

// Build combines the three lists with decimal totals.
func (r *Reporter) Build(records []model.BankRecord, obligations []model.Obligation, matches []*model.Match) *Summary {
	s := &Summary{
		GeneratedAt:          r.now().UTC(),
		UnmatchedBankRecords: r.UnmatchedBankRecords(records, matches),
		UnmatchedObligations: r.UnmatchedObligations(obligations),
		OpenBalances:         r.OpenBalances(matches),
		UnmatchedBankTotal:   decimal.Zero,
		OutstandingTotal:     decimal.Zero,
		OverpaidTotal:        decimal.Zero,
		UnderpaidTotal:       decimal.Zero,
	}

	for _, rec := range s.UnmatchedBankRecords {
		s.UnmatchedBankTotal = s.UnmatchedBankTotal.Add(rec.Magnitude())
	}
	for _, o := range s.UnmatchedObligations {
		s.OutstandingTotal = s.OutstandingTotal.Add(o.Remaining())
	}
	for _, ob := range s.OpenBalances {
		if ob.Kind == Overpayment {
			s.OverpaidTotal = s.OverpaidTotal.Add(ob.Amount)
		} else {
			s.UnderpaidTotal = s.UnderpaidTotal.Add(ob.Amount)
		}
	}

	return s
}
