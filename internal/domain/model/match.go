package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Allocation is the portion of a match's bank money applied to one obligation.
type Allocation struct {
	ObligationID string `json:"obligation_id"`
	// Claimed is the obligation's remaining balance when it joined the match.
	Claimed decimal.Decimal `json:"claimed"`
	// Amount is what this match added to the obligation's settled amount.
	Amount decimal.Decimal `json:"amount"`
}

// Match links one or more bank records to one or more obligations.
// One-to-many and many-to-one are the same shape with different list sizes.
type Match struct {
	ID            string          `json:"id"`
	BankRecordIDs []string        `json:"bank_record_ids"`
	ObligationIDs []string        `json:"obligation_ids"`
	Allocations   []Allocation    `json:"allocations"`
	BankSum       decimal.Decimal `json:"bank_sum"`
	ObligationSum decimal.Decimal `json:"obligation_sum"`
	Balance       decimal.Decimal `json:"balance"`
	CreatedAt     time.Time       `json:"created_at"`
	CreatedBy     string          `json:"created_by"`
	Reversed      bool            `json:"reversed"`
	ReversedAt    *time.Time      `json:"reversed_at,omitempty"`
	ReversedBy    string          `json:"reversed_by,omitempty"`
}

// AllocatedTotal sums the amounts applied across all obligations.
func (m *Match) AllocatedTotal() decimal.Decimal {
	total := decimal.Zero
	for _, a := range m.Allocations {
		total = total.Add(a.Amount)
	}
	return total
}

// AllocationFor returns the allocation for an obligation, if any.
func (m *Match) AllocationFor(obligationID string) (Allocation, bool) {
	for _, a := range m.Allocations {
		if a.ObligationID == obligationID {
			return a, true
		}
	}
	return Allocation{}, false
}

// Recompute refreshes ObligationSum and Balance from the allocations.
// BankSum is maintained by the caller since bank amounts live outside the match.
func (m *Match) Recompute() {
	sum := decimal.Zero
	for _, a := range m.Allocations {
		sum = sum.Add(a.Claimed)
	}
	m.ObligationSum = sum
	m.Balance = m.BankSum.Sub(sum)
}

// Clone returns a deep copy so snapshots never alias live state.
func (m *Match) Clone() *Match {
	if m == nil {
		return nil
	}
	c := *m
	c.BankRecordIDs = append([]string(nil), m.BankRecordIDs...)
	c.ObligationIDs = append([]string(nil), m.ObligationIDs...)
	c.Allocations = append([]Allocation(nil), m.Allocations...)
	if m.ReversedAt != nil {
		t := *m.ReversedAt
		c.ReversedAt = &t
	}
	return &c
}

// State captures the parts of a match recorded in history entries.
func (m *Match) State() *MatchState {
	if m == nil {
		return nil
	}
	c := m.Clone()
	return &MatchState{
		BankRecordIDs: c.BankRecordIDs,
		ObligationIDs: c.ObligationIDs,
		Allocations:   c.Allocations,
		BankSum:       c.BankSum,
		ObligationSum: c.ObligationSum,
		Balance:       c.Balance,
		Reversed:      c.Reversed,
	}
}

// MatchState is a point-in-time snapshot stored in a history entry.
type MatchState struct {
	BankRecordIDs []string        `json:"bank_record_ids"`
	ObligationIDs []string        `json:"obligation_ids"`
	Allocations   []Allocation    `json:"allocations"`
	BankSum       decimal.Decimal `json:"bank_sum"`
	ObligationSum decimal.Decimal `json:"obligation_sum"`
	Balance       decimal.Decimal `json:"balance"`
	Reversed      bool            `json:"reversed"`
}

// HistoryAction names the mutation a history entry records.
type HistoryAction string

const (
	ActionCreate  HistoryAction = "create"
	ActionExtend  HistoryAction = "extend"
	ActionReverse HistoryAction = "reverse"
)

// HistoryEntry is an append-only audit record of one match mutation.
type HistoryEntry struct {
	ID        string        `json:"id"`
	MatchID   string        `json:"match_id"`
	Action    HistoryAction `json:"action"`
	Before    *MatchState   `json:"before,omitempty"`
	After     *MatchState   `json:"after,omitempty"`
	Actor     string        `json:"actor"`
	Timestamp time.Time     `json:"timestamp"`
}
