// Package allocator splits a bank payment across the obligations it settles.
//
// Two strategies are provided:
//
//	Sequential: fill each obligation in order until the money runs out
//	ProRata:    share the money in proportion to each remaining balance
//
// Neither strategy ever allocates more than an obligation's remaining balance.
// When the payment exceeds the combined remaining balance, every obligation is
// filled and the excess is reported as Unallocated.
package allocator

import (
	"errors"
	"sort"

	"github.com/shopspring/decimal"
)

// Strategy names an allocation strategy.
type Strategy string

const (
	StrategySequential Strategy = "sequential"
	StrategyProRata    Strategy = "pro_rata"
)

// Slot is an obligation that can receive money.
type Slot struct {
	ObligationID string
	Remaining    decimal.Decimal
}

// Allocation is the amount given to one obligation.
type Allocation struct {
	ObligationID string
	Amount       decimal.Decimal
}

// Result contains the allocation results.
type Result struct {
	Allocations    []Allocation
	TotalAllocated decimal.Decimal
	Unallocated    decimal.Decimal
}

// AsMap returns the allocations keyed by obligation id.
func (r *Result) AsMap() map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(r.Allocations))
	for _, a := range r.Allocations {
		out[a.ObligationID] = a.Amount
	}
	return out
}

// Allocate dispatches to the named strategy. An empty strategy means sequential.
func Allocate(strategy Strategy, amount decimal.Decimal, slots []Slot) (*Result, error) {
	switch strategy {
	case "", StrategySequential:
		return Sequential(amount, slots)
	case StrategyProRata:
		return ProRata(amount, slots)
	default:
		return nil, errors.New("unknown allocation strategy: " + string(strategy))
	}
}

// Sequential fills slots in order, each up to its remaining balance.
func Sequential(amount decimal.Decimal, slots []Slot) (*Result, error) {
	if err := validate(amount, slots); err != nil {
		return nil, err
	}

	left := amount
	allocations := make([]Allocation, len(slots))
	for i, slot := range slots {
		give := decimal.Min(left, slot.Remaining)
		allocations[i] = Allocation{ObligationID: slot.ObligationID, Amount: give}
		left = left.Sub(give)
	}

	return &Result{
		Allocations:    allocations,
		TotalAllocated: amount.Sub(left),
		Unallocated:    left,
	}, nil
}

// ProRata shares amount across slots proportionally to their remaining balances,
// rounded to cents. Rounding drift is pushed onto the largest allocation that
// still has room so the total matches exactly.
func ProRata(amount decimal.Decimal, slots []Slot) (*Result, error) {
	if err := validate(amount, slots); err != nil {
		return nil, err
	}

	totalRemaining := decimal.Zero
	for _, slot := range slots {
		totalRemaining = totalRemaining.Add(slot.Remaining)
	}

	// Payment covers everything: no proportion needed
	if amount.GreaterThanOrEqual(totalRemaining) {
		allocations := make([]Allocation, len(slots))
		for i, slot := range slots {
			allocations[i] = Allocation{ObligationID: slot.ObligationID, Amount: slot.Remaining}
		}
		return &Result{
			Allocations:    allocations,
			TotalAllocated: totalRemaining,
			Unallocated:    amount.Sub(totalRemaining),
		}, nil
	}

	allocations := make([]Allocation, len(slots))
	allocated := decimal.Zero
	for i, slot := range slots {
		share := slot.Remaining.Mul(amount).DivRound(totalRemaining, 8).Round(2)
		share = decimal.Min(share, slot.Remaining)
		allocations[i] = Allocation{ObligationID: slot.ObligationID, Amount: share}
		allocated = allocated.Add(share)
	}

	// Fix rounding - walk allocations from largest to smallest
	diff := amount.Sub(allocated)
	if !diff.IsZero() {
		order := make([]int, len(allocations))
		for i := range order {
			order[i] = i
		}
		sort.SliceStable(order, func(a, b int) bool {
			return allocations[order[a]].Amount.GreaterThan(allocations[order[b]].Amount)
		})
		for _, idx := range order {
			if diff.IsZero() {
				break
			}
			current := allocations[idx].Amount
			adjusted := current.Add(diff)
			if adjusted.IsNegative() {
				adjusted = decimal.Zero
			}
			adjusted = decimal.Min(adjusted, slots[idx].Remaining)
			diff = diff.Sub(adjusted.Sub(current))
			allocations[idx].Amount = adjusted
		}
	}

	return &Result{
		Allocations:    allocations,
		TotalAllocated: amount.Sub(diff),
		Unallocated:    diff,
	}, nil
}

func validate(amount decimal.Decimal, slots []Slot) error {
	if len(slots) == 0 {
		return errors.New("no obligations to allocate")
	}
	if amount.IsNegative() {
		return errors.New("payment amount cannot be negative")
	}
	for _, slot := range slots {
		if slot.Remaining.IsNegative() {
			return errors.New("remaining balance cannot be negative")
		}
	}
	return nil
}
