package matcher

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/eshaffer321/reconcile-backend/internal/domain/model"
)

// subsetResult is one combination of obligations whose remaining balances sum
// to the bank amount.
type subsetResult struct {
	obligations []model.Obligation
	score       float64
}

// findExactSubset looks for two or more obligations whose remaining balances
// add up exactly to the bank amount. Only obligations inside the date window
// (or without a due date) are considered, at most MaxSubsetCandidates of them,
// taken in ranking order.
//
// When several combinations qualify the highest subset score wins, then the
// smaller combination, then the one found first.
func (m *Matcher) findExactSubset(record model.BankRecord, ranked []Candidate, aliasConfidence float64) ([]model.Obligation, float64, bool) {
	target := record.Magnitude()

	var pool []model.Obligation
	for _, c := range ranked {
		if len(pool) >= m.config.MaxSubsetCandidates {
			break
		}
		if !m.withinWindow(record, c.Obligation) {
			continue
		}
		if c.Obligation.Remaining().GreaterThan(target) {
			continue
		}
		pool = append(pool, c.Obligation)
	}
	if len(pool) < 2 {
		return nil, 0, false
	}

	var best *subsetResult
	m.findCombinations(pool, target, nil, decimal.Zero, func(combo []model.Obligation) {
		if len(combo) < 2 {
			return
		}
		score := m.subsetScore(record, combo, aliasConfidence)
		if best == nil || score > best.score || (score == best.score && len(combo) < len(best.obligations)) {
			best = &subsetResult{
				obligations: append([]model.Obligation(nil), combo...),
				score:       score,
			}
		}
	})

	if best == nil {
		return nil, 0, false
	}
	return best.obligations, best.score, true
}

// findCombinations walks include/exclude branches in pool order, pruning any
// branch whose running sum passes the target.
func (m *Matcher) findCombinations(pool []model.Obligation, target decimal.Decimal, current []model.Obligation, sum decimal.Decimal, found func([]model.Obligation)) {
	if sum.Equal(target) {
		found(current)
		return
	}
	if len(pool) == 0 || sum.GreaterThan(target) {
		return
	}

	next := sum.Add(pool[0].Remaining())
	if next.LessThanOrEqual(target) {
		m.findCombinations(pool[1:], target, append(current, pool[0]), next, found)
	}
	m.findCombinations(pool[1:], target, current, sum, found)
}

// subsetScore rates an exact-sum combination: full amount credit, the date
// proximity of the worst-dated member, and the alias confidence.
func (m *Matcher) subsetScore(record model.BankRecord, combo []model.Obligation, aliasConfidence float64) float64 {
	worst := math.Inf(1)
	for _, o := range combo {
		worst = math.Min(worst, m.dateProximity(record, o))
	}
	return m.config.AmountWeight + m.config.DateWeight*worst + m.config.AliasWeight*aliasConfidence
}

// withinWindow reports whether an obligation may join an exact-sum combination.
func (m *Matcher) withinWindow(record model.BankRecord, o model.Obligation) bool {
	if o.DueDate == nil {
		return true
	}
	return daysBetween(record, o) <= float64(m.config.DateWindowDays)
}
