package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/eshaffer321/reconcile-backend/internal/domain/allocator"
	"github.com/eshaffer321/reconcile-backend/internal/domain/model"
)

// CommitRequest describes a new match.
type CommitRequest struct {
	BankRecordIDs []string
	ObligationIDs []string
	// Allocations maps obligation id to the amount applied. When nil the bank
	// sum is spread using Strategy in obligation order.
	Allocations map[string]decimal.Decimal
	Strategy    allocator.Strategy
	Actor       string
}

// ExtendRequest adds records to an existing match. Allocations, when given,
// are the extra amounts applied by this extension.
type ExtendRequest struct {
	BankRecordIDs []string
	ObligationIDs []string
	Allocations   map[string]decimal.Decimal
	Strategy      allocator.Strategy
	Actor         string
}

// Commit creates a match between bank records and obligations.
func (e *Engine) Commit(ctx context.Context, req CommitRequest) (*model.Match, error) {
	if len(req.BankRecordIDs) == 0 || len(req.ObligationIDs) == 0 {
		return nil, fmt.Errorf("commit needs at least one bank record and one obligation: %w", model.ErrInvalidRequest)
	}
	if err := checkDistinct(req.BankRecordIDs, req.ObligationIDs); err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(req.BankRecordIDs)+len(req.ObligationIDs))
	for _, id := range req.BankRecordIDs {
		keys = append(keys, bankKey(id))
	}
	for _, id := range req.ObligationIDs {
		keys = append(keys, obligationKey(id))
	}
	release := e.locks.acquire(keys)
	defer release()

	banks, obligations, err := e.snapshot(req.BankRecordIDs, req.ObligationIDs, nil)
	if err != nil {
		return nil, err
	}
	if err := checkDirections(banks, obligations, ""); err != nil {
		return nil, err
	}

	bankSum := sumMagnitudes(banks)
	if !bankSum.IsPositive() {
		return nil, fmt.Errorf("bank records carry no amount: %w", model.ErrInvalidRequest)
	}
	allocations, extra, err := buildAllocations(bankSum, nil, obligations, req.Allocations, req.Strategy)
	if err != nil {
		return nil, err
	}

	m := &model.Match{
		ID:            uuid.NewString(),
		BankRecordIDs: append([]string(nil), req.BankRecordIDs...),
		ObligationIDs: append([]string(nil), req.ObligationIDs...),
		Allocations:   allocations,
		BankSum:       bankSum,
		CreatedAt:     e.now().UTC(),
		CreatedBy:     req.Actor,
	}
	m.Recompute()

	e.mu.Lock()
	e.applySettled(extra, false)
	e.matches[m.ID] = m
	e.matchOrder = append(e.matchOrder, m.ID)
	for _, id := range m.BankRecordIDs {
		e.bankOwner[id] = m.ID
	}
	e.mu.Unlock()

	entry := e.ledger.NewEntry(m.ID, model.ActionCreate, nil, m.State(), req.Actor)
	if err := e.flush(ctx, m, entry); err != nil {
		e.mu.Lock()
		e.applySettled(extra, true)
		delete(e.matches, m.ID)
		e.dropFromOrder(m.ID)
		for _, id := range m.BankRecordIDs {
			delete(e.bankOwner, id)
		}
		e.mu.Unlock()
		return nil, err
	}
	e.ledger.Append(entry)

	e.logger.Info("match committed",
		"match_id", m.ID,
		"bank_records", len(m.BankRecordIDs),
		"obligations", len(m.ObligationIDs),
		"bank_sum", m.BankSum.String(),
		"balance", m.Balance.String(),
		"actor", req.Actor)

	return m.Clone(), nil
}

// Extend adds bank records and/or obligations to a live match.
func (e *Engine) Extend(ctx context.Context, matchID string, req ExtendRequest) (*model.Match, error) {
	if len(req.BankRecordIDs) == 0 && len(req.ObligationIDs) == 0 {
		return nil, fmt.Errorf("extend needs at least one bank record or obligation: %w", model.ErrInvalidRequest)
	}
	if err := checkDistinct(req.BankRecordIDs, req.ObligationIDs); err != nil {
		return nil, err
	}

	for {
		current, err := e.Match(matchID)
		if err != nil {
			return nil, err
		}

		keys := []string{matchKey(matchID)}
		for _, id := range req.BankRecordIDs {
			keys = append(keys, bankKey(id))
		}
		for _, id := range append(append([]string(nil), current.ObligationIDs...), req.ObligationIDs...) {
			keys = append(keys, obligationKey(id))
		}

		release := e.locks.acquire(keys)
		m, stable := e.stableMatch(current)
		if !stable {
			// Another extension changed the obligation set before we got the locks.
			release()
			continue
		}

		out, err := e.extendLocked(ctx, m, req)
		release()
		return out, err
	}
}

func (e *Engine) extendLocked(ctx context.Context, m *model.Match, req ExtendRequest) (*model.Match, error) {
	if m.Reversed {
		return nil, fmt.Errorf("extend match %s: %w", m.ID, model.ErrAlreadyReversed)
	}
	for _, id := range req.BankRecordIDs {
		if contains(m.BankRecordIDs, id) {
			return nil, fmt.Errorf("bank record %s already in match %s: %w", id, m.ID, model.ErrInvalidRequest)
		}
	}
	for _, id := range req.ObligationIDs {
		if contains(m.ObligationIDs, id) {
			return nil, fmt.Errorf("obligation %s already in match %s: %w", id, m.ID, model.ErrInvalidRequest)
		}
	}

	linkedIDs := append(append([]string(nil), m.ObligationIDs...), req.ObligationIDs...)
	banks, linked, err := e.snapshot(req.BankRecordIDs, linkedIDs, m.ObligationIDs)
	if err != nil {
		return nil, err
	}
	if err := checkDirections(banks, linked, linked[0].Direction); err != nil {
		return nil, err
	}

	added := sumMagnitudes(banks)
	if len(banks) > 0 && !added.IsPositive() {
		return nil, fmt.Errorf("added bank records carry no amount: %w", model.ErrInvalidRequest)
	}
	bankSum := m.BankSum.Add(added)
	allocations, extra, err := buildAllocations(bankSum, m.Allocations, linked, req.Allocations, req.Strategy)
	if err != nil {
		return nil, err
	}

	updated := m.Clone()
	updated.BankRecordIDs = append(updated.BankRecordIDs, req.BankRecordIDs...)
	updated.ObligationIDs = linkedIDs
	updated.Allocations = allocations
	updated.BankSum = bankSum
	updated.Recompute()

	e.mu.Lock()
	e.applySettled(extra, false)
	e.matches[m.ID] = updated
	for _, id := range req.BankRecordIDs {
		e.bankOwner[id] = m.ID
	}
	e.mu.Unlock()

	entry := e.ledger.NewEntry(m.ID, model.ActionExtend, m.State(), updated.State(), req.Actor)
	if err := e.flush(ctx, updated, entry); err != nil {
		e.mu.Lock()
		e.applySettled(extra, true)
		e.matches[m.ID] = m
		for _, id := range req.BankRecordIDs {
			delete(e.bankOwner, id)
		}
		e.mu.Unlock()
		return nil, err
	}
	e.ledger.Append(entry)

	e.logger.Info("match extended",
		"match_id", m.ID,
		"added_bank_records", len(req.BankRecordIDs),
		"added_obligations", len(req.ObligationIDs),
		"balance", updated.Balance.String(),
		"actor", req.Actor)

	return updated.Clone(), nil
}

// Reverse undoes a match: every allocation is taken back off its obligation
// and the bank records become available again.
func (e *Engine) Reverse(ctx context.Context, matchID, actor string) (*model.Match, error) {
	for {
		current, err := e.Match(matchID)
		if err != nil {
			return nil, err
		}
		if current.Reversed {
			return nil, fmt.Errorf("reverse match %s: %w", matchID, model.ErrAlreadyReversed)
		}

		keys := []string{matchKey(matchID)}
		for _, id := range current.BankRecordIDs {
			keys = append(keys, bankKey(id))
		}
		for _, id := range current.ObligationIDs {
			keys = append(keys, obligationKey(id))
		}

		release := e.locks.acquire(keys)
		m, stable := e.stableMatch(current)
		if !stable {
			release()
			continue
		}

		out, err := e.reverseLocked(ctx, m, actor)
		release()
		return out, err
	}
}

func (e *Engine) reverseLocked(ctx context.Context, m *model.Match, actor string) (*model.Match, error) {
	if m.Reversed {
		return nil, fmt.Errorf("reverse match %s: %w", m.ID, model.ErrAlreadyReversed)
	}

	taken := make(map[string]decimal.Decimal, len(m.Allocations))
	e.mu.RLock()
	for _, a := range m.Allocations {
		o, ok := e.obligations[a.ObligationID]
		if !ok {
			e.mu.RUnlock()
			return nil, fmt.Errorf("obligation %s: %w", a.ObligationID, model.ErrNotFound)
		}
		if o.SettledAmount.LessThan(a.Amount) {
			e.mu.RUnlock()
			return nil, fmt.Errorf("obligation %s settled %s is below allocation %s: %w",
				o.ID, o.SettledAmount, a.Amount, model.ErrAllocationMismatch)
		}
		taken[a.ObligationID] = a.Amount
	}
	e.mu.RUnlock()

	now := e.now().UTC()
	updated := m.Clone()
	updated.Reversed = true
	updated.ReversedAt = &now
	updated.ReversedBy = actor

	e.mu.Lock()
	e.applySettled(taken, true)
	e.matches[m.ID] = updated
	for _, id := range m.BankRecordIDs {
		if e.bankOwner[id] == m.ID {
			delete(e.bankOwner, id)
		}
	}
	e.mu.Unlock()

	entry := e.ledger.NewEntry(m.ID, model.ActionReverse, m.State(), updated.State(), actor)
	if err := e.flush(ctx, updated, entry); err != nil {
		e.mu.Lock()
		e.applySettled(taken, false)
		e.matches[m.ID] = m
		for _, id := range m.BankRecordIDs {
			e.bankOwner[id] = m.ID
		}
		e.mu.Unlock()
		return nil, err
	}
	e.ledger.Append(entry)

	e.logger.Info("match reversed", "match_id", m.ID, "actor", actor)

	return updated.Clone(), nil
}

// snapshot copies the named records under the state lock and validates them.
// Obligations listed in existing belong to the match already and may be fully
// settled; every other obligation needs a positive remaining balance.
func (e *Engine) snapshot(bankIDs, obligationIDs, existing []string) ([]model.BankRecord, []model.Obligation, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	banks := make([]model.BankRecord, 0, len(bankIDs))
	for _, id := range bankIDs {
		r, ok := e.bankRecords[id]
		if !ok {
			return nil, nil, fmt.Errorf("bank record %s: %w", id, model.ErrNotFound)
		}
		if owner, ok := e.bankOwner[id]; ok {
			return nil, nil, fmt.Errorf("bank record %s is in match %s: %w", id, owner, model.ErrRecordAlreadyMatched)
		}
		banks = append(banks, r)
	}

	obligations := make([]model.Obligation, 0, len(obligationIDs))
	for _, id := range obligationIDs {
		o, ok := e.obligations[id]
		if !ok {
			return nil, nil, fmt.Errorf("obligation %s: %w", id, model.ErrNotFound)
		}
		if !contains(existing, id) && !o.Remaining().IsPositive() {
			return nil, nil, fmt.Errorf("obligation %s is fully settled: %w", id, model.ErrRecordAlreadyMatched)
		}
		obligations = append(obligations, *o)
	}

	return banks, obligations, nil
}

// stableMatch returns the live match pointer when its record lists still equal
// the copy the caller locked against.
func (e *Engine) stableMatch(locked *model.Match) (*model.Match, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	m := e.matches[locked.ID]
	if m == nil {
		return nil, false
	}
	return m, equalIDs(m.ObligationIDs, locked.ObligationIDs) && equalIDs(m.BankRecordIDs, locked.BankRecordIDs)
}

// applySettled moves settled amounts by the given deltas. Caller holds e.mu.
func (e *Engine) applySettled(deltas map[string]decimal.Decimal, undo bool) {
	for id, amount := range deltas {
		o := e.obligations[id]
		if undo {
			o.SettledAmount = o.SettledAmount.Sub(amount)
		} else {
			o.SettledAmount = o.SettledAmount.Add(amount)
		}
	}
}

// dropFromOrder removes a match id from the creation order. Caller holds e.mu.
func (e *Engine) dropFromOrder(id string) {
	for i, existing := range e.matchOrder {
		if existing == id {
			e.matchOrder = append(e.matchOrder[:i], e.matchOrder[i+1:]...)
			return
		}
	}
}

func (e *Engine) flush(ctx context.Context, m *model.Match, entry model.HistoryEntry) error {
	if e.store == nil {
		return nil
	}
	if err := e.store.SaveMatch(ctx, m.Clone(), entry); err != nil {
		e.logger.Error("failed to persist match", "match_id", m.ID, "action", entry.Action, "error", err)
		return fmt.Errorf("failed to persist match %s: %w", m.ID, err)
	}
	return nil
}

// buildAllocations merges the extra amounts applied by this mutation into the
// match's existing allocations and checks the whole-match rule: the total never
// exceeds the bank sum, and it equals the bank sum unless every linked
// obligation ends fully settled. It returns the merged allocations and the
// per-obligation deltas to apply.
func buildAllocations(
	bankSum decimal.Decimal,
	existing []model.Allocation,
	linked []model.Obligation,
	requested map[string]decimal.Decimal,
	strategy allocator.Strategy,
) ([]model.Allocation, map[string]decimal.Decimal, error) {
	extra := make(map[string]decimal.Decimal, len(linked))

	if requested != nil {
		for id, amount := range requested {
			if !linkedTo(linked, id) {
				return nil, nil, fmt.Errorf("allocation for obligation %s outside the match: %w", id, model.ErrAllocationMismatch)
			}
			extra[id] = amount
		}
	} else {
		free := bankSum
		for _, a := range existing {
			free = free.Sub(a.Amount)
		}
		if free.IsPositive() {
			slots := make([]allocator.Slot, len(linked))
			for i, o := range linked {
				slots[i] = allocator.Slot{ObligationID: o.ID, Remaining: o.Remaining()}
			}
			result, err := allocator.Allocate(strategy, free, slots)
			if err != nil {
				return nil, nil, fmt.Errorf("failed to allocate %s: %v: %w", free, err, model.ErrInvalidRequest)
			}
			extra = result.AsMap()
		}
	}

	allocations := append([]model.Allocation(nil), existing...)
	index := make(map[string]int, len(allocations))
	for i, a := range allocations {
		index[a.ObligationID] = i
	}

	total := decimal.Zero
	for _, o := range linked {
		amount, ok := extra[o.ID]
		if !ok {
			amount = decimal.Zero
			extra[o.ID] = amount
		}
		if amount.IsNegative() {
			return nil, nil, fmt.Errorf("allocation %s to obligation %s is negative: %w", amount, o.ID, model.ErrAllocationMismatch)
		}
		if amount.GreaterThan(o.Remaining()) {
			return nil, nil, fmt.Errorf("allocation %s to obligation %s exceeds remaining %s: %w",
				amount, o.ID, o.Remaining(), model.ErrAllocationMismatch)
		}

		if i, ok := index[o.ID]; ok {
			allocations[i].Amount = allocations[i].Amount.Add(amount)
		} else {
			index[o.ID] = len(allocations)
			allocations = append(allocations, model.Allocation{
				ObligationID: o.ID,
				Claimed:      o.Remaining(),
				Amount:       amount,
			})
		}
	}
	for _, a := range allocations {
		total = total.Add(a.Amount)
	}

	if total.GreaterThan(bankSum) {
		return nil, nil, fmt.Errorf("allocations total %s exceed bank sum %s: %w", total, bankSum, model.ErrAllocationMismatch)
	}
	if !total.Equal(bankSum) {
		for _, o := range linked {
			if o.Remaining().Sub(extra[o.ID]).IsPositive() {
				return nil, nil, fmt.Errorf("allocations total %s differ from bank sum %s while obligation %s stays open: %w",
					total, bankSum, o.ID, model.ErrAllocationMismatch)
			}
		}
	}

	return allocations, extra, nil
}

func checkDirections(banks []model.BankRecord, obligations []model.Obligation, want model.Direction) error {
	for _, b := range banks {
		if want == "" {
			want = b.Direction
		}
		if b.Direction != want {
			return fmt.Errorf("bank record %s is %s, expected %s: %w", b.ID, b.Direction, want, model.ErrInvalidRequest)
		}
	}
	for _, o := range obligations {
		if want == "" {
			want = o.Direction
		}
		if o.Direction != want {
			return fmt.Errorf("obligation %s is %s, expected %s: %w", o.ID, o.Direction, want, model.ErrInvalidRequest)
		}
	}
	return nil
}

func checkDistinct(bankIDs, obligationIDs []string) error {
	for _, ids := range [][]string{bankIDs, obligationIDs} {
		seen := make(map[string]bool, len(ids))
		for _, id := range ids {
			if id == "" {
				return fmt.Errorf("empty id: %w", model.ErrInvalidRequest)
			}
			if seen[id] {
				return fmt.Errorf("id %s listed twice: %w", id, model.ErrInvalidRequest)
			}
			seen[id] = true
		}
	}
	return nil
}

func sumMagnitudes(banks []model.BankRecord) decimal.Decimal {
	sum := decimal.Zero
	for _, b := range banks {
		sum = sum.Add(b.Magnitude())
	}
	return sum
}

func linkedTo(obligations []model.Obligation, id string) bool {
	for _, o := range obligations {
		if o.ID == id {
			return true
		}
	}
	return false
}

func contains(ids []string, id string) bool {
	for _, existing := range ids {
		if existing == id {
			return true
		}
	}
	return false
}

func equalIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
