package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/eshaffer321/reconcile-backend/internal/domain/model"
)

// matchRow is the column layout of the matches table
type matchRow struct {
	ID              string
	BankRecordIDs   string // JSON array
	ObligationIDs   string // JSON array
	AllocationsJSON string
	BankSum         decimal.Decimal
	ObligationSum   decimal.Decimal
	Balance         decimal.Decimal
	CreatedAt       time.Time
	CreatedBy       string
	Reversed        bool
	ReversedAt      sql.NullTime
	ReversedBy      string
}

func newMatchRow(m *model.Match) (*matchRow, error) {
	bankIDs, err := json.Marshal(m.BankRecordIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to encode bank record ids: %w", err)
	}
	obligationIDs, err := json.Marshal(m.ObligationIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to encode obligation ids: %w", err)
	}
	allocations, err := json.Marshal(m.Allocations)
	if err != nil {
		return nil, fmt.Errorf("failed to encode allocations: %w", err)
	}

	row := &matchRow{
		ID:              m.ID,
		BankRecordIDs:   string(bankIDs),
		ObligationIDs:   string(obligationIDs),
		AllocationsJSON: string(allocations),
		BankSum:         m.BankSum,
		ObligationSum:   m.ObligationSum,
		Balance:         m.Balance,
		CreatedAt:       m.CreatedAt.UTC(),
		CreatedBy:       m.CreatedBy,
		Reversed:        m.Reversed,
		ReversedBy:      m.ReversedBy,
	}
	if m.ReversedAt != nil {
		row.ReversedAt = sql.NullTime{Time: m.ReversedAt.UTC(), Valid: true}
	}
	return row, nil
}

func (r *matchRow) toMatch() (*model.Match, error) {
	m := &model.Match{
		ID:            r.ID,
		BankSum:       r.BankSum,
		ObligationSum: r.ObligationSum,
		Balance:       r.Balance,
		CreatedAt:     r.CreatedAt.UTC(),
		CreatedBy:     r.CreatedBy,
		Reversed:      r.Reversed,
		ReversedBy:    r.ReversedBy,
	}
	if err := json.Unmarshal([]byte(r.BankRecordIDs), &m.BankRecordIDs); err != nil {
		return nil, fmt.Errorf("failed to decode bank record ids for match %s: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(r.ObligationIDs), &m.ObligationIDs); err != nil {
		return nil, fmt.Errorf("failed to decode obligation ids for match %s: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(r.AllocationsJSON), &m.Allocations); err != nil {
		return nil, fmt.Errorf("failed to decode allocations for match %s: %w", r.ID, err)
	}
	if r.ReversedAt.Valid {
		t := r.ReversedAt.Time.UTC()
		m.ReversedAt = &t
	}
	return m, nil
}

// encodeState stores a snapshot as JSON, with NULL for a missing snapshot
func encodeState(state *model.MatchState) (sql.NullString, error) {
	if state == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(state)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to encode match state: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func decodeState(raw sql.NullString) (*model.MatchState, error) {
	if !raw.Valid || raw.String == "" {
		return nil, nil
	}
	var state model.MatchState
	if err := json.Unmarshal([]byte(raw.String), &state); err != nil {
		return nil, fmt.Errorf("failed to decode match state: %w", err)
	}
	return &state, nil
}
