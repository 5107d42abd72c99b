// Package model holds the records shared by the reconciliation components.
//
// Bank records and obligations come from external collaborators (the bank
// import and the order/invoice store). Matches, aliases and history entries
// are owned by the engine packages that create them.
package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Direction tells whether money flows in (credit) or out (debit).
type Direction string

const (
	DirectionCredit Direction = "credit"
	DirectionDebit  Direction = "debit"
)

// Valid reports whether d is a known direction.
func (d Direction) Valid() bool {
	return d == DirectionCredit || d == DirectionDebit
}

// BankRecord is one bank-statement line. It is never modified by the engine.
type BankRecord struct {
	ID              string          `json:"id"`
	Amount          decimal.Decimal `json:"amount"` // signed
	Date            time.Time       `json:"date"`
	RawCounterparty string          `json:"raw_counterparty"`
	Direction       Direction       `json:"direction"`
}

// Magnitude returns the unsigned amount available for allocation.
func (b BankRecord) Magnitude() decimal.Decimal {
	return b.Amount.Abs()
}

// Obligation is a receivable or payable the business expects to settle.
// SettledAmount is written only by the match engine.
type Obligation struct {
	ID             string          `json:"id"`
	CounterpartyID string          `json:"counterparty_id"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	SettledAmount  decimal.Decimal `json:"settled_amount"`
	Direction      Direction       `json:"direction"`
	DueDate        *time.Time      `json:"due_date,omitempty"`
}

// Remaining returns the unsettled part of the obligation.
func (o Obligation) Remaining() decimal.Decimal {
	return o.TotalAmount.Sub(o.SettledAmount)
}

// Counterparty is a customer or supplier identity.
type Counterparty struct {
	ID            string `json:"id"`
	CanonicalName string `json:"canonical_name"`
}

// Alias is an alternate spelling of a counterparty's name.
type Alias struct {
	ID             string    `json:"id"`
	CounterpartyID string    `json:"counterparty_id"`
	Text           string    `json:"text"`
	CreatedBy      string    `json:"created_by"`
	CreatedAt      time.Time `json:"created_at"`
}

// NormalizeName lower-cases and trims a counterparty string for exact comparison.
func NormalizeName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
