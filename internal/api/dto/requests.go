package dto

import "github.com/shopspring/decimal"

// AddAliasRequest is the body of POST /api/aliases.
type AddAliasRequest struct {
	CounterpartyID string `json:"counterparty_id"`
	Text           string `json:"text"`
	Actor          string `json:"actor"`
}

// SuggestAliasesRequest is the body of POST /api/aliases/suggestions.
// Without texts the raw counterparties of unmatched bank records are used.
type SuggestAliasesRequest struct {
	CounterpartyID string   `json:"counterparty_id"`
	Texts          []string `json:"texts,omitempty"`
}

// CommitMatchRequest is the body of POST /api/matches.
type CommitMatchRequest struct {
	BankRecordIDs []string                   `json:"bank_record_ids"`
	ObligationIDs []string                   `json:"obligation_ids"`
	Allocations   map[string]decimal.Decimal `json:"allocations,omitempty"`
	Strategy      string                     `json:"strategy,omitempty"`
	Actor         string                     `json:"actor"`
}

// ExtendMatchRequest is the body of POST /api/matches/{id}/extend.
type ExtendMatchRequest struct {
	BankRecordIDs []string                   `json:"bank_record_ids,omitempty"`
	ObligationIDs []string                   `json:"obligation_ids,omitempty"`
	Allocations   map[string]decimal.Decimal `json:"allocations,omitempty"`
	Strategy      string                     `json:"strategy,omitempty"`
	Actor         string                     `json:"actor"`
}

// ReverseMatchRequest is the body of POST /api/matches/{id}/reverse.
type ReverseMatchRequest struct {
	Actor string `json:"actor"`
}

// MatchListParams represents query parameters for listing matches.
type MatchListParams struct {
	IncludeReversed bool `json:"include_reversed"`
	OpenOnly        bool `json:"open_only"`
	Limit           int  `json:"limit"`
	Offset          int  `json:"offset"`
}

// DefaultMatchListParams returns default values for match list params.
func DefaultMatchListParams() MatchListParams {
	return MatchListParams{
		Limit:  50,
		Offset: 0,
	}
}
