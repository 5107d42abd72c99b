package dto

import (
	"time"

	"github.com/eshaffer321/reconcile-backend/internal/domain/alias"
	"github.com/eshaffer321/reconcile-backend/internal/domain/model"
)

// HealthResponse is returned by the health check endpoint.
type HealthResponse struct {
	Status        string `json:"status"`
	Timestamp     string `json:"timestamp"`
	Persistent    bool   `json:"persistent"`
	SchemaVersion int64  `json:"schema_version,omitempty"`
	BankRecords   int    `json:"bank_records"`
	Obligations   int    `json:"obligations"`
	LiveMatches   int    `json:"live_matches"`
	Error         string `json:"error,omitempty"`
}

// NewHealthResponse creates a response with the given status and current timestamp.
func NewHealthResponse(status string) HealthResponse {
	return HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// ResolveResponse is returned by GET /api/resolve.
type ResolveResponse struct {
	Raw       string           `json:"raw"`
	Resolved  bool             `json:"resolved"`
	Candidate *alias.Candidate `json:"candidate,omitempty"`
}

// AliasListResponse wraps a list of aliases.
type AliasListResponse struct {
	Aliases []model.Alias `json:"aliases"`
}

// SuggestionListResponse wraps alias suggestions for one counterparty.
type SuggestionListResponse struct {
	CounterpartyID string             `json:"counterparty_id"`
	Suggestions    []alias.Suggestion `json:"suggestions"`
}

// MatchListResponse represents a paginated list of matches.
type MatchListResponse struct {
	Matches    []*model.Match `json:"matches"`
	TotalCount int            `json:"total_count"`
	Limit      int            `json:"limit"`
	Offset     int            `json:"offset"`
}

// HistoryResponse wraps history entries.
type HistoryResponse struct {
	Entries []model.HistoryEntry `json:"entries"`
}

// FeedLoadedResponse summarises a loaded feed.
type FeedLoadedResponse struct {
	Counterparties int `json:"counterparties"`
	BankRecords    int `json:"bank_records"`
	Obligations    int `json:"obligations"`
}

// InvariantsResponse lists engine consistency violations.
type InvariantsResponse struct {
	OK         bool     `json:"ok"`
	Violations []string `json:"violations"`
}

// StartJobResponse is returned when an auto-match job is started.
type StartJobResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}
