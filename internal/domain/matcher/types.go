package matcher

import (
	"github.com/eshaffer321/reconcile-backend/internal/domain/model"
)

// Config holds matcher configuration
type Config struct {
	AmountWeight float64 // Default: 0.6
	DateWeight   float64 // Default: 0.3
	AliasWeight  float64 // Default: 0.1

	AutoCommitThreshold float64 // A 1:1 score must exceed this to auto-commit (default: 0.95)
	DateWindowDays      int     // Date proximity decays to 0 over this many days (default: 30)
	MaxSubsetCandidates int     // Obligations considered in the exact-sum search (default: 12)
	MaxQueuedCandidates int     // Candidates kept for manual review (default: 5)
	SubsetFloor         float64 // Minimum subset score for a 1:many auto-commit (default: 0, any in-window exact sum)

	Actor string // Recorded as the creator of auto-committed matches
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		AmountWeight:        0.6,
		DateWeight:          0.3,
		AliasWeight:         0.1,
		AutoCommitThreshold: 0.95,
		DateWindowDays:      30,
		MaxSubsetCandidates: 12,
		MaxQueuedCandidates: 5,
		SubsetFloor:         0,
		Actor:               "auto-matcher",
	}
}

// Candidate is one obligation scored against a bank record.
type Candidate struct {
	Obligation model.Obligation `json:"obligation"`
	Score      float64          `json:"score"`
}

// QueuedRecord is a bank record left for manual resolution with its best candidates.
type QueuedRecord struct {
	BankRecord     model.BankRecord `json:"bank_record"`
	CounterpartyID string           `json:"counterparty_id"`
	Candidates     []Candidate      `json:"candidates"`
}

// Report partitions a bank feed after an auto-match run.
type Report struct {
	Matched        []*model.Match     `json:"matched"`
	Queued         []QueuedRecord     `json:"queued"`
	Unmatched      []model.BankRecord `json:"unmatched"`
	AlreadyMatched []model.BankRecord `json:"already_matched"`
	// Partial is set when the run was cancelled before every record was examined.
	Partial bool `json:"partial"`
}
