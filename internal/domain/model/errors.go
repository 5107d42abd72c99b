package model

import "errors"

// Sentinel errors returned by the reconciliation components. Callers wrap them
// with context using fmt.Errorf("...: %w") and test them with errors.Is.
var (
	// ErrAliasConflict means an alias text already belongs to another counterparty.
	ErrAliasConflict = errors.New("alias conflict")

	// ErrAllocationMismatch means caller-supplied allocations do not balance.
	ErrAllocationMismatch = errors.New("allocation mismatch")

	// ErrAlreadyReversed means a match was reversed before.
	ErrAlreadyReversed = errors.New("match already reversed")

	// ErrRecordAlreadyMatched means a bank record or obligation is consumed by a live match.
	ErrRecordAlreadyMatched = errors.New("record already matched")

	// ErrNotFound means a referenced id is unknown.
	ErrNotFound = errors.New("not found")

	// ErrInvalidRequest means the request is structurally invalid.
	ErrInvalidRequest = errors.New("invalid request")
)
