package service

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/eshaffer321/reconcile-backend/internal/domain/model"
)

// Feed is one delivery from the bank import and the obligation store.
type Feed struct {
	Counterparties []model.Counterparty `json:"counterparties"`
	BankRecords    []model.BankRecord   `json:"bank_records"`
	Obligations    []model.Obligation   `json:"obligations"`
}

// ReadFeed decodes a JSON feed and checks it for structural problems.
func ReadFeed(r io.Reader) (*Feed, error) {
	var feed Feed
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&feed); err != nil {
		return nil, fmt.Errorf("failed to decode feed: %w", err)
	}
	if err := feed.Validate(); err != nil {
		return nil, err
	}
	return &feed, nil
}

// ReadFeedFile reads a JSON feed from disk.
func ReadFeedFile(path string) (*Feed, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open feed %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	return ReadFeed(f)
}

// Validate checks ids, directions and amounts.
func (f *Feed) Validate() error {
	seen := make(map[string]bool)
	for _, c := range f.Counterparties {
		if c.ID == "" {
			return fmt.Errorf("counterparty without id: %w", model.ErrInvalidRequest)
		}
		if seen["c:"+c.ID] {
			return fmt.Errorf("duplicate counterparty %s: %w", c.ID, model.ErrInvalidRequest)
		}
		seen["c:"+c.ID] = true
	}

	for _, b := range f.BankRecords {
		if b.ID == "" {
			return fmt.Errorf("bank record without id: %w", model.ErrInvalidRequest)
		}
		if seen["b:"+b.ID] {
			return fmt.Errorf("duplicate bank record %s: %w", b.ID, model.ErrInvalidRequest)
		}
		seen["b:"+b.ID] = true
		if !b.Direction.Valid() {
			return fmt.Errorf("bank record %s has direction %q: %w", b.ID, b.Direction, model.ErrInvalidRequest)
		}
	}

	for _, o := range f.Obligations {
		if o.ID == "" {
			return fmt.Errorf("obligation without id: %w", model.ErrInvalidRequest)
		}
		if seen["o:"+o.ID] {
			return fmt.Errorf("duplicate obligation %s: %w", o.ID, model.ErrInvalidRequest)
		}
		seen["o:"+o.ID] = true
		if !o.Direction.Valid() {
			return fmt.Errorf("obligation %s has direction %q: %w", o.ID, o.Direction, model.ErrInvalidRequest)
		}
		if !o.TotalAmount.IsPositive() {
			return fmt.Errorf("obligation %s has total %s: %w", o.ID, o.TotalAmount, model.ErrInvalidRequest)
		}
	}
	return nil
}
