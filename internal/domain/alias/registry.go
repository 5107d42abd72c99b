// Package alias resolves free-text bank counterparty strings to counterparties.
//
// Resolution order:
//  1. exact alias match (case-insensitive, trimmed)   confidence 1.0
//  2. exact canonical name match                      confidence 1.0
//  3. best fuzzy similarity over all names            confidence = score
//
// Fuzzy results below Config.ResolveFloor are not returned.
//
// Example usage:
//
//	reg := alias.NewRegistry(alias.DefaultConfig())
//	reg.RegisterCounterparty(model.Counterparty{ID: "C1", CanonicalName: "Acme Ltd"})
//	_, err := reg.AddAlias(ctx, "C1", "ACME LIMITED", "alice")
//	cand, ok := reg.Resolve("acme limited ")
package alias

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/eshaffer321/reconcile-backend/internal/domain/model"
)

// Config holds resolution thresholds.
type Config struct {
	ResolveFloor float64 // Default: 0.6
	SuggestFloor float64 // Default: 0.75
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{
		ResolveFloor: 0.6,
		SuggestFloor: 0.75,
	}
}

// MatchKind describes how a candidate was resolved.
type MatchKind string

const (
	KindExactAlias MatchKind = "EXACT_ALIAS"
	KindExactName  MatchKind = "EXACT_NAME"
	KindFuzzy      MatchKind = "FUZZY"
)

// Candidate is the result of resolving a raw counterparty string.
type Candidate struct {
	CounterpartyID string    `json:"counterparty_id"`
	Confidence     float64   `json:"confidence"`
	Kind           MatchKind `json:"match_kind"`
	MatchedText    string    `json:"matched_text"`
}

// Suggestion is a raw text proposed as a new alias.
type Suggestion struct {
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

// Store persists aliases. Implemented by the storage layer.
type Store interface {
	SaveAlias(ctx context.Context, a *model.Alias) error
	// FindAliasesByText returns persisted aliases whose normalized text equals key
	FindAliasesByText(ctx context.Context, key string) ([]model.Alias, error)
}

// Registry maps alias texts and canonical names to counterparties.
// It is the only owner of Alias records.
type Registry struct {
	config Config
	store  Store
	logger *slog.Logger
	now    func() time.Time

	mu             sync.RWMutex
	counterparties map[string]model.Counterparty
	byText         map[string][]*model.Alias // normalized text -> aliases
	byCounterparty map[string][]*model.Alias
}

// Option configures a Registry.
type Option func(*Registry)

// WithStore persists aliases as they are added.
func WithStore(s Store) Option {
	return func(r *Registry) { r.store = s }
}

// WithLogger sets the logger used for alias changes.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// NewRegistry creates an empty registry.
func NewRegistry(config Config, opts ...Option) *Registry {
	r := &Registry{
		config:         config,
		logger:         slog.Default(),
		now:            time.Now,
		counterparties: make(map[string]model.Counterparty),
		byText:         make(map[string][]*model.Alias),
		byCounterparty: make(map[string][]*model.Alias),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RegisterCounterparty adds or replaces a counterparty identity.
func (r *Registry) RegisterCounterparty(c model.Counterparty) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counterparties[c.ID] = c
}

// Counterparty looks up a registered counterparty.
func (r *Registry) Counterparty(id string) (model.Counterparty, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.counterparties[id]
	return c, ok
}

// Counterparties returns all registered counterparties sorted by id.
func (r *Registry) Counterparties() []model.Counterparty {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sortedCounterparties()
}

// Load restores persisted aliases without conflict checks.
// Historical data may contain conflicts; DetectConflicts reports them.
func (r *Registry) Load(aliases []model.Alias) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range aliases {
		a := aliases[i]
		r.insert(&a)
	}
}

// AddAlias maps text to a counterparty. Re-adding the same pair returns the
// existing alias. Text already mapped to another counterparty fails with
// model.ErrAliasConflict and leaves the registry unchanged.
func (r *Registry) AddAlias(ctx context.Context, counterpartyID, text, actor string) (*model.Alias, error) {
	key := model.NormalizeName(text)
	if key == "" {
		return nil, fmt.Errorf("alias text is blank: %w", model.ErrInvalidRequest)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.counterparties[counterpartyID]; !ok {
		return nil, fmt.Errorf("counterparty %s: %w", counterpartyID, model.ErrNotFound)
	}

	for _, existing := range r.byText[key] {
		if existing.CounterpartyID == counterpartyID {
			c := *existing
			return &c, nil
		}
	}
	if owners := r.byText[key]; len(owners) > 0 {
		return nil, fmt.Errorf("alias %q belongs to counterparty %s: %w",
			strings.TrimSpace(text), owners[0].CounterpartyID, model.ErrAliasConflict)
	}

	// Another process sharing the store may have claimed the text since Load.
	if r.store != nil {
		persisted, err := r.store.FindAliasesByText(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("failed to look up alias: %w", err)
		}
		for _, p := range persisted {
			if p.CounterpartyID != counterpartyID {
				return nil, fmt.Errorf("alias %q belongs to counterparty %s: %w",
					strings.TrimSpace(text), p.CounterpartyID, model.ErrAliasConflict)
			}
		}
		if len(persisted) > 0 {
			a := persisted[0]
			r.insert(&a)
			c := a
			return &c, nil
		}
	}

	a := &model.Alias{
		ID:             uuid.NewString(),
		CounterpartyID: counterpartyID,
		Text:           strings.TrimSpace(text),
		CreatedBy:      actor,
		CreatedAt:      r.now().UTC(),
	}

	if r.store != nil {
		if err := r.store.SaveAlias(ctx, a); err != nil {
			return nil, fmt.Errorf("failed to save alias: %w", err)
		}
	}

	r.insert(a)
	r.logger.Info("alias added",
		"counterparty_id", counterpartyID,
		"alias", a.Text,
		"actor", actor)

	c := *a
	return &c, nil
}

// Aliases returns the aliases of one counterparty, oldest first.
func (r *Registry) Aliases(counterpartyID string) []model.Alias {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := r.byCounterparty[counterpartyID]
	out := make([]model.Alias, 0, len(list))
	for _, a := range list {
		out = append(out, *a)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Text < out[j].Text
	})
	return out
}

// AllAliases returns every alias sorted by counterparty then text.
func (r *Registry) AllAliases() []model.Alias {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []model.Alias
	for _, list := range r.byText {
		for _, a := range list {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CounterpartyID != out[j].CounterpartyID {
			return out[i].CounterpartyID < out[j].CounterpartyID
		}
		return out[i].Text < out[j].Text
	})
	return out
}

// Resolve maps a raw bank string to the most likely counterparty.
// It returns false when nothing scores at or above the resolve floor.
func (r *Registry) Resolve(raw string) (*Candidate, bool) {
	key := model.NormalizeName(raw)
	if key == "" {
		return nil, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if owners := r.byText[key]; len(owners) > 0 {
		best := owners[0]
		for _, a := range owners[1:] {
			if a.CounterpartyID < best.CounterpartyID {
				best = a
			}
		}
		return &Candidate{
			CounterpartyID: best.CounterpartyID,
			Confidence:     1.0,
			Kind:           KindExactAlias,
			MatchedText:    best.Text,
		}, true
	}

	counterparties := r.sortedCounterparties()
	for _, c := range counterparties {
		if model.NormalizeName(c.CanonicalName) == key {
			return &Candidate{
				CounterpartyID: c.ID,
				Confidence:     1.0,
				Kind:           KindExactName,
				MatchedText:    c.CanonicalName,
			}, true
		}
	}

	var best *Candidate
	for _, c := range counterparties {
		score, text := r.bestScore(c, raw)
		if best == nil || score > best.Confidence {
			best = &Candidate{
				CounterpartyID: c.ID,
				Confidence:     score,
				Kind:           KindFuzzy,
				MatchedText:    text,
			}
		}
	}

	if best == nil || best.Confidence < r.config.ResolveFloor {
		return nil, false
	}
	return best, true
}

// DetectConflicts lists alias texts mapped to more than one counterparty.
func (r *Registry) DetectConflicts() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var conflicts []string
	for key, list := range r.byText {
		owners := make(map[string]bool)
		for _, a := range list {
			owners[a.CounterpartyID] = true
		}
		if len(owners) > 1 {
			conflicts = append(conflicts, key)
		}
	}
	sort.Strings(conflicts)
	return conflicts
}

// SuggestAliases ranks unmatched raw texts that look like the counterparty's
// names closely enough to be offered as new aliases for human confirmation.
// Texts that already resolve exactly, or belong to another counterparty, are skipped.
func (r *Registry) SuggestAliases(texts []string, counterpartyID string) ([]Suggestion, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.counterparties[counterpartyID]
	if !ok {
		return nil, fmt.Errorf("counterparty %s: %w", counterpartyID, model.ErrNotFound)
	}

	seen := make(map[string]bool)
	var out []Suggestion
	for _, text := range texts {
		key := model.NormalizeName(text)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true

		if len(r.byText[key]) > 0 {
			continue
		}

		score, _ := r.bestScore(c, text)
		if score >= r.config.SuggestFloor && score < 1.0 {
			out = append(out, Suggestion{Text: strings.TrimSpace(text), Score: score})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Text < out[j].Text
	})
	return out, nil
}

// bestScore returns the highest similarity of raw against the counterparty's
// canonical name and aliases. Caller holds the read lock.
func (r *Registry) bestScore(c model.Counterparty, raw string) (float64, string) {
	best := Similarity(raw, c.CanonicalName)
	text := c.CanonicalName
	for _, a := range r.byCounterparty[c.ID] {
		if s := Similarity(raw, a.Text); s > best {
			best = s
			text = a.Text
		}
	}
	return best, text
}

func (r *Registry) insert(a *model.Alias) {
	key := model.NormalizeName(a.Text)
	r.byText[key] = append(r.byText[key], a)
	r.byCounterparty[a.CounterpartyID] = append(r.byCounterparty[a.CounterpartyID], a)
}

func (r *Registry) sortedCounterparties() []model.Counterparty {
	out := make([]model.Counterparty, 0, len(r.counterparties))
	for _, c := range r.counterparties {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
