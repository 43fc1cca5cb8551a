// Package rules holds the configurable detection rule set: built-in
// defaults plus user-defined custom rules, with validated CRUD operations
// and consistent snapshots for in-flight scans.
package rules

import (
	"regexp"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Store is the process-wide rule set. Reads are concurrent; mutations are
// applied atomically with respect to any Snapshot taken by a running scan.
type Store struct {
	mu     sync.RWMutex
	rules  []Rule
	logger *zap.Logger
}

// NewStore creates a store seeded with the built-in default rules.
func NewStore(logger *zap.Logger) *Store {
	s := &Store{
		rules:  DefaultRules(),
		logger: logger,
	}
	logger.Info("Rule store initialized", zap.Int("rules", len(s.rules)))
	return s
}

// validate enforces the creation-time invariants: non-empty name and a
// pattern that compiles. Validation here means the matcher never has to
// deal with a bad pattern under normal operation.
func validate(r Rule) error {
	if strings.TrimSpace(r.Name) == "" {
		return &ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if r.Pattern != "" {
		if _, err := regexp.Compile(r.Pattern); err != nil {
			return &ValidationError{Field: "pattern", Reason: err.Error()}
		}
	}
	return nil
}

// List returns the rules in insertion order. The returned slice is a copy.
func (s *Store) List() []Rule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Rule, len(s.rules))
	copy(out, s.rules)
	return out
}

// Snapshot is List under a name that states its purpose: a scan takes one
// consistent copy of the rule set at start and never sees later mutations.
func (s *Store) Snapshot() []Rule {
	return s.List()
}

// Get returns the rule with the given id.
func (s *Store) Get(id string) (Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.rules {
		if r.ID == id {
			return r, nil
		}
	}
	return Rule{}, &NotFoundError{ID: id}
}

// Add validates and appends a rule. A missing id is filled in with a fresh
// uuid so callers may omit it.
func (s *Store) Add(r Rule) (Rule, error) {
	if err := validate(r); err != nil {
		return Rule{}, err
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.rules {
		if existing.ID == r.ID {
			return Rule{}, &ValidationError{Field: "id", Reason: "already exists: " + r.ID}
		}
	}
	s.rules = append(s.rules, r)
	s.logger.Info("Rule added", zap.String("rule_id", r.ID), zap.String("name", r.Name))
	return r, nil
}

// Update validates and replaces the rule with the same id in place,
// preserving insertion order.
func (s *Store) Update(r Rule) error {
	if err := validate(r); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.rules {
		if existing.ID == r.ID {
			s.rules[i] = r
			s.logger.Info("Rule updated", zap.String("rule_id", r.ID))
			return nil
		}
	}
	return &NotFoundError{ID: r.ID}
}

// Toggle flips the enabled flag of the rule with the given id.
func (s *Store) Toggle(id string) (Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.rules {
		if existing.ID == id {
			s.rules[i].Enabled = !existing.Enabled
			s.logger.Info("Rule toggled",
				zap.String("rule_id", id),
				zap.Bool("enabled", s.rules[i].Enabled),
			)
			return s.rules[i], nil
		}
	}
	return Rule{}, &NotFoundError{ID: id}
}

// Remove deletes the rule with the given id.
func (s *Store) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.rules {
		if existing.ID == id {
			s.rules = append(s.rules[:i], s.rules[i+1:]...)
			s.logger.Info("Rule removed", zap.String("rule_id", id))
			return nil
		}
	}
	return &NotFoundError{ID: id}
}

// Replace swaps the entire rule set, used when loading persisted rules at
// startup. Every rule is validated before any is applied.
func (s *Store) Replace(rs []Rule) error {
	for _, r := range rs {
		if err := validate(r); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = make([]Rule, len(rs))
	copy(s.rules, rs)
	return nil
}
