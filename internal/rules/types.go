package rules

import (
	"fmt"

	"github.com/raaihank/pii-sentry/internal/pii"
)

// Rule is a single configurable detection rule. A rule without a pattern is
// descriptive-only: it documents a category handled entirely by the
// inference backend and never participates in pattern matching.
type Rule struct {
	ID          string    `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Type        pii.Type  `json:"type" db:"type"`
	Enabled     bool      `json:"enabled" db:"enabled"`
	Level       pii.Level `json:"level" db:"level"`
	Description string    `json:"description" db:"description"`
	Pattern     string    `json:"pattern,omitempty" db:"pattern"`
}

// Replacement returns the placeholder used when a hit from this rule is
// redacted, e.g. "[EMAIL]".
func (r Rule) Replacement() string {
	return "[" + string(r.Type) + "]"
}

// ValidationError reports a rule definition the store refuses to accept.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid rule %s: %s", e.Field, e.Reason)
}

// NotFoundError reports a mutation against an unknown rule id.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("rule not found: %s", e.ID)
}
