// Package match applies enabled rule patterns against raw text and reports
// every non-overlapping hit per rule. Overlaps between different rules are
// left for the reconciler.
package match

import (
	"fmt"
	"regexp"

	"go.uber.org/zap"

	"github.com/raaihank/pii-sentry/internal/pii"
	"github.com/raaihank/pii-sentry/internal/rules"
)

// PatternError reports a rule whose pattern failed to compile at match
// time. The store validates patterns on mutation, so seeing one of these
// means the rule set was corrupted out of band; the rule is skipped and the
// scan continues.
type PatternError struct {
	RuleID string
	Err    error
}

func (e *PatternError) Error() string {
	return fmt.Sprintf("pattern failed for rule %s: %v", e.RuleID, e.Err)
}

func (e *PatternError) Unwrap() error { return e.Err }

// Matcher runs rule patterns against scan text.
type Matcher struct {
	logger *zap.Logger
}

// New creates a matcher.
func New(logger *zap.Logger) *Matcher {
	return &Matcher{logger: logger}
}

// Match finds all hits for every enabled rule with a non-empty pattern.
// Each rule contributes its leftmost-first non-overlapping matches; matches
// from different rules may overlap. Pattern failures are returned alongside
// the matches and never abort the scan.
func (m *Matcher) Match(text string, ruleSet []rules.Rule) ([]pii.RawMatch, []*PatternError) {
	var (
		matches []pii.RawMatch
		errs    []*PatternError
	)

	for _, rule := range ruleSet {
		if !rule.Enabled || rule.Pattern == "" {
			continue
		}

		re, err := regexp.Compile(rule.Pattern)
		if err != nil {
			perr := &PatternError{RuleID: rule.ID, Err: err}
			errs = append(errs, perr)
			m.logger.Warn("Skipping rule with invalid pattern",
				zap.String("rule_id", rule.ID),
				zap.Error(err),
			)
			continue
		}

		for _, loc := range re.FindAllStringIndex(text, -1) {
			matches = append(matches, pii.RawMatch{
				Text:        text[loc[0]:loc[1]],
				Type:        rule.Type,
				Level:       rule.Level,
				Start:       loc[0],
				End:         loc[1],
				Replacement: rule.Replacement(),
			})
		}
	}

	return matches, errs
}
