// Package reconcile merges pattern-rule matches and inference extractions
// into one ordered, deduplicated entity list with resolved offsets.
package reconcile

import (
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/raaihank/pii-sentry/internal/inference"
	"github.com/raaihank/pii-sentry/internal/pii"
)

// Reconcile resolves offsets, assigns fresh ids, and deduplicates.
//
// Every raw detection with non-empty text is located at its first
// occurrence in originalText; text that cannot be found is kept with 0/0
// offsets and flagged unlocatable so renderers skip highlighting but the
// redaction set stays complete. Duplicate texts across sources collapse
// into one entity carrying the higher sensitivity; the inference backend's
// replacement wins over a pattern-rule default. Output is sorted by
// ascending start, ties broken by descending length so an encompassing
// match renders before fragments nested inside it.
func Reconcile(matches []pii.RawMatch, rawEntities []pii.RawEntity, originalText string) []pii.Entity {
	var entities []pii.Entity
	// Index of first entity seen for a given text, for identity-based dedup.
	byText := make(map[string]int)

	for _, m := range matches {
		if m.Text == "" {
			continue
		}
		if i, seen := byText[m.Text]; seen {
			entities[i].Level = entities[i].Level.Max(m.Level)
			continue
		}
		e := locate(originalText, m.Text)
		e.ID = uuid.NewString()
		e.Type = m.Type
		e.Level = m.Level
		e.Replacement = m.Replacement
		byText[m.Text] = len(entities)
		entities = append(entities, e)
	}

	for _, raw := range rawEntities {
		if raw.Text == "" {
			continue
		}
		typ := inference.NormalizeType(raw.TypeLabel)
		level := inference.NormalizeLevel(raw.Sensitivity)
		if i, seen := byText[raw.Text]; seen {
			entities[i].Level = entities[i].Level.Max(level)
			// The backend's replacement is richer than a rule placeholder.
			if raw.Replacement != "" {
				entities[i].Replacement = raw.Replacement
			}
			continue
		}
		e := locate(originalText, raw.Text)
		e.ID = uuid.NewString()
		e.Type = typ
		e.Level = level
		e.Replacement = raw.Replacement
		if e.Replacement == "" {
			e.Replacement = "[" + string(typ) + "]"
		}
		byText[raw.Text] = len(entities)
		entities = append(entities, e)
	}

	sort.SliceStable(entities, func(i, j int) bool {
		if entities[i].Start != entities[j].Start {
			return entities[i].Start < entities[j].Start
		}
		return len(entities[i].Text) > len(entities[j].Text)
	})

	return entities
}

// locate finds the first occurrence of text in the original document.
func locate(originalText, text string) pii.Entity {
	idx := strings.Index(originalText, text)
	if idx < 0 {
		return pii.Entity{Text: text, Unlocatable: true}
	}
	return pii.Entity{Text: text, Start: idx, End: idx + len(text)}
}
