// Package redact turns a reconciled entity list into sanitized output. The
// caller owns the active set: toggling an entity only changes set
// membership, never the entity list, so re-rendering is cheap enough for
// interactive use.
package redact

import (
	"regexp"
	"sort"
	"strings"

	"github.com/raaihank/pii-sentry/internal/pii"
)

// Segment is one piece of the highlighted view: either plain text or an
// entity occurrence tagged with its id and current redaction state.
type Segment struct {
	Text     string `json:"text"`
	EntityID string `json:"entityId,omitempty"`
	Active   bool   `json:"active,omitempty"`
}

// Redactor renders sanitized text for a scan. The original text and entity
// list are fixed for the scan's lifetime; only the active set varies.
type Redactor struct {
	original string
	entities []pii.Entity
}

// New creates a redactor over the scan's original text and entities.
func New(original string, entities []pii.Entity) *Redactor {
	return &Redactor{original: original, entities: entities}
}

// ActiveAll returns an active set containing every entity id.
func (r *Redactor) ActiveAll() map[string]bool {
	active := make(map[string]bool, len(r.entities))
	for _, e := range r.entities {
		active[e.ID] = true
	}
	return active
}

// Render replaces every literal occurrence of each active entity's text
// with its replacement. Entities are applied longest-text-first so a short
// entity cannot mangle a longer match it is a substring of (redacting "555"
// before "555-1234" would corrupt the phone number). This is a heuristic,
// not a collision-free algorithm; overlapping different-text spans can
// still interact.
func (r *Redactor) Render(active map[string]bool) string {
	selected := make([]pii.Entity, 0, len(active))
	for _, e := range r.entities {
		if active[e.ID] && e.Text != "" {
			selected = append(selected, e)
		}
	}

	sort.SliceStable(selected, func(i, j int) bool {
		return len(selected[i].Text) > len(selected[j].Text)
	})

	out := r.original
	for _, e := range selected {
		out = strings.ReplaceAll(out, e.Text, e.Replacement)
	}
	return out
}

// Segments splits the original text at every locatable entity occurrence
// using one combined alternation over all entity texts. Matched segments
// carry the entity id and its active state; unlocatable entities are
// excluded from highlighting but still redact through Render.
func (r *Redactor) Segments(active map[string]bool) []Segment {
	texts := make([]string, 0, len(r.entities))
	byText := make(map[string]pii.Entity)
	for _, e := range r.entities {
		if e.Unlocatable || e.Text == "" {
			continue
		}
		if _, seen := byText[e.Text]; seen {
			continue
		}
		byText[e.Text] = e
		texts = append(texts, e.Text)
	}

	if len(texts) == 0 {
		if r.original == "" {
			return nil
		}
		return []Segment{{Text: r.original}}
	}

	// Longer alternatives first so nested texts match their encompassing
	// span deterministically.
	sort.SliceStable(texts, func(i, j int) bool {
		return len(texts[i]) > len(texts[j])
	})
	quoted := make([]string, len(texts))
	for i, t := range texts {
		quoted[i] = regexp.QuoteMeta(t)
	}
	re := regexp.MustCompile(strings.Join(quoted, "|"))

	var segments []Segment
	last := 0
	for _, loc := range re.FindAllStringIndex(r.original, -1) {
		if loc[0] > last {
			segments = append(segments, Segment{Text: r.original[last:loc[0]]})
		}
		matched := r.original[loc[0]:loc[1]]
		e := byText[matched]
		segments = append(segments, Segment{
			Text:     matched,
			EntityID: e.ID,
			Active:   active[e.ID],
		})
		last = loc[1]
	}
	if last < len(r.original) {
		segments = append(segments, Segment{Text: r.original[last:]})
	}

	return segments
}
