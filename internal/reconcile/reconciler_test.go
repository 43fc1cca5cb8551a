package reconcile

import (
	"testing"

	"github.com/raaihank/pii-sentry/internal/pii"
)

// TestReconcileOffsets tests first-occurrence location and ordering
func TestReconcileOffsets(t *testing.T) {
	text := "Email a@b.io appears, then a@b.io again, and 10.0.0.1"

	t.Run("FirstOccurrence", func(t *testing.T) {
		matches := []pii.RawMatch{
			{Text: "a@b.io", Type: pii.TypeEmail, Level: pii.LevelMedium, Replacement: "[EMAIL]"},
		}
		entities := Reconcile(matches, nil, text)
		if len(entities) != 1 {
			t.Fatalf("Expected 1 entity, got %d", len(entities))
		}
		if entities[0].Start != 6 || entities[0].End != 12 {
			t.Errorf("Expected offsets 6:12, got %d:%d", entities[0].Start, entities[0].End)
		}
		if text[entities[0].Start:entities[0].End] != "a@b.io" {
			t.Error("Offsets do not cover the entity text")
		}
	})

	t.Run("SortedByStart", func(t *testing.T) {
		matches := []pii.RawMatch{
			{Text: "10.0.0.1", Type: pii.TypeIPAddress, Level: pii.LevelLow, Replacement: "[IP_ADDRESS]"},
			{Text: "a@b.io", Type: pii.TypeEmail, Level: pii.LevelMedium, Replacement: "[EMAIL]"},
		}
		entities := Reconcile(matches, nil, text)
		if len(entities) != 2 {
			t.Fatalf("Expected 2 entities, got %d", len(entities))
		}
		if entities[0].Type != pii.TypeEmail || entities[1].Type != pii.TypeIPAddress {
			t.Errorf("Entities not sorted by start offset: %+v", entities)
		}
	})

	t.Run("LongerFirstOnTie", func(t *testing.T) {
		doc := "555-123-4567"
		matches := []pii.RawMatch{
			{Text: "555", Type: pii.TypeCustom, Level: pii.LevelLow, Replacement: "[CUSTOM]"},
			{Text: "555-123-4567", Type: pii.TypePhone, Level: pii.LevelMedium, Replacement: "[PHONE]"},
		}
		entities := Reconcile(matches, nil, doc)
		if len(entities) != 2 {
			t.Fatalf("Expected 2 entities, got %d", len(entities))
		}
		if entities[0].Text != "555-123-4567" {
			t.Errorf("Longer entity should sort first on equal start, got %q", entities[0].Text)
		}
	})

	t.Run("UniqueIDs", func(t *testing.T) {
		matches := []pii.RawMatch{
			{Text: "a@b.io", Type: pii.TypeEmail, Level: pii.LevelMedium},
			{Text: "10.0.0.1", Type: pii.TypeIPAddress, Level: pii.LevelLow},
		}
		entities := Reconcile(matches, nil, text)
		if entities[0].ID == "" || entities[1].ID == "" {
			t.Error("Every entity should be assigned an id")
		}
		if entities[0].ID == entities[1].ID {
			t.Error("Entity ids should be unique")
		}
	})
}

// TestReconcileDedup tests identity-based merging across sources
func TestReconcileDedup(t *testing.T) {
	text := "Reach a@b.io today"

	t.Run("HigherLevelWins", func(t *testing.T) {
		matches := []pii.RawMatch{
			{Text: "a@b.io", Type: pii.TypeEmail, Level: pii.LevelMedium, Replacement: "[EMAIL]"},
		}
		raw := []pii.RawEntity{
			{Text: "a@b.io", TypeLabel: "EMAIL", Sensitivity: "HIGH"},
		}
		entities := Reconcile(matches, raw, text)
		if len(entities) != 1 {
			t.Fatalf("Expected duplicate texts to collapse, got %d entities", len(entities))
		}
		if entities[0].Level != pii.LevelHigh {
			t.Errorf("Expected merged level HIGH, got %s", entities[0].Level)
		}
	})

	t.Run("LowerLevelDoesNotDowngrade", func(t *testing.T) {
		matches := []pii.RawMatch{
			{Text: "a@b.io", Type: pii.TypeEmail, Level: pii.LevelHigh, Replacement: "[EMAIL]"},
		}
		raw := []pii.RawEntity{
			{Text: "a@b.io", TypeLabel: "EMAIL", Sensitivity: "LOW"},
		}
		entities := Reconcile(matches, raw, text)
		if entities[0].Level != pii.LevelHigh {
			t.Errorf("Existing higher level should be kept, got %s", entities[0].Level)
		}
	})

	t.Run("BackendReplacementWins", func(t *testing.T) {
		matches := []pii.RawMatch{
			{Text: "a@b.io", Type: pii.TypeEmail, Level: pii.LevelMedium, Replacement: "[EMAIL]"},
		}
		raw := []pii.RawEntity{
			{Text: "a@b.io", TypeLabel: "EMAIL", Sensitivity: "MEDIUM", Replacement: "[WORK_EMAIL]"},
		}
		entities := Reconcile(matches, raw, text)
		if entities[0].Replacement != "[WORK_EMAIL]" {
			t.Errorf("Backend replacement should override the rule default, got %q", entities[0].Replacement)
		}
	})

	t.Run("EmptyBackendReplacementIgnored", func(t *testing.T) {
		matches := []pii.RawMatch{
			{Text: "a@b.io", Type: pii.TypeEmail, Level: pii.LevelMedium, Replacement: "[EMAIL]"},
		}
		raw := []pii.RawEntity{
			{Text: "a@b.io", TypeLabel: "EMAIL", Sensitivity: "MEDIUM"},
		}
		entities := Reconcile(matches, raw, text)
		if entities[0].Replacement != "[EMAIL]" {
			t.Errorf("Rule replacement should survive an empty backend one, got %q", entities[0].Replacement)
		}
	})
}

// TestReconcileInferenceEntities tests normalization of backend extractions
func TestReconcileInferenceEntities(t *testing.T) {
	t.Run("TypeAndLevelNormalized", func(t *testing.T) {
		text := "Dr. Jane Roe sent it"
		raw := []pii.RawEntity{
			{Text: "Jane Roe", TypeLabel: "person name", Sensitivity: "moderate"},
		}
		entities := Reconcile(nil, raw, text)
		if len(entities) != 1 {
			t.Fatalf("Expected 1 entity, got %d", len(entities))
		}
		if entities[0].Type != pii.TypeName {
			t.Errorf("Expected type NAME, got %s", entities[0].Type)
		}
		if entities[0].Level != pii.LevelMedium {
			t.Errorf("Expected level MEDIUM, got %s", entities[0].Level)
		}
	})

	t.Run("DefaultReplacementFromType", func(t *testing.T) {
		raw := []pii.RawEntity{
			{Text: "Jane Roe", TypeLabel: "NAME", Sensitivity: "MEDIUM"},
		}
		entities := Reconcile(nil, raw, "Jane Roe wrote")
		if entities[0].Replacement != "[NAME]" {
			t.Errorf("Expected default replacement [NAME], got %q", entities[0].Replacement)
		}
	})

	t.Run("UnlocatableKept", func(t *testing.T) {
		raw := []pii.RawEntity{
			{Text: "paraphrased secret", TypeLabel: "CUSTOM", Sensitivity: "HIGH"},
		}
		entities := Reconcile(nil, raw, "the document never says that")
		if len(entities) != 1 {
			t.Fatalf("Expected hallucinated entity to be kept, got %d", len(entities))
		}
		if !entities[0].Unlocatable {
			t.Error("Entity absent from the text should be flagged unlocatable")
		}
		if entities[0].Start != 0 || entities[0].End != 0 {
			t.Errorf("Unlocatable entity should keep 0:0 offsets, got %d:%d", entities[0].Start, entities[0].End)
		}
	})

	t.Run("EmptyTextSkipped", func(t *testing.T) {
		raw := []pii.RawEntity{{Text: "", TypeLabel: "EMAIL", Sensitivity: "HIGH"}}
		entities := Reconcile(nil, raw, "whatever")
		if len(entities) != 0 {
			t.Errorf("Empty-text extraction should be dropped, got %d entities", len(entities))
		}
	})
}
