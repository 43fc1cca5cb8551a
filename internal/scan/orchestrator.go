// Package scan coordinates one detection pass: pattern matching and
// backend inference run concurrently, results are reconciled, and a
// finalized analysis is produced even when the backend fails.
package scan

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/raaihank/pii-sentry/internal/inference"
	"github.com/raaihank/pii-sentry/internal/match"
	"github.com/raaihank/pii-sentry/internal/pii"
	"github.com/raaihank/pii-sentry/internal/reconcile"
	"github.com/raaihank/pii-sentry/internal/redact"
	"github.com/raaihank/pii-sentry/internal/rules"
)

// ErrEmptyInput is returned when the scan text is empty or whitespace.
var ErrEmptyInput = errors.New("scan input is empty")

// fallbackClassification labels results produced without a working backend.
const fallbackClassification = "Unknown"

// Orchestrator runs scans against a rule store and an engine factory.
type Orchestrator struct {
	store   *rules.Store
	matcher *match.Matcher
	factory *inference.Factory
	cache   PayloadCache
	logger  *zap.Logger
}

// PayloadCache is an optional read-through cache for inference payloads.
// A nil cache or any cache error degrades to a live backend call.
type PayloadCache interface {
	Get(ctx context.Context, engine, model, text string) (*pii.InferencePayload, bool)
	Set(ctx context.Context, engine, model, text string, payload *pii.InferencePayload)
}

// New creates an orchestrator. cache may be nil.
func New(store *rules.Store, matcher *match.Matcher, factory *inference.Factory, cache PayloadCache, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		store:   store,
		matcher: matcher,
		factory: factory,
		cache:   cache,
		logger:  logger,
	}
}

// inferOutcome carries the adapter result across the goroutine boundary.
type inferOutcome struct {
	payload *pii.InferencePayload
	err     error
}

// Scan runs the full pipeline. The engine call is the only network-bound
// step; it runs concurrently with pattern matching and any failure degrades
// the result instead of failing the scan.
func (o *Orchestrator) Scan(ctx context.Context, text string, settings inference.Settings) (*pii.AnalysisResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}

	start := time.Now()
	snapshot := o.store.Snapshot()

	inferCh := make(chan inferOutcome, 1)
	go func() {
		inferCh <- o.infer(ctx, text, settings)
	}()

	matches, patternErrs := o.matcher.Match(text, snapshot)
	for _, perr := range patternErrs {
		o.logger.Warn("Pattern error during scan", zap.Error(perr))
	}

	outcome := <-inferCh

	var rawEntities []pii.RawEntity
	summary := ""
	classification := fallbackClassification
	riskScore := 0

	if outcome.err != nil {
		o.logger.Warn("Inference failed, degrading to pattern-only result",
			zap.String("engine", string(settings.Kind)),
			zap.Error(outcome.err),
		)
		summary = fmt.Sprintf("Inference unavailable (%v); result contains pattern matches only.", outcome.err)
	} else {
		rawEntities = outcome.payload.Entities
		summary = outcome.payload.Summary
		classification = outcome.payload.Classification
		riskScore = outcome.payload.RiskScore
	}

	entities := reconcile.Reconcile(matches, rawEntities, text)

	redactor := redact.New(text, entities)
	sanitized := redactor.Render(redactor.ActiveAll())

	result := &pii.AnalysisResult{
		ID:             uuid.NewString(),
		OriginalText:   text,
		SanitizedText:  sanitized,
		Entities:       entities,
		RiskScore:      riskScore,
		Summary:        summary,
		Classification: classification,
		Engine:         string(settings.Kind),
		Duration:       time.Since(start),
	}

	o.logger.Info("Scan completed",
		zap.String("scan_id", result.ID),
		zap.String("engine", result.Engine),
		zap.Int("entities", len(entities)),
		zap.Int("risk_score", riskScore),
		zap.Duration("duration", result.Duration),
	)

	return result, nil
}

// infer creates the selected engine and runs it, consulting the payload
// cache first. Every failure path returns a typed error for the degrade
// policy to report.
func (o *Orchestrator) infer(ctx context.Context, text string, settings inference.Settings) inferOutcome {
	engine, err := o.factory.Create(settings)
	if err != nil {
		return inferOutcome{err: err}
	}

	model := settings.Cloud.Model
	if settings.Kind == inference.LocalEngine {
		model = settings.Local.Model
	}

	if o.cache != nil {
		if payload, ok := o.cache.Get(ctx, engine.Name(), model, text); ok {
			return inferOutcome{payload: payload}
		}
	}

	payload, err := engine.Infer(ctx, text)
	if err != nil {
		return inferOutcome{err: err}
	}

	if o.cache != nil {
		o.cache.Set(ctx, engine.Name(), model, text, payload)
	}
	return inferOutcome{payload: payload}
}
