// Package inference normalizes two structurally different model backends
// (a cloud inference API and a local Ollama instance) behind a single
// Engine contract that returns one extraction payload shape.
package inference

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/raaihank/pii-sentry/internal/pii"
)

// EngineKind selects which backend performs entity extraction.
type EngineKind string

const (
	// CloudEngine uses a hosted structured-output inference API.
	CloudEngine EngineKind = "cloud"

	// LocalEngine uses a locally hosted Ollama instance.
	LocalEngine EngineKind = "local"
)

// Engine is the contract every backend implements. Infer never panics and
// never returns an untyped fault: failures surface as *AuthError,
// *ProtocolError, *BackendError or *TimeoutError.
type Engine interface {
	Infer(ctx context.Context, text string) (*pii.InferencePayload, error)
	Name() string
}

// CloudSettings configures the cloud backend. An empty APIKey falls back to
// the factory's process-wide default.
type CloudSettings struct {
	APIKey string `json:"apiKey,omitempty" yaml:"api_key" mapstructure:"api_key"`
	Model  string `json:"model" yaml:"model" mapstructure:"model"`
}

// LocalSettings configures the Ollama backend.
type LocalSettings struct {
	BaseURL     string  `json:"baseUrl" yaml:"base_url" mapstructure:"base_url"`
	APIKey      string  `json:"apiKey,omitempty" yaml:"api_key" mapstructure:"api_key"`
	Model       string  `json:"model" yaml:"model" mapstructure:"model"`
	Temperature float64 `json:"temperature" yaml:"temperature" mapstructure:"temperature"`
}

// Settings carries the per-scan engine selection and backend configuration.
type Settings struct {
	Kind  EngineKind    `json:"engine"`
	Cloud CloudSettings `json:"cloud,omitempty"`
	Local LocalSettings `json:"local,omitempty"`
}

// Factory creates engines from settings, supplying process-wide defaults.
type Factory struct {
	defaultAPIKey string
	timeout       time.Duration
	logger        *zap.Logger
}

// NewFactory creates an engine factory. defaultAPIKey is the process-wide
// cloud credential; timeout bounds every backend call.
func NewFactory(defaultAPIKey string, timeout time.Duration, logger *zap.Logger) *Factory {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Factory{
		defaultAPIKey: defaultAPIKey,
		timeout:       timeout,
		logger:        logger,
	}
}

// Create builds the engine selected by the settings. Local settings are
// validated here: an unparseable base URL blocks both model discovery and
// scanning for that engine.
func (f *Factory) Create(settings Settings) (Engine, error) {
	switch settings.Kind {
	case CloudEngine:
		key := settings.Cloud.APIKey
		if key == "" {
			key = f.defaultAPIKey
		}
		f.logger.Debug("Created cloud engine", zap.String("model", settings.Cloud.Model))
		return newCloudEngine(key, settings.Cloud.Model, f.timeout, f.logger), nil
	case LocalEngine:
		if err := validateBaseURL(settings.Local.BaseURL); err != nil {
			return nil, err
		}
		f.logger.Debug("Created local engine",
			zap.String("base_url", settings.Local.BaseURL),
			zap.String("model", settings.Local.Model),
		)
		return newLocalEngine(settings.Local, f.timeout, f.logger), nil
	default:
		return nil, fmt.Errorf("unknown engine kind: %s", settings.Kind)
	}
}

// validateBaseURL requires a well-formed absolute URL.
func validateBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return &ProtocolError{Engine: string(LocalEngine), Reason: "invalid base URL", Err: err}
	}
	if !u.IsAbs() || u.Host == "" {
		return &ProtocolError{Engine: string(LocalEngine), Reason: "base URL must be absolute: " + raw}
	}
	return nil
}

// instruction is the fixed system prompt both backends receive. The output
// contract mirrors the schema sent to the cloud backend so both produce the
// same payload shape.
const instruction = `You are a data privacy analyst. Analyze the document below and extract every piece of personally identifiable or organizationally sensitive information.

Respond with JSON only, matching this shape exactly:
{"summary": "<one-sentence summary of the document>", "classification": "<document category, e.g. Financial, Medical, Correspondence>", "riskScore": <0-100 integer>, "entities": [{"text": "<exact text found>", "type": "<EMAIL|PHONE|CREDIT_CARD|SSN|API_KEY|NAME|LOCATION|IP_ADDRESS|CUSTOM>", "sensitivity": "<HIGH|MEDIUM|LOW>", "replacement": "<safe placeholder>"}]}

The "text" field must quote the document verbatim. If nothing sensitive is found, return an empty entities list.`
