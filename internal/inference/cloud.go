package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/raaihank/pii-sentry/internal/pii"
)

// defaultCloudBaseURL points at the hosted structured-output API. Tests
// override it through the engine's baseURL field.
const defaultCloudBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// cloudEngine calls a hosted model with a strict JSON response schema so
// the reply needs no repair before decoding.
type cloudEngine struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
	timeout time.Duration
	logger  *zap.Logger
}

func newCloudEngine(apiKey, model string, timeout time.Duration, logger *zap.Logger) *cloudEngine {
	return &cloudEngine{
		apiKey:  apiKey,
		model:   model,
		baseURL: defaultCloudBaseURL,
		client:  &http.Client{},
		timeout: timeout,
		logger:  logger,
	}
}

func (e *cloudEngine) Name() string { return string(CloudEngine) }

// generateRequest is the wire shape of a structured-output generation call.
type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	ResponseMimeType string          `json:"responseMimeType"`
	ResponseSchema   json.RawMessage `json:"responseSchema"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []part `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// responseSchema constrains the model output to the payload contract:
// summary, classification, riskScore and the entity list with required
// text/type/sensitivity per entity.
var responseSchema = json.RawMessage(`{
	"type": "OBJECT",
	"properties": {
		"summary": {"type": "STRING"},
		"classification": {"type": "STRING"},
		"riskScore": {"type": "INTEGER"},
		"entities": {
			"type": "ARRAY",
			"items": {
				"type": "OBJECT",
				"properties": {
					"text": {"type": "STRING"},
					"type": {"type": "STRING"},
					"sensitivity": {"type": "STRING"},
					"replacement": {"type": "STRING"}
				},
				"required": ["text", "type", "sensitivity"]
			}
		}
	},
	"required": ["summary", "classification", "riskScore", "entities"]
}`)

// Infer sends the document with the fixed instruction and schema, and
// decodes the schema-conformant JSON reply into the common payload.
func (e *cloudEngine) Infer(ctx context.Context, text string) (*pii.InferencePayload, error) {
	if e.apiKey == "" {
		return nil, &AuthError{Engine: e.Name()}
	}
	if e.model == "" {
		return nil, &ProtocolError{Engine: e.Name(), Reason: "no model configured"}
	}

	reqBody := generateRequest{
		Contents: []content{{Parts: []part{{Text: instruction + "\n\nDocument:\n" + text}}}},
		GenerationConfig: generationConfig{
			ResponseMimeType: "application/json",
			ResponseSchema:   responseSchema,
		},
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, &ProtocolError{Engine: e.Name(), Reason: "failed to encode request", Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", e.baseURL, e.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &ProtocolError{Engine: e.Name(), Reason: "failed to build request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", e.apiKey)

	start := time.Now()
	resp, err := e.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &TimeoutError{Engine: e.Name()}
		}
		return nil, &BackendError{Engine: e.Name(), Status: 0, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, &AuthError{Engine: e.Name()}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &BackendError{Engine: e.Name(), Status: resp.StatusCode}
	}

	var genResp generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&genResp); err != nil {
		return nil, &ProtocolError{Engine: e.Name(), Reason: "failed to decode response", Err: err}
	}
	if len(genResp.Candidates) == 0 || len(genResp.Candidates[0].Content.Parts) == 0 {
		return nil, &ProtocolError{Engine: e.Name(), Reason: "response contains no candidates"}
	}

	payload, err := decodePayload(e.Name(), genResp.Candidates[0].Content.Parts[0].Text)
	if err != nil {
		return nil, err
	}

	e.logger.Debug("Cloud inference completed",
		zap.String("model", e.model),
		zap.Int("entities", len(payload.Entities)),
		zap.Duration("duration", time.Since(start)),
	)

	return payload, nil
}

// decodePayload parses the backend's JSON document into the common payload
// shape and clamps the risk score into 0-100. The score is decoded through
// a float because some backends emit fractional numbers even when the
// schema asks for an integer.
func decodePayload(engine, raw string) (*pii.InferencePayload, error) {
	var wire struct {
		Summary        string          `json:"summary"`
		Classification string          `json:"classification"`
		RiskScore      float64         `json:"riskScore"`
		Entities       []pii.RawEntity `json:"entities"`
	}
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		return nil, &ProtocolError{Engine: engine, Reason: "model output is not valid JSON", Err: err}
	}

	payload := pii.InferencePayload{
		Summary:        wire.Summary,
		Classification: wire.Classification,
		RiskScore:      int(math.Round(wire.RiskScore)),
		Entities:       wire.Entities,
	}
	if payload.RiskScore < 0 {
		payload.RiskScore = 0
	}
	if payload.RiskScore > 100 {
		payload.RiskScore = 100
	}
	return &payload, nil
}
