package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/raaihank/pii-sentry/internal/pii"
)

// localEngine talks to a locally hosted Ollama instance. Ollama wraps the
// model output inside a JSON envelope, so the top-level "response" field is
// decoded a second time to recover the payload.
type localEngine struct {
	settings LocalSettings
	client   *http.Client
	timeout  time.Duration
	logger   *zap.Logger
}

func newLocalEngine(settings LocalSettings, timeout time.Duration, logger *zap.Logger) *localEngine {
	return &localEngine{
		settings: settings,
		client:   &http.Client{},
		timeout:  timeout,
		logger:   logger,
	}
}

func (e *localEngine) Name() string { return string(LocalEngine) }

type ollamaGenerateRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	Stream  bool          `json:"stream"`
	Format  string        `json:"format"`
	Options ollamaOptions `json:"options"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// ModelInfo describes one model discoverable on the local instance.
type ModelInfo struct {
	Name       string `json:"name"`
	Size       int64  `json:"size"`
	ModifiedAt string `json:"modified_at"`
}

type ollamaTagsResponse struct {
	Models []ModelInfo `json:"models"`
}

// Infer sends the document in non-streaming JSON mode and double-decodes
// the envelope's response field into the common payload.
func (e *localEngine) Infer(ctx context.Context, text string) (*pii.InferencePayload, error) {
	if e.settings.Model == "" {
		return nil, &ProtocolError{Engine: e.Name(), Reason: "no model configured"}
	}

	reqBody := ollamaGenerateRequest{
		Model:   e.settings.Model,
		Prompt:  instruction + "\n\nDocument:\n" + text,
		Stream:  false,
		Format:  "json",
		Options: ollamaOptions{Temperature: e.settings.Temperature},
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, &ProtocolError{Engine: e.Name(), Reason: "failed to encode request", Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	endpoint := strings.TrimSuffix(e.settings.BaseURL, "/") + "/api/generate"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &ProtocolError{Engine: e.Name(), Reason: "failed to build request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if e.settings.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.settings.APIKey)
	}

	start := time.Now()
	resp, err := e.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &TimeoutError{Engine: e.Name()}
		}
		return nil, &BackendError{Engine: e.Name(), Status: 0, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &BackendError{Engine: e.Name(), Status: resp.StatusCode}
	}

	var genResp ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&genResp); err != nil {
		return nil, &ProtocolError{Engine: e.Name(), Reason: "failed to decode envelope", Err: err}
	}

	// Second decode: the envelope's response field is itself JSON.
	payload, err := decodePayload(e.Name(), strings.TrimSpace(genResp.Response))
	if err != nil {
		return nil, err
	}

	e.logger.Debug("Local inference completed",
		zap.String("model", e.settings.Model),
		zap.Int("entities", len(payload.Entities)),
		zap.Duration("duration", time.Since(start)),
	)

	return payload, nil
}

// ListModels discovers models available on the local instance.
func (e *localEngine) ListModels(ctx context.Context) ([]ModelInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	endpoint := strings.TrimSuffix(e.settings.BaseURL, "/") + "/api/tags"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &ProtocolError{Engine: e.Name(), Reason: "failed to build request", Err: err}
	}

	resp, err := e.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &TimeoutError{Engine: e.Name()}
		}
		return nil, &BackendError{Engine: e.Name(), Status: 0, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &BackendError{Engine: e.Name(), Status: resp.StatusCode}
	}

	var tags ollamaTagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, &ProtocolError{Engine: e.Name(), Reason: "failed to decode model list", Err: err}
	}

	return tags.Models, nil
}

// ModelLister is implemented by engines that support model discovery.
type ModelLister interface {
	ListModels(ctx context.Context) ([]ModelInfo, error)
}
