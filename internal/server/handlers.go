package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/raaihank/pii-sentry/internal/inference"
	"github.com/raaihank/pii-sentry/internal/pii"
	"github.com/raaihank/pii-sentry/internal/redact"
	"github.com/raaihank/pii-sentry/internal/rules"
	"github.com/raaihank/pii-sentry/internal/scan"
	"github.com/raaihank/pii-sentry/internal/websocket"
)

// scanRequest is the body of POST /v1/scan. Engine and settings are
// optional overrides of the configured defaults.
type scanRequest struct {
	Text   string                   `json:"text"`
	Engine inference.EngineKind     `json:"engine,omitempty"`
	Cloud  *inference.CloudSettings `json:"cloud,omitempty"`
	Local  *localOverride           `json:"local,omitempty"`
}

// localOverride mirrors inference.LocalSettings but keeps Temperature a
// pointer so an explicit 0 in the request body is distinguishable from the
// field being absent.
type localOverride struct {
	BaseURL     string   `json:"baseUrl,omitempty"`
	APIKey      string   `json:"apiKey,omitempty"`
	Model       string   `json:"model,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
}

// scanResponse is the analysis result plus the highlight segments for the
// initial all-active state.
type scanResponse struct {
	*pii.AnalysisResult
	Segments []redact.Segment `json:"segments"`
}

// renderRequest is the body of POST /v1/scan/{id}/render.
type renderRequest struct {
	Active []string `json:"active"`
}

type renderResponse struct {
	SanitizedText string           `json:"sanitizedText"`
	Segments      []redact.Segment `json:"segments"`
}

// settings merges the request's engine selection with configured defaults.
func (s *Server) settings(req *scanRequest) inference.Settings {
	out := inference.Settings{
		Kind:  s.config.Engines.Default,
		Cloud: s.config.Engines.Cloud,
		Local: s.config.Engines.Local,
	}
	if req.Engine != "" {
		out.Kind = req.Engine
	}
	if req.Cloud != nil {
		if req.Cloud.APIKey != "" {
			out.Cloud.APIKey = req.Cloud.APIKey
		}
		if req.Cloud.Model != "" {
			out.Cloud.Model = req.Cloud.Model
		}
	}
	if req.Local != nil {
		if req.Local.BaseURL != "" {
			out.Local.BaseURL = req.Local.BaseURL
		}
		if req.Local.APIKey != "" {
			out.Local.APIKey = req.Local.APIKey
		}
		if req.Local.Model != "" {
			out.Local.Model = req.Local.Model
		}
		if req.Local.Temperature != nil {
			out.Local.Temperature = *req.Local.Temperature
		}
	}
	return out
}

// handleScan runs the full detection pipeline on the request text.
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := s.orchestrator.Scan(r.Context(), req.Text, s.settings(&req))
	if err != nil {
		if errors.Is(err, scan.ErrEmptyInput) {
			writeError(w, http.StatusBadRequest, "text must not be empty")
			return
		}
		s.logger.WithRequestID(requestID(r.Context())).Error("Scan failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "scan failed")
		return
	}

	redactor := redact.New(result.OriginalText, result.Entities)
	s.sessions.put(result.ID, &session{result: result, redactor: redactor})

	s.broadcastScan(result, clientIP(r))

	writeJSON(w, http.StatusOK, scanResponse{
		AnalysisResult: result,
		Segments:       redactor.Segments(redactor.ActiveAll()),
	})
}

// handleRender re-renders a previous scan with a different active set.
func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	sess, ok := s.sessions.get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown scan id")
		return
	}

	var req renderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	active := make(map[string]bool, len(req.Active))
	for _, entityID := range req.Active {
		active[entityID] = true
	}

	writeJSON(w, http.StatusOK, renderResponse{
		SanitizedText: sess.redactor.Render(active),
		Segments:      sess.redactor.Segments(active),
	})
}

// handleListRules returns the current rule set in insertion order.
func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.List())
}

// handleAddRule validates and adds a rule.
func (s *Server) handleAddRule(w http.ResponseWriter, r *http.Request) {
	var rule rules.Rule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	added, err := s.store.Add(rule)
	if err != nil {
		writeRuleError(w, err)
		return
	}

	s.persistRules(r)
	writeJSON(w, http.StatusCreated, added)
}

// handleUpdateRule replaces a rule by id.
func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	var rule rules.Rule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	rule.ID = mux.Vars(r)["id"]

	if err := s.store.Update(rule); err != nil {
		writeRuleError(w, err)
		return
	}

	s.persistRules(r)
	writeJSON(w, http.StatusOK, rule)
}

// handleToggleRule flips a rule's enabled flag.
func (s *Server) handleToggleRule(w http.ResponseWriter, r *http.Request) {
	rule, err := s.store.Toggle(mux.Vars(r)["id"])
	if err != nil {
		writeRuleError(w, err)
		return
	}

	s.persistRules(r)
	writeJSON(w, http.StatusOK, rule)
}

// handleRemoveRule deletes a rule.
func (s *Server) handleRemoveRule(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Remove(mux.Vars(r)["id"]); err != nil {
		writeRuleError(w, err)
		return
	}

	s.persistRules(r)
	w.WriteHeader(http.StatusNoContent)
}

// handleListModels discovers models on the local engine.
func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	local := s.config.Engines.Local
	if baseURL := r.URL.Query().Get("base_url"); baseURL != "" {
		local.BaseURL = baseURL
	}

	engine, err := s.factory.Create(inference.Settings{
		Kind:  inference.LocalEngine,
		Local: local,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	lister, ok := engine.(inference.ModelLister)
	if !ok {
		writeError(w, http.StatusInternalServerError, "engine does not support model discovery")
		return
	}

	models, err := lister.ListModels(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"models": models})
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"healthy","timestamp":"%s"}`, time.Now().Format(time.RFC3339))
}

// handleInfo handles info requests.
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"name":           "pii-sentry",
		"default_engine": s.config.Engines.Default,
		"rules_count":    len(s.store.List()),
		"cache_enabled":  s.config.Cache.Enabled,
	})
}

// persistRules saves the rule set after a mutation when persistence is on.
func (s *Server) persistRules(r *http.Request) {
	if s.repo == nil {
		return
	}
	if err := s.repo.SaveAll(r.Context(), s.store.List()); err != nil {
		s.logger.Error("Failed to persist rules", zap.Error(err))
	}
}

// broadcastScan publishes scan events to the hub and feeds the counters
// reported by system_status broadcasts.
func (s *Server) broadcastScan(result *pii.AnalysisResult, ip string) {
	atomic.AddInt64(&s.totalScans, 1)
	atomic.AddInt64(&s.totalDetections, int64(len(result.Entities)))

	s.wsHub.BroadcastEvent(websocket.Event{
		Type:      websocket.EventTypeScanCompleted,
		Timestamp: time.Now(),
		Data: websocket.ScanCompletedEvent{
			ScanID:         result.ID,
			Engine:         result.Engine,
			EntityCount:    len(result.Entities),
			RiskScore:      result.RiskScore,
			Classification: result.Classification,
			Duration:       result.Duration,
		},
	})

	if len(result.Entities) == 0 {
		return
	}

	types := make([]pii.Type, 0, len(result.Entities))
	levels := make([]pii.Level, 0, len(result.Entities))
	for _, e := range result.Entities {
		types = append(types, e.Type)
		levels = append(levels, e.Level)
	}

	s.wsHub.BroadcastEvent(websocket.Event{
		Type:      websocket.EventTypePIIDetection,
		Timestamp: time.Now(),
		Data: websocket.PIIDetectionEvent{
			ScanID:   result.ID,
			ClientIP: ip,
			Types:    types,
			Levels:   levels,
			Total:    len(result.Entities),
		},
	})
}

// writeRuleError maps rule store errors onto HTTP statuses.
func writeRuleError(w http.ResponseWriter, err error) {
	var vErr *rules.ValidationError
	var nfErr *rules.NotFoundError
	switch {
	case errors.As(err, &vErr):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &nfErr):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
