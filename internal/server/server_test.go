package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/raaihank/pii-sentry/internal/config"
	"github.com/raaihank/pii-sentry/internal/inference"
	"github.com/raaihank/pii-sentry/internal/logger"
	"github.com/raaihank/pii-sentry/internal/match"
	"github.com/raaihank/pii-sentry/internal/pii"
	"github.com/raaihank/pii-sentry/internal/redact"
	"github.com/raaihank/pii-sentry/internal/rules"
	"github.com/raaihank/pii-sentry/internal/scan"
	"github.com/raaihank/pii-sentry/internal/websocket"
)

// newTestServer wires a server against a fake local backend.
func newTestServer(t *testing.T, backendURL string) *Server {
	t.Helper()

	cfg := config.GetDefaults()
	cfg.Engines.Local.BaseURL = backendURL
	cfg.Engines.Local.Model = "test-model"
	cfg.RateLimit.Enabled = false

	log, err := logger.New(logger.Config{Level: "error", Format: "console"})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}

	store := rules.NewStore(log.Logger)
	factory := inference.NewFactory("", 5*time.Second, log.Logger)
	orchestrator := scan.New(store, match.New(log.Logger), factory, nil, log.Logger)

	return New(Options{
		Config:       cfg,
		Logger:       log,
		Store:        store,
		Orchestrator: orchestrator,
		Factory:      factory,
	})
}

// newBackend fakes the Ollama generate and tags endpoints.
func newBackend(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/generate":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"response": `{"summary":"Personal contact details.","classification":"Correspondence","riskScore":40,"entities":[]}`,
				"done":     true,
			})
		case "/api/tags":
			fmt.Fprint(w, `{"models":[{"name":"llama3.2","size":2019393189,"modified_at":"2025-06-01T10:00:00Z"}]}`)
		default:
			http.NotFound(w, r)
		}
	}))
}

func doJSON(t *testing.T, router http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("Failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

// TestScanEndpoint tests POST /v1/scan and the render follow-up
func TestScanEndpoint(t *testing.T) {
	backend := newBackend(t)
	defer backend.Close()
	srv := newTestServer(t, backend.URL)

	t.Run("ScanAndRender", func(t *testing.T) {
		rec := doJSON(t, srv.router, "POST", "/v1/scan", map[string]string{
			"text": "Contact me at j.doe@example.com",
		})
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
		}

		var resp struct {
			ID            string           `json:"id"`
			SanitizedText string           `json:"sanitizedText"`
			Entities      []pii.Entity     `json:"entities"`
			Segments      []redact.Segment `json:"segments"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		if resp.SanitizedText != "Contact me at [EMAIL]" {
			t.Errorf("Unexpected sanitized text: %q", resp.SanitizedText)
		}
		if len(resp.Entities) != 1 {
			t.Fatalf("Expected 1 entity, got %d", len(resp.Entities))
		}
		if len(resp.Segments) == 0 {
			t.Error("Scan response should include highlight segments")
		}

		// Deactivate the only entity and re-render.
		rec = doJSON(t, srv.router, "POST", "/v1/scan/"+resp.ID+"/render", map[string][]string{
			"active": {},
		})
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		var rendered struct {
			SanitizedText string `json:"sanitizedText"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &rendered); err != nil {
			t.Fatalf("Failed to decode render response: %v", err)
		}
		if rendered.SanitizedText != "Contact me at j.doe@example.com" {
			t.Errorf("Deactivated entity should not be redacted, got %q", rendered.SanitizedText)
		}
	})

	t.Run("EmptyText", func(t *testing.T) {
		rec := doJSON(t, srv.router, "POST", "/v1/scan", map[string]string{"text": "   "})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("Expected 400 for empty text, got %d", rec.Code)
		}
	})

	t.Run("MalformedBody", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/v1/scan", bytes.NewBufferString("{"))
		rec := httptest.NewRecorder()
		srv.router.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("Expected 400 for malformed body, got %d", rec.Code)
		}
	})

	t.Run("ExplicitZeroTemperature", func(t *testing.T) {
		var gotTemp float64
		capturing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				Options struct {
					Temperature float64 `json:"temperature"`
				} `json:"options"`
			}
			json.NewDecoder(r.Body).Decode(&req)
			gotTemp = req.Options.Temperature
			json.NewEncoder(w).Encode(map[string]interface{}{
				"response": `{"summary":"s","classification":"c","riskScore":0,"entities":[]}`,
				"done":     true,
			})
		}))
		defer capturing.Close()
		srv := newTestServer(t, capturing.URL)

		// No override: the configured default applies.
		rec := doJSON(t, srv.router, "POST", "/v1/scan", map[string]interface{}{
			"text": "hello world",
		})
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if gotTemp != srv.config.Engines.Local.Temperature {
			t.Fatalf("Expected default temperature %v, got %v", srv.config.Engines.Local.Temperature, gotTemp)
		}

		// An explicit zero must reach the backend, not be treated as unset.
		rec = doJSON(t, srv.router, "POST", "/v1/scan", map[string]interface{}{
			"text":  "hello world",
			"local": map[string]interface{}{"temperature": 0},
		})
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if gotTemp != 0 {
			t.Errorf("Explicit zero temperature should override the default, got %v", gotTemp)
		}
	})

	t.Run("RenderUnknownScan", func(t *testing.T) {
		rec := doJSON(t, srv.router, "POST", "/v1/scan/nope/render", map[string][]string{"active": {}})
		if rec.Code != http.StatusNotFound {
			t.Errorf("Expected 404 for unknown scan, got %d", rec.Code)
		}
	})
}

// TestRulesEndpoints tests the rule management API
func TestRulesEndpoints(t *testing.T) {
	backend := newBackend(t)
	defer backend.Close()
	srv := newTestServer(t, backend.URL)

	t.Run("List", func(t *testing.T) {
		rec := doJSON(t, srv.router, "GET", "/v1/rules", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rec.Code)
		}
		var list []rules.Rule
		if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
			t.Fatalf("Failed to decode rule list: %v", err)
		}
		if len(list) != len(rules.DefaultRules()) {
			t.Errorf("Expected default rule set, got %d rules", len(list))
		}
	})

	t.Run("AddValid", func(t *testing.T) {
		rec := doJSON(t, srv.router, "POST", "/v1/rules", map[string]interface{}{
			"name":    "Project Code",
			"type":    "CUSTOM",
			"enabled": true,
			"level":   "LOW",
			"pattern": `PROJ-\d{4}`,
		})
		if rec.Code != http.StatusCreated {
			t.Fatalf("Expected 201, got %d: %s", rec.Code, rec.Body.String())
		}
		var added rules.Rule
		if err := json.Unmarshal(rec.Body.Bytes(), &added); err != nil {
			t.Fatalf("Failed to decode created rule: %v", err)
		}
		if added.ID == "" {
			t.Error("Created rule should carry a generated id")
		}
	})

	t.Run("AddInvalidPattern", func(t *testing.T) {
		rec := doJSON(t, srv.router, "POST", "/v1/rules", map[string]interface{}{
			"name":    "Broken",
			"pattern": "(",
		})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("Expected 400 for invalid pattern, got %d", rec.Code)
		}
	})

	t.Run("ToggleAndRemove", func(t *testing.T) {
		rec := doJSON(t, srv.router, "POST", "/v1/rules/builtin-email/toggle", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rec.Code)
		}
		var toggled rules.Rule
		if err := json.Unmarshal(rec.Body.Bytes(), &toggled); err != nil {
			t.Fatalf("Failed to decode toggled rule: %v", err)
		}
		if toggled.Enabled {
			t.Error("Toggle should disable the enabled built-in rule")
		}

		rec = doJSON(t, srv.router, "DELETE", "/v1/rules/builtin-email", nil)
		if rec.Code != http.StatusNoContent {
			t.Errorf("Expected 204, got %d", rec.Code)
		}
	})

	t.Run("ToggleUnknownID", func(t *testing.T) {
		rec := doJSON(t, srv.router, "POST", "/v1/rules/missing/toggle", nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("Expected 404, got %d", rec.Code)
		}
	})

	t.Run("UpdateUnknownID", func(t *testing.T) {
		rec := doJSON(t, srv.router, "PUT", "/v1/rules/missing", map[string]interface{}{
			"name": "Whatever",
		})
		if rec.Code != http.StatusNotFound {
			t.Errorf("Expected 404, got %d", rec.Code)
		}
	})
}

// TestModelsEndpoint tests local model discovery
func TestModelsEndpoint(t *testing.T) {
	backend := newBackend(t)
	defer backend.Close()
	srv := newTestServer(t, backend.URL)

	rec := doJSON(t, srv.router, "GET", "/v1/models", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Models []inference.ModelInfo `json:"models"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode models response: %v", err)
	}
	if len(resp.Models) != 1 || resp.Models[0].Name != "llama3.2" {
		t.Errorf("Unexpected models: %+v", resp.Models)
	}
}

// TestHealthEndpoint tests the liveness probe
func TestHealthEndpoint(t *testing.T) {
	backend := newBackend(t)
	defer backend.Close()
	srv := newTestServer(t, backend.URL)

	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to decode health response: %v", err)
	}
	if body["status"] != "healthy" {
		t.Errorf("Expected healthy status, got %q", body["status"])
	}
}

// TestSystemStatusEvent tests the periodic status snapshot and the scan
// counters behind it
func TestSystemStatusEvent(t *testing.T) {
	backend := newBackend(t)
	defer backend.Close()
	srv := newTestServer(t, backend.URL)

	rec := doJSON(t, srv.router, "POST", "/v1/scan", map[string]string{
		"text": "Contact me at j.doe@example.com",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	event := srv.systemStatusEvent()
	if event.Type != websocket.EventTypeSystemStatus {
		t.Fatalf("Expected system status event, got %q", event.Type)
	}
	status, ok := event.Data.(websocket.SystemStatusEvent)
	if !ok {
		t.Fatalf("Unexpected event data: %+v", event.Data)
	}
	if status.Status != "healthy" {
		t.Errorf("Expected healthy status, got %q", status.Status)
	}
	if status.TotalScans != 1 {
		t.Errorf("Expected 1 total scan, got %d", status.TotalScans)
	}
	if status.TotalDetections != 1 {
		t.Errorf("Expected 1 total detection, got %d", status.TotalDetections)
	}
	if status.ActiveRules != len(rules.DefaultRules()) {
		t.Errorf("Expected all default rules active, got %d", status.ActiveRules)
	}
}

// TestRateLimiter tests per-client limiting
func TestRateLimiter(t *testing.T) {
	t.Run("BurstExhaustion", func(t *testing.T) {
		limiter := NewRateLimiter(&config.RateLimitConfig{
			Enabled:        true,
			RequestsPerMin: 60,
			Burst:          3,
		})
		allowed := 0
		for i := 0; i < 10; i++ {
			if limiter.Allow("10.0.0.1") {
				allowed++
			}
		}
		if allowed != 3 {
			t.Errorf("Expected burst of 3 allowed requests, got %d", allowed)
		}
	})

	t.Run("ClientsIsolated", func(t *testing.T) {
		limiter := NewRateLimiter(&config.RateLimitConfig{
			Enabled:        true,
			RequestsPerMin: 60,
			Burst:          1,
		})
		if !limiter.Allow("10.0.0.1") {
			t.Error("First request from first client should pass")
		}
		if !limiter.Allow("10.0.0.2") {
			t.Error("First request from second client should pass")
		}
		if limiter.Allow("10.0.0.1") {
			t.Error("Second immediate request from first client should be limited")
		}
	})

	t.Run("Disabled", func(t *testing.T) {
		limiter := NewRateLimiter(&config.RateLimitConfig{Enabled: false})
		for i := 0; i < 100; i++ {
			if !limiter.Allow("10.0.0.1") {
				t.Fatal("Disabled limiter should allow everything")
			}
		}
	})

	t.Run("ConcurrentAllowAndCleanup", func(t *testing.T) {
		limiter := NewRateLimiter(&config.RateLimitConfig{
			Enabled:        true,
			RequestsPerMin: 600,
			Burst:          100,
		})

		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 50; j++ {
					limiter.Allow("10.0.0.1")
				}
			}()
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				limiter.CleanupStale()
			}
		}()
		wg.Wait()
	})
}

// TestSessionStore tests bounded session retention
func TestSessionStore(t *testing.T) {
	store := newSessionStore()

	t.Run("PutAndGet", func(t *testing.T) {
		store.put("s1", &session{})
		if _, ok := store.get("s1"); !ok {
			t.Error("Stored session should be retrievable")
		}
		if _, ok := store.get("missing"); ok {
			t.Error("Unknown session should not be found")
		}
	})

	t.Run("OldestEvicted", func(t *testing.T) {
		store := newSessionStore()
		for i := 0; i <= maxSessions; i++ {
			store.put(fmt.Sprintf("s%d", i), &session{})
		}
		if _, ok := store.get("s0"); ok {
			t.Error("Oldest session should have been evicted")
		}
		if _, ok := store.get(fmt.Sprintf("s%d", maxSessions)); !ok {
			t.Error("Newest session should still be present")
		}
	})
}
