package websocket

import (
	"time"

	"github.com/gorilla/websocket"

	"github.com/raaihank/pii-sentry/internal/pii"
)

// EventType represents the type of WebSocket event.
type EventType string

const (
	// EventTypeScanCompleted announces a finished scan.
	EventTypeScanCompleted EventType = "scan_completed"
	// EventTypePIIDetection announces entities found in a scan.
	EventTypePIIDetection EventType = "pii_detection"
	// EventTypeSystemStatus represents a system status event.
	EventTypeSystemStatus EventType = "system_status"
	// EventTypeConnection represents connection events.
	EventTypeConnection EventType = "connection"
)

// Event represents a WebSocket event sent to clients.
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
	RequestID string      `json:"request_id,omitempty"`
}

// ScanCompletedEvent summarizes a finished scan for the dashboard. The
// original text is intentionally absent.
type ScanCompletedEvent struct {
	ScanID         string        `json:"scan_id"`
	Engine         string        `json:"engine"`
	EntityCount    int           `json:"entity_count"`
	RiskScore      int           `json:"risk_score"`
	Classification string        `json:"classification"`
	Duration       time.Duration `json:"duration"`
}

// PIIDetectionEvent carries the detected entity types and levels, never
// the matched text itself.
type PIIDetectionEvent struct {
	ScanID   string      `json:"scan_id"`
	ClientIP string      `json:"client_ip"`
	Types    []pii.Type  `json:"types"`
	Levels   []pii.Level `json:"levels"`
	Total    int         `json:"total"`
}

// SystemStatusEvent represents system status information.
type SystemStatusEvent struct {
	Status           string `json:"status"`
	Uptime           string `json:"uptime"`
	TotalScans       int64  `json:"total_scans"`
	TotalDetections  int64  `json:"total_detections"`
	ActiveRules      int    `json:"active_rules"`
	ConnectedClients int    `json:"connected_clients"`
}

// ConnectionEvent represents WebSocket connection events.
type ConnectionEvent struct {
	Action   string `json:"action"` // "connected", "disconnected"
	ClientID string `json:"client_id"`
	ClientIP string `json:"client_ip"`
}

// ClientMessage represents messages sent from clients to server.
type ClientMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// SubscriptionRequest represents a client subscription request.
type SubscriptionRequest struct {
	Events []EventType `json:"events"`
}

// Client represents a WebSocket client connection.
type Client struct {
	ID           string
	Conn         *websocket.Conn
	Send         chan Event
	Subscription *SubscriptionRequest
	ConnectedAt  time.Time
	LastPing     time.Time
	IP           string
}
