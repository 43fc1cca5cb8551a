package websocket

import (
	"testing"
	"time"

	"go.uber.org/zap"
)

func newTestHub(config *HubConfig) *Hub {
	hub := NewHub(config, zap.NewNop())
	go hub.Run()
	return hub
}

func newTestClient(id, ip string) *Client {
	return &Client{
		ID:          id,
		Send:        make(chan Event, 16),
		ConnectedAt: time.Now(),
		IP:          ip,
	}
}

func recvEvent(t *testing.T, ch chan Event) Event {
	t.Helper()
	select {
	case event := <-ch:
		return event
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for event")
		return Event{}
	}
}

// TestHubConnectionEvents tests that client registration and
// unregistration are announced to connected clients
func TestHubConnectionEvents(t *testing.T) {
	hub := newTestHub(&HubConfig{
		BroadcastScans:      true,
		BroadcastDetections: true,
		BroadcastSystem:     true,
	})

	first := newTestClient("first", "10.0.0.1")
	hub.register <- first

	event := recvEvent(t, first.Send)
	if event.Type != EventTypeConnection {
		t.Fatalf("Expected connection event, got %q", event.Type)
	}
	conn, ok := event.Data.(ConnectionEvent)
	if !ok {
		t.Fatalf("Unexpected event data: %+v", event.Data)
	}
	if conn.Action != "connected" || conn.ClientID != "first" || conn.ClientIP != "10.0.0.1" {
		t.Errorf("Unexpected connection event: %+v", conn)
	}

	second := newTestClient("second", "10.0.0.2")
	hub.register <- second

	event = recvEvent(t, first.Send)
	conn, _ = event.Data.(ConnectionEvent)
	if conn.Action != "connected" || conn.ClientID != "second" {
		t.Errorf("First client should see the second client connect, got %+v", conn)
	}
	recvEvent(t, second.Send)

	hub.unregister <- second

	event = recvEvent(t, first.Send)
	conn, _ = event.Data.(ConnectionEvent)
	if conn.Action != "disconnected" || conn.ClientID != "second" {
		t.Errorf("First client should see the second client disconnect, got %+v", conn)
	}
	if _, open := <-second.Send; open {
		t.Error("Unregistered client's send channel should be closed")
	}

	stats := hub.GetStats()
	if stats.TotalConnections != 2 {
		t.Errorf("Expected 2 total connections, got %d", stats.TotalConnections)
	}
	if stats.ActiveConnections != 1 {
		t.Errorf("Expected 1 active connection, got %d", stats.ActiveConnections)
	}
}

// TestHubBroadcastFiltering tests hub-level gating and per-client
// subscriptions
func TestHubBroadcastFiltering(t *testing.T) {
	t.Run("DisabledEventKind", func(t *testing.T) {
		hub := newTestHub(&HubConfig{
			BroadcastScans:  false,
			BroadcastSystem: true,
		})

		client := newTestClient("watcher", "10.0.0.1")
		hub.register <- client
		recvEvent(t, client.Send)

		hub.BroadcastEvent(Event{
			Type:      EventTypeScanCompleted,
			Timestamp: time.Now(),
			Data:      ScanCompletedEvent{ScanID: "dropped"},
		})
		hub.BroadcastEvent(Event{
			Type:      EventTypeSystemStatus,
			Timestamp: time.Now(),
			Data:      SystemStatusEvent{Status: "healthy"},
		})

		event := recvEvent(t, client.Send)
		if event.Type != EventTypeSystemStatus {
			t.Errorf("Disabled scan broadcast should be dropped, got %q", event.Type)
		}
	})

	t.Run("ClientSubscription", func(t *testing.T) {
		hub := newTestHub(&HubConfig{
			BroadcastScans:      true,
			BroadcastDetections: true,
			BroadcastSystem:     true,
		})

		subscriber := newTestClient("subscriber", "10.0.0.1")
		subscriber.Subscription = &SubscriptionRequest{
			Events: []EventType{EventTypeSystemStatus},
		}
		hub.register <- subscriber

		hub.BroadcastEvent(Event{
			Type:      EventTypePIIDetection,
			Timestamp: time.Now(),
			Data:      PIIDetectionEvent{ScanID: "filtered"},
		})
		hub.BroadcastEvent(Event{
			Type:      EventTypeSystemStatus,
			Timestamp: time.Now(),
			Data:      SystemStatusEvent{Status: "healthy"},
		})

		event := recvEvent(t, subscriber.Send)
		if event.Type != EventTypeSystemStatus {
			t.Errorf("Subscription should filter other event kinds, got %q", event.Type)
		}
	})
}
