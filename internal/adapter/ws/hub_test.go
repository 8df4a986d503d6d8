package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/multivitaminds/signof-sub014/internal/port/broadcast"
)

func TestHubBroadcastNoConnections(t *testing.T) {
	hub := NewHub("")
	if hub.ConnectionCount() != 0 {
		t.Fatalf("expected 0 connections, got %d", hub.ConnectionCount())
	}
	// No connections must not panic.
	hub.BroadcastEvent(context.Background(), "t1", broadcast.EventRunToken, broadcast.RunTokenEvent{RunID: "r1", Delta: "hi"})
}

func TestHubBroadcastEventMarshalError(t *testing.T) {
	hub := NewHub("")
	// A channel cannot be marshaled to JSON; logged, not panicking.
	hub.BroadcastEvent(context.Background(), "t1", "bad", make(chan int))
}

func TestHubRemoveNonexistent(t *testing.T) {
	hub := NewHub("")
	_, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub.remove(&conn{cancel: cancel, tenantID: "t1"})
}

func TestHandleWSRequiresTenant(t *testing.T) {
	hub := NewHub("")
	rec := httptest.NewRecorder()
	hub.HandleWS(rec, httptest.NewRequest(http.MethodGet, "/ws", http.NoBody))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?" + query
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, resp, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = c.CloseNow() })
	return c
}

func waitForConns(t *testing.T, hub *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for hub.ConnectionCount() < n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d connections, got %d", n, hub.ConnectionCount())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func readMessage(t *testing.T, c *websocket.Conn, timeout time.Duration) (Message, bool) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	_, data, err := c.Read(ctx)
	if err != nil {
		return Message{}, false
	}
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return m, true
}

func TestHubTenantIsolation(t *testing.T) {
	hub := NewHub("")
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()
	defer hub.Close()

	mine := dial(t, srv, "tenant_id=t1")
	other := dial(t, srv, "tenant_id=t2")
	waitForConns(t, hub, 2)

	hub.BroadcastEvent(context.Background(), "t1", broadcast.EventRunToken, broadcast.RunTokenEvent{RunID: "r1", Delta: "hel"})

	m, ok := readMessage(t, mine, 5*time.Second)
	if !ok {
		t.Fatal("tenant t1 client received nothing")
	}
	if m.Type != broadcast.EventRunToken {
		t.Fatalf("type = %q", m.Type)
	}
	var tok broadcast.RunTokenEvent
	if err := json.Unmarshal(m.Payload, &tok); err != nil || tok.Delta != "hel" {
		t.Fatalf("unexpected payload %s (%v)", m.Payload, err)
	}

	if _, ok := readMessage(t, other, 200*time.Millisecond); ok {
		t.Fatal("tenant t2 client received a t1 event")
	}
}

func TestHubRunFilter(t *testing.T) {
	hub := NewHub("")
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()
	defer hub.Close()

	filtered := dial(t, srv, "tenant_id=t1&run_id=r2")
	waitForConns(t, hub, 1)

	hub.BroadcastEvent(context.Background(), "t1", broadcast.EventRunToken, broadcast.RunTokenEvent{RunID: "r1", Delta: "x"})
	hub.BroadcastEvent(context.Background(), "t1", broadcast.EventRunFinished, broadcast.RunFinishedEvent{RunID: "r2", Status: "completed"})

	m, ok := readMessage(t, filtered, 5*time.Second)
	if !ok {
		t.Fatal("expected the r2 event")
	}
	if m.Type != broadcast.EventRunFinished {
		t.Fatalf("run filter leaked event %q", m.Type)
	}
}

func TestNewHubOriginPatterns(t *testing.T) {
	hub := NewHub(" https://console.example.com ,https://ops.example.com,")
	want := []string{"https://console.example.com", "https://ops.example.com"}
	if len(hub.originPatterns) != len(want) {
		t.Fatalf("expected %v, got %v", want, hub.originPatterns)
	}
	for i, p := range want {
		if hub.originPatterns[i] != p {
			t.Fatalf("pattern %d: expected %q, got %q", i, p, hub.originPatterns[i])
		}
	}
}
