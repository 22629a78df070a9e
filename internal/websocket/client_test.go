// Unified Inbox - Account Process Supervisor and Event Relay
// Copyright 2026 Shahzaib-ai70
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001

package websocket

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
)

// recordingHandler captures inbound frames and the close callback.
type recordingHandler struct {
	mu       sync.Mutex
	messages []Inbound
	closed   chan struct{}
	once     sync.Once
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{closed: make(chan struct{})}
}

func (h *recordingHandler) HandleMessage(c *Client, msg Inbound) {
	h.mu.Lock()
	h.messages = append(h.messages, msg)
	h.mu.Unlock()
	c.Send(Message{Type: "echo", Ref: msg.Ref, Data: msg.Type})
}

func (h *recordingHandler) HandleClose(*Client) {
	h.once.Do(func() { close(h.closed) })
}

// setupWebSocketServer serves a Client backed by handler.
func setupWebSocketServer(t *testing.T, handler Handler, clients chan<- *Client) *httptest.Server {
	t.Helper()
	upgrader := NewUpgrader([]string{"*"})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("Failed to upgrade connection: %v", err)
			return
		}
		c := NewClient(conn, handler, 8)
		c.Start()
		if clients != nil {
			clients <- c
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

// dialWebSocket establishes a WebSocket connection to the test server
func dialWebSocket(t *testing.T, server *httptest.Server, header http.Header) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	if resp != nil && resp.Body != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("Failed to dial websocket: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return m
}

func TestClient_PingPong(t *testing.T) {
	srv := setupWebSocketServer(t, newRecordingHandler(), nil)
	conn := dialWebSocket(t, srv, nil)

	if err := conn.WriteJSON(map[string]string{"type": "ping", "ref": "r1"}); err != nil {
		t.Fatal(err)
	}
	got := readFrame(t, conn)
	if got.Type != MessageTypePong || got.Ref != "r1" {
		t.Errorf("got %+v, want pong r1", got)
	}
}

func TestClient_ForwardsFramesToHandler(t *testing.T) {
	h := newRecordingHandler()
	srv := setupWebSocketServer(t, h, nil)
	conn := dialWebSocket(t, srv, nil)

	if err := conn.WriteJSON(map[string]any{"type": "join", "ref": "a", "data": map[string]string{"account_id": "acc1"}}); err != nil {
		t.Fatal(err)
	}
	got := readFrame(t, conn)
	if got.Type != "echo" || got.Ref != "a" || got.Data != "join" {
		t.Errorf("got %+v", got)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.messages) != 1 || string(h.messages[0].Data) != `{"account_id":"acc1"}` {
		t.Errorf("handler saw %+v", h.messages)
	}
}

func TestClient_MalformedFrame(t *testing.T) {
	srv := setupWebSocketServer(t, newRecordingHandler(), nil)
	conn := dialWebSocket(t, srv, nil)

	if err := conn.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatal(err)
	}
	if got := readFrame(t, conn); got.Type != MessageTypeError {
		t.Errorf("got %+v, want error frame", got)
	}
}

func TestClient_CloseFromServer(t *testing.T) {
	h := newRecordingHandler()
	clients := make(chan *Client, 1)
	srv := setupWebSocketServer(t, h, clients)
	conn := dialWebSocket(t, srv, nil)

	c := <-clients
	c.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Errorf("expected normal close, got %v", err)
	}
	select {
	case <-h.closed:
	case <-time.After(2 * time.Second):
		t.Error("HandleClose not called")
	}
}

func TestClient_CloseFromPeer(t *testing.T) {
	h := newRecordingHandler()
	srv := setupWebSocketServer(t, h, nil)
	conn := dialWebSocket(t, srv, nil)

	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = conn.Close()

	select {
	case <-h.closed:
	case <-time.After(2 * time.Second):
		t.Error("HandleClose not called after peer close")
	}
}

func TestClient_Constants(t *testing.T) {
	if pingPeriod >= pongWait {
		t.Errorf("pingPeriod %v must be less than pongWait %v", pingPeriod, pongWait)
	}
	if writeWait != 10*time.Second {
		t.Errorf("writeWait = %v", writeWait)
	}
}

func TestOriginChecker(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{"wildcard without origin", []string{"*"}, "", true},
		{"listed origin", []string{"https://inbox.example"}, "https://inbox.example", true},
		{"case insensitive", []string{"https://Inbox.example"}, "https://inbox.example", true},
		{"unlisted origin", []string{"https://inbox.example"}, "https://evil.example", false},
		{"missing origin", []string{"https://inbox.example"}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/ws", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			if got := originChecker(tt.allowed)(r); got != tt.want {
				t.Errorf("originChecker() = %v, want %v", got, tt.want)
			}
		})
	}
}
