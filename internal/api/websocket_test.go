package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-telemetry/internal/auth"
	"github.com/nerrad567/gray-logic-telemetry/internal/event"
	"github.com/nerrad567/gray-logic-telemetry/internal/live"
)

const testJWTSecret = "test-secret-key-at-least-32-characters-long"

// wsMessage mirrors WSMessage with a raw payload for decoding in tests.
type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload"`
}

func dialWS(t *testing.T, srv *Server, query string) *websocket.Conn {
	t.Helper()
	ts := httptest.NewServer(srv.buildRouter())
	t.Cleanup(ts.Close)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws" + query
	ws, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("websocket dial failed: %v (resp: %v)", err, resp)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { ws.Close() })

	// Registration happens after the upgrade returns.
	deadline := time.Now().Add(2 * time.Second)
	for srv.hub.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client was not registered with the hub")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return ws
}

func readWS(t *testing.T, ws *websocket.Conn) wsMessage {
	t.Helper()
	//nolint:errcheck // test read deadline
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg wsMessage
	if err := ws.ReadJSON(&msg); err != nil {
		t.Fatalf("read message: %v", err)
	}
	return msg
}

func TestWebSocket_StateDelta(t *testing.T) {
	srv, _ := testServer(t, nil)
	ws := dialWS(t, srv, "")

	payload := event.MustPayload(event.Field{Name: "value", Value: event.Float(21.5)})
	srv.hub.Notify("dev-1", "temp", payload, testEpoch)

	msg := readWS(t, ws)
	if msg.Type != WSTypeStateDelta {
		t.Fatalf("type = %q, want %q", msg.Type, WSTypeStateDelta)
	}
	var delta struct {
		DeviceID  string             `json:"device_id"`
		Channel   string             `json:"channel"`
		Timestamp time.Time          `json:"timestamp"`
		Payload   map[string]float64 `json:"payload"`
	}
	if err := json.Unmarshal(msg.Payload, &delta); err != nil {
		t.Fatalf("decode delta: %v", err)
	}
	if delta.DeviceID != "dev-1" || delta.Channel != "temp" {
		t.Errorf("delta key = %s/%s, want dev-1/temp", delta.DeviceID, delta.Channel)
	}
	if !delta.Timestamp.Equal(testEpoch) {
		t.Errorf("timestamp = %v, want %v", delta.Timestamp, testEpoch)
	}
	if delta.Payload["value"] != 21.5 {
		t.Errorf("payload value = %v, want 21.5", delta.Payload["value"])
	}
}

func TestWebSocket_GetState(t *testing.T) {
	entry := live.Entry{
		Payload:   event.MustPayload(event.Field{Name: "on", Value: event.Bool(true)}),
		Timestamp: testEpoch,
	}
	srv, _ := testServer(t, func(d *Deps) {
		d.State = fakeState{"relay-7": {"state": entry}}
	})
	ws := dialWS(t, srv, "")

	if err := ws.WriteJSON(WSMessage{
		Type:    WSTypeGetState,
		ID:      "req-1",
		Payload: WSGetStatePayload{DeviceID: "relay-7"},
	}); err != nil {
		t.Fatalf("write get_state: %v", err)
	}

	msg := readWS(t, ws)
	if msg.Type != WSTypeStateSnapshot {
		t.Fatalf("type = %q, want %q", msg.Type, WSTypeStateSnapshot)
	}
	if msg.ID != "req-1" {
		t.Errorf("id = %q, want req-1", msg.ID)
	}
	var snap struct {
		DeviceID string `json:"device_id"`
		Channels map[string]struct {
			Payload map[string]bool `json:"payload"`
		} `json:"channels"`
	}
	if err := json.Unmarshal(msg.Payload, &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if !snap.Channels["state"].Payload["on"] {
		t.Errorf("snapshot = %+v, want state.on = true", snap)
	}

	// Unknown device
	if err := ws.WriteJSON(WSMessage{
		Type:    WSTypeGetState,
		ID:      "req-2",
		Payload: WSGetStatePayload{DeviceID: "ghost"},
	}); err != nil {
		t.Fatalf("write get_state: %v", err)
	}
	if msg := readWS(t, ws); msg.Type != WSTypeError || msg.ID != "req-2" {
		t.Errorf("got %s/%s, want error/req-2", msg.Type, msg.ID)
	}
}

func TestWebSocket_SubscribeFiltersDevices(t *testing.T) {
	srv, _ := testServer(t, nil)
	ws := dialWS(t, srv, "")

	if err := ws.WriteJSON(WSMessage{
		Type:    WSTypeSubscribe,
		ID:      "sub-1",
		Payload: WSSubscribePayload{Devices: []string{"dev-2"}},
	}); err != nil {
		t.Fatalf("write subscribe: %v", err)
	}
	if msg := readWS(t, ws); msg.Type != WSTypeResponse || msg.ID != "sub-1" {
		t.Fatalf("got %s/%s, want response/sub-1", msg.Type, msg.ID)
	}

	p := event.MustPayload(event.Field{Name: "v", Value: event.Int(1)})
	srv.hub.Notify("dev-1", "temp", p, testEpoch)
	srv.hub.Notify("dev-2", "temp", p, testEpoch)

	msg := readWS(t, ws)
	var delta struct {
		DeviceID string `json:"device_id"`
	}
	if err := json.Unmarshal(msg.Payload, &delta); err != nil {
		t.Fatalf("decode delta: %v", err)
	}
	if delta.DeviceID != "dev-2" {
		t.Errorf("first delta for %q, want dev-2", delta.DeviceID)
	}
}

func TestWebSocket_PingAndUnknown(t *testing.T) {
	srv, _ := testServer(t, nil)
	ws := dialWS(t, srv, "")

	if err := ws.WriteJSON(WSMessage{Type: WSTypePing, ID: "p1"}); err != nil {
		t.Fatalf("write ping: %v", err)
	}
	if msg := readWS(t, ws); msg.Type != WSTypePong || msg.ID != "p1" {
		t.Errorf("got %s/%s, want pong/p1", msg.Type, msg.ID)
	}

	if err := ws.WriteJSON(WSMessage{Type: "explode", ID: "x"}); err != nil {
		t.Fatalf("write unknown: %v", err)
	}
	if msg := readWS(t, ws); msg.Type != WSTypeError {
		t.Errorf("type = %q, want %q", msg.Type, WSTypeError)
	}

	if err := ws.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("write invalid: %v", err)
	}
	if msg := readWS(t, ws); msg.Type != WSTypeError {
		t.Errorf("type = %q, want %q", msg.Type, WSTypeError)
	}
}

func TestWebSocket_TokenRequired(t *testing.T) {
	srv, _ := testServer(t, func(d *Deps) { d.Security.JWT.Secret = testJWTSecret })

	tests := []struct {
		name  string
		query string
	}{
		{"no token", ""},
		{"garbage token", "?token=abc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(srv, httptest.NewRequest(http.MethodGet, "/ws"+tt.query, nil))
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
			}
		})
	}

	wrongScope, err := auth.GenerateToken("ops", "ingest", testJWTSecret, time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/ws?token="+wrongScope, nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong scope status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestWebSocket_ValidToken(t *testing.T) {
	srv, _ := testServer(t, func(d *Deps) { d.Security.JWT.Secret = testJWTSecret })

	token, err := auth.GenerateToken("wall-display", auth.ScopeDashboard, testJWTSecret, time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	dialWS(t, srv, "?token="+token)

	if n := srv.hub.ClientCount(); n != 1 {
		t.Errorf("hub client count = %d, want 1", n)
	}
}

func TestHub_NotifyDoesNotBlockOnSlowClient(t *testing.T) {
	srv, _ := testServer(t, nil)
	client := &WSClient{
		hub:           srv.hub,
		send:          make(chan []byte, 1),
		subscriptions: make(map[string]struct{}),
	}
	srv.hub.Register(client)

	p := event.MustPayload(event.Field{Name: "v", Value: event.Int(1)})
	done := make(chan struct{})
	go func() {
		for range 10 {
			srv.hub.Notify("dev-1", "temp", p, testEpoch)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Notify blocked on a full client buffer")
	}
	if len(client.send) != 1 {
		t.Errorf("buffered = %d, want 1", len(client.send))
	}
}

func TestHub_UnregisterTwice(t *testing.T) {
	srv, _ := testServer(t, nil)
	client := &WSClient{hub: srv.hub, send: make(chan []byte, 1), subscriptions: map[string]struct{}{}}

	srv.hub.Register(client)
	srv.hub.Unregister(client)
	srv.hub.Unregister(client)

	if n := srv.hub.ClientCount(); n != 0 {
		t.Errorf("client count = %d, want 0", n)
	}
}
