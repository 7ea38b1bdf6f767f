package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-telemetry/internal/auth"
	"github.com/nerrad567/gray-logic-telemetry/internal/event"
	"github.com/nerrad567/gray-logic-telemetry/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-telemetry/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-telemetry/internal/live"
)

// Dashboard message types.
const (
	WSTypeSubscribe     = "subscribe"
	WSTypeUnsubscribe   = "unsubscribe"
	WSTypeGetState      = "get_state"
	WSTypePing          = "ping"
	WSTypePong          = "pong"
	WSTypeStateDelta    = "state.delta"
	WSTypeStateSnapshot = "state.snapshot"
	WSTypeResponse      = "response"
	WSTypeError         = "error"
)

// WSMessage is the envelope of every dashboard frame, in both directions.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// WSSubscribePayload is the payload for subscribe/unsubscribe messages.
// A client with no subscriptions receives deltas for every device.
type WSSubscribePayload struct {
	Devices []string `json:"devices"`
}

// WSGetStatePayload is the payload of a get_state request.
type WSGetStatePayload struct {
	DeviceID string `json:"device_id"`
}

// StateDelta is the payload of a state.delta message.
type StateDelta struct {
	DeviceID  string        `json:"device_id"`
	Channel   string        `json:"channel"`
	Timestamp time.Time     `json:"timestamp"`
	Payload   event.Payload `json:"payload"`
}

// StateSnapshot is the payload of a state.snapshot message.
type StateSnapshot struct {
	DeviceID string                `json:"device_id"`
	Channels map[string]live.Entry `json:"channels"`
}

// encodeFrame renders one outbound frame.
func encodeFrame(msgType, id string, payload any) ([]byte, error) {
	return json.Marshal(WSMessage{
		Type:      msgType,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
}

// Hub fans live state deltas out to dashboard connections.
// It implements live.Notifier; Notify never waits on a browser.
type Hub struct {
	cfg    config.WebSocketConfig
	logger *logging.Logger

	mu      sync.RWMutex
	clients map[*WSClient]struct{}

	stateMu sync.RWMutex
	state   StateReader
}

var _ live.Notifier = (*Hub)(nil)

// NewHub creates a hub with no clients. Call Run to tie its lifetime to a context.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[*WSClient]struct{}),
	}
}

// SetStateReader installs the source answering get_state requests.
func (h *Hub) SetStateReader(r StateReader) {
	h.stateMu.Lock()
	h.state = r
	h.stateMu.Unlock()
}

func (h *Hub) stateReader() StateReader {
	h.stateMu.RLock()
	defer h.stateMu.RUnlock()
	return h.state
}

// Run blocks until ctx ends, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*WSClient]struct{})
	h.mu.Unlock()

	for c := range clients {
		c.shutdown()
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(c *WSClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "clients", n, "subject", c.subject)
}

// Unregister removes a client. Repeated calls are harmless.
func (h *Hub) Unregister(c *WSClient) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		c.closeSend()
		h.logger.Debug("websocket client disconnected", "clients", n)
	}
}

// Notify pushes a state delta to every client watching deviceID.
// A client whose buffer is full misses the delta.
func (h *Hub) Notify(deviceID, channel string, payload event.Payload, ts time.Time) {
	frame, err := encodeFrame(WSTypeStateDelta, "", StateDelta{
		DeviceID:  deviceID,
		Channel:   channel,
		Timestamp: ts,
		Payload:   payload,
	})
	if err != nil {
		h.logger.Error("failed to encode state delta", "device_id", deviceID, "error", err)
		return
	}

	h.mu.RLock()
	targets := make([]*WSClient, 0, len(h.clients))
	for c := range h.clients {
		if c.wants(deviceID) {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.deliver(frame)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origins are filtered by corsMiddleware.
	CheckOrigin: func(*http.Request) bool { return true },
}

// handleWebSocket upgrades a dashboard connection. With a JWT secret
// configured, a dashboard-scoped token is required in ?token= or a
// Bearer Authorization header.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	var subject string
	if secret := s.secCfg.JWT.Secret; secret != "" {
		token := dashboardToken(r)
		if token == "" {
			writeUnauthorized(w, "token is required")
			return
		}
		claims, err := auth.ParseToken(token, secret)
		if err != nil || claims.Scope != auth.ScopeDashboard {
			writeUnauthorized(w, "invalid or expired token")
			return
		}
		subject = claims.Subject
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := newWSClient(s.hub, conn, subject)
	s.hub.Register(c)
	c.serve(timingsFrom(s.wsCfg))
}

func dashboardToken(r *http.Request) string {
	if t := r.URL.Query().Get("token"); t != "" {
		return t
	}
	h := r.Header.Get("Authorization")
	if t, ok := strings.CutPrefix(h, "Bearer "); ok {
		return t
	}
	return ""
}
