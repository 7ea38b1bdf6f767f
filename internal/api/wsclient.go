package api

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-telemetry/internal/infrastructure/config"
)

const (
	defaultSendBuffer   = 256
	defaultPingInterval = 30 * time.Second
	defaultPongTimeout  = 10 * time.Second
	defaultReadLimit    = 4096
)

// wsTimings holds the resolved keepalive settings for one connection.
type wsTimings struct {
	ping      time.Duration
	pong      time.Duration
	readLimit int64
}

func timingsFrom(cfg config.WebSocketConfig) wsTimings {
	t := wsTimings{
		ping:      time.Duration(cfg.PingInterval) * time.Second,
		pong:      time.Duration(cfg.PongTimeout) * time.Second,
		readLimit: int64(cfg.MaxMessageSize),
	}
	if t.ping <= 0 {
		t.ping = defaultPingInterval
	}
	if t.pong <= 0 {
		t.pong = defaultPongTimeout
	}
	if t.readLimit <= 0 {
		t.readLimit = defaultReadLimit
	}
	return t
}

// idle is how long a connection may stay silent before it is dropped.
func (t wsTimings) idle() time.Duration { return t.ping + t.pong }

// WSClient is one dashboard connection.
type WSClient struct {
	hub  *Hub
	conn *websocket.Conn

	// send is closed exactly once, by closeSend, under sendMu.
	sendMu sync.RWMutex
	send   chan []byte
	closed bool

	mu            sync.RWMutex
	subscriptions map[string]struct{}
	subject       string // token subject; empty when auth is disabled
}

func newWSClient(h *Hub, conn *websocket.Conn, subject string) *WSClient {
	size := h.cfg.SendBuffer
	if size <= 0 {
		size = defaultSendBuffer
	}
	return &WSClient{
		hub:           h,
		conn:          conn,
		send:          make(chan []byte, size),
		subscriptions: make(map[string]struct{}),
		subject:       subject,
	}
}

// serve starts the connection's reader and writer.
func (c *WSClient) serve(t wsTimings) {
	go c.writeLoop(t)
	go c.readLoop(t)
}

// deliver queues a frame without blocking. It reports false when the frame
// was discarded because the client is gone or its buffer is full.
func (c *WSClient) deliver(frame []byte) bool {
	c.sendMu.RLock()
	defer c.sendMu.RUnlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

func (c *WSClient) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// shutdown is used by the hub when it stops; the writer sends a close frame.
func (c *WSClient) shutdown() {
	c.closeSend()
}

func (c *WSClient) wants(deviceID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.subscriptions) == 0 {
		return true
	}
	_, ok := c.subscriptions[deviceID]
	return ok
}

func (c *WSClient) readLoop(t wsTimings) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	extend := func() error { return c.conn.SetReadDeadline(time.Now().Add(t.idle())) }

	c.conn.SetReadLimit(t.readLimit)
	_ = extend() //nolint:errcheck // a failed deadline surfaces on the next read
	c.conn.SetPongHandler(func(string) error { return extend() })

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "error", err)
			}
			return
		}
		// Browsers do not always answer protocol pings; any frame counts.
		_ = extend() //nolint:errcheck // as above
		c.dispatch(data)
	}
}

func (c *WSClient) writeLoop(t wsTimings) {
	ticker := time.NewTicker(t.ping)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	write := func(kind int, data []byte) error {
		_ = c.conn.SetWriteDeadline(time.Now().Add(t.pong)) //nolint:errcheck // write reports it
		return c.conn.WriteMessage(kind, data)
	}

	for {
		select {
		case frame, ok := <-c.send:
			if !ok {
				_ = write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "")) //nolint:errcheck // closing anyway
				return
			}
			if write(websocket.TextMessage, frame) != nil {
				return
			}
		case <-ticker.C:
			if write(websocket.PingMessage, nil) != nil {
				return
			}
		}
	}
}

// dispatch handles one inbound frame.
func (c *WSClient) dispatch(data []byte) {
	var in struct {
		Type    string          `json:"type"`
		ID      string          `json:"id"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &in); err != nil {
		c.reply("", WSTypeError, errorBody("invalid JSON message"))
		return
	}

	switch in.Type {
	case WSTypePing:
		c.reply(in.ID, WSTypePong, nil)
	case WSTypeSubscribe, WSTypeUnsubscribe:
		c.updateSubscriptions(in.ID, in.Payload, in.Type == WSTypeSubscribe)
	case WSTypeGetState:
		c.snapshot(in.ID, in.Payload)
	default:
		c.reply(in.ID, WSTypeError, errorBody("unknown message type: "+in.Type))
	}
}

func (c *WSClient) snapshot(id string, raw json.RawMessage) {
	var req WSGetStatePayload
	if json.Unmarshal(raw, &req) != nil || req.DeviceID == "" {
		c.reply(id, WSTypeError, errorBody("get_state requires payload.device_id"))
		return
	}

	reader := c.hub.stateReader()
	if reader == nil {
		c.reply(id, WSTypeError, errorBody("live state is not available"))
		return
	}
	channels, ok := reader.GetState(req.DeviceID)
	if !ok {
		c.reply(id, WSTypeError, errorBody("device not found: "+req.DeviceID))
		return
	}
	c.reply(id, WSTypeStateSnapshot, StateSnapshot{DeviceID: req.DeviceID, Channels: channels})
}

func (c *WSClient) updateSubscriptions(id string, raw json.RawMessage, add bool) {
	var sub WSSubscribePayload
	if json.Unmarshal(raw, &sub) != nil {
		c.reply(id, WSTypeError, errorBody("invalid subscribe payload"))
		return
	}

	c.mu.Lock()
	for _, dev := range sub.Devices {
		if add {
			c.subscriptions[dev] = struct{}{}
		} else {
			delete(c.subscriptions, dev)
		}
	}
	c.mu.Unlock()

	if add {
		c.reply(id, WSTypeResponse, map[string]any{"subscribed": sub.Devices})
		return
	}
	c.reply(id, WSTypeResponse, map[string]any{"unsubscribed": sub.Devices})
}

func (c *WSClient) reply(id, msgType string, payload any) {
	frame, err := encodeFrame(msgType, id, payload)
	if err != nil {
		c.hub.logger.Error("failed to encode websocket reply", "type", msgType, "error", err)
		return
	}
	c.deliver(frame)
}

func errorBody(msg string) map[string]string {
	return map[string]string{"message": msg}
}
