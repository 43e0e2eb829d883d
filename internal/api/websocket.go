package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nk-gears/node-red-contrib-google-smarthome/internal/device"
	"github.com/nk-gears/node-red-contrib-google-smarthome/internal/infrastructure/config"
	"github.com/nk-gears/node-red-contrib-google-smarthome/internal/infrastructure/logging"
)

// WebSocket message types.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"
)

// Event types carried in WSMessage.EventType.
const (
	// ChannelDeviceState carries a device.Report after every notified merge.
	ChannelDeviceState = "device.state_changed"

	// EventDeviceSnapshot carries a SnapshotPayload right after a subscribe.
	EventDeviceSnapshot = "device.snapshot"
)

// wsSendBufferSize is the per-client outbound message buffer size.
const wsSendBufferSize = 256

// WSMessage is the envelope of every message sent to a client.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// wsRequest is a message received from a client.
type wsRequest struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// WSSubscribePayload selects what a client follows.
//
// Channels may be omitted; the only channel is ChannelDeviceState. An empty
// DeviceIDs list follows every device. On unsubscribe, DeviceIDs removes
// those devices and an empty list stops the stream.
type WSSubscribePayload struct {
	Channels  []string `json:"channels,omitempty"`
	DeviceIDs []string `json:"device_ids,omitempty"`
}

// SnapshotPayload is the current state of the followed devices.
type SnapshotPayload struct {
	Version uint64                   `json:"version"`
	States  map[string]device.States `json:"states"`
}

// StateSource provides the snapshot sent after a subscribe.
// *device.Registry implements it.
type StateSource interface {
	Snapshot(ids []string) (map[string]device.States, uint64)
}

// Hub streams registry state changes to WebSocket clients. It is a
// device.Reporter: add it to the registry to feed it.
type Hub struct {
	cfg    config.WebSocketConfig
	logger *logging.Logger
	source StateSource

	mu      sync.RWMutex
	clients map[*WSClient]struct{}
}

// WSClient is one connected WebSocket client and what it follows.
type WSClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu         sync.Mutex
	subscribed bool
	devices    map[string]struct{} // nil follows every device
	lastSent   uint64              // highest registry version delivered
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Origin checking is handled by CORS middleware
		return true
	},
}

// NewHub creates a hub. source may be nil, in which case subscribers get no
// initial snapshot.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger, source StateSource) *Hub {
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		source:  source,
		clients: make(map[*WSClient]struct{}),
	}
}

func newWSClient(hub *Hub, conn *websocket.Conn) *WSClient {
	return &WSClient{
		hub:  hub,
		conn: conn,
		send: make(chan []byte, wsSendBufferSize),
	}
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		close(c.send)
		if c.conn != nil {
			c.conn.Close()
		}
		delete(h.clients, c)
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(c *WSClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "clients", n)
}

// Unregister removes a client. Only the call that removes it closes its
// send channel, so it is safe to call twice.
func (h *Hub) Unregister(c *WSClient) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		close(c.send)
	}
	h.logger.Debug("websocket client disconnected", "clients", n)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ReportState implements device.Reporter. The report goes to every client
// following r.DeviceID that has not already seen r.Version in a snapshot.
func (h *Hub) ReportState(r device.Report) {
	data, err := encodeEvent(ChannelDeviceState, r)
	if err != nil {
		h.logger.Error("failed to encode state report", "device_id", r.DeviceID, "error", err)
		return
	}

	h.mu.RLock()
	clients := make([]*WSClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	sent := 0
	for _, c := range clients {
		if c.deliver(r, data) {
			sent++
		}
	}
	if sent > 0 {
		h.logger.Debug("state report sent", "device_id", r.DeviceID, "version", r.Version, "recipients", sent)
	}
}

func encodeEvent(eventType string, payload any) ([]byte, error) {
	return json.Marshal(WSMessage{
		Type:      WSTypeEvent,
		EventType: eventType,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
}

// handleWebSocket upgrades the connection. Clients receive nothing until
// they subscribe.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	c := newWSClient(s.hub, conn)
	s.hub.Register(c)

	go c.writePump(s.wsCfg)
	go c.readPump(s.wsCfg)
}

// deliver sends a state report if the client follows the device and has
// not seen this version yet.
func (c *WSClient) deliver(r device.Report, data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.subscribed || r.Version <= c.lastSent {
		return false
	}
	if c.devices != nil {
		if _, ok := c.devices[r.DeviceID]; !ok {
			return false
		}
	}
	c.lastSent = r.Version
	c.trySend(data)
	return true
}

// subscribe replaces the device filter and queues a snapshot of the
// followed devices. The snapshot and the filter change happen under the
// client lock, so no report can slip in between them.
func (c *WSClient) subscribe(reqID string, sub WSSubscribePayload) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.subscribed = true
	c.devices = nil
	if len(sub.DeviceIDs) > 0 {
		c.devices = make(map[string]struct{}, len(sub.DeviceIDs))
		for _, id := range sub.DeviceIDs {
			c.devices[id] = struct{}{}
		}
	}

	c.respond(reqID, WSTypeResponse, map[string]any{
		"subscribed": []string{ChannelDeviceState},
		"device_ids": sub.DeviceIDs,
	})

	if c.hub.source == nil {
		return
	}
	states, version := c.hub.source.Snapshot(sub.DeviceIDs)
	data, err := encodeEvent(EventDeviceSnapshot, SnapshotPayload{Version: version, States: states})
	if err != nil {
		c.hub.logger.Error("failed to encode snapshot", "error", err)
		return
	}
	if version > c.lastSent {
		c.lastSent = version
	}
	c.trySend(data)
}

// unsubscribe drops the given devices, or the whole stream when ids is
// empty.
func (c *WSClient) unsubscribe(reqID string, ids []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(ids) == 0 {
		c.subscribed = false
		c.devices = nil
	} else if c.devices != nil {
		for _, id := range ids {
			delete(c.devices, id)
		}
	}

	c.respond(reqID, WSTypeResponse, map[string]any{"unsubscribed": ids})
}

func (c *WSClient) readPump(cfg config.WebSocketConfig) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	wait := time.Duration(cfg.PingInterval+cfg.PongTimeout) * time.Second
	extend := func() error { return c.conn.SetReadDeadline(time.Now().Add(wait)) }

	c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	//nolint:errcheck // Best-effort deadline on connection setup
	extend()
	c.conn.SetPongHandler(func(string) error { return extend() })

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "error", err)
			}
			return
		}
		// Browsers do not always answer protocol pings; any message counts.
		//nolint:errcheck // Best-effort deadline reset
		extend()
		c.handle(data)
	}
}

func (c *WSClient) writePump(cfg config.WebSocketConfig) {
	ticker := time.NewTicker(time.Duration(cfg.PingInterval) * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	writeWait := time.Duration(cfg.PongTimeout) * time.Second
	write := func(kind int, data []byte) error {
		//nolint:errcheck // Best-effort deadline; write error caught by caller
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		return c.conn.WriteMessage(kind, data)
	}

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				//nolint:errcheck // Best-effort close frame
				write(websocket.CloseMessage, nil)
				return
			}
			if err := write(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			if err := write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *WSClient) handle(data []byte) {
	var req wsRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.respondError("", "invalid JSON message")
		return
	}

	switch req.Type {
	case WSTypePing:
		c.respond(req.ID, WSTypePong, nil)
	case WSTypeSubscribe, WSTypeUnsubscribe:
		var sub WSSubscribePayload
		if len(req.Payload) > 0 {
			if err := json.Unmarshal(req.Payload, &sub); err != nil {
				c.respondError(req.ID, "invalid "+req.Type+" payload")
				return
			}
		}
		for _, ch := range sub.Channels {
			if ch != ChannelDeviceState {
				c.respondError(req.ID, "unknown channel: "+ch)
				return
			}
		}
		if req.Type == WSTypeSubscribe {
			c.subscribe(req.ID, sub)
			c.hub.logger.Debug("websocket client subscribed", "device_ids", sub.DeviceIDs)
		} else {
			c.unsubscribe(req.ID, sub.DeviceIDs)
		}
	default:
		c.respondError(req.ID, "unknown message type: "+req.Type)
	}
}

func (c *WSClient) respond(id, msgType string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      msgType,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		return
	}
	c.trySend(data)
}

func (c *WSClient) respondError(id, message string) {
	c.respond(id, WSTypeError, map[string]string{"message": message})
}

// trySend queues data without blocking. Messages to a full buffer are
// dropped, and a send racing with Unregister is absorbed.
func (c *WSClient) trySend(data []byte) {
	defer func() {
		recover() //nolint:errcheck // send on a channel closed by Unregister
	}()

	select {
	case c.send <- data:
	default:
	}
}
