package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/skysync/internal/infrastructure/config"
)

// Frame types on the change stream.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"

	wsQueueSize = 256
)

// WSMessage is one frame. Server-sent event frames carry an events.Event
// as Payload and its kind as EventType.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// WSSubscribePayload is the payload of subscribe and unsubscribe frames.
// Each channel is an event kind or "*", optionally followed by
// ":<panel id>".
type WSSubscribePayload struct {
	Channels []string `json:"channels"`
}

// wsRequest is an inbound frame with its payload left undecoded.
type wsRequest struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// WSClient is one change-stream connection.
type WSClient struct {
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	subject string // token subject; empty with auth disabled

	mu      sync.RWMutex
	filters map[channelFilter]struct{}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origins are enforced by the CORS middleware and the token check.
	CheckOrigin: func(*http.Request) bool { return true },
}

// handleWebSocket upgrades to a change-stream connection. authMiddleware
// has already validated the token when auth is enabled.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &WSClient{
		hub:     s.hub,
		conn:    conn,
		send:    make(chan []byte, wsQueueSize),
		filters: make(map[channelFilter]struct{}),
	}
	if claims := claimsFromContext(r.Context()); claims != nil {
		c.subject = claims.Subject
	}

	s.hub.Register(c)
	go c.writePump(s.wsCfg)
	go c.readPump(s.wsCfg)
}

func liveness(cfg config.WebSocketConfig) (ping, wait time.Duration) {
	ping = time.Duration(cfg.PingInterval) * time.Second
	wait = time.Duration(cfg.PongTimeout) * time.Second
	return ping, wait
}

func (c *WSClient) readPump(cfg config.WebSocketConfig) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	ping, wait := liveness(cfg)
	extend := func() error { return c.conn.SetReadDeadline(time.Now().Add(ping + wait)) }

	c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	_ = extend()
	c.conn.SetPongHandler(func(string) error { return extend() })

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read failed", "subject", c.subject, "error", err)
			}
			return
		}
		// Any inbound frame counts as liveness.
		_ = extend()
		c.handle(data)
	}
}

func (c *WSClient) writePump(cfg config.WebSocketConfig) {
	ping, wait := liveness(cfg)
	ticker := time.NewTicker(ping)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	write := func(kind int, data []byte) error {
		_ = c.conn.SetWriteDeadline(time.Now().Add(wait))
		return c.conn.WriteMessage(kind, data)
	}

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				_ = write(websocket.CloseMessage, nil)
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
		c.reply("", WSTypeError, map[string]string{"message": "invalid JSON frame"})
		return
	}

	switch req.Type {
	case WSTypeSubscribe, WSTypeUnsubscribe:
		c.subscription(req)
	case WSTypePing:
		c.reply(req.ID, WSTypePong, nil)
	default:
		c.reply(req.ID, WSTypeError, map[string]string{"message": "unknown frame type: " + req.Type})
	}
}

// subscription applies a subscribe or unsubscribe frame. Channels that do
// not parse are reported back and the rest still apply.
func (c *WSClient) subscription(req wsRequest) {
	var body WSSubscribePayload
	if err := json.Unmarshal(req.Payload, &body); err != nil || len(body.Channels) == 0 {
		c.reply(req.ID, WSTypeError, map[string]string{"message": req.Type + " needs a non-empty channels list"})
		return
	}

	applied := make([]string, 0, len(body.Channels))
	var rejected []string

	c.mu.Lock()
	for _, raw := range body.Channels {
		f, ok := parseChannel(raw)
		if !ok {
			rejected = append(rejected, raw)
			continue
		}
		if req.Type == WSTypeSubscribe {
			c.filters[f] = struct{}{}
		} else {
			delete(c.filters, f)
		}
		applied = append(applied, f.String())
	}
	c.mu.Unlock()

	key := "unsubscribed"
	if req.Type == WSTypeSubscribe {
		key = "subscribed"
		c.hub.logger.Debug("websocket subscription", "channels", applied, "subject", c.subject)
	}
	resp := map[string]any{key: applied}
	if len(rejected) > 0 {
		resp["rejected"] = rejected
	}
	c.reply(req.ID, WSTypeResponse, resp)
}

func (c *WSClient) wants(kind, panelID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for f := range c.filters {
		if f.matches(kind, panelID) {
			return true
		}
	}
	return false
}

// enqueue queues data without blocking. It reports false when the queue
// is full or already closed.
func (c *WSClient) enqueue(data []byte) (ok bool) {
	defer func() {
		// send on a queue closed by a concurrent Unregister
		if recover() != nil {
			ok = false
		}
	}()
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *WSClient) reply(id, typ string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      typ,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		return
	}
	c.enqueue(data)
}
