package api

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/skysync/internal/events"
	"github.com/nerrad567/skysync/internal/infrastructure/config"
	"github.com/nerrad567/skysync/internal/infrastructure/logging"
)

// channelAll subscribes to every event kind on every panel.
const channelAll = "*"

// channelFilter is one parsed subscription: an event kind, or channelAll,
// optionally narrowed to a panel ("device.changed:123456").
type channelFilter struct {
	kind  string
	panel string
}

func parseChannel(s string) (channelFilter, bool) {
	kind, panel, _ := strings.Cut(strings.TrimSpace(s), ":")
	if kind == "" {
		return channelFilter{}, false
	}
	if kind != channelAll && !events.Kind(kind).Valid() {
		return channelFilter{}, false
	}
	return channelFilter{kind: kind, panel: panel}, true
}

func (f channelFilter) matches(kind, panelID string) bool {
	if f.kind != channelAll && f.kind != kind {
		return false
	}
	return f.panel == "" || f.panel == panelID
}

func (f channelFilter) String() string {
	if f.panel == "" {
		return f.kind
	}
	return f.kind + ":" + f.panel
}

// Hub fans change events out to WebSocket clients. It is the events sink
// named "websocket".
type Hub struct {
	cfg    config.WebSocketConfig
	logger *logging.Logger

	mu      sync.RWMutex
	clients map[*WSClient]struct{}

	dropped atomic.Uint64
}

var _ events.Sink = (*Hub)(nil)

// HubStats is reported on the health endpoint.
type HubStats struct {
	Clients int    `json:"clients"`
	Dropped uint64 `json:"dropped"`
}

// NewHub creates an empty hub.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[*WSClient]struct{}),
	}
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// Name implements events.Sink.
func (h *Hub) Name() string { return "websocket" }

// Handle implements events.Sink. It never blocks on a slow client.
func (h *Hub) Handle(_ context.Context, ev events.Event) error {
	h.Broadcast(string(ev.Kind), ev.PanelID, ev)
	return nil
}

// Register adds a client.
func (h *Hub) Register(c *WSClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "clients", n, "subject", c.subject)
}

// Unregister removes a client and closes its outbound queue. Only the
// caller that actually removes the client closes the queue.
func (h *Hub) Unregister(c *WSClient) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		close(c.send)
		h.logger.Debug("websocket client disconnected", "clients", n, "subject", c.subject)
	}
}

// Broadcast delivers payload as an event frame to every client with a
// filter matching kind and panelID. A client whose queue is full misses
// the frame and the drop is counted.
func (h *Hub) Broadcast(kind, panelID string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      WSTypeEvent,
		EventType: kind,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		h.logger.Error("encoding websocket event", "kind", kind, "error", err)
		return
	}

	// Snapshot under the hub lock; client locks are taken after release.
	h.mu.RLock()
	clients := make([]*WSClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if !c.wants(kind, panelID) {
			continue
		}
		if !c.enqueue(data) {
			h.dropped.Add(1)
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Stats returns the client count and the frames dropped on full queues.
func (h *Hub) Stats() HubStats {
	return HubStats{Clients: h.ClientCount(), Dropped: h.dropped.Load()}
}

func (h *Hub) closeAll() {
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
