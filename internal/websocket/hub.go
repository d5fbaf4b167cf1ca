// Package websocket pushes refresh events to connected UI clients. The hub
// holds every open socket; the session broadcasts an event after each applied
// folder refresh so open views re-render their merged listing.
package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Event is the wire shape of a hub broadcast.
type Event struct {
	Type   string `json:"type"`
	Folder string `json:"folder,omitempty"`
}

// EventFolderRefreshed announces that a folder's listing was re-fetched and
// the merged view changed underneath the client.
const EventFolderRefreshed = "folder_refreshed"

// Client wraps one WebSocket connection. Writes are serialized per client;
// gorilla connections do not tolerate concurrent writers.
type Client struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

// Conn returns the underlying WebSocket connection.
func (c *Client) Conn() *websocket.Conn {
	return c.conn
}

func (c *Client) write(msg []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, msg)
}

// Hub manages the set of active WebSocket connections. Multiple connections
// (several tabs) are expected.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	max     int
	logger  *zap.Logger
}

// NewHub creates a Hub with a connection limit.
func NewHub(max int, logger *zap.Logger) *Hub {
	if max <= 0 {
		max = 10
	}
	return &Hub{
		clients: make(map[*Client]struct{}),
		max:     max,
		logger:  logger,
	}
}

// Register adds a WebSocket connection. When the limit is exceeded the new
// connection is closed and nil is returned.
func (h *Hub) Register(conn *websocket.Conn) *Client {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.clients) >= h.max {
		h.logger.Warn("websocket connection limit reached, closing new connection",
			zap.Int("max", h.max))
		_ = conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "too many connections"),
			time.Time{},
		)
		_ = conn.Close()
		return nil
	}

	client := &Client{conn: conn}
	h.clients[client] = struct{}{}
	return client
}

// Unregister removes a client and closes its connection.
func (h *Hub) Unregister(client *Client) {
	if client == nil {
		return
	}

	h.mu.Lock()
	delete(h.clients, client)
	h.mu.Unlock()

	_ = client.conn.Close()
}

// BroadcastFolderRefreshed sends a folder_refreshed event to every client.
func (h *Hub) BroadcastFolderRefreshed(folder string) {
	h.Broadcast(Event{Type: EventFolderRefreshed, Folder: folder})
}

// Broadcast sends an event to every active client. Clients whose write fails
// are unregistered.
func (h *Hub) Broadcast(event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("failed to marshal websocket event", zap.Error(err))
		return
	}

	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		if err := client.write(payload); err != nil {
			h.logger.Warn("failed to write websocket message", zap.Error(err))
			go h.Unregister(client)
		}
	}
}

// ActiveConnections returns the number of active WebSocket connections.
func (h *Hub) ActiveConnections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
