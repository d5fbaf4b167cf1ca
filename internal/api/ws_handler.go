package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"mailview/backend/internal/poll"
	ws "mailview/backend/internal/websocket"
)

// WebSocketHandler handles /api/v1/ws. The socket carries refresh events to
// the client, and visibility and focus reports back from it; those reports
// drive the polling delays.
type WebSocketHandler struct {
	hub     *ws.Hub
	signals *poll.EnvSignals
	logger  *zap.Logger
}

// NewWebSocketHandler creates a WebSocketHandler.
func NewWebSocketHandler(hub *ws.Hub, signals *poll.EnvSignals, logger *zap.Logger) *WebSocketHandler {
	return &WebSocketHandler{hub: hub, signals: signals, logger: logger}
}

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// The server is expected to sit behind a reverse proxy in a trusted
		// environment.
		return true
	},
}

// clientMessage is what the UI sends over the socket.
type clientMessage struct {
	Type    string `json:"type"`
	Visible bool   `json:"visible"`
}

// Handle upgrades the connection and registers it with the Hub.
func (h *WebSocketHandler) Handle(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("failed to upgrade websocket connection", zap.Error(err))
		return
	}

	client := h.hub.Register(conn)
	if client == nil {
		h.logger.Warn("websocket connection rejected, connection limit reached")
		return
	}

	h.logger.Info("websocket connection established")
	go h.readLoop(client)
}

// readLoop consumes client reports until the connection closes, then
// unregisters the client.
func (h *WebSocketHandler) readLoop(client *ws.Client) {
	conn := client.Conn()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			break
		}

		var msg clientMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			h.logger.Debug("ignoring malformed websocket message", zap.Error(err))
			continue
		}

		switch msg.Type {
		case "visibility":
			h.signals.SetVisible(msg.Visible)
		case "focus":
			h.signals.Focus()
		}
	}

	h.hub.Unregister(client)
	h.logger.Info("websocket connection closed")
}
