package api

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"mailview/backend/internal/models"
)

// maxComposeBytes bounds the decoded send request body.
const maxComposeBytes = 25 << 20

// MessagesHandler serves POST /api/v1/messages.
type MessagesHandler struct {
	session Session
	logger  *zap.Logger
}

// NewMessagesHandler creates a MessagesHandler.
func NewMessagesHandler(session Session, logger *zap.Logger) *MessagesHandler {
	return &MessagesHandler{session: session, logger: logger}
}

// Send submits a composed message. The response carries the placeholders
// created for it; 202 reflects that the authoritative copy has not been
// observed yet.
func (h *MessagesHandler) Send(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var compose models.ComposeFields
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxComposeBytes))
	if err := decoder.Decode(&compose); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if len(compose.To) == 0 {
		http.Error(w, "At least one recipient is required", http.StatusBadRequest)
		return
	}

	created, err := h.session.Send(r.Context(), compose)
	if err != nil && len(created) == 0 {
		h.logger.Error("send failed", zap.Error(err))
		http.Error(w, "Failed to send message", http.StatusBadGateway)
		return
	}

	response := struct {
		Pending any  `json:"pending"`
		Partial bool `json:"partial,omitempty"`
	}{Pending: created, Partial: err != nil}

	if !WriteJSONStatus(w, h.logger, http.StatusAccepted, response) {
		return
	}
}
