package api

import (
	"net/http"

	"go.uber.org/zap"
)

// ContactsHandler serves GET /api/v1/contacts.
type ContactsHandler struct {
	session Session
	logger  *zap.Logger
}

// NewContactsHandler creates a ContactsHandler.
func NewContactsHandler(session Session, logger *zap.Logger) *ContactsHandler {
	return &ContactsHandler{session: session, logger: logger}
}

// GetContacts returns the ranked recipient suggestions.
func (h *ContactsHandler) GetContacts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	suggestions := h.session.Contacts()
	response := struct {
		Contacts any `json:"contacts"`
	}{Contacts: suggestions}

	if !WriteJSONResponse(w, h.logger, response) {
		return
	}
}
