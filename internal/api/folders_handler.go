// Package api exposes the session core over HTTP: folder listings, sends,
// contact suggestions and the WebSocket event stream.
package api

import (
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

// FoldersHandler serves folder listing routes under /api/v1/folders/.
type FoldersHandler struct {
	session Session
	logger  *zap.Logger
}

// NewFoldersHandler creates a FoldersHandler.
func NewFoldersHandler(session Session, logger *zap.Logger) *FoldersHandler {
	return &FoldersHandler{session: session, logger: logger}
}

// Handle dispatches /api/v1/folders/{name}/messages. GET opens the folder's
// polling loop (idempotent) and returns the merged listing; DELETE stops the
// loop.
func (h *FoldersHandler) Handle(w http.ResponseWriter, r *http.Request) {
	folder, ok := folderFromPath(r.URL.Path)
	if !ok {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.getMessages(w, folder)
	case http.MethodDelete:
		h.closeFolder(w, folder)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *FoldersHandler) getMessages(w http.ResponseWriter, folder string) {
	h.session.OpenFolder(folder)

	messages := h.session.MergedView(folder)
	response := struct {
		Folder   string `json:"folder"`
		Messages any    `json:"messages"`
	}{Folder: folder, Messages: messages}

	if !WriteJSONResponse(w, h.logger, response) {
		return
	}
}

func (h *FoldersHandler) closeFolder(w http.ResponseWriter, folder string) {
	h.session.CloseFolder(folder)
	w.WriteHeader(http.StatusNoContent)
}

// folderFromPath extracts the folder name from
// /api/v1/folders/{name}/messages, decoding percent escapes so localized
// folder names round-trip.
func folderFromPath(path string) (string, bool) {
	rest, ok := strings.CutPrefix(path, "/api/v1/folders/")
	if !ok {
		return "", false
	}
	name, ok := strings.CutSuffix(rest, "/messages")
	if !ok || name == "" || strings.Contains(name, "/") {
		return "", false
	}

	decoded, err := url.PathUnescape(name)
	if err != nil || decoded == "" {
		return "", false
	}
	return decoded, true
}
