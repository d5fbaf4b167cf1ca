package api

import (
	"bytes"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// WriteJSONResponse encodes v to a buffer first so an encoding failure never
// leaves a partial body on the wire. Returns false when nothing was written.
func WriteJSONResponse(w http.ResponseWriter, logger *zap.Logger, v any) bool {
	return WriteJSONStatus(w, logger, http.StatusOK, v)
}

// WriteJSONStatus is WriteJSONResponse with an explicit status code.
func WriteJSONStatus(w http.ResponseWriter, logger *zap.Logger, status int, v any) bool {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		logger.Error("failed to encode JSON response", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return false
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		logger.Warn("failed to write JSON response", zap.Error(err))
		return false
	}
	return true
}
