// Package common holds the request and response helpers shared by the API handlers.
package common

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
)

// ErrorResponse is the body of every non-2xx API response
type ErrorResponse struct {
	Error string `json:"error"`
}

// WriteJSONResponse encodes data as the response body with statusCode.
// The body is encoded before any header is written, so an encoding failure
// still produces a clean 500.
func WriteJSONResponse(w http.ResponseWriter, data any, statusCode int) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(data); err != nil {
		slog.Error("Failed to encode API response", "error", err)
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_, _ = w.Write(buf.Bytes())
}

// WriteErrorResponse writes message as an ErrorResponse
func WriteErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	WriteJSONResponse(w, ErrorResponse{Error: message}, statusCode)
}
