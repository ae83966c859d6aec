package api

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
)

// errorBody is the uniform error envelope: {"error":{"code","message"}}.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	// Details carries endpoint-specific context, e.g. the partial
	// ingestion report behind an embedding failure.
	Details any `json:"details,omitempty"`
}

// WriteJSON writes data as a JSON response. Encoding happens into a
// buffer first so headers are only sent after success and the
// Content-Length is exact.
func WriteJSON(w http.ResponseWriter, status int, data any, logger *slog.Logger) {
	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode(data); err != nil {
		logger.Error("encoding JSON response", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		// Client disconnects are routine.
		logger.Debug("writing response body", "error", err)
	}
}

// WriteError writes the uniform error envelope.
func WriteError(w http.ResponseWriter, status int, code, message string, logger *slog.Logger) {
	WriteJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: message}}, logger)
}

// WriteErrorDetails writes the error envelope with extra context.
func WriteErrorDetails(w http.ResponseWriter, status int, code, message string, details any, logger *slog.Logger) {
	WriteJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: message, Details: details}}, logger)
}
