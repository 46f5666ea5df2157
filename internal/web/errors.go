package web

// errors.go provides unified error response handling for the API.
//
// Every error is logged with full technical detail server-side, keyed
// by the chi request ID, and returned to the client as a JSON envelope.
// Validation failures map to 400; everything else is a 500 with a
// generic message so internal details never leak.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/fieldstone/samplehub/internal/ingest"
	"github.com/go-chi/chi/v5/middleware"
)

// ErrorResponse is the JSON structure for API error responses.
type ErrorResponse struct {
	Error string `json:"error"`
}

// respondError logs err and writes the appropriate JSON error envelope.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	message := "internal server error"

	var verr *ingest.ValidationError
	if errors.As(err, &verr) {
		status = http.StatusBadRequest
		message = verr.Error()
	}

	slog.Error("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"request_id", middleware.GetReqID(r.Context()),
	)

	writeErrorJSON(w, status, message)
}

// respondErrorMessage writes an error envelope with an explicit status
// and client-safe message.
func respondErrorMessage(w http.ResponseWriter, r *http.Request, status int, message string) {
	slog.Warn("request rejected",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"message", message,
		"request_id", middleware.GetReqID(r.Context()),
	)
	writeErrorJSON(w, status, message)
}

func writeErrorJSON(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: message})
}

// writeJSON encodes v as JSON and writes it to w.
// Logs encoding errors since headers are already sent.
func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
