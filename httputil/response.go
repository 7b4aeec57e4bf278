package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"vidtube/apperr"
	"vidtube/logging"
)

// DefaultBodyLimit is the default maximum request body size (1 MB).
const DefaultBodyLimit int64 = 1 << 20

// Envelope is the uniform response body. Data is omitted on failures.
type Envelope struct {
	Status  int         `json:"status"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message"`
}

// WriteJSON sends a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// WriteSuccess sends a success envelope.
func WriteSuccess(w http.ResponseWriter, status int, data interface{}, message string) {
	if data == nil {
		data = struct{}{}
	}
	WriteJSON(w, status, Envelope{Status: status, Data: data, Message: message})
}

// WriteError maps err onto the failure envelope. Errors that are not
// *apperr.Error become a generic 500 so internals never leak.
func WriteError(ctx context.Context, w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	message := "internal server error"

	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		status = appErr.Status()
		message = appErr.Message
	}

	logger := logging.FromContext(ctx)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "status", status, "error", err)
	} else {
		logger.Warn("request rejected", "status", status, "error", err)
	}

	WriteJSON(w, status, Envelope{Status: status, Message: message})
}

// MaxBody wraps r.Body with a size limit to prevent oversized payloads.
func MaxBody(r *http.Request, n int64) {
	r.Body = http.MaxBytesReader(nil, r.Body, n)
}
