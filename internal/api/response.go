package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/erazemk/armarios/internal/apperr"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Message string            `json:"message"`
	Code    string            `json:"code"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// jsonResponse writes a JSON response with the given status code.
func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode response", "error", err)
		}
	}
}

// jsonMessage writes {"message": ...} with the given status code.
func jsonMessage(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, map[string]string{"message": message})
}

// jsonError writes an error response that is not backed by an apperr kind,
// such as authentication failures.
func jsonError(w http.ResponseWriter, status int, code, message string) {
	jsonResponse(w, status, errorBody{Message: message, Code: code})
}

// statusFor maps an error kind to its HTTP status.
func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps err onto a status and a client-safe body. Unclassified
// errors are logged and reported generically.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var e *apperr.Error
	if !errors.As(err, &e) {
		slog.Error("request failed", "request_id", requestID(r.Context()), "method", r.Method, "path", r.URL.Path, "error", err)
		jsonError(w, http.StatusInternalServerError, apperr.KindInternal.String(), "internal error")
		return
	}

	// Invariant violations are logged with their stack where they are raised.
	if e.Kind == apperr.KindTransient {
		slog.Warn("transient failure", "request_id", requestID(r.Context()), "path", r.URL.Path, "error", e.Err)
	}

	jsonResponse(w, statusFor(e.Kind), errorBody{
		Message: e.Message,
		Code:    e.Kind.String(),
		Fields:  e.Fields,
	})
}

// internalError logs err with context and writes a generic 500.
func internalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	writeError(w, r, fmt.Errorf("%s: %w", msg, err))
}
