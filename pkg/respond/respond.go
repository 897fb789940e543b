// Package respond writes JSON responses and maps errors to the dashboard's
// {"error": ...} body shape.
package respond

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/umbusk1/bibliofep/pkg/errors"
	"github.com/umbusk1/bibliofep/pkg/logger"
)

// JSON writes data with the given status code.
func JSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.FromContext(r.Context()).Error("failed to write response", "error", err)
	}
}

// Message writes {"error": message}.
func Message(w http.ResponseWriter, r *http.Request, status int, message string) {
	JSON(w, r, status, map[string]any{"error": message})
}

// Error maps err to a status code and writes its client message, falling back
// to fallback when err carries none. Server errors also carry a details field
// and are logged.
func Error(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	status := apperrors.HTTPStatusCode(err)
	body := map[string]any{"error": apperrors.Message(err, fallback)}
	for k, v := range apperrors.Fields(err) {
		body[k] = v
	}
	if status >= http.StatusInternalServerError {
		body["details"] = err.Error()
		logger.FromContext(r.Context()).Error(fallback,
			"error", err,
			"status_code", status,
			"path", r.URL.Path,
		)
	}
	JSON(w, r, status, body)
}
