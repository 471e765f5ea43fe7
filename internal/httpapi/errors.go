package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"emotiond/internal/stream"
	"emotiond/pkg/types"
)

// HTTPError allows services to provide an HTTP status code for an error.
type HTTPError interface {
	error
	StatusCode() int
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: status})
}

// connectStatus maps a connect rejection to the HTTP status sent before the
// upgrade.
func connectStatus(err error) int {
	switch {
	case stream.IsCapacityExceeded(err):
		return http.StatusServiceUnavailable
	case stream.IsAuthenticationFailure(err):
		return http.StatusUnauthorized
	}
	var he HTTPError
	if errors.As(err, &he) {
		return he.StatusCode()
	}
	return http.StatusInternalServerError
}
