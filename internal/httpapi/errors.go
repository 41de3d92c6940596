package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"relayd/internal/manager"
	"relayd/internal/relay"
	"relayd/internal/remote"
	"relayd/pkg/types"
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

// statusForError maps relay and pool errors to HTTP status codes.
func statusForError(err error) int {
	var netErr *remote.NetworkError
	var he HTTPError
	switch {
	case manager.IsNotConfigured(err):
		return http.StatusNotFound
	case manager.IsTooBusy(err):
		return http.StatusTooManyRequests
	case manager.IsDependencyUnavailable(err):
		return http.StatusServiceUnavailable
	case manager.IsUnsupportedFormat(err):
		return http.StatusUnprocessableEntity
	case errors.Is(err, relay.ErrStreamingUnsupported), errors.Is(err, relay.ErrEmbeddingsUnsupported):
		return http.StatusBadRequest
	case errors.As(err, &netErr), errors.Is(err, remote.ErrEmptyResponse):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &he):
		return he.StatusCode()
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError writes err with its mapped status and counts 429s.
func writeServiceError(w http.ResponseWriter, err error) int {
	status := statusForError(err)
	if status == http.StatusTooManyRequests {
		IncrementBackpressure("queue")
	}
	writeJSONError(w, status, err.Error())
	return status
}
