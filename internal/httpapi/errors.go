package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"classifyd/internal/pool"
	"classifyd/pkg/types"
)

// HTTPError allows services to provide an HTTP status code for an error.
type HTTPError interface {
	error
	StatusCode() int
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case pool.IsPoolExhausted(err):
		IncrementBackpressure("pool_exhausted")
		return http.StatusServiceUnavailable
	case pool.IsAcquireTimeout(err):
		IncrementBackpressure("acquire_timeout")
		return http.StatusGatewayTimeout
	case errors.Is(err, context.DeadlineExceeded):
		// The request timeout ran out, usually while waiting for a handle.
		return http.StatusGatewayTimeout
	case pool.IsPoolClosed(err), pool.IsDependencyUnavailable(err):
		return http.StatusServiceUnavailable
	case pool.IsInferenceFailed(err):
		return http.StatusUnprocessableEntity
	case pool.IsArtifactNotFound(err):
		return http.StatusNotFound
	}
	var he HTTPError
	if errors.As(err, &he) {
		return he.StatusCode()
	}
	return http.StatusInternalServerError
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: status})
}
