// Package http exposes the REST API, the Prometheus endpoint and the
// websocket live feed.
package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/mathrunner-hub/mathrunner-stats-hub/internal/domain/shared"
)

// errorResponse is the JSON error envelope.
type errorResponse struct {
	Error string `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

// respondError maps domain errors to HTTP status codes. Internal detail stays
// in the log; clients get the message only.
func respondError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status := statusFor(err)
	if status >= 500 {
		logger.Error("request failed", slog.Any("error", err))
		respondJSON(w, status, errorResponse{Error: "internal error"})
		return
	}
	respondJSON(w, status, errorResponse{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case shared.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, shared.ErrUnauthorized):
		return http.StatusUnauthorized
	case shared.IsAlreadyExists(err):
		return http.StatusConflict
	case shared.IsValidation(err):
		return http.StatusBadRequest
	case errors.Is(err, shared.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, shared.ErrServiceUnavailable), errors.Is(err, shared.ErrTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func decodeBody(r *http.Request, dst interface{}) error {
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	if err := dec.Decode(dst); err != nil {
		return shared.WrapError("http", "Decode", shared.ErrInvalidFormat, "invalid request body", err)
	}
	return nil
}
