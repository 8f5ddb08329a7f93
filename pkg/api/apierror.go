// Package api is the Bridge query service: the HTTP surface over the
// memory bank (documents, KV, agent runs) plus health reporting.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gsg-platform/bridge/pkg/errdef"
)

// APIError is the error body every endpoint returns.
type APIError struct {
	Error     string    `json:"error"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// WriteError writes a JSON error response.
func WriteError(w http.ResponseWriter, status int, msg, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(APIError{
		Error:     msg,
		Detail:    detail,
		Timestamp: time.Now().UTC(),
	})
}

// WriteStoreError maps a storage error kind onto an HTTP status.
// Server-side detail is logged, never exposed.
func WriteStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errdef.ErrNotFound):
		WriteError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, errdef.ErrConflict):
		WriteError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, errdef.ErrTenantViolation):
		WriteError(w, http.StatusBadRequest, "tenant_violation", err.Error())
	default:
		slog.Error("internal server error", "error", err)
		WriteError(w, http.StatusInternalServerError, "internal_error",
			"An unexpected error occurred. Please try again later.")
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
