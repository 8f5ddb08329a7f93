package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gsg-platform/bridge/pkg/store"
)

type kvSetRequest struct {
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value"`
	ValueType string          `json:"value_type"`
	Scope     string          `json:"scope"`
	TTLUntil  *time.Time      `json:"ttl_until"`
}

func (s *Server) handleKVSet(w http.ResponseWriter, r *http.Request) {
	var req kvSetRequest
	if err := decodeBody(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}
	if req.Key == "" || len(req.Value) == 0 {
		WriteError(w, http.StatusBadRequest, "bad_request", "key and value are required")
		return
	}

	scope := s.openScope(w, r)
	if scope == nil {
		return
	}
	defer func() { _ = scope.Close() }()

	entry := &store.KVEntry{
		TenantID:  scope.Tenant(),
		Key:       req.Key,
		Scope:     req.Scope,
		Value:     req.Value,
		ValueType: req.ValueType,
		TTLUntil:  req.TTLUntil,
	}
	if err := s.kv.Set(r.Context(), scope, entry); err != nil {
		WriteStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "key": entry.Key})
}

func (s *Server) handleKVGet(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if key == "" {
		WriteError(w, http.StatusBadRequest, "bad_request", "key is required")
		return
	}

	scope := s.openScope(w, r)
	if scope == nil {
		return
	}
	defer func() { _ = scope.Close() }()

	entry, err := s.kv.Get(r.Context(), scope, key)
	if err != nil {
		WriteStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"key":        entry.Key,
		"value":      entry.Value,
		"value_type": entry.ValueType,
		"scope":      entry.Scope,
		"ttl_until":  entry.TTLUntil,
		"created_at": entry.CreatedAt,
	})
}
