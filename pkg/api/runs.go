package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gsg-platform/bridge/pkg/store"
)

func (s *Server) handleRunUpsert(w http.ResponseWriter, r *http.Request) {
	var run store.AgentRun
	if err := decodeBody(w, r, &run); err != nil {
		WriteError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}
	if run.AgentRunID == "" || run.AgentName == "" {
		WriteError(w, http.StatusBadRequest, "bad_request",
			"agent_run_id and agent_name are required")
		return
	}
	if run.Status == "" {
		run.Status = store.RunStatusRunning
	}
	switch run.Status {
	case store.RunStatusRunning, store.RunStatusSuccess,
		store.RunStatusFailed, store.RunStatusCancelled:
	default:
		WriteError(w, http.StatusBadRequest, "bad_request", "unknown run status")
		return
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}

	scope := s.openScope(w, r)
	if scope == nil {
		return
	}
	defer func() { _ = scope.Close() }()

	run.TenantID = scope.Tenant()
	if err := s.runs.Upsert(r.Context(), scope, &run); err != nil {
		WriteStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "agent_run_id": run.AgentRunID})
}

func (s *Server) handleRunGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	scope := s.openScope(w, r)
	if scope == nil {
		return
	}
	defer func() { _ = scope.Close() }()

	run, err := s.runs.Get(r.Context(), scope, id)
	if err != nil {
		WriteStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleRunList(w http.ResponseWriter, r *http.Request) {
	filter := store.RunFilter{
		AgentName: r.URL.Query().Get("agent_name"),
		Status:    r.URL.Query().Get("status"),
		Limit:     50,
	}

	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			WriteError(w, http.StatusBadRequest, "bad_request", "limit must be a positive integer")
			return
		}
		filter.Limit = n
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			WriteError(w, http.StatusBadRequest, "bad_request", "offset must be non-negative")
			return
		}
		filter.Offset = n
	}
	for _, bound := range []struct {
		param string
		dst   **time.Time
	}{
		{"from", &filter.From},
		{"to", &filter.To},
	} {
		if raw := r.URL.Query().Get(bound.param); raw != "" {
			ts, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				WriteError(w, http.StatusBadRequest, "bad_request",
					bound.param+" must be RFC 3339")
				return
			}
			*bound.dst = &ts
		}
	}

	scope := s.openScope(w, r)
	if scope == nil {
		return
	}
	defer func() { _ = scope.Close() }()

	runs, total, err := s.runs.List(r.Context(), scope, filter)
	if err != nil {
		WriteStoreError(w, err)
		return
	}
	if runs == nil {
		runs = []store.AgentRun{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"runs": runs, "total": total})
}
