package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gsg-platform/bridge/pkg/store"
)

type memoryUpsertRequest struct {
	DocID     string          `json:"doc_id"`
	Content   string          `json:"content"`
	Scope     string          `json:"scope"`
	Title     string          `json:"title"`
	DocType   string          `json:"doc_type"`
	SourceURI string          `json:"source_uri"`
	Meta      json.RawMessage `json:"meta"`
}

func (s *Server) handleMemoryUpsert(w http.ResponseWriter, r *http.Request) {
	var req memoryUpsertRequest
	if err := decodeBody(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}
	if req.DocID == "" || req.Content == "" {
		WriteError(w, http.StatusBadRequest, "bad_request", "doc_id and content are required")
		return
	}

	scope := s.openScope(w, r)
	if scope == nil {
		return
	}
	defer func() { _ = scope.Close() }()

	doc := &store.MemoryDoc{
		DocID:     req.DocID,
		TenantID:  scope.Tenant(),
		Scope:     req.Scope,
		Title:     req.Title,
		Content:   req.Content,
		DocType:   req.DocType,
		SourceURI: req.SourceURI,
		Meta:      req.Meta,
	}
	if err := s.memory.Upsert(r.Context(), scope, doc); err != nil {
		WriteStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":                  true,
		"doc_id":              doc.DocID,
		"embedding_dimension": s.memory.Dimension(),
	})
}

func (s *Server) handleMemorySearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		WriteError(w, http.StatusBadRequest, "bad_request", "query parameter q is required")
		return
	}

	k := 5
	if raw := r.URL.Query().Get("k"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			WriteError(w, http.StatusBadRequest, "bad_request", "k must be a positive integer")
			return
		}
		k = n
	}

	// Negative disables the filter; 0.0 would drop hits with negative
	// cosine similarity.
	minConfidence := -1.0
	if raw := r.URL.Query().Get("min_confidence"); raw != "" {
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil || f < 0 || f > 1 {
			WriteError(w, http.StatusBadRequest, "bad_request", "min_confidence must be in [0,1]")
			return
		}
		minConfidence = f
	}

	scope := s.openScope(w, r)
	if scope == nil {
		return
	}
	defer func() { _ = scope.Close() }()

	hits, err := s.memory.Search(r.Context(), scope, q, k,
		r.URL.Query().Get("scope"), minConfidence)
	if err != nil {
		WriteStoreError(w, err)
		return
	}
	if hits == nil {
		hits = []store.SearchHit{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"results": hits,
		"query":   q,
		"total":   len(hits),
	})
}
