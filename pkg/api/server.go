package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gsg-platform/bridge/pkg/store"
	"github.com/gsg-platform/bridge/pkg/tenants"
)

// maxBodyBytes caps request bodies. Memory doc content is bounded well
// below this in practice.
const maxBodyBytes = 1 << 20

// Prober reports whether the embedding collaborator is reachable.
// Implemented by the embed client; nil skips the check in health.
type Prober interface {
	Probe(ctx context.Context) error
}

// Server is the query service. Every handler opens a tenant scope for
// the duration of its request; no connection is shared across requests.
type Server struct {
	db         *sql.DB
	scopes     *tenants.ScopeFactory
	registry   *tenants.Registry
	memory     *store.MemoryDocStore
	kv         *store.KVStore
	runs       *store.RunStore
	prober     Prober
	embedModel string
	version    string
	log        *slog.Logger
}

func NewServer(db *sql.DB, scopes *tenants.ScopeFactory, registry *tenants.Registry,
	memory *store.MemoryDocStore, kv *store.KVStore, runs *store.RunStore,
	prober Prober, embedModel, version string, log *slog.Logger) *Server {
	return &Server{
		db:         db,
		scopes:     scopes,
		registry:   registry,
		memory:     memory,
		kv:         kv,
		runs:       runs,
		prober:     prober,
		embedModel: embedModel,
		version:    version,
		log:        log,
	}
}

// Routes assembles the HTTP surface. Health is exempt from the tenant
// requirement; everything under /v1 needs a registered X-Tenant-ID.
func (s *Server) Routes(limiter *GlobalRateLimiter, identity *Identity) http.Handler {
	v1 := http.NewServeMux()
	v1.HandleFunc("POST /v1/memory/doc", s.handleMemoryUpsert)
	v1.HandleFunc("GET /v1/memory/search", s.handleMemorySearch)
	v1.HandleFunc("POST /v1/kv", s.handleKVSet)
	v1.HandleFunc("GET /v1/kv/{key}", s.handleKVGet)
	v1.HandleFunc("POST /v1/runs", s.handleRunUpsert)
	v1.HandleFunc("GET /v1/runs/{id}", s.handleRunGet)
	v1.HandleFunc("GET /v1/runs", s.handleRunList)

	root := http.NewServeMux()
	root.HandleFunc("GET /health", s.handleHealth)
	root.Handle("/v1/", RequireTenant(s.registry, v1))

	var h http.Handler = root
	if identity != nil {
		h = identity.Middleware(h)
	}
	if limiter != nil {
		h = limiter.Middleware(h)
	}
	return h
}

// decodeBody unmarshals a JSON request body with the size cap applied.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(v)
}

// openScope binds a request to its tenant. Callers must Close the scope
// on every path.
func (s *Server) openScope(w http.ResponseWriter, r *http.Request) *tenants.Scope {
	scope, err := s.scopes.Open(r.Context(), TenantID(r), Caller(r))
	if err != nil {
		WriteStoreError(w, err)
		return nil
	}
	return scope
}
