package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gsg-platform/bridge/pkg/store"
	"github.com/gsg-platform/bridge/pkg/tenants"
)

type stubEmbedder struct{ dim int }

func (e *stubEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	return make([]float32, e.dim), nil
}

func (e *stubEmbedder) Dimension() int { return e.dim }

func newTestServer(t *testing.T) (http.Handler, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	registry, err := tenants.NewRegistry([]string{"GSG", "DEMO"})
	require.NoError(t, err)
	scopes := tenants.NewScopeFactory(db, registry)

	srv := NewServer(db, scopes, registry,
		store.NewMemoryDocStore(&stubEmbedder{dim: 4}),
		store.NewKVStore(), store.NewRunStore(), nil,
		"all-MiniLM-L6-v2", "test", slog.Default())

	return srv.Routes(nil, nil), mock
}

func expectScope(mock sqlmock.Sqlmock) {
	mock.ExpectExec("set_config").WillReturnResult(sqlmock.NewResult(0, 0))
}

func expectScopeClose(mock sqlmock.Sqlmock) {
	mock.ExpectExec("set_config").WillReturnResult(sqlmock.NewResult(0, 0))
}

func doRequest(t *testing.T, h http.Handler, method, target, tenant, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if tenant != "" {
		req.Header.Set("X-Tenant-ID", tenant)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestTenantHeaderRequired(t *testing.T) {
	h, _ := newTestServer(t)

	rec := doRequest(t, h, http.MethodGet, "/v1/memory/search?q=x", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var body APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "missing_tenant", body.Error)
	assert.False(t, body.Timestamp.IsZero())
}

func TestTenantMustBeRegistered(t *testing.T) {
	h, _ := newTestServer(t)
	rec := doRequest(t, h, http.MethodGet, "/v1/memory/search?q=x", "EVIL", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "unknown_tenant")
}

func TestMemoryUpsert(t *testing.T) {
	h, mock := newTestServer(t)
	expectScope(mock)
	mock.ExpectQuery("SELECT content FROM memory_doc").
		WillReturnRows(sqlmock.NewRows([]string{"content"}))
	mock.ExpectExec("INSERT INTO memory_doc").
		WillReturnResult(sqlmock.NewResult(0, 1))
	expectScopeClose(mock)

	rec := doRequest(t, h, http.MethodPost, "/v1/memory/doc", "GSG",
		`{"doc_id":"d1","content":"solar output rose","scope":"project:atlas"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		OK                 bool   `json:"ok"`
		DocID              string `json:"doc_id"`
		EmbeddingDimension int    `json:"embedding_dimension"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.OK)
	assert.Equal(t, "d1", body.DocID)
	assert.Equal(t, 4, body.EmbeddingDimension)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMemoryUpsertValidation(t *testing.T) {
	h, _ := newTestServer(t)

	rec := doRequest(t, h, http.MethodPost, "/v1/memory/doc", "GSG", `{"doc_id":"d1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, h, http.MethodPost, "/v1/memory/doc", "GSG", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMemorySearchRequiresQuery(t *testing.T) {
	h, _ := newTestServer(t)
	rec := doRequest(t, h, http.MethodGet, "/v1/memory/search", "GSG", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, h, http.MethodGet, "/v1/memory/search?q=x&k=-1", "GSG", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, h, http.MethodGet, "/v1/memory/search?q=x&min_confidence=2", "GSG", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestKVGetMissingIs404(t *testing.T) {
	h, mock := newTestServer(t)
	expectScope(mock)
	mock.ExpectQuery("SELECT").
		WillReturnRows(sqlmock.NewRows([]string{"tenant_id", "key", "scope", "value",
			"value_type", "ttl_until", "created_at", "updated_at"}))
	expectScopeClose(mock)

	rec := doRequest(t, h, http.MethodGet, "/v1/kv/settings", "GSG", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "not_found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestKVSetValidation(t *testing.T) {
	h, _ := newTestServer(t)
	rec := doRequest(t, h, http.MethodPost, "/v1/kv", "GSG", `{"key":"only"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRunUpsertValidation(t *testing.T) {
	h, _ := newTestServer(t)

	rec := doRequest(t, h, http.MethodPost, "/v1/runs", "GSG", `{"agent_name":"planner"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, h, http.MethodPost, "/v1/runs", "GSG",
		`{"agent_run_id":"r1","agent_name":"planner","status":"exploded"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRunListRejectsBadBounds(t *testing.T) {
	h, _ := newTestServer(t)

	rec := doRequest(t, h, http.MethodGet, "/v1/runs?limit=zero", "GSG", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, h, http.MethodGet, "/v1/runs?from=yesterday", "GSG", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealth(t *testing.T) {
	h, mock := newTestServer(t)
	mock.ExpectPing()

	rec := doRequest(t, h, http.MethodGet, "/health", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "all-MiniLM-L6-v2", body["embedding_model"])
}

func TestRateLimiter(t *testing.T) {
	limiter := NewGlobalRateLimiter(1, 1)
	h := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.RemoteAddr = "10.1.2.3:4444"

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "5", rec.Header().Get("Retry-After"))
}
