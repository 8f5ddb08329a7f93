package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/gsg-platform/bridge/pkg/contracts"
	"github.com/gsg-platform/bridge/pkg/envelope"
	"github.com/gsg-platform/bridge/pkg/tenants"
)

// newTestScope opens a tenant scope against a sqlmock database,
// registering the expected session binding.
func newTestScope(t *testing.T, db *sql.DB, mock sqlmock.Sqlmock, tenant string) *tenants.Scope {
	t.Helper()
	mock.ExpectExec("set_config").
		WithArgs(tenant).
		WillReturnResult(sqlmock.NewResult(0, 0))

	registry, err := tenants.NewRegistry([]string{"GSG", "DEMO"})
	require.NoError(t, err)
	scope, err := tenants.NewScopeFactory(db, registry).Open(context.Background(), tenant, "store-test")
	require.NoError(t, err)
	return scope
}

// testCodec resolves the built-in contracts without a database.
func testCodec(t *testing.T) *envelope.Codec {
	t.Helper()
	reg := contracts.NewRegistry(nil)
	require.NoError(t, reg.RegisterBuiltins(context.Background()))
	return envelope.NewCodec(reg)
}

// dimEmbedder is a deterministic embedder for store tests.
type dimEmbedder struct {
	dim   int
	calls int
}

func (e *dimEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.calls++
	vec := make([]float32, e.dim)
	for i, r := range text {
		vec[i%e.dim] += float32(r)
	}
	return vec, nil
}

func (e *dimEmbedder) Dimension() int { return e.dim }

func testTime() time.Time {
	return time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
}
