package tenants

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gsg-platform/bridge/pkg/errdef"
)

func TestRegistry(t *testing.T) {
	r, err := NewRegistry([]string{"GSG", "DEMO"})
	require.NoError(t, err)

	t.Run("Registered set", func(t *testing.T) {
		assert.True(t, r.IsRegistered("GSG"))
		assert.True(t, r.IsRegistered("DEMO"))
		assert.True(t, r.IsRegistered(SystemTenant), "SYSTEM is always registered")
		assert.False(t, r.IsRegistered("ACME"))
		assert.Equal(t, []string{"GSG", "DEMO", "SYSTEM"}, r.List())
	})

	t.Run("Require", func(t *testing.T) {
		assert.NoError(t, r.Require("GSG"))
		assert.ErrorIs(t, r.Require(""), errdef.ErrTenantViolation)
		assert.ErrorIs(t, r.Require("ACME"), errdef.ErrTenantViolation)
	})

	t.Run("Bad construction", func(t *testing.T) {
		_, err := NewRegistry([]string{"GSG", ""})
		assert.Error(t, err)
		_, err = NewRegistry([]string{"GSG", "GSG"})
		assert.Error(t, err)
	})
}

func TestScopeFactory(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	registry, err := NewRegistry([]string{"GSG", "DEMO"})
	require.NoError(t, err)
	factory := NewScopeFactory(db, registry)
	ctx := context.Background()

	t.Run("Open binds session variable", func(t *testing.T) {
		mock.ExpectExec(regexp.QuoteMeta("SELECT set_config('app.tenant_id', $1, false)")).
			WithArgs("GSG").
			WillReturnResult(sqlmock.NewResult(0, 0))

		scope, err := factory.Open(ctx, "GSG", "test-caller")
		require.NoError(t, err)
		assert.Equal(t, "GSG", scope.Tenant())
		assert.Equal(t, "test-caller", scope.Caller())

		mock.ExpectExec(regexp.QuoteMeta("SELECT set_config('app.tenant_id', '', false)")).
			WillReturnResult(sqlmock.NewResult(0, 0))
		assert.NoError(t, scope.Close())
		assert.NoError(t, scope.Close(), "double close is safe")
	})

	t.Run("Unregistered tenant is refused", func(t *testing.T) {
		_, err := factory.Open(ctx, "ACME", "test-caller")
		assert.ErrorIs(t, err, errdef.ErrTenantViolation)
	})

	t.Run("Cross-tenant check", func(t *testing.T) {
		mock.ExpectExec(regexp.QuoteMeta("set_config")).
			WithArgs("GSG").
			WillReturnResult(sqlmock.NewResult(0, 0))

		scope, err := factory.Open(ctx, "GSG", "test-caller")
		require.NoError(t, err)
		assert.NoError(t, scope.Check("GSG"))
		assert.ErrorIs(t, scope.Check("DEMO"), errdef.ErrTenantViolation)
	})
}
