package store

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gsg-platform/bridge/pkg/errdef"
)

func TestDocumentStoreInsert(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewDocumentStore()
	scope := newTestScope(t, db, mock, "GSG")
	ctx := context.Background()

	doc := &Document{
		DocID:            "doc-1",
		TenantID:         "GSG",
		DocType:          "csr_report",
		ProcessingStatus: StatusIngested,
	}

	t.Run("Create", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO document").
			WillReturnResult(sqlmock.NewResult(0, 1))
		require.NoError(t, store.Insert(ctx, scope, doc))
	})

	t.Run("Replay of an owned doc id is a no-op", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO document").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("SELECT 1 FROM document").
			WithArgs("doc-1", "GSG").
			WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
		require.NoError(t, store.Insert(ctx, scope, doc))
	})

	t.Run("Doc id owned by another tenant is rejected", func(t *testing.T) {
		// Zero rows and an invisible existing row: the conflicting doc
		// belongs to another tenant.
		mock.ExpectExec("INSERT INTO document").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("SELECT 1 FROM document").
			WithArgs("doc-1", "GSG").
			WillReturnRows(sqlmock.NewRows([]string{"?column?"}))
		assert.ErrorIs(t, store.Insert(ctx, scope, doc), errdef.ErrTenantViolation)
	})

	t.Run("Cross-tenant insert fails before SQL", func(t *testing.T) {
		bad := &Document{DocID: "doc-2", TenantID: "DEMO"}
		assert.ErrorIs(t, store.Insert(ctx, scope, bad), errdef.ErrTenantViolation)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}
