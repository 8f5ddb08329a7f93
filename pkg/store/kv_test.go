package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gsg-platform/bridge/pkg/errdef"
)

func TestKVStoreSet(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	kv := NewKVStore()
	scope := newTestScope(t, db, mock, "GSG")
	ctx := context.Background()

	t.Run("Set with defaults", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO memory_kv").
			WithArgs("GSG", "k", "global", []byte(`{"m":1}`), "json", nil).
			WillReturnResult(sqlmock.NewResult(0, 1))

		entry := &KVEntry{TenantID: "GSG", Key: "k", Value: json.RawMessage(`{"m":1}`)}
		require.NoError(t, kv.Set(ctx, scope, entry))
		assert.Equal(t, "global", entry.Scope)
		assert.Equal(t, "json", entry.ValueType)
	})

	t.Run("Cross-tenant set fails", func(t *testing.T) {
		entry := &KVEntry{TenantID: "DEMO", Key: "k", Value: json.RawMessage(`1`)}
		assert.ErrorIs(t, kv.Set(ctx, scope, entry), errdef.ErrTenantViolation)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestKVStoreGetTTL(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	kv := NewKVStore().WithClock(func() time.Time { return now })
	scope := newTestScope(t, db, mock, "GSG")
	ctx := context.Background()

	columns := []string{"tenant_id", "key", "scope", "value", "value_type", "ttl_until", "created_at", "updated_at"}

	t.Run("Live entry", func(t *testing.T) {
		live := now.Add(time.Second)
		mock.ExpectQuery("SELECT tenant_id, key, scope, value").
			WithArgs("GSG", "k").
			WillReturnRows(sqlmock.NewRows(columns).
				AddRow("GSG", "k", "global", []byte(`{"m":1}`), "json", &live, now, now))

		entry, err := kv.Get(ctx, scope, "k")
		require.NoError(t, err)
		assert.JSONEq(t, `{"m":1}`, string(entry.Value))
	})

	t.Run("Expired entry is NotFound", func(t *testing.T) {
		expired := now.Add(-time.Second)
		mock.ExpectQuery("SELECT tenant_id, key, scope, value").
			WithArgs("GSG", "k").
			WillReturnRows(sqlmock.NewRows(columns).
				AddRow("GSG", "k", "global", []byte(`{"m":1}`), "json", &expired, now, now))

		_, err := kv.Get(ctx, scope, "k")
		assert.ErrorIs(t, err, errdef.ErrNotFound)
	})

	t.Run("Absent entry is NotFound", func(t *testing.T) {
		mock.ExpectQuery("SELECT tenant_id, key, scope, value").
			WithArgs("GSG", "missing").
			WillReturnRows(sqlmock.NewRows(columns))

		_, err := kv.Get(ctx, scope, "missing")
		assert.ErrorIs(t, err, errdef.ErrNotFound)
	})

	t.Run("Null TTL never expires", func(t *testing.T) {
		mock.ExpectQuery("SELECT tenant_id, key, scope, value").
			WithArgs("GSG", "k").
			WillReturnRows(sqlmock.NewRows(columns).
				AddRow("GSG", "k", "global", []byte(`{"m":1}`), "json", nil, now, now))

		_, err := kv.Get(ctx, scope, "k")
		assert.NoError(t, err)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestKVStoreReapExpired(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	kv := NewKVStore().WithClock(func() time.Time { return now })
	scope := newTestScope(t, db, mock, "GSG")

	mock.ExpectExec("DELETE FROM memory_kv").
		WithArgs("GSG", now).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := kv.ReapExpired(context.Background(), scope)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
