package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/gsg-platform/bridge/pkg/errdef"
	"github.com/gsg-platform/bridge/pkg/tenants"
)

// KVStore is the tenant-scoped key-value sub-store. Expired entries are
// invisible to reads; reclamation is a separate background concern, not
// part of the read path.
type KVStore struct {
	// now is the clock used for TTL visibility. Overridable in tests.
	now func() time.Time
}

func NewKVStore() *KVStore {
	return &KVStore{now: time.Now}
}

// WithClock overrides the TTL clock for testing.
func (s *KVStore) WithClock(now func() time.Time) *KVStore {
	s.now = now
	return s
}

// Set writes an entry, overwriting value, type, scope, and TTL on
// conflict while preserving created_at.
func (s *KVStore) Set(ctx context.Context, scope *tenants.Scope, entry *KVEntry) error {
	if err := scope.Check(entry.TenantID); err != nil {
		return err
	}
	if entry.Scope == "" {
		entry.Scope = "global"
	}
	if entry.ValueType == "" {
		entry.ValueType = "json"
	}

	_, err := scope.Conn().ExecContext(ctx, `
		INSERT INTO memory_kv (tenant_id, key, scope, value, value_type, ttl_until)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (tenant_id, key) DO UPDATE SET
			value = EXCLUDED.value,
			value_type = EXCLUDED.value_type,
			scope = EXCLUDED.scope,
			ttl_until = EXCLUDED.ttl_until,
			updated_at = now()
	`, entry.TenantID, entry.Key, entry.Scope, []byte(entry.Value), entry.ValueType, entry.TTLUntil)
	if err != nil {
		return errdef.Wrap(errdef.ErrTransientStorage, "kv set: %v", err)
	}
	return nil
}

// Get returns the entry iff its TTL is null or in the future. An expired
// or absent entry is NotFound; existence of expired keys never leaks.
func (s *KVStore) Get(ctx context.Context, scope *tenants.Scope, key string) (*KVEntry, error) {
	var entry KVEntry
	var value []byte
	err := scope.Conn().QueryRowContext(ctx, `
		SELECT tenant_id, key, scope, value, value_type, ttl_until, created_at, updated_at
		FROM memory_kv WHERE tenant_id = $1 AND key = $2
	`, scope.Tenant(), key).Scan(&entry.TenantID, &entry.Key, &entry.Scope, &value,
		&entry.ValueType, &entry.TTLUntil, &entry.CreatedAt, &entry.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errdef.Wrap(errdef.ErrNotFound, "kv %s", key)
	}
	if err != nil {
		return nil, errdef.Wrap(errdef.ErrTransientStorage, "kv get: %v", err)
	}

	if entry.TTLUntil != nil && !entry.TTLUntil.After(s.now()) {
		return nil, errdef.Wrap(errdef.ErrNotFound, "kv %s expired", key)
	}
	entry.Value = value
	return &entry, nil
}

// ReapExpired deletes the tenant's expired entries and reports how many
// were reclaimed. Called by a background job, never by the read path.
func (s *KVStore) ReapExpired(ctx context.Context, scope *tenants.Scope) (int64, error) {
	res, err := scope.Conn().ExecContext(ctx, `
		DELETE FROM memory_kv WHERE tenant_id = $1 AND ttl_until IS NOT NULL AND ttl_until < $2
	`, scope.Tenant(), s.now())
	if err != nil {
		return 0, errdef.Wrap(errdef.ErrTransientStorage, "kv reap: %v", err)
	}
	return res.RowsAffected()
}
