package tenants

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/gsg-platform/bridge/pkg/errdef"
)

// Scope is one tenant-bound unit of work over a single pooled database
// connection. The connection carries the `app.tenant_id` session variable
// that row-level policies key on, so every statement issued through the
// scope is confined to the scope's tenant.
//
// A scope is acquired at the top of a unit of work and must be released
// on every exit path. Store operations take a Scope argument; there is no
// implicit ambient tenant.
type Scope struct {
	tenant string
	caller string
	conn   *sql.Conn
}

// ScopeFactory opens scopes against a shared pool after checking the
// tenant against the registered set.
type ScopeFactory struct {
	db       *sql.DB
	registry *Registry
}

func NewScopeFactory(db *sql.DB, registry *Registry) *ScopeFactory {
	return &ScopeFactory{db: db, registry: registry}
}

// Open binds a pooled connection to a tenant. caller identifies the
// principal driving the work (HTTP caller identity, consumer group, job
// name) and travels into audit columns.
func (f *ScopeFactory) Open(ctx context.Context, tenantID, caller string) (*Scope, error) {
	if err := f.registry.Require(tenantID); err != nil {
		return nil, err
	}

	conn, err := f.db.Conn(ctx)
	if err != nil {
		return nil, errdef.Wrap(errdef.ErrTransientStorage, "acquire connection: %v", err)
	}

	if _, err := conn.ExecContext(ctx,
		`SELECT set_config('app.tenant_id', $1, false)`, tenantID); err != nil {
		_ = conn.Close()
		return nil, errdef.Wrap(errdef.ErrTransientStorage, "bind tenant session: %v", err)
	}

	return &Scope{tenant: tenantID, caller: caller, conn: conn}, nil
}

// Tenant returns the tenant this scope is bound to.
func (s *Scope) Tenant() string { return s.tenant }

// Caller returns the principal identity bound at open time.
func (s *Scope) Caller() string { return s.caller }

// Conn exposes the bound connection for store operations.
func (s *Scope) Conn() *sql.Conn { return s.conn }

// BeginTx opens a transaction on the bound connection. Transactions stay
// short; no long-running transaction is permitted on the hot path.
func (s *Scope) BeginTx(ctx context.Context) (*sql.Tx, error) {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, errdef.Wrap(errdef.ErrTransientStorage, "begin: %v", err)
	}
	return tx, nil
}

// Check returns ErrTenantViolation unless rowTenant matches the scope.
// Stores call this on every write carrying an explicit tenant id, so a
// cross-tenant write fails loudly even if the database is misconfigured
// and its row policies are absent.
func (s *Scope) Check(rowTenant string) error {
	if rowTenant != s.tenant {
		return errdef.Wrap(errdef.ErrTenantViolation,
			"scope %s cannot touch rows of tenant %s", s.tenant, rowTenant)
	}
	return nil
}

// Close resets the session variable and returns the connection to the
// pool. Safe to call more than once.
func (s *Scope) Close() error {
	if s.conn == nil {
		return nil
	}
	// Best-effort reset; the pool also resets session state on reuse.
	_, _ = s.conn.ExecContext(context.Background(),
		`SELECT set_config('app.tenant_id', '', false)`)
	err := s.conn.Close()
	s.conn = nil
	if err != nil && err != sql.ErrConnDone {
		return fmt.Errorf("release scope: %w", err)
	}
	return nil
}
