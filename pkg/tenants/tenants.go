// Package tenants binds every unit of work to a tenant identifier and
// enforces the isolation invariants of the storage layer.
//
// The tenant set is fixed at deploy time. Every HTTP request, consumed
// message, and scheduled job opens a Scope before touching storage; the
// scope pins a database session variable that row-level policies key on.
package tenants

import (
	"fmt"

	"github.com/gsg-platform/bridge/pkg/errdef"
)

// SystemTenant owns reference data and replay tooling. It is always
// registered.
const SystemTenant = "SYSTEM"

// Registry is the process-wide registered tenant set. Tenants are
// introduced at deploy time and never removed while owned rows exist, so
// the set is immutable after construction and safe for concurrent reads.
type Registry struct {
	set   map[string]bool
	order []string
}

// NewRegistry builds the tenant set. The SYSTEM tenant is added if the
// deploy configuration omitted it.
func NewRegistry(ids []string) (*Registry, error) {
	r := &Registry{set: make(map[string]bool, len(ids)+1)}
	for _, id := range ids {
		if id == "" {
			return nil, fmt.Errorf("tenant registry contains an empty id")
		}
		if r.set[id] {
			return nil, fmt.Errorf("tenant registry repeats %q", id)
		}
		r.set[id] = true
		r.order = append(r.order, id)
	}
	if !r.set[SystemTenant] {
		r.set[SystemTenant] = true
		r.order = append(r.order, SystemTenant)
	}
	return r, nil
}

// IsRegistered reports whether id is in the tenant set.
func (r *Registry) IsRegistered(id string) bool {
	return r.set[id]
}

// List returns the tenant ids in registration order.
func (r *Registry) List() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Require returns ErrTenantViolation unless id is registered and
// non-empty. Used at every entry point before a scope is opened.
func (r *Registry) Require(id string) error {
	if id == "" {
		return errdef.Wrap(errdef.ErrTenantViolation, "empty tenant id")
	}
	if !r.set[id] {
		return errdef.Wrap(errdef.ErrTenantViolation, "tenant %q is not registered", id)
	}
	return nil
}
