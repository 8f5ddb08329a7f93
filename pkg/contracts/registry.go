package contracts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gowebpki/jcs"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/gsg-platform/bridge/pkg/errdef"
)

// Store persists contracts. The registry is the in-memory cache in front
// of it.
type Store interface {
	Insert(ctx context.Context, c Contract) error
	LoadAll(ctx context.Context) ([]Contract, error)
}

type entry struct {
	contract Contract
	// canonical is the RFC 8785 form of the schema, used for conflict
	// detection. Two schemas that differ only in key order or whitespace
	// are the same contract.
	canonical []byte
	compiled  *jsonschema.Schema
}

// Registry is a process-local read-mostly cache over the contract store.
// Lookups are lock-free; registration takes an exclusive lock and swaps a
// copied map.
type Registry struct {
	mu    sync.Mutex // serializes writers
	cache atomic.Value // map[Key]*entry
	store Store
}

// NewRegistry builds an empty registry over a store. A nil store keeps
// the registry purely in-memory (tests, producers with static contracts).
func NewRegistry(store Store) *Registry {
	r := &Registry{store: store}
	r.cache.Store(map[Key]*entry{})
	return r
}

// Warm loads every persisted contract into the cache. Called once at
// startup before the registry serves lookups.
func (r *Registry) Warm(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	all, err := r.store.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("warm contract cache: %w", err)
	}
	for _, c := range all {
		if err := r.cachePut(c); err != nil {
			return fmt.Errorf("contract %s@%d: %w", c.Name, c.Version, err)
		}
	}
	return nil
}

// Register binds a schema to (name, version). Re-registering the same
// pair with an equivalent schema is a no-op; a different schema fails
// with ContractConflict.
func (r *Registry) Register(ctx context.Context, name string, version int, schema json.RawMessage) error {
	if name == "" || version <= 0 {
		return fmt.Errorf("invalid contract key %s@%d", name, version)
	}

	canonical, err := jcs.Transform(schema)
	if err != nil {
		return fmt.Errorf("contract %s@%d schema is not valid JSON: %w", name, version, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := Key{Name: name, Version: version}
	if existing, ok := r.snapshot()[key]; ok {
		if bytes.Equal(existing.canonical, canonical) {
			return nil
		}
		return errdef.Wrap(errdef.ErrContractConflict, "%s already registered with a different schema", key)
	}

	c := Contract{Name: name, Version: version, Schema: schema, RegisteredAt: time.Now().UTC()}
	if r.store != nil {
		if err := r.store.Insert(ctx, c); err != nil {
			return err
		}
	}
	return r.cachePutLocked(c, canonical)
}

// Has reports whether (name, version) is registered. O(1), lock-free.
// Implements envelope.ContractResolver.
func (r *Registry) Has(name string, version int) bool {
	_, ok := r.snapshot()[Key{Name: name, Version: version}]
	return ok
}

// Get returns a registered contract.
func (r *Registry) Get(name string, version int) (Contract, error) {
	e, ok := r.snapshot()[Key{Name: name, Version: version}]
	if !ok {
		return Contract{}, errdef.Wrap(errdef.ErrUnknownContract, "%s@%d", name, version)
	}
	return e.contract, nil
}

// Latest returns the highest registered version for a name, or zero when
// the name is unknown.
func (r *Registry) Latest(name string) int {
	latest := 0
	for key := range r.snapshot() {
		if key.Name == name && key.Version > latest {
			latest = key.Version
		}
	}
	return latest
}

// ValidatePayload checks a payload against the compiled schema of a
// contract. Structural validation is the collaborator's concern on the
// hot path; handlers opt in where payload shape matters.
func (r *Registry) ValidatePayload(name string, version int, payload json.RawMessage) error {
	e, ok := r.snapshot()[Key{Name: name, Version: version}]
	if !ok {
		return errdef.Wrap(errdef.ErrUnknownContract, "%s@%d", name, version)
	}
	if e.compiled == nil {
		return nil
	}
	var doc any
	if err := json.Unmarshal(payload, &doc); err != nil {
		return errdef.Wrap(errdef.ErrMalformedEnvelope, "payload is not valid JSON: %v", err)
	}
	if err := e.compiled.Validate(doc); err != nil {
		return errdef.Wrap(errdef.ErrMalformedEnvelope, "payload fails %s@%d: %v", name, version, err)
	}
	return nil
}

func (r *Registry) snapshot() map[Key]*entry {
	return r.cache.Load().(map[Key]*entry)
}

func (r *Registry) cachePut(c Contract) error {
	canonical, err := jcs.Transform(c.Schema)
	if err != nil {
		return fmt.Errorf("schema is not valid JSON: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cachePutLocked(c, canonical)
}

// cachePutLocked swaps in a copied map with the new entry. Callers hold
// r.mu.
func (r *Registry) cachePutLocked(c Contract, canonical []byte) error {
	compiled, err := compileSchema(c)
	if err != nil {
		return err
	}

	old := r.snapshot()
	next := make(map[Key]*entry, len(old)+1)
	for k, v := range old {
		next[k] = v
	}
	next[Key{Name: c.Name, Version: c.Version}] = &entry{
		contract:  c,
		canonical: canonical,
		compiled:  compiled,
	}
	r.cache.Store(next)
	return nil
}

func compileSchema(c Contract) (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	url := fmt.Sprintf("bridge://contracts/%s@%d.json", c.Name, c.Version)
	if err := compiler.AddResource(url, bytes.NewReader(c.Schema)); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	compiled, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return compiled, nil
}
