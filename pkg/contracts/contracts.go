// Package contracts maps (contract_name, version) pairs to payload
// schemas. Contracts are immutable once registered; registration is
// additive and idempotent. The registry treats schemas as opaque JSON for
// routing purposes but compiles them so handlers can validate payloads
// just-in-time.
package contracts

import (
	"encoding/json"
	"fmt"
	"time"
)

// Contract is one registered (name, version) to schema binding.
type Contract struct {
	Name         string          `json:"name"`
	Version      int             `json:"version"`
	Schema       json.RawMessage `json:"schema"`
	RegisteredAt time.Time       `json:"registered_at"`
}

// Key identifies a contract. Versions within a name are integers; higher
// is newer. Contracts reference each other by key value, never by object
// graph.
type Key struct {
	Name    string
	Version int
}

func (k Key) String() string {
	return fmt.Sprintf("%s@%d", k.Name, k.Version)
}
