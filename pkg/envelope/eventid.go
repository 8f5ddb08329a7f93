package envelope

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
)

// DeterministicEventID derives a stable event id from the identity of the
// work that produced it. Re-running a handler for the same input yields
// the same id, so the event store's (tenant_id, event_id) uniqueness turns
// duplicate deliveries into no-ops.
//
// The id is the SHA-256 of the RFC 8785 canonical form of the identity
// parts, so field ordering in the caller cannot change the result.
func DeterministicEventID(eventType string, parts map[string]string) (string, error) {
	identity := map[string]any{"event_type": eventType}
	for k, v := range parts {
		identity[k] = v
	}
	raw, err := json.Marshal(identity)
	if err != nil {
		return "", fmt.Errorf("marshal event identity: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalize event identity: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return "evt_" + hex.EncodeToString(sum[:16]), nil
}
