package envelope

import (
	"encoding/json"
	"time"

	"github.com/gsg-platform/bridge/pkg/errdef"
)

// ContractResolver answers whether a contract reference is registered.
// Implemented by the contract registry; a nil resolver skips the check
// (used by producers that registered their own contracts at startup).
type ContractResolver interface {
	Has(name string, version int) bool
}

// Codec serializes and validates envelopes on the wire. The codec does
// not interpret payloads; it only verifies the schema reference resolves.
type Codec struct {
	resolver ContractResolver
}

// NewCodec builds a codec bound to a contract resolver.
func NewCodec(resolver ContractResolver) *Codec {
	return &Codec{resolver: resolver}
}

// knownHeaderFields lists the header keys owned by this build. Anything
// else round-trips through Headers.Extra untouched.
var knownHeaderFields = map[string]bool{
	"world": true, "division": true, "capability": true, "role": true,
	"qualifier": true, "version": true, "event_id": true, "event_type": true,
	"tenant_id": true, "project_tag": true, "agent_run_id": true,
	"occurred_at": true, "payload_schema": true, "correlation_id": true,
	"causation_id": true,
}

// Encode serializes an envelope as a single self-describing JSON
// document, merging preserved unknown header fields back in.
func (c *Codec) Encode(env *Envelope) ([]byte, error) {
	type alias Headers
	known, err := json.Marshal(alias(env.Headers))
	if err != nil {
		return nil, errdef.Wrap(errdef.ErrMalformedEnvelope, "marshal headers: %v", err)
	}

	var headerMap map[string]json.RawMessage
	if err := json.Unmarshal(known, &headerMap); err != nil {
		return nil, errdef.Wrap(errdef.ErrMalformedEnvelope, "remarshal headers: %v", err)
	}
	for k, v := range env.Headers.Extra {
		if !knownHeaderFields[k] {
			headerMap[k] = v
		}
	}

	doc := struct {
		Headers map[string]json.RawMessage `json:"headers"`
		Payload json.RawMessage            `json:"payload"`
	}{Headers: headerMap, Payload: env.Payload}

	return json.Marshal(doc)
}

// Decode parses a wire document, validates required headers, and checks
// the payload_schema reference against the registry. Unknown header
// fields are preserved.
func (c *Codec) Decode(data []byte) (*Envelope, error) {
	var doc struct {
		Headers map[string]json.RawMessage `json:"headers"`
		Payload json.RawMessage            `json:"payload"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errdef.Wrap(errdef.ErrMalformedEnvelope, "decode: %v", err)
	}
	if doc.Headers == nil {
		return nil, errdef.Wrap(errdef.ErrMalformedEnvelope, "missing headers")
	}

	headerBytes, err := json.Marshal(doc.Headers)
	if err != nil {
		return nil, errdef.Wrap(errdef.ErrMalformedEnvelope, "remarshal headers: %v", err)
	}
	type alias Headers
	var h alias
	if err := json.Unmarshal(headerBytes, &h); err != nil {
		return nil, errdef.Wrap(errdef.ErrMalformedEnvelope, "parse headers: %v", err)
	}

	env := &Envelope{Headers: Headers(h), Payload: doc.Payload}
	for k, v := range doc.Headers {
		if !knownHeaderFields[k] {
			if env.Headers.Extra == nil {
				env.Headers.Extra = make(map[string]json.RawMessage)
			}
			env.Headers.Extra[k] = v
		}
	}

	if err := c.Validate(env); err != nil {
		return nil, err
	}
	return env, nil
}

// Validate enforces the required header fields and the contract
// reference. It does not touch the payload.
func (c *Codec) Validate(env *Envelope) error {
	h := env.Headers
	switch {
	case h.TenantID == "":
		return errdef.Wrap(errdef.ErrMalformedEnvelope, "missing tenant_id")
	case h.OccurredAt.IsZero():
		return errdef.Wrap(errdef.ErrMalformedEnvelope, "missing occurred_at")
	case h.PayloadSchema == "":
		return errdef.Wrap(errdef.ErrMalformedEnvelope, "missing payload_schema")
	case h.CorrelationID == "":
		return errdef.Wrap(errdef.ErrMalformedEnvelope, "missing correlation_id")
	}

	ref, err := h.Schema()
	if err != nil {
		return errdef.Wrap(errdef.ErrMalformedEnvelope, "%v", err)
	}
	if c.resolver != nil && !c.resolver.Has(ref.Name, ref.Version) {
		return errdef.Wrap(errdef.ErrUnknownContract, "%s", ref)
	}
	return nil
}

// Now returns the current UTC time truncated to millisecond precision,
// the resolution envelopes carry on the wire.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}
