// Package envelope defines the canonical event envelope and its wire
// codec. Every message crossing the bus is one envelope: a fixed header
// record plus an opaque payload whose shape is governed by the
// payload_schema contract reference.
package envelope

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Well-known event types carried on the bus.
const (
	TypeCSRIngested        = "CSR_INGESTED"
	TypeESGMetricExtracted = "ESG_METRIC_EXTRACTED"
	TypeDeliveryFailed     = "DeliveryFailed"
)

// Headers is the fixed header record of an envelope. Unknown header
// fields seen on the wire are preserved in Extra so newer producers can
// round-trip through older consumers.
type Headers struct {
	World      string `json:"world,omitempty"`
	Division   string `json:"division,omitempty"`
	Capability string `json:"capability,omitempty"`
	Role       string `json:"role,omitempty"`
	Qualifier  string `json:"qualifier,omitempty"`
	Version    string `json:"version,omitempty"`

	EventID    string    `json:"event_id"`
	EventType  string    `json:"event_type"`
	TenantID   string    `json:"tenant_id"`
	ProjectTag string    `json:"project_tag,omitempty"`
	AgentRunID string    `json:"agent_run_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`

	// PayloadSchema is a contract reference of the form "name@version".
	PayloadSchema string `json:"payload_schema"`

	// CorrelationID is stable across a causal chain and is the partition
	// key input. CausationID names the direct parent event, if any.
	CorrelationID string `json:"correlation_id"`
	CausationID   string `json:"causation_id,omitempty"`

	// Extra holds header fields this build does not know about.
	Extra map[string]json.RawMessage `json:"-"`
}

// Envelope is the unit of inter-component communication.
type Envelope struct {
	Headers Headers         `json:"headers"`
	Payload json.RawMessage `json:"payload"`
}

// SchemaRef is a parsed payload_schema reference.
type SchemaRef struct {
	Name    string
	Version int
}

func (r SchemaRef) String() string {
	return fmt.Sprintf("%s@%d", r.Name, r.Version)
}

// ParseSchemaRef splits "name@version" into its parts. The version must
// be a positive integer.
func ParseSchemaRef(s string) (SchemaRef, error) {
	name, ver, ok := strings.Cut(s, "@")
	if !ok || name == "" {
		return SchemaRef{}, fmt.Errorf("payload_schema %q is not name@version", s)
	}
	n, err := strconv.Atoi(ver)
	if err != nil || n <= 0 {
		return SchemaRef{}, fmt.Errorf("payload_schema %q has non-integer version", s)
	}
	return SchemaRef{Name: name, Version: n}, nil
}

// Schema returns the parsed payload_schema reference.
func (h Headers) Schema() (SchemaRef, error) {
	return ParseSchemaRef(h.PayloadSchema)
}

// DecodePayload unmarshals the opaque payload into v. Handlers call this
// just-in-time once the contract reference has been resolved.
func (e *Envelope) DecodePayload(v any) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("decode payload against %s: %w", e.Headers.PayloadSchema, err)
	}
	return nil
}

// deliveryFailedPayload wraps an undeliverable envelope for the DLQ.
type deliveryFailedPayload struct {
	Original   *Envelope `json:"original"`
	Topic      string    `json:"topic"`
	Attempts   int       `json:"attempts"`
	LastError  string    `json:"last_error"`
	FailedAt   time.Time `json:"failed_at"`
}

// WrapDeliveryFailed builds the DeliveryFailed envelope routed to
// {source_topic}.dlq after redeliveries are exhausted. The wrapper keeps
// the original tenant and correlation so DLQ consumers stay scoped.
func WrapDeliveryFailed(original *Envelope, topic string, attempts int, lastErr error, now time.Time) (*Envelope, error) {
	payload, err := json.Marshal(deliveryFailedPayload{
		Original:  original,
		Topic:     topic,
		Attempts:  attempts,
		LastError: lastErr.Error(),
		FailedAt:  now.UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal delivery failure: %w", err)
	}
	return &Envelope{
		Headers: Headers{
			EventID:       original.Headers.EventID + ".dlq",
			EventType:     TypeDeliveryFailed,
			TenantID:      original.Headers.TenantID,
			ProjectTag:    original.Headers.ProjectTag,
			OccurredAt:    now.UTC(),
			PayloadSchema: "delivery_failed@1",
			CorrelationID: original.Headers.CorrelationID,
			CausationID:   original.Headers.EventID,
		},
		Payload: payload,
	}, nil
}
