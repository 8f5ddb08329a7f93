package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/gsg-platform/bridge/pkg/envelope"
	"github.com/gsg-platform/bridge/pkg/errdef"
	"github.com/gsg-platform/bridge/pkg/tenants"
)

// EventStore is the append-only log of every envelope seen, keyed
// (tenant_id, event_id). It is the system of record for replay.
type EventStore struct {
	codec *envelope.Codec
}

func NewEventStore(codec *envelope.Codec) *EventStore {
	return &EventStore{codec: codec}
}

// Append records an envelope. Re-appending an existing (tenant, event)
// pair is a no-op; the return value reports whether a row was written.
func (s *EventStore) Append(ctx context.Context, scope *tenants.Scope, env *envelope.Envelope, topic string) (bool, error) {
	if err := scope.Check(env.Headers.TenantID); err != nil {
		return false, err
	}
	wire, err := s.codec.Encode(env)
	if err != nil {
		return false, err
	}

	res, err := scope.Conn().ExecContext(ctx, `
		INSERT INTO event_registry (tenant_id, event_id, event_type, topic, correlation_id, occurred_at, envelope)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (tenant_id, event_id) DO NOTHING
	`, env.Headers.TenantID, env.Headers.EventID, env.Headers.EventType, topic,
		env.Headers.CorrelationID, env.Headers.OccurredAt, wire)
	if err != nil {
		return false, errdef.Wrap(errdef.ErrTransientStorage, "append event: %v", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// AppendTx is Append inside an existing transaction, for handlers that
// commit the event record atomically with their business writes.
func (s *EventStore) AppendTx(ctx context.Context, tx *sql.Tx, scope *tenants.Scope, env *envelope.Envelope, topic string) (bool, error) {
	if err := scope.Check(env.Headers.TenantID); err != nil {
		return false, err
	}
	wire, err := s.codec.Encode(env)
	if err != nil {
		return false, err
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO event_registry (tenant_id, event_id, event_type, topic, correlation_id, occurred_at, envelope)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (tenant_id, event_id) DO NOTHING
	`, env.Headers.TenantID, env.Headers.EventID, env.Headers.EventType, topic,
		env.Headers.CorrelationID, env.Headers.OccurredAt, wire)
	if err != nil {
		return false, errdef.Wrap(errdef.ErrTransientStorage, "append event: %v", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Seen reports whether an event id was already recorded for the scope's
// tenant. Handlers use it as their idempotency check before doing work.
func (s *EventStore) Seen(ctx context.Context, scope *tenants.Scope, eventID string) (bool, error) {
	var one int
	err := scope.Conn().QueryRowContext(ctx, `
		SELECT 1 FROM event_registry WHERE tenant_id = $1 AND event_id = $2
	`, scope.Tenant(), eventID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, errdef.Wrap(errdef.ErrTransientStorage, "event lookup: %v", err)
	}
	return true, nil
}

// ListByType returns envelopes of one type within a time range, oldest
// first. Used by replay tooling.
func (s *EventStore) ListByType(ctx context.Context, scope *tenants.Scope, eventType string, from, to time.Time, limit int) ([]*envelope.Envelope, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := scope.Conn().QueryContext(ctx, `
		SELECT envelope FROM event_registry
		WHERE tenant_id = $1 AND event_type = $2 AND occurred_at >= $3 AND occurred_at < $4
		ORDER BY occurred_at ASC
		LIMIT $5
	`, scope.Tenant(), eventType, from, to, limit)
	if err != nil {
		return nil, errdef.Wrap(errdef.ErrTransientStorage, "list events: %v", err)
	}
	defer func() { _ = rows.Close() }()

	//nolint:prealloc // result count unknown from SQL query
	var out []*envelope.Envelope
	for rows.Next() {
		var wire []byte
		if err := rows.Scan(&wire); err != nil {
			return nil, err
		}
		env, err := s.codec.Decode(wire)
		if err != nil {
			return nil, err
		}
		out = append(out, env)
	}
	if err := rows.Err(); err != nil {
		return nil, errdef.Wrap(errdef.ErrTransientStorage, "list events: %v", err)
	}
	return out, nil
}
