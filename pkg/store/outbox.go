package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"

	"github.com/gsg-platform/bridge/pkg/envelope"
	"github.com/gsg-platform/bridge/pkg/errdef"
)

// OutboxRow is one event waiting to be published. Rows are written in the
// same transaction as the business data they announce and deleted only
// after broker acknowledgement, which gives effectively-atomic
// "DB write + event emit" over an unreliable broker.
type OutboxRow struct {
	OutboxID     int64
	EventID      string
	Topic        string
	PartitionKey string
	Envelope     *envelope.Envelope
	CreatedAt    time.Time
}

// OutboxStore persists and drains the transactional outbox. The table
// carries fully formed envelopes for every tenant, so it has no row
// policy; only the relay, a trusted system service, reads it.
type OutboxStore struct {
	codec *envelope.Codec
}

func NewOutboxStore(codec *envelope.Codec) *OutboxStore {
	return &OutboxStore{codec: codec}
}

// AppendTx queues an envelope inside a handler transaction. Duplicate
// event ids are a no-op, matching the event store's idempotency.
func (s *OutboxStore) AppendTx(ctx context.Context, tx *sql.Tx, env *envelope.Envelope, topic string) error {
	wire, err := s.codec.Encode(env)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO outbox (event_id, topic, partition_key, envelope)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (event_id) DO NOTHING
	`, env.Headers.EventID, topic, env.Headers.CorrelationID, wire)
	if err != nil {
		return errdef.Wrap(errdef.ErrTransientStorage, "append outbox: %v", err)
	}
	return nil
}

// ClaimBatch locks up to limit rows for publishing, oldest first. The
// FOR UPDATE SKIP LOCKED claim lets multiple relay replicas drain the
// table without serializing on each other or double-publishing within a
// transaction's lifetime.
func (s *OutboxStore) ClaimBatch(ctx context.Context, tx *sql.Tx, limit int) ([]OutboxRow, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT outbox_id, event_id, topic, partition_key, envelope, created_at
		FROM outbox
		ORDER BY outbox_id ASC
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, errdef.Wrap(errdef.ErrTransientStorage, "claim outbox batch: %v", err)
	}
	defer func() { _ = rows.Close() }()

	//nolint:prealloc // result count unknown from SQL query
	var out []OutboxRow
	for rows.Next() {
		var row OutboxRow
		var wire []byte
		if err := rows.Scan(&row.OutboxID, &row.EventID, &row.Topic, &row.PartitionKey,
			&wire, &row.CreatedAt); err != nil {
			return nil, err
		}
		env, err := s.codec.Decode(wire)
		if err != nil {
			return nil, err
		}
		row.Envelope = env
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, errdef.Wrap(errdef.ErrTransientStorage, "claim outbox batch: %v", err)
	}
	return out, nil
}

// DeleteTx removes published rows within the claiming transaction. Only
// rows whose publish was acknowledged by the broker may be passed here.
func (s *OutboxStore) DeleteTx(ctx context.Context, tx *sql.Tx, outboxIDs []int64) error {
	if len(outboxIDs) == 0 {
		return nil
	}
	_, err := tx.ExecContext(ctx,
		`DELETE FROM outbox WHERE outbox_id = ANY($1)`, pq.Array(outboxIDs))
	if err != nil {
		return errdef.Wrap(errdef.ErrTransientStorage, "delete outbox rows: %v", err)
	}
	return nil
}

// Depth reports the number of queued rows, for health reporting.
func (s *OutboxStore) Depth(ctx context.Context, db *sql.DB) (int64, error) {
	var n int64
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM outbox`).Scan(&n); err != nil {
		return 0, errdef.Wrap(errdef.ErrTransientStorage, "outbox depth: %v", err)
	}
	return n, nil
}
