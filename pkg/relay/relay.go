// Package relay drains the transactional outbox onto the bus. Together
// with the outbox table it turns "DB write + event emit" into an
// effectively-atomic operation over an unreliable broker: rows are
// deleted only after the broker acknowledges the publish.
package relay

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/gsg-platform/bridge/pkg/bus"
	"github.com/gsg-platform/bridge/pkg/errdef"
	"github.com/gsg-platform/bridge/pkg/store"
)

type Relay struct {
	db     *sql.DB
	outbox *store.OutboxStore
	pub    bus.Publisher
	batch  int
	poll   time.Duration
	log    *slog.Logger
}

func New(db *sql.DB, outbox *store.OutboxStore, pub bus.Publisher,
	batch int, poll time.Duration, log *slog.Logger) *Relay {
	if batch <= 0 {
		batch = 100
	}
	if poll <= 0 {
		poll = 500 * time.Millisecond
	}
	return &Relay{db: db, outbox: outbox, pub: pub, batch: batch, poll: poll, log: log}
}

// Run polls the outbox until ctx is cancelled. Each cycle drains the
// table to empty so a backlog clears faster than one batch per poll.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.poll)
	defer ticker.Stop()

	r.log.Info("relay started", "batch", r.batch, "poll", r.poll)
	for {
		select {
		case <-ctx.Done():
			r.log.Info("relay stopped")
			return nil
		case <-ticker.C:
			for {
				n, err := r.DrainOnce(ctx)
				if err != nil {
					r.log.Warn("outbox drain failed", "error", err)
					break
				}
				if n < r.batch {
					break
				}
			}
		}
	}
}

// DrainOnce claims one batch, publishes each row, and deletes the rows
// the broker acknowledged. Rows whose publish failed stay queued; the
// SKIP LOCKED claim means concurrent relays never block on them.
func (r *Relay) DrainOnce(ctx context.Context) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errdef.Wrap(errdef.ErrTransientStorage, "begin relay tx: %v", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := r.outbox.ClaimBatch(ctx, tx, r.batch)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, tx.Commit()
	}

	acked := make([]int64, 0, len(rows))
	for _, row := range rows {
		if err := r.pub.Publish(ctx, row.Topic, row.Envelope); err != nil {
			r.log.Warn("publish failed, row stays queued",
				"event_id", row.EventID, "topic", row.Topic, "error", err)
			continue
		}
		acked = append(acked, row.OutboxID)
	}

	if err := r.outbox.DeleteTx(ctx, tx, acked); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, errdef.Wrap(errdef.ErrTransientStorage, "commit relay tx: %v", err)
	}
	return len(rows), nil
}
