package lake

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gsg-platform/bridge/pkg/envelope"
)

// partition identifies one in-memory buffer. Date is the UTC day of
// occurred_at, yyyy-mm-dd.
type partition struct {
	Topic   string
	Tenant  string
	Project string
	Date    string
}

type buffer struct {
	lines    bytes.Buffer
	count    int
	openedAt time.Time
}

// Sink buffers envelopes per (topic, tenant, project, day) and flushes a
// partition to a part file when its buffer crosses the size threshold or
// its age crosses the time threshold. Duplicates in the lake are fine;
// downstream dedupes by event_id.
type Sink struct {
	codec      *envelope.Codec
	store      ObjectStore
	flushBytes int64
	flushAfter time.Duration
	log        *slog.Logger
	now        func() time.Time

	mu   sync.Mutex
	bufs map[partition]*buffer
	seq  int64
}

func NewSink(codec *envelope.Codec, store ObjectStore,
	flushBytes int64, flushAfter time.Duration, log *slog.Logger) *Sink {
	if flushBytes <= 0 {
		flushBytes = 64 << 20
	}
	if flushAfter <= 0 {
		flushAfter = 5 * time.Minute
	}
	return &Sink{
		codec:      codec,
		store:      store,
		flushBytes: flushBytes,
		flushAfter: flushAfter,
		log:        log,
		now:        time.Now,
		bufs:       make(map[partition]*buffer),
	}
}

// Handle appends one envelope to its partition buffer. Implements
// bus.Handler; the sink is registered as the wildcard handler so it sees
// every topic it subscribes to.
func (s *Sink) Handle(ctx context.Context, topic string, env *envelope.Envelope) error {
	wire, err := s.codec.Encode(env)
	if err != nil {
		return err
	}

	project := env.Headers.ProjectTag
	if project == "" {
		project = "unassigned"
	}
	key := partition{
		Topic:   topic,
		Tenant:  env.Headers.TenantID,
		Project: project,
		Date:    env.Headers.OccurredAt.UTC().Format("2006-01-02"),
	}

	s.mu.Lock()
	buf, ok := s.bufs[key]
	if !ok {
		buf = &buffer{openedAt: s.now()}
		s.bufs[key] = buf
	}
	buf.lines.Write(wire)
	buf.lines.WriteByte('\n')
	buf.count++
	full := int64(buf.lines.Len()) >= s.flushBytes
	s.mu.Unlock()

	if full {
		return s.flush(ctx, key)
	}
	return nil
}

// Run flushes aged partitions until ctx is cancelled, then drains every
// remaining buffer so a clean shutdown loses nothing.
func (s *Sink) Run(ctx context.Context) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.FlushAll(context.Background())
			return nil
		case <-ticker.C:
			s.flushAged(ctx)
		}
	}
}

func (s *Sink) flushAged(ctx context.Context) {
	cutoff := s.now().Add(-s.flushAfter)

	s.mu.Lock()
	var aged []partition
	for key, buf := range s.bufs {
		if buf.openedAt.Before(cutoff) {
			aged = append(aged, key)
		}
	}
	s.mu.Unlock()

	for _, key := range aged {
		if err := s.flush(ctx, key); err != nil {
			s.log.Warn("partition flush failed", "topic", key.Topic,
				"tenant", key.Tenant, "error", err)
		}
	}
}

// FlushAll drains every buffer regardless of size or age.
func (s *Sink) FlushAll(ctx context.Context) {
	s.mu.Lock()
	keys := make([]partition, 0, len(s.bufs))
	for key := range s.bufs {
		keys = append(keys, key)
	}
	s.mu.Unlock()

	for _, key := range keys {
		if err := s.flush(ctx, key); err != nil {
			s.log.Warn("partition flush failed", "topic", key.Topic,
				"tenant", key.Tenant, "error", err)
		}
	}
}

func (s *Sink) flush(ctx context.Context, key partition) error {
	s.mu.Lock()
	buf, ok := s.bufs[key]
	if !ok || buf.count == 0 {
		s.mu.Unlock()
		return nil
	}
	delete(s.bufs, key)
	s.seq++
	objectKey := fmt.Sprintf("lake/%s/tenant=%s/project=%s/ds=%s/part-%d-%05d.jsonl",
		key.Topic, key.Tenant, key.Project, key.Date, s.now().UnixMilli(), s.seq)
	data := buf.lines.Bytes()
	count := buf.count
	s.mu.Unlock()

	if err := s.store.Put(ctx, objectKey, data); err != nil {
		// Re-queue so the events are retried on the next flush.
		s.mu.Lock()
		if existing, ok := s.bufs[key]; ok {
			data = append(data, existing.lines.Bytes()...)
			count += existing.count
		}
		requeued := &buffer{openedAt: s.now()}
		requeued.lines.Write(data)
		requeued.count = count
		s.bufs[key] = requeued
		s.mu.Unlock()
		return err
	}

	s.log.Info("partition flushed", "object", objectKey, "events", count, "bytes", len(data))
	return nil
}
