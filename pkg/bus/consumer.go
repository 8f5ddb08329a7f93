package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gsg-platform/bridge/pkg/envelope"
	"github.com/gsg-platform/bridge/pkg/errdef"
	"github.com/gsg-platform/bridge/pkg/tenants"
)

// WildcardEventType subscribes a handler to every event type that has no
// dedicated handler, which is what the lake sink needs.
const WildcardEventType = "*"

// ConsumerConfig tunes one consumer runtime process.
type ConsumerConfig struct {
	Group           string
	ConsumerName    string
	Partitions      int
	BatchSize       int64
	PollTimeout     time.Duration
	ReclaimIdle     time.Duration
	MaxRedeliveries int
	DLQSuffix       string
}

func (c *ConsumerConfig) defaults() {
	if c.Partitions < 1 {
		c.Partitions = 1
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 16
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = 2 * time.Second
	}
	if c.ReclaimIdle <= 0 {
		c.ReclaimIdle = 15 * time.Second
	}
	if c.ConsumerName == "" {
		c.ConsumerName = c.Group + "-0"
	}
	if c.DLQSuffix == "" {
		c.DLQSuffix = ".dlq"
	}
}

// Consumer is the runtime: one worker per subscribed topic, each reading
// that topic's partition streams through a consumer group. Per-partition
// order is preserved because a worker drains entries serially; offsets
// are committed (XACK) only after the handler succeeds.
type Consumer struct {
	rdb      redis.Cmdable
	codec    *envelope.Codec
	registry *tenants.Registry
	pub      Publisher
	cfg      ConsumerConfig
	log      *slog.Logger

	mu       sync.Mutex
	topics   []string
	handlers map[string]Handler
}

func NewConsumer(rdb redis.Cmdable, codec *envelope.Codec, registry *tenants.Registry,
	pub Publisher, cfg ConsumerConfig, log *slog.Logger) *Consumer {
	cfg.defaults()
	return &Consumer{
		rdb:      rdb,
		codec:    codec,
		registry: registry,
		pub:      pub,
		cfg:      cfg,
		log:      log,
		handlers: make(map[string]Handler),
	}
}

// Subscribe adds a topic to this runtime. Must be called before Run.
func (c *Consumer) Subscribe(topic string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.topics = append(c.topics, topic)
}

// On binds a handler to an event type. A WildcardEventType handler
// receives every event without a dedicated binding.
func (c *Consumer) On(eventType string, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[eventType] = h
}

// Run drives the workers until ctx is cancelled. Each worker finishes
// its in-flight message before exiting, so a clean shutdown never
// abandons a half-processed delivery.
func (c *Consumer) Run(ctx context.Context) error {
	c.mu.Lock()
	topics := append([]string(nil), c.topics...)
	c.mu.Unlock()
	if len(topics) == 0 {
		return errdef.Wrap(errdef.ErrMisconfig, "consumer has no subscribed topics")
	}

	for _, topic := range topics {
		if err := c.ensureGroups(ctx, topic); err != nil {
			return err
		}
	}

	var wg sync.WaitGroup
	for _, topic := range topics {
		wg.Add(1)
		go func(topic string) {
			defer wg.Done()
			c.runTopic(ctx, topic)
		}(topic)
	}
	wg.Wait()
	return nil
}

// ensureGroups creates the consumer group on every partition stream.
// Starting at id 0 picks up entries published before the group existed.
func (c *Consumer) ensureGroups(ctx context.Context, topic string) error {
	for p := 0; p < c.cfg.Partitions; p++ {
		stream := envelope.PartitionStream(topic, p)
		err := c.rdb.XGroupCreateMkStream(ctx, stream, c.cfg.Group, "0").Err()
		if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
			return fmt.Errorf("create group %s on %s: %w", c.cfg.Group, stream, err)
		}
	}
	return nil
}

func (c *Consumer) runTopic(ctx context.Context, topic string) {
	streams := make([]string, 0, c.cfg.Partitions*2)
	for p := 0; p < c.cfg.Partitions; p++ {
		streams = append(streams, envelope.PartitionStream(topic, p))
	}
	partitionStreams := append([]string(nil), streams...)
	for range partitionStreams {
		streams = append(streams, ">")
	}

	log := c.log.With("topic", topic, "group", c.cfg.Group)
	log.Info("worker started", "partitions", c.cfg.Partitions)

	for {
		if ctx.Err() != nil {
			log.Info("worker stopped")
			return
		}

		// Reclaim stalled deliveries first so failed messages are not
		// starved behind fresh traffic.
		for _, stream := range partitionStreams {
			c.reclaim(ctx, topic, stream, log)
		}

		res, err := c.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    c.cfg.Group,
			Consumer: c.cfg.ConsumerName,
			Streams:  streams,
			Count:    c.cfg.BatchSize,
			Block:    c.cfg.PollTimeout,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			log.Warn("poll failed", "error", err)
			select {
			case <-ctx.Done():
			case <-time.After(c.cfg.PollTimeout):
			}
			continue
		}

		for _, stream := range res {
			for _, msg := range stream.Messages {
				c.process(ctx, topic, stream.Stream, msg, log)
				if ctx.Err() != nil {
					log.Info("worker stopped")
					return
				}
			}
		}
	}
}

func (c *Consumer) reclaim(ctx context.Context, topic, stream string, log *slog.Logger) {
	msgs, _, err := c.rdb.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   stream,
		Group:    c.cfg.Group,
		Consumer: c.cfg.ConsumerName,
		MinIdle:  c.cfg.ReclaimIdle,
		Start:    "0",
		Count:    c.cfg.BatchSize,
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		log.Warn("reclaim failed", "stream", stream, "error", err)
		return
	}
	for _, msg := range msgs {
		c.process(ctx, topic, stream, msg, log)
		if ctx.Err() != nil {
			return
		}
	}
}

func (c *Consumer) process(ctx context.Context, topic, stream string, msg redis.XMessage, log *slog.Logger) {
	wire, ok := msg.Values["envelope"].(string)
	if !ok {
		log.Warn("entry without envelope field dropped", "stream", stream, "id", msg.ID)
		c.ack(ctx, stream, msg.ID)
		return
	}

	env, err := c.codec.Decode([]byte(wire))
	if err != nil {
		// Nothing well-formed to wrap; park the raw bytes on the DLQ
		// stream so nothing is silently lost.
		c.deadLetterRaw(ctx, topic, stream, msg, wire, err, log)
		return
	}

	handlerErr := c.dispatch(ctx, topic, env)
	if handlerErr == nil {
		c.ack(ctx, stream, msg.ID)
		c.clearRetries(ctx, stream, msg.ID)
		return
	}

	if errdef.Terminal(handlerErr) {
		attempts := int(c.retryCount(ctx, stream, msg.ID)) + 1
		c.deadLetter(ctx, topic, stream, msg, env, attempts, handlerErr, log)
		return
	}

	n, err := c.bumpRetries(ctx, stream, msg.ID)
	if err != nil {
		log.Warn("retry counter unavailable, leaving message pending",
			"stream", stream, "id", msg.ID, "error", err)
		return
	}
	if int(n) > c.cfg.MaxRedeliveries {
		c.deadLetter(ctx, topic, stream, msg, env, int(n), handlerErr, log)
		return
	}
	log.Warn("handler failed, message left pending",
		"stream", stream, "id", msg.ID,
		"event_id", env.Headers.EventID, "attempt", n, "error", handlerErr)
}

func (c *Consumer) dispatch(ctx context.Context, topic string, env *envelope.Envelope) error {
	if err := c.registry.Require(env.Headers.TenantID); err != nil {
		return err
	}

	c.mu.Lock()
	h, ok := c.handlers[env.Headers.EventType]
	if !ok {
		h, ok = c.handlers[WildcardEventType]
	}
	c.mu.Unlock()
	if !ok {
		return nil
	}
	return h.Handle(ctx, topic, env)
}

// deadLetter wraps the original envelope and publishes it to the
// source topic's dead-letter topic, then commits the source offset so
// the partition advances past the poison message.
func (c *Consumer) deadLetter(ctx context.Context, topic, stream string, msg redis.XMessage,
	env *envelope.Envelope, attempts int, cause error, log *slog.Logger) {
	wrapped, err := envelope.WrapDeliveryFailed(env, topic, attempts, cause, envelope.Now())
	if err != nil {
		log.Error("dead-letter wrap failed", "id", msg.ID, "error", err)
		return
	}
	if err := c.pub.Publish(ctx, envelope.DLQTopic(topic, c.cfg.DLQSuffix), wrapped); err != nil {
		log.Error("dead-letter publish failed, message left pending",
			"id", msg.ID, "error", err)
		return
	}
	c.ack(ctx, stream, msg.ID)
	c.clearRetries(ctx, stream, msg.ID)
	log.Warn("message dead-lettered",
		"event_id", env.Headers.EventID, "attempts", attempts, "error", cause)
}

// deadLetterRaw parks an undecodable entry on the dead-letter stream
// without an envelope wrapper.
func (c *Consumer) deadLetterRaw(ctx context.Context, topic, stream string, msg redis.XMessage,
	wire string, cause error, log *slog.Logger) {
	dlq := envelope.PartitionStream(envelope.DLQTopic(topic, c.cfg.DLQSuffix), 0)
	err := c.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: dlq,
		Values: map[string]any{
			"raw":          wire,
			"source":       stream,
			"error":        cause.Error(),
			"failed_at_ms": time.Now().UnixMilli(),
		},
	}).Err()
	if err != nil {
		log.Error("dead-letter of undecodable entry failed", "id", msg.ID, "error", err)
		return
	}
	c.ack(ctx, stream, msg.ID)
	log.Warn("undecodable entry dead-lettered", "stream", stream, "id", msg.ID, "error", cause)
}

func (c *Consumer) ack(ctx context.Context, stream, id string) {
	if err := c.rdb.XAck(ctx, stream, c.cfg.Group, id).Err(); err != nil {
		c.log.Warn("ack failed", "stream", stream, "id", id, "error", err)
	}
}

// Retry counters live beside the streams, keyed per delivery, with an
// expiry so abandoned counters self-clean.
func (c *Consumer) retryKey(stream, id string) string {
	return fmt.Sprintf("%s.retries/%s/%s", stream, c.cfg.Group, id)
}

func (c *Consumer) bumpRetries(ctx context.Context, stream, id string) (int64, error) {
	key := c.retryKey(stream, id)
	n, err := c.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	c.rdb.Expire(ctx, key, 24*time.Hour)
	return n, nil
}

func (c *Consumer) retryCount(ctx context.Context, stream, id string) int64 {
	n, err := c.rdb.Get(ctx, c.retryKey(stream, id)).Int64()
	if err != nil {
		return 0
	}
	return n
}

func (c *Consumer) clearRetries(ctx context.Context, stream, id string) {
	c.rdb.Del(ctx, c.retryKey(stream, id))
}
