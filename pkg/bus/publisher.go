package bus

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/gsg-platform/bridge/pkg/envelope"
)

// StreamPublisher writes envelopes to partitioned Redis streams. The
// partition is derived from the correlation id, so every envelope in one
// causal chain lands on the same stream and keeps production order.
type StreamPublisher struct {
	rdb        redis.Cmdable
	codec      *envelope.Codec
	partitions int
}

func NewStreamPublisher(rdb redis.Cmdable, codec *envelope.Codec, partitions int) *StreamPublisher {
	if partitions < 1 {
		partitions = 1
	}
	return &StreamPublisher{rdb: rdb, codec: codec, partitions: partitions}
}

func (p *StreamPublisher) Publish(ctx context.Context, topic string, env *envelope.Envelope) error {
	wire, err := p.codec.Encode(env)
	if err != nil {
		return err
	}
	part := envelope.PartitionFor(env.Headers.CorrelationID, p.partitions)
	stream := envelope.PartitionStream(topic, part)

	err = p.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]any{
			"envelope":   wire,
			"event_id":   env.Headers.EventID,
			"event_type": env.Headers.EventType,
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("publish %s to %s: %w", env.Headers.EventID, stream, err)
	}
	return nil
}
