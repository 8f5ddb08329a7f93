// Package bus is the Bridge's routing fabric over Redis Streams. Topics
// map to partitioned streams, consumer groups give at-least-once
// delivery, and a sidecar retry counter routes poison messages to a
// dead-letter topic after a bounded number of redeliveries.
package bus

import (
	"context"

	"github.com/gsg-platform/bridge/pkg/envelope"
)

// Publisher emits envelopes onto the fabric.
type Publisher interface {
	Publish(ctx context.Context, topic string, env *envelope.Envelope) error
}

// Handler processes one delivered envelope. topic is the source topic
// the envelope arrived on. Delivery is at-least-once; handlers must be
// idempotent. A nil return commits the offset; an error leaves the
// message pending for redelivery, except terminal errors which
// dead-letter immediately.
type Handler interface {
	Handle(ctx context.Context, topic string, env *envelope.Envelope) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, topic string, env *envelope.Envelope) error

func (f HandlerFunc) Handle(ctx context.Context, topic string, env *envelope.Envelope) error {
	return f(ctx, topic, env)
}
