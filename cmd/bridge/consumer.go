package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/gsg-platform/bridge/pkg/bus"
	"github.com/gsg-platform/bridge/pkg/config"
	"github.com/gsg-platform/bridge/pkg/envelope"
	"github.com/gsg-platform/bridge/pkg/extract"
	"github.com/gsg-platform/bridge/pkg/observability"
	"github.com/gsg-platform/bridge/pkg/platform"
	"github.com/gsg-platform/bridge/pkg/store"
	"github.com/gsg-platform/bridge/pkg/writer"
)

// runConsumerCmd runs the metric writer: it consumes CSR_INGESTED
// events, extracts ESG metrics, and persists them atomically with the
// outgoing event staged in the outbox.
func runConsumerCmd(args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("consumer", flag.ContinueOnError)
	fs.SetOutput(stderr)
	if err := fs.Parse(args); err != nil {
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load("metric-writer")
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	p, err := platform.New(ctx, cfg, platform.Options{
		Service: "consumer", Redis: true, Embedder: true,
	})
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	defer func() { _ = p.Close(context.Background()) }()

	codec := p.Codec
	extractor := extract.NewClient(cfg.ExtractorURL, cfg.ExtractorTimeout)
	w := writer.New(p.Scopes, extractor,
		store.NewDocumentStore(), store.NewMetricStore(),
		store.NewMemoryDocStore(p.Embedder),
		store.NewEventStore(codec), store.NewOutboxStore(codec),
		cfg.OutboxTopic, p.Log)

	pub := bus.NewStreamPublisher(p.Redis, codec, cfg.Partitions)
	consumer := bus.NewConsumer(p.Redis, codec, p.Tenants, pub, bus.ConsumerConfig{
		Group:           cfg.ConsumerGroup,
		ConsumerName:    p.InstanceID,
		Partitions:      cfg.Partitions,
		PollTimeout:     5 * time.Second,
		MaxRedeliveries: cfg.MaxRedeliveries,
		DLQSuffix:       cfg.DLQSuffix,
	}, p.Log)

	consumer.Subscribe(cfg.IngestTopic)
	consumer.On(envelope.TypeCSRIngested, tracked(p.Obs, "consumer.extract", w))

	if err := consumer.Run(ctx); err != nil && ctx.Err() == nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	return 0
}

// tracked wraps a handler with the RED instruments so every delivery
// shows up in traces and metrics.
func tracked(obs *observability.Provider, name string, h bus.Handler) bus.Handler {
	return bus.HandlerFunc(func(ctx context.Context, topic string, env *envelope.Envelope) error {
		ctx, finish := obs.TrackOperation(ctx, name,
			attribute.String("topic", topic),
			attribute.String("event.type", env.Headers.EventType),
			attribute.String("tenant", env.Headers.TenantID))
		err := h.Handle(ctx, topic, env)
		finish(err)
		return err
	})
}
