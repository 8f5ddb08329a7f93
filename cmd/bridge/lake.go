package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gsg-platform/bridge/pkg/bus"
	"github.com/gsg-platform/bridge/pkg/config"
	"github.com/gsg-platform/bridge/pkg/lake"
	"github.com/gsg-platform/bridge/pkg/platform"
)

// runLakeCmd streams every event on the subscribed topics into
// partitioned NDJSON part files on the configured object store.
func runLakeCmd(args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("lake", flag.ContinueOnError)
	fs.SetOutput(stderr)
	if err := fs.Parse(args); err != nil {
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load("lake-sink")
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	p, err := platform.New(ctx, cfg, platform.Options{Service: "lake", Redis: true})
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	defer func() { _ = p.Close(context.Background()) }()

	objects, err := lake.NewObjectStore(ctx, cfg)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	sink := lake.NewSink(p.Codec, objects,
		cfg.LakeFlushBytes, time.Duration(cfg.LakeFlushSeconds)*time.Second, p.Log)

	pub := bus.NewStreamPublisher(p.Redis, p.Codec, cfg.Partitions)
	consumer := bus.NewConsumer(p.Redis, p.Codec, p.Tenants, pub, bus.ConsumerConfig{
		Group:           "lake-sink",
		ConsumerName:    p.InstanceID,
		Partitions:      cfg.Partitions,
		PollTimeout:     5 * time.Second,
		MaxRedeliveries: cfg.MaxRedeliveries,
		DLQSuffix:       cfg.DLQSuffix,
	}, p.Log)

	consumer.Subscribe(cfg.IngestTopic)
	consumer.Subscribe(cfg.OutboxTopic)
	consumer.On(bus.WildcardEventType, sink)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sink.Run(gctx) })
	g.Go(func() error { return consumer.Run(gctx) })

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	return 0
}
