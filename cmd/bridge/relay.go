package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/gsg-platform/bridge/pkg/bus"
	"github.com/gsg-platform/bridge/pkg/config"
	"github.com/gsg-platform/bridge/pkg/platform"
	"github.com/gsg-platform/bridge/pkg/relay"
	"github.com/gsg-platform/bridge/pkg/store"
)

// runRelayCmd drains the transactional outbox onto the broker.
func runRelayCmd(args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("relay", flag.ContinueOnError)
	fs.SetOutput(stderr)
	if err := fs.Parse(args); err != nil {
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load("outbox-relay")
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	p, err := platform.New(ctx, cfg, platform.Options{Service: "relay", Redis: true})
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	defer func() { _ = p.Close(context.Background()) }()

	pub := bus.NewStreamPublisher(p.Redis, p.Codec, cfg.Partitions)
	r := relay.New(p.DB, store.NewOutboxStore(p.Codec), pub,
		cfg.OutboxBatch, cfg.OutboxPoll, p.Log)

	if err := r.Run(ctx); err != nil && ctx.Err() == nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	return 0
}
