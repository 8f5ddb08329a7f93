package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gsg-platform/bridge/pkg/api"
	"github.com/gsg-platform/bridge/pkg/config"
	"github.com/gsg-platform/bridge/pkg/platform"
	"github.com/gsg-platform/bridge/pkg/store"
)

// runQueryCmd serves the memory bank HTTP surface: vector search, the
// KV scratchpad, and agent run reporting.
func runQueryCmd(args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("query", flag.ContinueOnError)
	fs.SetOutput(stderr)
	if err := fs.Parse(args); err != nil {
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load("query")
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	p, err := platform.New(ctx, cfg, platform.Options{Service: "query", Embedder: true})
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	defer func() { _ = p.Close(context.Background()) }()

	srv := api.NewServer(p.DB, p.Scopes, p.Tenants,
		store.NewMemoryDocStore(p.Embedder), store.NewKVStore(), store.NewRunStore(),
		p.Embedder, cfg.EmbedModel, platform.Version, p.Log)

	var identity *api.Identity
	if cfg.JWTSecret != "" {
		identity = api.NewIdentity(cfg.JWTSecret)
	}
	limiter := api.NewGlobalRateLimiter(cfg.RateRPS, cfg.RateBurst)

	httpSrv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           p.Obs.HTTPMiddleware(srv.Routes(limiter, identity)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		p.Log.Info("query service listening", "addr", httpSrv.Addr)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutCtx); err != nil {
			fmt.Fprintln(stderr, "shutdown:", err)
			return 1
		}
		return 0
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintln(stderr, err)
			return 1
		}
		return 0
	}
}
