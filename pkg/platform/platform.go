// Package platform assembles the shared infrastructure every Bridge
// service starts from: the Postgres pool, the Redis broker client, the
// contract registry, the tenant registry, and the observability
// provider. Services pick the pieces they need; teardown runs in
// reverse of construction.
package platform

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	_ "github.com/lib/pq" // Postgres driver

	"github.com/gsg-platform/bridge/pkg/config"
	"github.com/gsg-platform/bridge/pkg/contracts"
	"github.com/gsg-platform/bridge/pkg/embed"
	"github.com/gsg-platform/bridge/pkg/envelope"
	"github.com/gsg-platform/bridge/pkg/errdef"
	"github.com/gsg-platform/bridge/pkg/observability"
	"github.com/gsg-platform/bridge/pkg/tenants"
)

// Version is stamped by the build; "dev" outside release builds.
var Version = "dev"

// Platform holds the wired infrastructure for one Bridge process.
type Platform struct {
	Config    *config.Config
	Log       *slog.Logger
	DB        *sql.DB
	Redis     *redis.Client
	Codec     *envelope.Codec
	Contracts *contracts.Registry
	Tenants   *tenants.Registry
	Scopes    *tenants.ScopeFactory
	Embedder  *embed.Client
	Obs       *observability.Provider

	// InstanceID distinguishes replicas of the same service, used as
	// the broker consumer name so pending entries are claimable across
	// restarts of other replicas.
	InstanceID string

	closers []func(context.Context) error
}

// Options selects which collaborators a service needs. Everything not
// asked for stays nil and costs nothing at startup.
type Options struct {
	Service  string
	Redis    bool
	Embedder bool // probe the embedding service at startup
}

// New wires the platform. A failed probe of a required collaborator is
// fatal; services exit non-zero rather than run half-connected.
func New(ctx context.Context, cfg *config.Config, opts Options) (*Platform, error) {
	log := newLogger(cfg.LogLevel).With("service", opts.Service)

	p := &Platform{
		Config:     cfg,
		Log:        log,
		InstanceID: instanceID(opts.Service),
	}

	db, err := sql.Open("postgres", cfg.DBDSN)
	if err != nil {
		return nil, errdef.Wrap(errdef.ErrMisconfig, "open database: %v", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errdef.Wrap(errdef.ErrTransientStorage, "ping database: %v", err)
	}
	p.DB = db
	p.onClose(func(context.Context) error { return db.Close() })

	if opts.Redis {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.BrokerBootstrap})
		if err := rdb.Ping(ctx).Err(); err != nil {
			p.teardown(ctx)
			return nil, errdef.Wrap(errdef.ErrTransientStorage, "ping broker: %v", err)
		}
		p.Redis = rdb
		p.onClose(func(context.Context) error { return rdb.Close() })
	}

	reg := contracts.NewRegistry(contracts.NewPostgresStore(db))
	if err := reg.Warm(ctx); err != nil {
		p.teardown(ctx)
		return nil, err
	}
	if err := reg.RegisterBuiltins(ctx); err != nil {
		p.teardown(ctx)
		return nil, fmt.Errorf("register builtin contracts: %w", err)
	}
	p.Contracts = reg
	p.Codec = envelope.NewCodec(reg)

	if err := cfg.ApplyProfile(); err != nil {
		p.teardown(ctx)
		return nil, errdef.Wrap(errdef.ErrMisconfig, "tenant profile: %v", err)
	}
	tenantReg, err := tenants.NewRegistry(cfg.TenantRegistry)
	if err != nil {
		p.teardown(ctx)
		return nil, errdef.Wrap(errdef.ErrMisconfig, "tenant registry: %v", err)
	}
	p.Tenants = tenantReg
	p.Scopes = tenants.NewScopeFactory(db, tenantReg)

	if opts.Embedder {
		emb := embed.NewClient(cfg.EmbedURL, cfg.EmbedModel, cfg.EmbedDimension, cfg.EmbedTimeout)
		if err := emb.Probe(ctx); err != nil {
			p.teardown(ctx)
			return nil, err
		}
		p.Embedder = emb
	}

	obs, err := observability.New(ctx, &observability.Config{
		ServiceName:    "bridge-" + opts.Service,
		ServiceVersion: Version,
		Environment:    envName(),
		OTLPEndpoint:   cfg.OTLPEndpoint,
		SampleRate:     1.0,
		BatchTimeout:   5 * time.Second,
		Enabled:        cfg.OTLPEndpoint != "",
		Insecure:       true,
	})
	if err != nil {
		p.teardown(ctx)
		return nil, fmt.Errorf("observability: %w", err)
	}
	p.Obs = obs
	p.onClose(obs.Shutdown)

	log.InfoContext(ctx, "platform ready",
		"instance", p.InstanceID,
		"tenants", strings.Join(tenantReg.List(), ","),
		"broker", opts.Redis,
		"embedder", opts.Embedder)
	return p, nil
}

// Close tears the platform down in reverse construction order.
func (p *Platform) Close(ctx context.Context) error {
	return p.teardown(ctx)
}

func (p *Platform) onClose(fn func(context.Context) error) {
	p.closers = append(p.closers, fn)
}

func (p *Platform) teardown(ctx context.Context) error {
	var first error
	for i := len(p.closers) - 1; i >= 0; i-- {
		if err := p.closers[i](ctx); err != nil && first == nil {
			first = err
		}
	}
	p.closers = nil
	return first
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToUpper(level) {
	case "DEBUG":
		lvl = slog.LevelDebug
	case "WARN":
		lvl = slog.LevelWarn
	case "ERROR":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	log := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(log)
	return log
}

func instanceID(service string) string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = service
	}
	return host + "-" + uuid.NewString()[:8]
}

func envName() string {
	if v := os.Getenv("BRIDGE_ENV"); v != "" {
		return v
	}
	return "development"
}
