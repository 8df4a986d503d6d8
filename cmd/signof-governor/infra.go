package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/multivitaminds/signof-sub014/internal/adapter/memstore"
	sgnats "github.com/multivitaminds/signof-sub014/internal/adapter/nats"
	"github.com/multivitaminds/signof-sub014/internal/adapter/natskv"
	"github.com/multivitaminds/signof-sub014/internal/adapter/postgres"
	"github.com/multivitaminds/signof-sub014/internal/adapter/rediscache"
	"github.com/multivitaminds/signof-sub014/internal/adapter/ristretto"
	"github.com/multivitaminds/signof-sub014/internal/adapter/tiered"
	"github.com/multivitaminds/signof-sub014/internal/config"
	"github.com/multivitaminds/signof-sub014/internal/port/cache"
	"github.com/multivitaminds/signof-sub014/internal/port/database"
	"github.com/multivitaminds/signof-sub014/internal/port/messagequeue"
)

// l1Expire caps how long an entry stays in process memory when an L2 tier
// is shared between replicas.
const l1Expire = 30 * time.Second

// infra holds the process-wide connections. queue and cache are nil when
// their backends are not configured.
type infra struct {
	store   database.Store
	queue   messagequeue.Queue
	cache   cache.Cache
	closers []func()
}

func (in *infra) Close() {
	for i := len(in.closers) - 1; i >= 0; i-- {
		in.closers[i]()
	}
}

func openInfra(ctx context.Context, cfg *config.Config) (*infra, error) {
	in := &infra{}
	if err := in.openStore(ctx, cfg.Postgres); err != nil {
		in.Close()
		return nil, err
	}

	var q *sgnats.Queue
	if cfg.NATS.URL != "" {
		var err error
		q, err = sgnats.Connect(ctx, cfg.NATS.URL)
		if err != nil {
			in.Close()
			return nil, fmt.Errorf("nats: %w", err)
		}
		in.queue = q
		in.closers = append(in.closers, func() {
			if err := q.Drain(); err != nil {
				slog.Warn("nats drain", "error", err)
			}
		})
		slog.Info("nats connected")
	} else {
		slog.Info("nats disabled, governance events are not published")
	}

	if err := in.openCache(ctx, cfg, q); err != nil {
		in.Close()
		return nil, err
	}
	return in, nil
}

func (in *infra) openStore(ctx context.Context, cfg config.Postgres) error {
	if cfg.DSN == "" {
		in.store = memstore.New()
		slog.Warn("no postgres dsn, using in-memory store")
		return nil
	}
	pool, err := postgres.NewPool(ctx, cfg)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	in.closers = append(in.closers, pool.Close)
	slog.Info("postgres connected")

	if err := postgres.RunMigrations(ctx, cfg.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	slog.Info("migrations applied")
	in.store = postgres.NewStore(pool)
	return nil
}

// openCache builds the ristretto L1 and, when configured, fronts a shared
// L2 with it.
func (in *infra) openCache(ctx context.Context, cfg *config.Config, q *sgnats.Queue) error {
	l1, err := ristretto.New(cfg.Cache.L1MaxSizeMB, cfg.Cache.L2TTL)
	if err != nil {
		return fmt.Errorf("l1 cache: %w", err)
	}
	in.closers = append(in.closers, l1.Close)

	var l2 cache.Cache
	switch cfg.Cache.L2 {
	case "":
	case "nats":
		if q == nil {
			return fmt.Errorf("cache.l2 = nats requires nats.url")
		}
		kv, err := q.KeyValue(ctx, cfg.Cache.L2Bucket, cfg.Cache.L2TTL)
		if err != nil {
			return fmt.Errorf("l2 cache: %w", err)
		}
		l2 = natskv.New(kv)
	case "redis":
		rc, err := rediscache.Dial(ctx, cfg.Redis.URL, serviceName+":")
		if err != nil {
			return fmt.Errorf("l2 cache: %w", err)
		}
		in.closers = append(in.closers, func() { _ = rc.Close() })
		l2 = rc
	default:
		return fmt.Errorf("unknown cache.l2 %q", cfg.Cache.L2)
	}

	if l2 == nil {
		in.cache = l1
		return nil
	}
	in.cache = tiered.New(l1, l2, l1Expire)
	slog.Info("tiered cache enabled", "l2", cfg.Cache.L2)
	return nil
}
