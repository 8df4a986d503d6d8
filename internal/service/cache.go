package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/multivitaminds/signof-sub014/internal/port/cache"
)

// readThrough fronts a store lookup with a TTL cache. Concurrent misses for
// one key share a single load. Cache failures degrade to direct loads.
type readThrough[T any] struct {
	cache  cache.Cache
	ttl    time.Duration
	prefix string
	group  singleflight.Group
}

func (r *readThrough[T]) key(id string) string { return cache.Key(r.prefix, id) }

func newReadThrough[T any](c cache.Cache, prefix string, ttl time.Duration) *readThrough[T] {
	return &readThrough[T]{cache: c, ttl: ttl, prefix: prefix}
}

func (r *readThrough[T]) get(ctx context.Context, key string, load func(context.Context) (T, error)) (T, error) {
	if r == nil || r.cache == nil {
		return load(ctx)
	}
	k := r.key(key)

	if data, ok, err := r.cache.Get(ctx, k); err != nil {
		slog.Warn("cache get", "key", k, "error", err)
	} else if ok {
		var v T
		if err := json.Unmarshal(data, &v); err == nil {
			return v, nil
		}
		slog.Warn("cache decode", "key", k, "error", err)
	}

	v, err, _ := r.group.Do(k, func() (any, error) {
		v, err := load(ctx)
		if err != nil {
			return v, err
		}
		if data, mErr := json.Marshal(v); mErr == nil {
			if sErr := r.cache.Set(ctx, k, data, r.ttl); sErr != nil {
				slog.Warn("cache set", "key", k, "error", sErr)
			}
		}
		return v, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

func (r *readThrough[T]) invalidate(ctx context.Context, key string) {
	if r == nil || r.cache == nil {
		return
	}
	k := r.key(key)
	if err := r.cache.Delete(ctx, k); err != nil {
		slog.Warn("cache delete", "key", k, "error", err)
	}
}
