package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"gallery/internal/middleware"

	"github.com/redis/go-redis/v9"
)

// Aside serves key from Redis into dest. On a miss it calls fetch, which must
// fill dest, and caches the result for ttl. Redis failures are logged and
// fall through to fetch; fetch errors are returned and never cached.
func Aside(ctx context.Context, key string, dest any, ttl time.Duration, fetch func() error) error {
	hit, err := load(ctx, key, dest)
	if err != nil {
		warn(ctx, "cache read failed", key, err)
	}
	if hit {
		return nil
	}

	if err := fetch(); err != nil {
		return err
	}
	if err := save(ctx, key, dest, ttl); err != nil {
		warn(ctx, "cache write failed", key, err)
	}
	return nil
}

// Invalidate deletes keys. Failures only log: the TTL bounds the staleness.
func Invalidate(ctx context.Context, keys ...string) {
	if client == nil || len(keys) == 0 {
		return
	}
	if err := client.Del(ctx, keys...).Err(); err != nil {
		middleware.Logger.WarnContext(ctx, "cache invalidation failed",
			slog.Any("keys", keys), slog.String("error", err.Error()))
	}
}

func load(ctx context.Context, key string, dest any) (bool, error) {
	if client == nil {
		return false, nil
	}
	raw, err := client.Get(ctx, key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return false, nil
	case err != nil:
		return false, err
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, err
	}
	return true, nil
}

func save(ctx context.Context, key string, v any, ttl time.Duration) error {
	if client == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return client.Set(ctx, key, raw, ttl).Err()
}

func warn(ctx context.Context, msg, key string, err error) {
	middleware.Logger.WarnContext(ctx, msg, slog.String("key", key), slog.String("error", err.Error()))
}
