package events

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// RedisBus publishes events over Redis pub/sub.
type RedisBus struct {
	rdb *redis.Client
}

// NewRedisBus creates a bus on rdb. A nil client makes every call a no-op.
func NewRedisBus(rdb *redis.Client) *RedisBus {
	return &RedisBus{rdb: rdb}
}

func (b *RedisBus) Publish(ctx context.Context, e Event) error {
	if b.rdb == nil {
		return nil
	}
	payload, err := encode(e)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, Subject(e.Type), payload).Err()
}

// Subscribe starts a pattern subscriber on every gallery channel. It returns
// once the subscription is confirmed; delivery continues in the background.
func (b *RedisBus) Subscribe(ctx context.Context, handler func(Event)) error {
	if b.rdb == nil {
		return nil
	}
	sub := b.rdb.PSubscribe(ctx, redisWildcard)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return err
	}
	ch := sub.Channel()

	go func() {
		defer func() { _ = sub.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				dispatch("redis", []byte(msg.Payload), handler)
			}
		}
	}()
	return nil
}

// Close is a no-op; the Redis client is owned by the caller.
func (b *RedisBus) Close() error { return nil }
