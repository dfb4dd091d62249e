package events

import (
	"fmt"

	"github.com/redis/go-redis/v9"
)

// FromConfig selects the bus named by kind ("redis", "nats", "none" or "").
// The redis bus reuses rdb; a nil rdb degrades it to a no-op.
func FromConfig(kind, natsURL string, rdb *redis.Client) (Bus, error) {
	switch kind {
	case "redis":
		return NewRedisBus(rdb), nil
	case "nats":
		return ConnectNATS(natsURL)
	case "", "none":
		return Nop{}, nil
	default:
		return nil, fmt.Errorf("unknown event bus %q", kind)
	}
}
