package middleware

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strconv"
	"time"

	"gallery/internal/observability"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// ErrNoLimiterStore is returned when a rule must be checked without Redis.
var ErrNoLimiterStore = errors.New("rate limiter: no redis client")

// RateRule is a fixed-window budget of Limit requests per Window, counted
// per member (or per IP for anonymous callers) under Name.
type RateRule struct {
	Name   string
	Limit  int
	Window time.Duration
	// FailClosed answers 503 instead of letting the request through when
	// the counter store is unreachable.
	FailClosed bool
}

func (r RateRule) key(subject string) string {
	return "rl:" + r.Name + ":" + subject
}

// rateLimitBypassed is true outside production-like environments so local
// runs and test suites never need Redis. An unset APP_ENV counts as development.
func rateLimitBypassed() bool {
	switch os.Getenv("APP_ENV") {
	case "", "test", "development", "stress":
		return true
	}
	return false
}

// CheckRateLimit counts one hit for subject against rule. It reports whether
// the hit fits the budget and, when it does not, how long until the window
// resets.
func CheckRateLimit(ctx context.Context, rdb *redis.Client, rule RateRule, subject string) (bool, time.Duration, error) {
	if rateLimitBypassed() {
		return true, 0, nil
	}
	if rdb == nil {
		return false, 0, ErrNoLimiterStore
	}

	key := rule.key(subject)
	var hits *redis.IntCmd
	var ttl *redis.DurationCmd
	_, err := rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		hits = p.Incr(ctx, key)
		ttl = p.PTTL(ctx, key)
		return nil
	})
	if err != nil {
		observability.RedisErrorRate.WithLabelValues("ratelimit").Inc()
		return false, 0, err
	}

	remaining := ttl.Val()
	if remaining <= 0 {
		// First hit of a window, or a key that lost its expiry.
		if err := rdb.PExpire(ctx, key, rule.Window).Err(); err != nil {
			observability.RedisErrorRate.WithLabelValues("ratelimit").Inc()
		}
		remaining = rule.Window
	}
	if hits.Val() > int64(rule.Limit) {
		return false, remaining, nil
	}
	return true, 0, nil
}

// RateLimit enforces rule on the route it guards. Authenticated members are
// counted by user id, everyone else by remote IP.
func RateLimit(rdb *redis.Client, rule RateRule) fiber.Handler {
	return func(c *fiber.Ctx) error {
		subject := "ip:" + c.IP()
		if uid := UserID(c); uid != "" {
			subject = "user:" + uid
		}

		ok, retryAfter, err := CheckRateLimit(c.UserContext(), rdb, rule, subject)
		switch {
		case err != nil && rule.FailClosed:
			Logger.WarnContext(c.UserContext(), "rate limiter unavailable, rejecting",
				slog.String("rule", rule.Name),
				slog.String("error", err.Error()),
			)
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"error": "rate limit unavailable",
				"code":  "RATE_LIMIT_UNAVAILABLE",
			})
		case err != nil:
			return c.Next()
		case !ok:
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(retryAfter.Round(time.Second)/time.Second)))
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "rate limit exceeded",
				"code":  "RATE_LIMITED",
			})
		}
		return c.Next()
	}
}
