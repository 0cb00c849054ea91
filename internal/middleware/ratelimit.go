package middleware

import (
	"context"
	"errors"
	"strconv"
	"time"

	"replied/internal/observability"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// FailPolicy decides what happens to a request when Redis cannot count it.
type FailPolicy int

const (
	// FailOpen lets the request through.
	FailOpen FailPolicy = iota
	// FailClosed answers 503.
	FailClosed
)

// TooManyMessages is the rejection text for throttled submissions.
const TooManyMessages = "Too many messages. Try again later."

// ThrottleConfig describes one fixed-window limit.
type ThrottleConfig struct {
	// Name keys the counters, e.g. "send_message".
	Name   string
	Limit  int
	Window time.Duration
	Policy FailPolicy
	// Disabled lets every request through; local and test environments set it.
	Disabled bool
}

// Throttle counts requests per viewer (or per IP when anonymous) in Redis.
type Throttle struct {
	rdb *redis.Client
	cfg ThrottleConfig
	log *observability.ComponentLogger
}

// NewThrottle returns a Throttle counting in rdb.
func NewThrottle(rdb *redis.Client, cfg ThrottleConfig) *Throttle {
	return &Throttle{rdb: rdb, cfg: cfg, log: observability.For("ratelimit")}
}

// Decision is the outcome of counting one request.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Allow counts one request for id. The window starts at the first request.
func (t *Throttle) Allow(ctx context.Context, id string) (Decision, error) {
	if t.cfg.Disabled {
		return Decision{Allowed: true, Remaining: t.cfg.Limit}, nil
	}
	if t.rdb == nil {
		return Decision{}, errors.New("ratelimit: redis client is nil")
	}

	key := "rl:" + t.cfg.Name + ":" + id
	var incr *redis.IntCmd
	var ttl *redis.DurationCmd
	_, err := t.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, key)
		p.ExpireNX(ctx, key, t.cfg.Window)
		ttl = p.TTL(ctx, key)
		return nil
	})
	if err != nil {
		return Decision{}, err
	}

	count := int(incr.Val())
	d := Decision{Allowed: count <= t.cfg.Limit, Remaining: max(t.cfg.Limit-count, 0)}
	if !d.Allowed {
		d.RetryAfter = ttl.Val()
	}
	return d, nil
}

// Handler enforces the limit. It keys on Locals("userID"), so it must run
// after the session has been resolved.
func (t *Throttle) Handler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := "ip:" + c.IP()
		if uid, ok := c.Locals("userID").(string); ok && uid != "" {
			id = "user:" + uid
		}

		d, err := t.Allow(c.UserContext(), id)
		if err != nil {
			if t.cfg.Policy == FailOpen {
				return c.Next()
			}
			t.log.Warn(c.UserContext(), "rate limit unavailable", map[string]any{
				"limit": t.cfg.Name,
				"error": err.Error(),
			})
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "rate limit unavailable"})
		}

		c.Set("X-RateLimit-Limit", strconv.Itoa(t.cfg.Limit))
		c.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		if !d.Allowed {
			if d.RetryAfter > 0 {
				c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(d.RetryAfter.Round(time.Second)/time.Second)))
			}
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": TooManyMessages})
		}
		return c.Next()
	}
}
