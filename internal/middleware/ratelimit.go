// Package middleware provides request-scoped Fiber middleware: logging, tracing,
// metrics, rate limiting and session verification.
package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"shutter/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// FailPolicy decides what happens to a request when Redis cannot be reached.
type FailPolicy int

const (
	// FailOpen lets the request through.
	FailOpen FailPolicy = iota
	// FailClosed answers 503.
	FailClosed
)

// globalBucket is shared by every caller whose address cannot be determined.
const globalBucket = "global"

var errNoRedis = errors.New("rate limit store not configured")

// Limiter is a fixed-window request counter in Redis, shared by every API
// instance pointing at the same server.
type Limiter struct {
	rdb      *redis.Client
	resource string
	limit    int
	window   time.Duration
	policy   FailPolicy
}

// NewLimiter allows limit requests per window for each caller of resource.
func NewLimiter(rdb *redis.Client, resource string, limit int, window time.Duration) *Limiter {
	if limit <= 0 {
		limit = 10
	}
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{rdb: rdb, resource: resource, limit: limit, window: window, policy: FailOpen}
}

// WithPolicy returns a copy of l using policy when Redis fails.
func (l *Limiter) WithPolicy(policy FailPolicy) *Limiter {
	cp := *l
	cp.policy = policy
	return &cp
}

// limiterDisabled is true for local and load-test environments.
func limiterDisabled() bool {
	switch os.Getenv("APP_ENV") {
	case "", "test", "development", "stress":
		return true
	}
	return false
}

// Allow counts one request for id and reports whether it fits in the current
// window, along with how many requests remain.
func (l *Limiter) Allow(ctx context.Context, id string) (bool, int, error) {
	if limiterDisabled() {
		return true, l.limit, nil
	}
	if l.rdb == nil {
		return false, 0, errNoRedis
	}

	key := fmt.Sprintf("rl:%s:%s", l.resource, id)
	var incr *redis.IntCmd
	// SETNX opens the window with its TTL; INCR keeps it.
	_, err := l.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SetNX(ctx, key, 0, l.window)
		incr = pipe.Incr(ctx, key)
		return nil
	})
	if err != nil {
		return false, 0, err
	}

	used := int(incr.Val())
	remaining := l.limit - used
	if remaining < 0 {
		remaining = 0
	}
	return used <= l.limit, remaining, nil
}

// Handler enforces the limit per client IP.
func (l *Limiter) Handler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		allowed, remaining, err := l.Allow(c.UserContext(), "ip:"+ClientIP(c))
		if err != nil {
			if l.policy == FailClosed {
				Logger.WarnContext(c.UserContext(), "rate limit unavailable, rejecting",
					slog.String("resource", l.resource),
					slog.String("error", err.Error()),
				)
				return models.RespondWithError(c, fiber.StatusServiceUnavailable,
					models.NewServiceError("rate_limit", "Rate limit unavailable", err))
			}
			return c.Next()
		}

		c.Set("X-RateLimit-Limit", strconv.Itoa(l.limit))
		c.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		if !allowed {
			RateLimitRejections.WithLabelValues(l.resource).Inc()
			return models.RespondWithError(c, fiber.StatusTooManyRequests, models.NewRateLimitedError())
		}
		return c.Next()
	}
}

// ClientIP returns the first forwarded address when a proxy supplied one,
// otherwise the socket peer address.
func ClientIP(c *fiber.Ctx) string {
	if ips := c.IPs(); len(ips) > 0 {
		if ip := strings.TrimSpace(ips[0]); ip != "" {
			return ip
		}
	}
	if ip := c.IP(); ip != "" {
		return ip
	}
	return globalBucket
}
