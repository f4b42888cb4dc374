// Package cache holds the Redis client and the signed URL cache built on it.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"shutter/internal/middleware"

	"github.com/redis/go-redis/v9"
)

const dialCheckTimeout = 5 * time.Second

// ParseAddr accepts either host:port or a redis:// / rediss:// URL.
func ParseAddr(addr string) (*redis.Options, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.New("redis address is empty")
	}
	if !strings.Contains(addr, "://") {
		return &redis.Options{Addr: addr}, nil
	}
	opts, err := redis.ParseURL(addr)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return opts, nil
}

// Dial connects to addr and pings it. Command failures other than cache
// misses are counted in RedisErrors.
func Dial(ctx context.Context, addr string) (*redis.Client, error) {
	opts, err := ParseAddr(addr)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	client.AddHook(errorCounter{})

	ctx, cancel := context.WithTimeout(ctx, dialCheckTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", opts.Addr, err)
	}
	return client, nil
}

// NewClient is Dial for callers that run without Redis when it is missing:
// it logs the failure and returns nil.
func NewClient(ctx context.Context, addr string) *redis.Client {
	client, err := Dial(ctx, addr)
	if err != nil {
		middleware.Logger.WarnContext(ctx, "redis unavailable, continuing without it", slog.String("error", err.Error()))
		return nil
	}
	middleware.Logger.InfoContext(ctx, "redis connected", slog.String("addr", client.Options().Addr))
	return client
}

type errorCounter struct{}

func (errorCounter) DialHook(next redis.DialHook) redis.DialHook { return next }

func (errorCounter) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		err := next(ctx, cmd)
		countFailure(cmd.Name(), err)
		return err
	}
}

func (errorCounter) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		err := next(ctx, cmds)
		countFailure("pipeline", err)
		return err
	}
}

func countFailure(command string, err error) {
	if err == nil || errors.Is(err, redis.Nil) {
		return
	}
	middleware.RedisErrors.WithLabelValues(command).Inc()
}
