package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"
)

// ErrUnavailable is returned by Probe when the durable backend could not be
// reached. Callers run on the local fallback for the rest of the process.
var ErrUnavailable = errors.New("redis unavailable")

const retryDelay = 250 * time.Millisecond

type Client struct {
	rdb *redis.Client
}

// Probe connects to redisURL and pings it at most attempts times, each
// bounded by timeout. It never retries after returning.
func Probe(ctx context.Context, redisURL string, attempts int, timeout time.Duration) (*Client, error) {
	if redisURL == "" {
		return nil, fmt.Errorf("%w: no url configured", ErrUnavailable)
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		slog.Error("[REDIS] Failed to parse Redis URL", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	opt.DialTimeout = timeout
	opt.ReadTimeout = timeout
	opt.WriteTimeout = timeout
	// A dead backend should fail a call fast so the local store can serve it.
	opt.MaxRetries = -1

	rdb := redis.NewClient(opt)

	var lastErr error
	for i := 1; i <= attempts; i++ {
		pingCtx, cancel := context.WithTimeout(ctx, timeout)
		lastErr = rdb.Ping(pingCtx).Err()
		cancel()
		if lastErr == nil {
			slog.Info("[REDIS] Connected to Redis", "addr", opt.Addr, "attempt", i)
			return &Client{rdb: rdb}, nil
		}

		slog.Warn("[REDIS] Ping failed", "addr", opt.Addr, "attempt", i, "of", attempts, "error", lastErr)
		if i < attempts {
			select {
			case <-ctx.Done():
				_ = rdb.Close()
				return nil, fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
			case <-time.After(retryDelay):
			}
		}
	}

	_ = rdb.Close()
	return nil, fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
}

// Redis exposes the underlying connection to the durable stores.
func (c *Client) Redis() *redis.Client {
	return c.rdb
}

func (c *Client) Close() error {
	return c.rdb.Close()
}
