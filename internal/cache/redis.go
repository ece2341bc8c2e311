package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "router:decision:"

// RedisCache is the remote KV backend. Runtime errors on Get/Set never
// propagate to the caller — a failed read degrades to a cache miss, a
// failed write is silently dropped, and reclassification picks up the slack.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis connects to the given Redis URL and pings it once. On any
// connection error the caller should fall back to an in-process cache;
// this constructor returns the error rather than swallowing it so the
// caller can log and decide.
func NewRedis(ctx context.Context, url string, ttlMs int64) (*RedisCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	return &RedisCache{client: client, ttl: ttlSeconds(ttlMs)}, nil
}

// ttlSeconds floors ttlMs to whole seconds, clamped to at least 1.
func ttlSeconds(ttlMs int64) time.Duration {
	secs := ttlMs / 1000
	if secs < 1 {
		secs = 1
	}
	return time.Duration(secs) * time.Second
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, bool) {
	val, err := c.client.Get(ctx, redisKeyPrefix+key).Result()
	if err != nil {
		if err != redis.Nil {
			slog.Warn("decision cache read failed", "error", err)
		}
		return "", false
	}
	return val, true
}

func (c *RedisCache) Set(ctx context.Context, key, value string) {
	if err := c.client.Set(ctx, redisKeyPrefix+key, value, c.ttl).Err(); err != nil {
		slog.Warn("decision cache write failed", "error", err)
	}
}

// Close releases the underlying Redis connection pool.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
