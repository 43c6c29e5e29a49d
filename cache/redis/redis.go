// Package redis stores results in a redis database.
package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pitabwire/tracker/cache"
)

const pingTimeout = 5 * time.Second

// Cache is a cache.RawCache on top of go-redis.
type Cache struct {
	client *redis.Client
	maxAge time.Duration
}

// New connects to the redis server named by cache.WithURL and pings it.
func New(ctx context.Context, opts ...cache.Option) (cache.RawCache, error) {
	o := cache.NewOptions(opts...)

	parsed, err := redis.ParseURL(o.URL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(parsed)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err = client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	return &Cache{client: client, maxAge: o.MaxAge}, nil
}

func (c *Cache) expiry(ttl time.Duration) time.Duration {
	if ttl > 0 {
		return ttl
	}
	return c.maxAge
}

func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := c.client.Get(ctx, key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, false, nil
	case err != nil:
		return nil, false, err
	default:
		return value, true, nil
	}
}

func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, c.expiry(ttl)).Err()
}

func (c *Cache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}

func (c *Cache) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.client.Exists(ctx, key).Result()
	return n > 0, err
}

func (c *Cache) Increment(ctx context.Context, key string, delta int64) (int64, error) {
	return c.client.IncrBy(ctx, key, delta).Result()
}

// SetCounted runs SET and INCRBY in one MULTI/EXEC transaction.
func (c *Cache) SetCounted(
	ctx context.Context,
	key string,
	value []byte,
	ttl time.Duration,
	counter string,
) (int64, error) {
	var count *redis.IntCmd
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, key, value, c.expiry(ttl))
		count = pipe.IncrBy(ctx, counter, 1)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count.Val(), nil
}

func (c *Cache) Close() error {
	return c.client.Close()
}
