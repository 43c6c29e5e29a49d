// Package valkey stores results in a valkey (or redis) server.
package valkey

import (
	"context"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/pitabwire/tracker/cache"
)

const pingTimeout = 5 * time.Second

// Cache is a cache.RawCache on top of the valkey-go client.
type Cache struct {
	client valkey.Client
	maxAge time.Duration
}

// New connects to the server named by cache.WithURL. Both valkey:// and
// redis:// urls are accepted.
func New(ctx context.Context, opts ...cache.Option) (cache.RawCache, error) {
	o := cache.NewOptions(opts...)

	clientOpts, err := valkey.ParseURL(o.URL)
	if err != nil {
		return nil, err
	}

	client, err := valkey.NewClient(clientOpts)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err = client.Do(pingCtx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, err
	}

	return &Cache{client: client, maxAge: o.MaxAge}, nil
}

// setCommand builds a SET with millisecond expiry, falling back to the
// cache max age when ttl is zero.
func (c *Cache) setCommand(key string, value []byte, ttl time.Duration) valkey.Completed {
	if ttl <= 0 {
		ttl = c.maxAge
	}

	set := c.client.B().Set().Key(key).Value(valkey.BinaryString(value))
	if ttl <= 0 {
		return set.Build()
	}
	return set.PxMilliseconds(max(ttl.Milliseconds(), 1)).Build()
}

func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := c.client.Do(ctx, c.client.B().Get().Key(key).Build()).AsBytes()
	if valkey.IsValkeyNil(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Do(ctx, c.setCommand(key, value, ttl)).Error()
}

func (c *Cache) Delete(ctx context.Context, key string) error {
	return c.client.Do(ctx, c.client.B().Del().Key(key).Build()).Error()
}

func (c *Cache) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.client.Do(ctx, c.client.B().Exists().Key(key).Build()).AsInt64()
	return n > 0, err
}

func (c *Cache) Increment(ctx context.Context, key string, delta int64) (int64, error) {
	return c.client.Do(ctx, c.client.B().Incrby().Key(key).Increment(delta).Build()).AsInt64()
}

// SetCounted pipelines SET and INCRBY in a single round trip.
func (c *Cache) SetCounted(
	ctx context.Context,
	key string,
	value []byte,
	ttl time.Duration,
	counter string,
) (int64, error) {
	resps := c.client.DoMulti(ctx,
		c.setCommand(key, value, ttl),
		c.client.B().Incrby().Key(counter).Increment(1).Build(),
	)
	if err := resps[0].Error(); err != nil {
		return 0, err
	}
	return resps[1].AsInt64()
}

func (c *Cache) Close() error {
	c.client.Close()
	return nil
}
