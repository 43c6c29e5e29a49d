// Package jetstream stores results in a NATS JetStream key value bucket.
package jetstream

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/pitabwire/tracker/cache"
)

// Cache is a cache.RawCache on top of a JetStream key value bucket. Entries
// expire after the bucket max age; per call ttls are ignored.
type Cache struct {
	conn *nats.Conn
	kv   nats.KeyValue
}

// New opens the bucket named by cache.WithName on the server at
// cache.WithURL, creating it when it does not exist.
func New(_ context.Context, opts ...cache.Option) (cache.RawCache, error) {
	o := cache.NewOptions(opts...)

	conn, err := nats.Connect(o.URL)
	if err != nil {
		return nil, err
	}

	kv, err := openBucket(conn, o.Name, o.MaxAge)
	if err != nil {
		conn.Close()
		return nil, err
	}

	return &Cache{conn: conn, kv: kv}, nil
}

func openBucket(conn *nats.Conn, name string, maxAge time.Duration) (nats.KeyValue, error) {
	js, err := conn.JetStream()
	if err != nil {
		return nil, err
	}

	kv, err := js.CreateKeyValue(&nats.KeyValueConfig{Bucket: name, TTL: maxAge})
	var apiErr *nats.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode == nats.JSErrCodeStreamNameInUse {
		kv, err = js.KeyValue(name)
	}
	if err != nil {
		return nil, err
	}

	if _, err = kv.Status(); err != nil {
		return nil, err
	}
	return kv, nil
}

func (c *Cache) Get(_ context.Context, key string) ([]byte, bool, error) {
	e, err := c.kv.Get(key)
	if errors.Is(err, nats.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return e.Value(), true, nil
}

func (c *Cache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	_, err := c.kv.Put(key, value)
	return err
}

func (c *Cache) Delete(_ context.Context, key string) error {
	return c.kv.Delete(key)
}

func (c *Cache) Exists(ctx context.Context, key string) (bool, error) {
	_, ok, err := c.Get(ctx, key)
	return ok, err
}

// Increment keeps a decimal counter, retrying on revision conflicts.
func (c *Cache) Increment(_ context.Context, key string, delta int64) (int64, error) {
	for {
		e, err := c.kv.Get(key)
		if errors.Is(err, nats.ErrKeyNotFound) {
			_, err = c.kv.Create(key, []byte(strconv.FormatInt(delta, 10)))
			if errors.Is(err, nats.ErrKeyExists) {
				continue
			}
			if err != nil {
				return 0, err
			}
			return delta, nil
		}
		if err != nil {
			return 0, err
		}

		current, err := strconv.ParseInt(string(e.Value()), 10, 64)
		if err != nil {
			return 0, err
		}

		next := current + delta
		_, err = c.kv.Update(key, []byte(strconv.FormatInt(next, 10)), e.Revision())
		if revisionConflict(err) {
			continue
		}
		if err != nil {
			return 0, err
		}
		return next, nil
	}
}

// SetCounted puts value and then increments counter. The two writes are not
// atomic.
func (c *Cache) SetCounted(
	ctx context.Context,
	key string,
	value []byte,
	ttl time.Duration,
	counter string,
) (int64, error) {
	if err := c.Set(ctx, key, value, ttl); err != nil {
		return 0, err
	}
	return c.Increment(ctx, counter, 1)
}

func (c *Cache) Close() error {
	c.conn.Close()
	return nil
}

// revisionConflict reports a wrong last sequence (optimistic update lost).
func revisionConflict(err error) bool {
	var apiErr *nats.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode == nats.JSErrCodeStreamWrongLastSequence
}
