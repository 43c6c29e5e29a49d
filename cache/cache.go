package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/pitabwire/tracker/internal"
)

// RawCache stores encoded results by key. A zero ttl means the cache max age.
type RawCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	Increment(ctx context.Context, key string, delta int64) (int64, error)
	// SetCounted stores value and increments counter by one, in a single
	// round trip where the backend allows it. It returns the new count.
	SetCounted(ctx context.Context, key string, value []byte, ttl time.Duration, counter string) (int64, error)
	Close() error
}

// Cache is a typed view over a RawCache with automatic serialization.
type Cache[K comparable, V any] interface {
	Get(ctx context.Context, key K) (V, bool, error)
	Set(ctx context.Context, key K, value V, ttl time.Duration) error
	Delete(ctx context.Context, key K) error
	Exists(ctx context.Context, key K) (bool, error)
}

type typedCache[K comparable, V any] struct {
	raw     RawCache
	keyFunc func(K) string
}

// NewTyped wraps raw so values are encoded with the shared serializer.
func NewTyped[K comparable, V any](raw RawCache, keyFunc func(K) string) Cache[K, V] {
	if keyFunc == nil {
		keyFunc = func(k K) string {
			return fmt.Sprintf("%v", k)
		}
	}
	return &typedCache[K, V]{
		raw:     raw,
		keyFunc: keyFunc,
	}
}

func (g *typedCache[K, V]) Get(ctx context.Context, key K) (V, bool, error) {
	var zero V
	data, found, err := g.raw.Get(ctx, g.keyFunc(key))
	if err != nil || !found {
		return zero, found, err
	}

	var value V
	if unmarshalErr := internal.Unmarshal(data, &value); unmarshalErr != nil {
		return zero, false, unmarshalErr
	}
	return value, true, nil
}

func (g *typedCache[K, V]) Set(ctx context.Context, key K, value V, ttl time.Duration) error {
	data, err := internal.Marshal(value)
	if err != nil {
		return err
	}
	return g.raw.Set(ctx, g.keyFunc(key), data, ttl)
}

func (g *typedCache[K, V]) Delete(ctx context.Context, key K) error {
	return g.raw.Delete(ctx, g.keyFunc(key))
}

func (g *typedCache[K, V]) Exists(ctx context.Context, key K) (bool, error) {
	return g.raw.Exists(ctx, g.keyFunc(key))
}
