package sink

import (
	"context"
	"path"
	"time"

	"github.com/pitabwire/tracker/cache"
)

const countKey = "count"

// CacheWriter stores each record in a byte cache with a ttl and keeps a
// running count of written records under <prefix>/count.
type CacheWriter struct {
	raw      cache.RawCache
	ttl      time.Duration
	countKey string
}

// NewCacheWriter writes into raw. Close closes raw.
func NewCacheWriter(raw cache.RawCache, ttl time.Duration, keyPrefix string) *CacheWriter {
	return &CacheWriter{
		raw:      raw,
		ttl:      ttl,
		countKey: path.Join(keyPrefix, countKey),
	}
}

func (w *CacheWriter) Write(ctx context.Context, key string, payload []byte) error {
	_, err := w.raw.SetCounted(ctx, key, payload, w.ttl, w.countKey)
	return err
}

func (w *CacheWriter) Close(_ context.Context) error {
	return w.raw.Close()
}

// Cache exposes the underlying cache, mainly for reading records back.
func (w *CacheWriter) Cache() cache.RawCache {
	return w.raw
}
