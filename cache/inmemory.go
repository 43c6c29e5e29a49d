package cache

import (
	"context"
	"encoding/binary"
	"sync"
	"time"
)

const (
	defaultCleanupInterval = 5 * time.Minute
	counterSize            = 8
)

type entry struct {
	value   []byte
	expires time.Time
}

func (e entry) live(now time.Time) bool {
	return e.expires.IsZero() || now.Before(e.expires)
}

// InMemoryCache keeps results in process memory. Expired entries are hidden
// immediately and swept periodically.
type InMemoryCache struct {
	mu      sync.RWMutex
	entries map[string]entry
	maxAge  time.Duration

	stop      chan struct{}
	closeOnce sync.Once
}

// NewInMemoryCache creates an in-memory cache. Only WithMaxAge is used.
func NewInMemoryCache(opts ...Option) RawCache {
	o := &Options{}
	for _, opt := range opts {
		opt(o)
	}

	c := &InMemoryCache{
		entries: make(map[string]entry),
		maxAge:  o.MaxAge,
		stop:    make(chan struct{}),
	}
	go c.sweep(defaultCleanupInterval)
	return c
}

func (c *InMemoryCache) sweep(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			c.mu.Lock()
			for key, e := range c.entries {
				if !e.live(now) {
					delete(c.entries, key)
				}
			}
			c.mu.Unlock()
		case <-c.stop:
			return
		}
	}
}

func (c *InMemoryCache) lookup(key string) (entry, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	return e, ok && e.live(time.Now())
}

func (c *InMemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	e, ok := c.lookup(key)
	if !ok {
		return nil, false, nil
	}
	return e.value, true, nil
}

func (c *InMemoryCache) Exists(_ context.Context, key string) (bool, error) {
	_, ok := c.lookup(key)
	return ok, nil
}

// Set stores value. With neither ttl nor max age the entry never expires.
func (c *InMemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	c.setLocked(key, value, ttl)
	c.mu.Unlock()
	return nil
}

func (c *InMemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	return nil
}

// Increment adds delta to a big endian int64 counter.
func (c *InMemoryCache) Increment(_ context.Context, key string, delta int64) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.incrementLocked(key, delta), nil
}

// SetCounted stores value and bumps counter under one lock.
func (c *InMemoryCache) SetCounted(
	_ context.Context,
	key string,
	value []byte,
	ttl time.Duration,
	counter string,
) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.setLocked(key, value, ttl)
	return c.incrementLocked(counter, 1), nil
}

// Close stops the sweeper.
func (c *InMemoryCache) Close() error {
	c.closeOnce.Do(func() { close(c.stop) })
	return nil
}

func (c *InMemoryCache) setLocked(key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.maxAge
	}
	e := entry{value: value}
	if ttl > 0 {
		e.expires = time.Now().Add(ttl)
	}
	c.entries[key] = e
}

func (c *InMemoryCache) incrementLocked(key string, delta int64) int64 {
	var current int64
	e, ok := c.entries[key]
	alive := ok && e.live(time.Now())
	if alive && len(e.value) >= counterSize {
		current = int64(binary.BigEndian.Uint64(e.value)) //nolint:gosec // counters round trip through uint64
	}

	next := current + delta
	buf := make([]byte, counterSize)
	binary.BigEndian.PutUint64(buf, uint64(next)) //nolint:gosec // counters round trip through uint64

	updated := entry{value: buf}
	if alive {
		updated.expires = e.expires
	}
	c.entries[key] = updated
	return next
}
