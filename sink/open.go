package sink

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/pitabwire/util"

	"github.com/pitabwire/tracker/cache"
	"github.com/pitabwire/tracker/cache/jetstream"
	cacheredis "github.com/pitabwire/tracker/cache/redis"
	cachevalkey "github.com/pitabwire/tracker/cache/valkey"
	"github.com/pitabwire/tracker/config"
)

// ErrUnsupportedURL is returned for sink urls whose scheme maps to no writer.
var ErrUnsupportedURL = errors.New("unsupported sink url")

const (
	kindTopic  = "topic"
	kindBucket = "bucket"
	kindCache  = "cache"
)

// WriterConfig carries the settings that only some writers use.
type WriterConfig struct {
	CacheTTL  time.Duration
	KeyPrefix string
}

// OpenWriter builds the writer named by rawURL.
//
// The kind may be given explicitly as a scheme prefix: topic+mem://results,
// bucket+mem://, bucket+file:///tmp/out, cache+mem://, cache+redis://host:6379,
// cache+valkey://host:6379, cache+nats://host:4222. Without a prefix nats://
// is a topic, file:// a bucket and redis:// or valkey:// a cache.
func OpenWriter(ctx context.Context, rawURL string, cfg WriterConfig) (Writer, error) {
	kind, target, err := splitKind(rawURL)
	if err != nil {
		return nil, err
	}

	switch kind {
	case kindTopic:
		return OpenTopicWriter(ctx, target)
	case kindBucket:
		return OpenBucketWriter(ctx, target)
	case kindCache:
		raw, cacheErr := openCache(ctx, target, cfg.CacheTTL)
		if cacheErr != nil {
			return nil, cacheErr
		}
		return NewCacheWriter(raw, cfg.CacheTTL, cfg.KeyPrefix), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedURL, rawURL)
	}
}

func splitKind(rawURL string) (string, string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", fmt.Errorf("%w: %w", ErrUnsupportedURL, err)
	}

	scheme := strings.ToLower(u.Scheme)
	if kind, inner, ok := strings.Cut(scheme, "+"); ok {
		return kind, inner + rawURL[len(u.Scheme):], nil
	}

	switch scheme {
	case "nats":
		return kindTopic, rawURL, nil
	case "file":
		return kindBucket, rawURL, nil
	case "redis", "rediss", "valkey", "valkeys":
		return kindCache, rawURL, nil
	default:
		return "", "", fmt.Errorf("%w: %s", ErrUnsupportedURL, rawURL)
	}
}

func openCache(ctx context.Context, target string, ttl time.Duration) (cache.RawCache, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, err
	}

	opts := []cache.Option{cache.WithURL(target), cache.WithMaxAge(ttl)}
	switch strings.ToLower(u.Scheme) {
	case "mem":
		return cache.NewInMemoryCache(opts...), nil
	case "redis", "rediss":
		return cacheredis.New(ctx, opts...)
	case "valkey", "valkeys":
		return cachevalkey.New(ctx, opts...)
	case "nats":
		if bucket := u.Query().Get("bucket"); bucket != "" {
			opts = append(opts, cache.WithName(bucket))
		}
		return jetstream.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("%w: cache scheme %q", ErrUnsupportedURL, u.Scheme)
	}
}

// NewFromConfig builds a Buffered sink from cfg. It returns nil, nil when no
// sink url is configured.
func NewFromConfig[R any](ctx context.Context, cfg config.ConfigurationSink) (*Buffered[R], error) {
	if cfg == nil || cfg.GetSinkURL() == "" {
		return nil, nil //nolint:nilnil // no sink configured
	}

	w, err := OpenWriter(ctx, cfg.GetSinkURL(), WriterConfig{
		CacheTTL:  cfg.GetSinkCacheTTL(),
		KeyPrefix: cfg.GetSinkKeyPrefix(),
	})
	if err != nil {
		return nil, err
	}

	util.Log(ctx).WithField("url", cfg.GetSinkURL()).Info("result sink opened")
	return NewBuffered[R](ctx, w,
		WithCapacity(cfg.GetSinkBufferSize()),
		WithKeyPrefix(cfg.GetSinkKeyPrefix()),
	), nil
}
