package cache

import (
	"time"
)

// Option configures a cache backend.
type Option func(*Options)

// Options holds cache connection configuration.
type Options struct {
	URL    string
	Name   string
	MaxAge time.Duration
}

// WithURL sets the backend connection url, for example redis://host:6379/0.
func WithURL(url string) Option {
	return func(o *Options) {
		o.URL = url
	}
}

// WithName sets the bucket name for backends that namespace keys.
func WithName(name string) Option {
	return func(o *Options) {
		o.Name = name
	}
}

// WithMaxAge sets the ttl applied when Set is called without one.
func WithMaxAge(maxAge time.Duration) Option {
	return func(o *Options) {
		o.MaxAge = maxAge
	}
}

// NewOptions applies opts over the defaults shared by all backends.
func NewOptions(opts ...Option) *Options {
	o := &Options{
		Name:   "results",
		MaxAge: time.Hour,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
