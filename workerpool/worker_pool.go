package workerpool

import (
	"context"
	"errors"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/pitabwire/util"

	"github.com/pitabwire/tracker/config"
)

// ErrRunnerClosed is returned when a task is submitted after Shutdown.
var ErrRunnerClosed = errors.New("worker runner is already shut down")

const singleRunnerCapacity = 1

// Options defines configurable options for an engine's worker runner.
type Options struct {
	Capacity       int
	ExpiryDuration time.Duration
	PanicHandler   func(any)
	DisablePurge   bool
	Logger         *util.LogEntry
}

// Option defines a function that configures runner options.
type Option func(*Options)

// WithCapacity sets how many tasks may run at once.
func WithCapacity(capacity int) Option {
	return func(opts *Options) {
		opts.Capacity = capacity
	}
}

// WithPoolPanicHandler handles panics that escape a task. Engine workers
// recover their own panics, so this only sees runner misuse.
func WithPoolPanicHandler(handler func(any)) Option {
	return func(opts *Options) {
		opts.PanicHandler = handler
	}
}

// WithPoolDisablePurge keeps idle worker goroutines alive.
func WithPoolDisablePurge(disable bool) Option {
	return func(opts *Options) {
		opts.DisablePurge = disable
	}
}

// NewRunner creates an ants backed Runner. By default the runner has a
// capacity of one and Submit blocks until the previous task has released
// its worker.
func NewRunner(ctx context.Context, cfg config.ConfigurationWorkerPool, opts ...Option) (Runner, error) {
	o := &Options{Capacity: singleRunnerCapacity, Logger: util.Log(ctx)}
	if cfg != nil {
		o.ExpiryDuration = cfg.GetExpiryDuration()
	}
	for _, opt := range opts {
		opt(o)
	}

	antsOpts := []ants.Option{
		ants.WithNonblocking(false),
		ants.WithDisablePurge(o.DisablePurge),
		ants.WithLogger(o.Logger),
	}
	if o.ExpiryDuration > 0 {
		antsOpts = append(antsOpts, ants.WithExpiryDuration(o.ExpiryDuration))
	}
	if o.PanicHandler != nil {
		antsOpts = append(antsOpts, ants.WithPanicHandler(o.PanicHandler))
	}

	p, err := ants.NewPool(max(o.Capacity, singleRunnerCapacity), antsOpts...)
	if err != nil {
		return nil, err
	}
	return &poolRunner{pool: p}, nil
}

// poolRunner adapts *ants.Pool to the Runner interface.
type poolRunner struct {
	pool *ants.Pool
}

func (r *poolRunner) Submit(ctx context.Context, task func()) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	err := r.pool.Submit(task)
	if errors.Is(err, ants.ErrPoolClosed) {
		return ErrRunnerClosed
	}
	return err
}

func (r *poolRunner) Running() int {
	return r.pool.Running()
}

func (r *poolRunner) Shutdown() {
	r.pool.Release()
}
