package sink

import (
	"context"
	"errors"
	"path"
	"sync"

	"github.com/pitabwire/util"

	"github.com/pitabwire/tracker/internal"
)

var (
	// ErrSinkFull is returned by Offer when the pending buffer is at capacity.
	ErrSinkFull = errors.New("sink buffer is full")
	// ErrSinkClosed is returned by Offer after Close.
	ErrSinkClosed = errors.New("sink is closed")
)

const defaultCapacity = 256

// Option configures a Buffered sink.
type Option func(*Options)

// Options holds Buffered sink configuration.
type Options struct {
	Capacity  int
	KeyPrefix string
}

// WithCapacity bounds how many records may wait for the writer.
func WithCapacity(capacity int) Option {
	return func(o *Options) {
		if capacity > 0 {
			o.Capacity = capacity
		}
	}
}

// WithKeyPrefix sets the prefix of the key each record is written under.
func WithKeyPrefix(prefix string) Option {
	return func(o *Options) {
		o.KeyPrefix = prefix
	}
}

// Buffered is a Sink that queues records in memory and writes them from its
// own goroutine. A write failure is kept as the sink error and halts writing
// until ClearError and Resume; the failed record stays first in line.
type Buffered[R any] struct {
	ctx    context.Context
	writer Writer
	opts   Options

	mu      sync.Mutex
	cond    *sync.Cond
	pending []Record[R]
	paused  bool
	closing bool
	err     error

	done      chan struct{}
	closeOnce sync.Once
}

// NewBuffered starts a buffered sink writing through w.
func NewBuffered[R any](ctx context.Context, w Writer, opts ...Option) *Buffered[R] {
	o := Options{Capacity: defaultCapacity}
	for _, opt := range opts {
		opt(&o)
	}

	b := &Buffered[R]{
		ctx:    context.WithoutCancel(ctx),
		writer: w,
		opts:   o,
		done:   make(chan struct{}),
	}
	b.cond = sync.NewCond(&b.mu)

	go b.run()
	return b
}

// Key returns the key rec is written under.
func (b *Buffered[R]) Key(rec Record[R]) string {
	return path.Join(b.opts.KeyPrefix, rec.JobID+".json")
}

// Offer queues rec without waiting for the writer.
func (b *Buffered[R]) Offer(_ context.Context, rec Record[R]) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closing {
		return ErrSinkClosed
	}
	if len(b.pending) >= b.opts.Capacity {
		return ErrSinkFull
	}

	b.pending = append(b.pending, rec)
	b.cond.Signal()
	return nil
}

// Pause stops writing after the record currently being written.
func (b *Buffered[R]) Pause() {
	b.mu.Lock()
	b.paused = true
	b.mu.Unlock()
}

// Resume restarts writing. Records stay queued while an error is outstanding.
func (b *Buffered[R]) Resume() {
	b.mu.Lock()
	b.paused = false
	b.cond.Broadcast()
	b.mu.Unlock()
}

// ClearPending drops every queued record and returns how many were dropped.
func (b *Buffered[R]) ClearPending() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := len(b.pending)
	b.pending = nil
	b.cond.Broadcast()
	return n
}

// Pending returns the number of queued records.
func (b *Buffered[R]) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Error returns the first write failure since the last ClearError.
func (b *Buffered[R]) Error() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

// ClearError discards the write failure and lets writing continue.
func (b *Buffered[R]) ClearError() {
	b.mu.Lock()
	b.err = nil
	b.cond.Broadcast()
	b.mu.Unlock()
}

// Close writes the remaining records, unless the sink is paused or failed,
// and then closes the writer.
func (b *Buffered[R]) Close(ctx context.Context) error {
	b.mu.Lock()
	b.closing = true
	b.cond.Broadcast()
	b.mu.Unlock()

	select {
	case <-b.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	var err error
	b.closeOnce.Do(func() {
		if left := b.Pending(); left > 0 {
			util.Log(ctx).WithField("pending", left).WithError(b.Error()).Warn("sink closed with records unwritten")
		}
		err = b.writer.Close(ctx)
	})
	return err
}

func (b *Buffered[R]) blockedLocked() bool {
	return len(b.pending) == 0 || b.paused || b.err != nil
}

func (b *Buffered[R]) run() {
	defer close(b.done)

	for {
		b.mu.Lock()
		for b.blockedLocked() && !b.closing {
			b.cond.Wait()
		}
		if b.blockedLocked() {
			b.mu.Unlock()
			return
		}
		rec := b.pending[0]
		b.mu.Unlock()

		err := b.write(rec)

		b.mu.Lock()
		if err != nil {
			if b.err == nil {
				b.err = err
			}
			util.Log(b.ctx).WithField("job", rec.JobID).WithError(err).Error("sink write failed, writer halted")
		} else if len(b.pending) > 0 && b.pending[0].JobID == rec.JobID {
			b.pending[0] = Record[R]{}
			b.pending = b.pending[1:]
		}
		b.mu.Unlock()
	}
}

func (b *Buffered[R]) write(rec Record[R]) error {
	payload, err := internal.Marshal(rec)
	if err != nil {
		return err
	}
	return b.writer.Write(b.ctx, b.Key(rec), payload)
}
