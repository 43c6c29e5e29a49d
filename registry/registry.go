// Package registry maps opaque integer handles to live objects so that a host
// environment can refer to an engine across separate calls.
package registry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/pitabwire/util"
)

// ErrInvalidHandle is returned for handles that were never issued or whose
// object has already been destroyed.
var ErrInvalidHandle = errors.New("invalid or destroyed handle")

// Handle identifies an object held by a Registry. Zero is never issued.
type Handle int64

type contextCloser interface {
	Close(ctx context.Context) error
}

// Registry owns objects between Create and Destroy.
type Registry[T any] struct {
	mu      sync.RWMutex
	objects map[Handle]T
	next    atomic.Int64
}

// New returns an empty registry.
func New[T any]() *Registry[T] {
	return &Registry[T]{objects: make(map[Handle]T)}
}

// Create stores obj and returns its handle.
func (r *Registry[T]) Create(obj T) Handle {
	h := Handle(r.next.Add(1))

	r.mu.Lock()
	r.objects[h] = obj
	r.mu.Unlock()
	return h
}

// Get returns the object for h.
func (r *Registry[T]) Get(h Handle) (T, error) {
	r.mu.RLock()
	obj, ok := r.objects[h]
	r.mu.RUnlock()

	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %d", ErrInvalidHandle, h)
	}
	return obj, nil
}

// Destroy removes h and closes its object. Objects implementing
// Close(context.Context) error are preferred over io.Closer.
func (r *Registry[T]) Destroy(ctx context.Context, h Handle) error {
	r.mu.Lock()
	obj, ok := r.objects[h]
	delete(r.objects, h)
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %d", ErrInvalidHandle, h)
	}

	util.Log(ctx).WithField("handle", int64(h)).Debug("destroying registered object")
	return closeObject(ctx, obj)
}

// Len returns the number of live objects.
func (r *Registry[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.objects)
}

// DestroyAll closes every live object and returns the joined close errors.
func (r *Registry[T]) DestroyAll(ctx context.Context) error {
	r.mu.Lock()
	objects := r.objects
	r.objects = make(map[Handle]T)
	r.mu.Unlock()

	var errs []error
	for h, obj := range objects {
		if err := closeObject(ctx, obj); err != nil {
			errs = append(errs, fmt.Errorf("handle %d: %w", h, err))
		}
	}
	return errors.Join(errs...)
}

func closeObject(ctx context.Context, obj any) error {
	switch c := obj.(type) {
	case contextCloser:
		return c.Close(ctx)
	case io.Closer:
		return c.Close()
	default:
		return nil
	}
}
