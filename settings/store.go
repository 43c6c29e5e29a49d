package settings

import (
	"sync"
	"sync/atomic"
)

// ValidateFunc checks a candidate value before it is published.
type ValidateFunc[S any] func(S) error

// CloneFunc returns a deep copy of a settings value.
type CloneFunc[S any] func(S) S

// StoreOption configures a Store.
type StoreOption[S any] func(*Store[S])

// WithClone deep copies every value crossing the store boundary: the
// initial value, values handed to and returned from an UpdateFunc, Replace
// arguments and Snapshot.Value results.
func WithClone[S any](clone CloneFunc[S]) StoreOption[S] {
	return func(s *Store[S]) {
		s.clone = clone
	}
}

// UpdateFunc derives the next value from the current one. It receives the
// current value by copy. Without WithClone it must not mutate slices or
// maps shared with it.
type UpdateFunc[S any] func(current S) (S, error)

// Store keeps the current settings snapshot.
//
// Reads are lock free. Updates are serialised so that two concurrent
// copy-modify-swap sequences never lose each other's changes.
type Store[S any] struct {
	current  atomic.Pointer[Snapshot[S]]
	updateMu sync.Mutex
	validate ValidateFunc[S]
	clone    CloneFunc[S]
	initial  S
}

// NewStore publishes initial as version 1. The initial value is not
// validated; it is also what Reset returns to.
func NewStore[S any](initial S, validate ValidateFunc[S], opts ...StoreOption[S]) *Store[S] {
	s := &Store[S]{validate: validate}
	for _, opt := range opts {
		opt(s)
	}
	s.initial = s.copyOf(initial)
	s.current.Store(newSnapshot(s.initial, 1, s.clone))
	return s
}

// Current returns the live snapshot.
func (s *Store[S]) Current() *Snapshot[S] {
	return s.current.Load()
}

// Update applies fn to the current value, validates the result and
// publishes it. On any error the current snapshot is left untouched and a
// *ConfigurationError is returned.
func (s *Store[S]) Update(fn UpdateFunc[S]) (*Snapshot[S], error) {
	s.updateMu.Lock()
	defer s.updateMu.Unlock()

	prev := s.current.Load()

	next, err := fn(s.copyOf(prev.value))
	if err != nil {
		return prev, AsConfigurationError(err)
	}

	return s.publishLocked(prev, next)
}

// Replace validates and publishes value as a whole.
func (s *Store[S]) Replace(value S) (*Snapshot[S], error) {
	s.updateMu.Lock()
	defer s.updateMu.Unlock()

	return s.publishLocked(s.current.Load(), value)
}

// Reset publishes the value the store was created with.
func (s *Store[S]) Reset() *Snapshot[S] {
	s.updateMu.Lock()
	defer s.updateMu.Unlock()

	snap := newSnapshot(s.initial, s.current.Load().Version()+1, s.clone)
	s.current.Store(snap)
	return snap
}

func (s *Store[S]) publishLocked(prev *Snapshot[S], next S) (*Snapshot[S], error) {
	next = s.copyOf(next)
	if s.validate != nil {
		if err := s.validate(next); err != nil {
			return prev, AsConfigurationError(err)
		}
	}

	snap := newSnapshot(next, prev.Version()+1, s.clone)
	s.current.Store(snap)
	return snap, nil
}

func (s *Store[S]) copyOf(value S) S {
	if s.clone == nil {
		return value
	}
	return s.clone(value)
}
