package settings

import (
	"time"

	"github.com/rs/xid"
)

// Snapshot is one published version of a settings value.
type Snapshot[S any] struct {
	id        string
	version   uint64
	value     S
	createdAt time.Time
	clone     CloneFunc[S]
}

func newSnapshot[S any](value S, version uint64, clone CloneFunc[S]) *Snapshot[S] {
	return &Snapshot[S]{
		id:        xid.New().String(),
		version:   version,
		value:     value,
		createdAt: time.Now(),
		clone:     clone,
	}
}

// ID uniquely identifies the snapshot.
func (s *Snapshot[S]) ID() string {
	if s == nil {
		return ""
	}
	return s.id
}

// Version is 1 for the initial value and grows by one per publication.
func (s *Snapshot[S]) Version() uint64 {
	if s == nil {
		return 0
	}
	return s.version
}

// Value returns the settings value. When the store has a clone function the
// value is a private copy; otherwise callers must not mutate reference types
// reachable from it.
func (s *Snapshot[S]) Value() S {
	if s == nil {
		var zero S
		return zero
	}
	if s.clone != nil {
		return s.clone(s.value)
	}
	return s.value
}

func (s *Snapshot[S]) CreatedAt() time.Time {
	if s == nil {
		return time.Time{}
	}
	return s.createdAt
}
