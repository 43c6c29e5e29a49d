package engine

import (
	"sync"
	"time"
)

// Result is a completed job output.
type Result[R any] struct {
	JobID           string
	Value           R
	SettingsVersion uint64
	CompletedAt     time.Time
	Duration        time.Duration
}

// resultBuffer stores results as a stack: the most recently completed
// result is returned first.
type resultBuffer[R any] struct {
	mu    sync.Mutex
	items []Result[R]
}

func (b *resultBuffer[R]) push(r Result[R]) {
	b.mu.Lock()
	b.items = append(b.items, r)
	b.mu.Unlock()
}

func (b *resultBuffer[R]) pop() (Result[R], error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := len(b.items)
	if n == 0 {
		return Result[R]{}, ErrEmptyResult
	}

	r := b.items[n-1]
	b.items[n-1] = Result[R]{}
	b.items = b.items[:n-1]
	return r, nil
}

func (b *resultBuffer[R]) peek() (Result[R], error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := len(b.items)
	if n == 0 {
		return Result[R]{}, ErrEmptyResult
	}
	return b.items[n-1], nil
}

func (b *resultBuffer[R]) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

func (b *resultBuffer[R]) clear() {
	b.mu.Lock()
	b.items = nil
	b.mu.Unlock()
}
