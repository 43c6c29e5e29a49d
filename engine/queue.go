package engine

import (
	"sync"
	"time"

	"github.com/pitabwire/tracker/settings"
)

type job[P, S any] struct {
	id       string
	payload  P
	settings *settings.Snapshot[S]
	queuedAt time.Time
}

// jobQueue is a FIFO of jobs guarded by its own lock.
type jobQueue[P, S any] struct {
	mu    sync.Mutex
	items []job[P, S]
}

func (q *jobQueue[P, S]) push(j job[P, S]) {
	q.mu.Lock()
	q.items = append(q.items, j)
	q.mu.Unlock()
}

func (q *jobQueue[P, S]) pop() (job[P, S], bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		var zero job[P, S]
		return zero, false
	}

	j := q.items[0]
	// release the payload and snapshot reference held by the backing array
	q.items[0] = job[P, S]{}
	q.items = q.items[1:]
	if len(q.items) == 0 {
		q.items = nil
	}
	return j, true
}

func (q *jobQueue[P, S]) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// clear discards every queued job and returns how many were dropped.
func (q *jobQueue[P, S]) clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.items)
	q.items = nil
	return n
}
