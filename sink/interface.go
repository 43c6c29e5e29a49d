package sink

import (
	"context"
	"time"
)

// Record is a completed result offered to a sink.
type Record[R any] struct {
	JobID           string    `json:"job_id"`
	Engine          string    `json:"engine,omitempty"`
	SettingsVersion uint64    `json:"settings_version"`
	CompletedAt     time.Time `json:"completed_at"`
	Value           R         `json:"value"`
}

// Sink is an independently paced consumer of completed results.
//
// Offer must return promptly: an engine worker calls it after every job and
// must never stall behind a slow writer. The lifecycle methods mirror the
// engine's own so both can be managed the same way.
type Sink[R any] interface {
	Offer(ctx context.Context, rec Record[R]) error
	Pause()
	Resume()
	ClearPending() int
	Pending() int
	Error() error
	ClearError()
	Close(ctx context.Context) error
}

// Writer persists a single encoded record.
type Writer interface {
	Write(ctx context.Context, key string, payload []byte) error
	Close(ctx context.Context) error
}
