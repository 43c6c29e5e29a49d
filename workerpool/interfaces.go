package workerpool

import (
	"context"
)

// Runner hosts background tasks on a bounded set of goroutines.
// An engine owns a Runner with capacity one so that at most a single worker
// loop executes at any time.
type Runner interface {
	Submit(ctx context.Context, task func()) error
	Running() int
	Shutdown()
}
