package engine

import (
	"reflect"
	"sync"

	"github.com/pitabwire/tracker/workerpool"
)

// claimedRunners holds the runners supplied through WithRunner that host an
// open engine. A worker submit blocks while the runner is busy, so a shared
// single capacity runner would stall one engine's Push behind another
// engine's queue.
var claimedRunners sync.Map

func claimRunner(r workerpool.Runner) error {
	if !reflect.TypeOf(r).Comparable() {
		return nil
	}
	if _, loaded := claimedRunners.LoadOrStore(r, struct{}{}); loaded {
		return ErrRunnerInUse
	}
	return nil
}

func releaseRunner(r workerpool.Runner) {
	if r == nil || !reflect.TypeOf(r).Comparable() {
		return
	}
	claimedRunners.Delete(r)
}
