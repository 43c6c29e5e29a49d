package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pitabwire/util"
)

// State is the lifecycle state of an engine.
type State int32

const (
	// StateIdle means no worker is running and the next push may auto start one.
	StateIdle State = iota
	// StateRunning means a worker is draining the queue.
	StateRunning
	// StateStopped means the engine was paused, cancelled or halted by a
	// fault. Pushes are queued but only Resume starts the worker again.
	StateStopped
	// StateClosed means the engine drained its queue and accepts no more jobs.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// lifecycle guards worker start and stop transitions.
type lifecycle struct {
	mu      sync.Mutex
	state   State
	active  bool
	done    chan struct{}
	closed  chan struct{}
	changed chan struct{}
	stop    atomic.Bool
}

func (l *lifecycle) init() {
	l.changed = make(chan struct{})
}

// notifyLocked wakes every WaitIdle caller.
func (l *lifecycle) notifyLocked() {
	close(l.changed)
	l.changed = make(chan struct{})
}

// State returns the current lifecycle state.
func (e *Engine[P, S, R]) State() State {
	e.lifecycle.mu.Lock()
	defer e.lifecycle.mu.Unlock()
	return e.lifecycle.state
}

// Running reports whether a worker is currently active.
func (e *Engine[P, S, R]) Running() bool {
	e.lifecycle.mu.Lock()
	defer e.lifecycle.mu.Unlock()
	return e.lifecycle.active
}

// Pause asks the worker to stop after its current job and waits for it to
// exit. Queued jobs are kept; pushes made while paused do not start the worker.
func (e *Engine[P, S, R]) Pause(ctx context.Context) error {
	done, _, err := e.requestStop(ctx, false)
	if err != nil {
		return err
	}
	return e.join(ctx, done)
}

// Resume restarts a stopped engine. It fails with ErrEngineHalted while a
// processing fault is outstanding.
func (e *Engine[P, S, R]) Resume(ctx context.Context) error {
	l := &e.lifecycle
	l.mu.Lock()
	defer l.mu.Unlock()

	switch {
	case l.state == StateClosed:
		return ErrEngineClosed
	case e.errs.Thrown():
		return fmt.Errorf("%w: %w", ErrEngineHalted, e.errs.peek())
	case l.active:
		// a pause that has not joined yet is withdrawn
		l.stop.Store(false)
		l.state = StateRunning
		l.notifyLocked()
		return nil
	case e.queue.len() > 0:
		return e.startLocked(ctx, "resume")
	default:
		l.state = StateIdle
		l.notifyLocked()
		return nil
	}
}

// Cancel pauses the engine and discards every queued job. A job already in
// flight still completes and its result is delivered.
func (e *Engine[P, S, R]) Cancel(ctx context.Context) error {
	_, err := e.CancelRemaining(ctx)
	return err
}

// CancelRemaining is Cancel returning how many queued jobs were discarded.
func (e *Engine[P, S, R]) CancelRemaining(ctx context.Context) (int, error) {
	done, discarded, err := e.requestStop(ctx, true)
	if err != nil {
		return 0, err
	}
	return discarded, e.join(ctx, done)
}

// requestStop moves the engine to Stopped and returns the channel closed when
// the active worker exits, or nil when none is active, together with the
// number of queued jobs discarded.
func (e *Engine[P, S, R]) requestStop(ctx context.Context, clearQueue bool) (chan struct{}, int, error) {
	l := &e.lifecycle
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state == StateClosed {
		return nil, 0, ErrEngineClosed
	}

	l.stop.Store(true)
	if l.state != StateStopped {
		l.state = StateStopped
		l.notifyLocked()
	}

	log := util.Log(ctx).WithField("engine", e.name)
	discarded := 0
	if clearQueue {
		discarded = e.queue.clear()
		if discarded > 0 {
			e.metrics.JobsDiscarded(ctx, discarded)
			log.WithField("discarded", discarded).Warn("cancelled queued jobs")
		}
	} else {
		log.Info("engine paused")
	}

	if !l.active {
		return nil, discarded, nil
	}
	return l.done, discarded, nil
}

// join waits for a worker to exit. It first waits quietly for the join grace
// period, then logs and keeps waiting up to the join timeout.
func (e *Engine[P, S, R]) join(ctx context.Context, done chan struct{}) error {
	if done == nil {
		return nil
	}

	grace := time.NewTimer(e.joinGrace)
	defer grace.Stop()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-grace.C:
	}

	util.Log(ctx).WithField("engine", e.name).Debug("waiting for in-flight job to finish")

	timeout := time.NewTimer(e.joinTimeout)
	defer timeout.Stop()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timeout.C:
		return ErrJoinTimeout
	}
}

// WaitIdle blocks until the worker has exited with the queue empty. It
// returns ErrEngineHalted when the worker stopped on a fault and
// ErrEngineStopped when jobs are queued but nothing will start the worker:
// the engine is paused, or auto start is off and Resume was not called.
func (e *Engine[P, S, R]) WaitIdle(ctx context.Context) error {
	l := &e.lifecycle
	for {
		l.mu.Lock()
		active := l.active
		state := l.state
		changed := l.changed
		l.mu.Unlock()

		if !active {
			switch {
			case e.errs.Thrown():
				return fmt.Errorf("%w: %w", ErrEngineHalted, e.errs.peek())
			case e.queue.len() == 0:
				return nil
			case state == StateStopped, !e.autoStart:
				return ErrEngineStopped
			}
		}

		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close drains the queue, stops the worker and closes the sink. Results stay
// available for popping. Later Close calls wait until the first one has
// finished draining.
//
// When the worker is halted by a fault the queue cannot be drained; Close
// logs the outstanding jobs and returns once the worker has exited.
func (e *Engine[P, S, R]) Close(ctx context.Context) error {
	l := &e.lifecycle
	log := util.Log(ctx).WithField("engine", e.name)

	l.mu.Lock()
	if l.state == StateClosed {
		closed := l.closed
		l.mu.Unlock()
		select {
		case <-closed:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	l.state = StateClosed
	l.closed = make(chan struct{})
	closed := l.closed
	l.stop.Store(false)
	l.notifyLocked()

	halted := e.errs.Thrown()
	var startErr error
	if !l.active && !halted && e.queue.len() > 0 {
		startErr = e.startLocked(ctx, "drain")
	}
	done := l.done
	if !l.active {
		done = nil
	}
	l.mu.Unlock()

	if halted {
		log.WithField("outstanding", e.queue.len()).
			WithError(e.errs.peek()).
			Error("closing halted engine with jobs outstanding")
	}

	var err error
	if startErr != nil {
		err = startErr
	} else if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			err = ctx.Err()
		}
	}

	if e.sink != nil {
		if sErr := e.sink.Close(ctx); sErr != nil && err == nil {
			err = sErr
		}
	}
	if done != nil && err != nil {
		// the drain outlived ctx; release once the worker exits
		go func() {
			<-done
			e.release(closed)
		}()
	} else {
		e.release(closed)
	}

	log.WithField("results", e.results.len()).Info("engine closed")
	return err
}

// release frees the runner once no worker can use it again and marks the
// close complete.
func (e *Engine[P, S, R]) release(closed chan struct{}) {
	if e.ownsRunner {
		e.runner.Shutdown()
	} else {
		releaseRunner(e.runner)
	}
	close(closed)
}
