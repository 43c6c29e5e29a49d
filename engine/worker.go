package engine

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/pitabwire/util"
	"go.opentelemetry.io/otel/trace"

	"github.com/pitabwire/tracker/sink"
	"github.com/pitabwire/tracker/telemetry"
)

// startLocked submits a fresh worker loop to the runner. The caller holds
// the lifecycle lock.
func (e *Engine[P, S, R]) startLocked(ctx context.Context, reason string) error {
	l := &e.lifecycle

	done := make(chan struct{})
	l.stop.Store(false)
	l.active = true
	l.done = done
	if l.state != StateClosed {
		l.state = StateRunning
	}
	l.notifyLocked()

	err := e.runner.Submit(ctx, func() { e.run(done) })
	if err != nil {
		l.active = false
		l.done = nil
		if l.state != StateClosed {
			l.state = StateStopped
		}
		l.notifyLocked()
		close(done)
		return fmt.Errorf("start worker: %w", err)
	}

	util.Log(ctx).WithField("engine", e.name).
		WithField("queued", e.queue.len()).
		Debug("worker started on %s", reason)
	return nil
}

// run drains the queue until it is empty, a stop is requested or a job fails.
func (e *Engine[P, S, R]) run(done chan struct{}) {
	l := &e.lifecycle
	defer close(done)

	for {
		halted := e.drain()

		l.mu.Lock()
		// a push may have landed between the last pop and taking the lock
		if !halted && !l.stop.Load() && e.queue.len() > 0 {
			l.mu.Unlock()
			continue
		}

		l.active = false
		l.done = nil
		if l.state != StateClosed {
			if halted || l.stop.Load() {
				l.state = StateStopped
			} else {
				l.state = StateIdle
			}
		}
		l.notifyLocked()
		l.mu.Unlock()
		return
	}
}

// drain processes jobs in order. It returns true when a job failed.
func (e *Engine[P, S, R]) drain() bool {
	for !e.lifecycle.stop.Load() {
		j, ok := e.queue.pop()
		if !ok {
			return false
		}

		if err := e.execute(e.ctx, j); err != nil {
			e.errs.capture(err)
			e.metrics.JobFailed(e.ctx)
			util.Log(e.ctx).WithField("engine", e.name).
				WithField("job", j.id).
				WithField("remaining", e.queue.len()).
				WithError(err).
				Error("job failed, worker halted")
			return true
		}
	}
	return false
}

// execute runs one job. A panic in the processing function is returned as a
// *ProcessingError like any other fault.
func (e *Engine[P, S, R]) execute(ctx context.Context, j job[P, S]) (err error) {
	version := j.settings.Version()

	ctx, span := e.tracer.Start(ctx, "process", trace.WithAttributes(
		telemetry.AttrEngineKey.String(e.name),
		telemetry.AttrJobKey.String(j.id),
		telemetry.AttrSettingsKey.Int64(int64(version)), //nolint:gosec // versions stay far below MaxInt64
	))

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = &ProcessingError{
				JobID:           j.id,
				SettingsVersion: version,
				Err:             fmt.Errorf("panic: %v", r),
				Stack:           debug.Stack(),
			}
		}
		e.tracer.End(ctx, span, err)
	}()

	value, pErr := e.process(ctx, j.payload, j.settings)
	if pErr != nil {
		return &ProcessingError{JobID: j.id, SettingsVersion: version, Err: pErr}
	}

	log := util.Log(ctx).WithField("engine", e.name).WithField("job", j.id)
	e.metrics.JobProcessed(ctx)

	if e.isEmptyResult != nil && e.isEmptyResult(value) {
		log.Debug("job produced no result")
		return nil
	}

	completed := time.Now()
	e.results.push(Result[R]{
		JobID:           j.id,
		Value:           value,
		SettingsVersion: version,
		CompletedAt:     completed,
		Duration:        completed.Sub(start),
	})

	if e.sink != nil {
		offerErr := e.sink.Offer(ctx, sink.Record[R]{
			JobID:           j.id,
			Engine:          e.name,
			SettingsVersion: version,
			CompletedAt:     completed,
			Value:           value,
		})
		if offerErr != nil {
			e.metrics.ResultDropped(ctx)
			log.WithError(offerErr).Warn("result not forwarded to sink")
		}
	}

	log.WithField("settings_version", version).
		WithField("waited", start.Sub(j.queuedAt)).
		Debug("job processed")
	return nil
}
