package engine

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

var (
	// ErrEmptyResult is returned when a result is requested but none are buffered.
	ErrEmptyResult = errors.New("no results available")
	// ErrEngineClosed is returned by operations on an engine that has been closed.
	ErrEngineClosed = errors.New("engine is closed")
	// ErrEngineHalted is returned while a processing fault is outstanding.
	ErrEngineHalted = errors.New("engine halted by a processing fault")
	// ErrEngineStopped is returned by WaitIdle when jobs are queued but no
	// worker will start without Resume.
	ErrEngineStopped = errors.New("engine is stopped with jobs queued")
	// ErrJoinTimeout is returned when the worker did not exit within the join timeout.
	ErrJoinTimeout = errors.New("timed out waiting for the worker to stop")
	// ErrRunnerInUse is returned by New when the runner passed to WithRunner
	// already hosts another open engine.
	ErrRunnerInUse = errors.New("runner already hosts an open engine")
	// ErrOptionType is returned by New when a typed option does not match the engine.
	ErrOptionType = errors.New("option type does not match engine")
)

const processingErrorIdentifier = "ProcessingError"

// ProcessingError is a fault raised while processing a single job.
type ProcessingError struct {
	JobID           string
	SettingsVersion uint64
	Err             error
	// Stack is only set when the processing function panicked.
	Stack []byte
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("processing job %s with settings v%d: %v", e.JobID, e.SettingsVersion, e.Err)
}

func (e *ProcessingError) Unwrap() error {
	return e.Err
}

// Identifier names the error kind for callers that report errors by name.
func (e *ProcessingError) Identifier() string {
	return processingErrorIdentifier
}

// Panicked reports whether the fault was a recovered panic.
func (e *ProcessingError) Panicked() bool {
	return len(e.Stack) > 0
}

// errorChannel holds the first unhandled fault since the last clear.
type errorChannel struct {
	thrown atomic.Bool
	mu     sync.Mutex
	err    error
}

// capture stores err unless an earlier fault is still outstanding.
func (c *errorChannel) capture(err error) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.err != nil {
		return false
	}
	c.err = err
	c.thrown.Store(true)
	return true
}

func (c *errorChannel) Thrown() bool {
	return c.thrown.Load()
}

func (c *errorChannel) peek() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *errorChannel) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = nil
	c.thrown.Store(false)
}
