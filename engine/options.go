package engine

import (
	"fmt"
	"time"

	"github.com/pitabwire/tracker/settings"
	"github.com/pitabwire/tracker/sink"
	"github.com/pitabwire/tracker/telemetry"
	"github.com/pitabwire/tracker/workerpool"
)

const (
	defaultName        = "tracker"
	defaultJoinGrace   = time.Millisecond
	defaultJoinTimeout = 30 * time.Second
)

// Options configures an Engine.
//
// The typed hooks are stored untyped so that options stay free of the
// engine's type parameters; New checks them against P, S and R.
type Options struct {
	Name        string
	JoinGrace   time.Duration
	JoinTimeout time.Duration
	AutoStart   bool
	Runner      workerpool.Runner
	Tracer      telemetry.Tracer
	Metrics     *telemetry.EngineMetrics

	ownsRunner   bool
	validator    any
	clone        any
	emptyPayload any
	emptyResult  any
	sink         any
}

// Option defines a function that configures engine options.
type Option func(*Options)

func defaultOptions() *Options {
	return &Options{
		Name:        defaultName,
		JoinGrace:   defaultJoinGrace,
		JoinTimeout: defaultJoinTimeout,
		AutoStart:   true,
	}
}

// WithName sets the engine name used in logs and telemetry.
func WithName(name string) Option {
	return func(o *Options) {
		if name != "" {
			o.Name = name
		}
	}
}

// WithJoinGrace sets how long Pause waits quietly before logging that it is
// still waiting for the in-flight job.
func WithJoinGrace(d time.Duration) Option {
	return func(o *Options) {
		if d >= 0 {
			o.JoinGrace = d
		}
	}
}

// WithJoinTimeout bounds how long Pause and Cancel wait for the worker to exit.
func WithJoinTimeout(d time.Duration) Option {
	return func(o *Options) {
		if d > 0 {
			o.JoinTimeout = d
		}
	}
}

// WithAutoStart controls whether the first push into an idle engine starts
// the worker. When disabled the worker only runs after Resume.
func WithAutoStart(enabled bool) Option {
	return func(o *Options) {
		o.AutoStart = enabled
	}
}

// WithRunner hosts the worker on an existing runner. The engine does not shut
// a supplied runner down on Close. A runner hosts one open engine at a time;
// New fails with ErrRunnerInUse otherwise.
func WithRunner(r workerpool.Runner) Option {
	return func(o *Options) {
		o.Runner = r
		o.ownsRunner = false
	}
}

func withOwnedRunner(r workerpool.Runner) Option {
	return func(o *Options) {
		o.Runner = r
		o.ownsRunner = true
	}
}

// WithTracer sets the tracer used for per job spans.
func WithTracer(t telemetry.Tracer) Option {
	return func(o *Options) {
		o.Tracer = t
	}
}

// WithMetrics sets the counters updated by the worker.
func WithMetrics(m *telemetry.EngineMetrics) Option {
	return func(o *Options) {
		o.Metrics = m
	}
}

// WithValidator checks every settings value before it is published.
func WithValidator[S any](validate settings.ValidateFunc[S]) Option {
	return func(o *Options) {
		o.validator = validate
	}
}

// WithClone deep copies settings values as they enter and leave the settings
// store, so callers cannot reach a published snapshot through shared slices.
func WithClone[S any](clone func(S) S) Option {
	return func(o *Options) {
		o.clone = clone
	}
}

// WithEmptyPayload reports payloads that Push should ignore.
func WithEmptyPayload[P any](isEmpty func(P) bool) Option {
	return func(o *Options) {
		o.emptyPayload = isEmpty
	}
}

// WithEmptyResult reports results that should be dropped instead of buffered.
func WithEmptyResult[R any](isEmpty func(R) bool) Option {
	return func(o *Options) {
		o.emptyResult = isEmpty
	}
}

// WithSink forwards every buffered result to s. The engine closes s on Close.
func WithSink[R any](s sink.Sink[R]) Option {
	return func(o *Options) {
		o.sink = s
	}
}

// typedOption asserts an untyped hook against the engine's type parameters.
func typedOption[T any](name string, value any) (T, error) {
	var zero T
	if value == nil {
		return zero, nil
	}
	typed, ok := value.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s expects %T, got %T", ErrOptionType, name, zero, value)
	}
	return typed, nil
}
