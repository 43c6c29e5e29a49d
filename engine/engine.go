package engine

import (
	"context"
	"errors"
	"time"

	"github.com/pitabwire/util"
	"github.com/rs/xid"
	"go.opentelemetry.io/otel"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/pitabwire/tracker/config"
	"github.com/pitabwire/tracker/settings"
	"github.com/pitabwire/tracker/sink"
	"github.com/pitabwire/tracker/telemetry"
	"github.com/pitabwire/tracker/workerpool"
)

const instrumentationName = telemetry.EngineInstrumentation

// ProcessFunc computes the result for one payload using the settings that
// were current when the payload was pushed. It must not call back into the
// engine that runs it.
type ProcessFunc[P, S, R any] func(ctx context.Context, payload P, settings *settings.Snapshot[S]) (R, error)

// Engine is an asynchronous single worker job engine.
type Engine[P, S, R any] struct {
	ctx     context.Context
	name    string
	process ProcessFunc[P, S, R]

	store   *settings.Store[S]
	queue   jobQueue[P, S]
	results resultBuffer[R]
	errs    errorChannel

	isEmptyPayload func(P) bool
	isEmptyResult  func(R) bool
	sink           sink.Sink[R]

	runner      workerpool.Runner
	ownsRunner  bool
	tracer      telemetry.Tracer
	metrics     *telemetry.EngineMetrics
	joinGrace   time.Duration
	joinTimeout time.Duration
	autoStart   bool

	lifecycle lifecycle
}

// New creates an idle engine. No worker runs until the first push (or
// Resume when auto start is disabled).
func New[P, S, R any](
	ctx context.Context,
	process ProcessFunc[P, S, R],
	initial S,
	opts ...Option,
) (*Engine[P, S, R], error) {
	if process == nil {
		return nil, errors.New("engine: process function is required")
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	validate, err := typedOption[settings.ValidateFunc[S]]("WithValidator", o.validator)
	if err != nil {
		return nil, err
	}
	clone, err := typedOption[func(S) S]("WithClone", o.clone)
	if err != nil {
		return nil, err
	}
	var storeOpts []settings.StoreOption[S]
	if clone != nil {
		storeOpts = append(storeOpts, settings.WithClone(settings.CloneFunc[S](clone)))
	}
	isEmptyPayload, err := typedOption[func(P) bool]("WithEmptyPayload", o.emptyPayload)
	if err != nil {
		return nil, err
	}
	isEmptyResult, err := typedOption[func(R) bool]("WithEmptyResult", o.emptyResult)
	if err != nil {
		return nil, err
	}
	resultSink, err := typedOption[sink.Sink[R]]("WithSink", o.sink)
	if err != nil {
		return nil, err
	}

	if validate != nil {
		if vErr := validate(initial); vErr != nil {
			return nil, settings.AsConfigurationError(vErr)
		}
	}

	if o.Runner != nil && !o.ownsRunner {
		if cErr := claimRunner(o.Runner); cErr != nil {
			return nil, cErr
		}
	}

	e := &Engine[P, S, R]{
		ctx:            context.WithoutCancel(ctx),
		name:           o.Name,
		process:        process,
		store:          settings.NewStore(initial, validate, storeOpts...),
		isEmptyPayload: isEmptyPayload,
		isEmptyResult:  isEmptyResult,
		sink:           resultSink,
		runner:         o.Runner,
		ownsRunner:     o.ownsRunner,
		tracer:         o.Tracer,
		metrics:        o.Metrics,
		joinGrace:      o.JoinGrace,
		joinTimeout:    o.JoinTimeout,
		autoStart:      o.AutoStart,
	}
	e.lifecycle.init()

	if e.runner == nil {
		e.runner, err = workerpool.NewRunner(ctx, nil)
		if err != nil {
			return nil, err
		}
		e.ownsRunner = true
	}

	if e.tracer == nil {
		e.tracer = telemetry.NewTracer(instrumentationName)
	}
	if e.metrics == nil {
		e.metrics = telemetry.NewEngineMetrics(otel.GetMeterProvider(), instrumentationName, e.name)
	}

	util.Log(ctx).WithField("engine", e.name).Debug("engine created")
	return e, nil
}

// NewFromConfig creates an engine whose name and lifecycle timings come from
// cfg. Options passed explicitly take precedence.
func NewFromConfig[P, S, R any](
	ctx context.Context,
	cfg config.ConfigurationEngine,
	process ProcessFunc[P, S, R],
	initial S,
	opts ...Option,
) (*Engine[P, S, R], error) {
	var (
		cfgOpts []Option
		owned   workerpool.Runner
	)
	if cfg != nil {
		cfgOpts = append(cfgOpts,
			WithName(cfg.GetEngineName()),
			WithJoinGrace(cfg.GetJoinGrace()),
			WithJoinTimeout(cfg.GetJoinTimeout()),
			WithAutoStart(cfg.AutoStart()),
		)

		if poolCfg, ok := cfg.(config.ConfigurationWorkerPool); ok && !hasRunnerOption(opts) {
			runner, err := workerpool.NewRunner(ctx, poolCfg)
			if err != nil {
				return nil, err
			}
			owned = runner
			cfgOpts = append(cfgOpts, withOwnedRunner(runner))
		}

		if telCfg, ok := cfg.(config.ConfigurationTelemetry); ok && telCfg.DisableOpenTelemetry() {
			name := cfg.GetEngineName()
			cfgOpts = append(cfgOpts,
				WithTracer(telemetry.NewTracerWithProviders(
					instrumentationName, tracenoop.NewTracerProvider(), metricnoop.NewMeterProvider())),
				WithMetrics(telemetry.NewEngineMetrics(metricnoop.NewMeterProvider(), instrumentationName, name)),
			)
		}
	}

	e, err := New(ctx, process, initial, append(cfgOpts, opts...)...)
	if err != nil && owned != nil {
		owned.Shutdown()
	}
	return e, err
}

func hasRunnerOption(opts []Option) bool {
	o := &Options{}
	for _, opt := range opts {
		opt(o)
	}
	return o.Runner != nil
}

// Name returns the engine name.
func (e *Engine[P, S, R]) Name() string {
	return e.name
}

// Settings returns the current settings snapshot.
func (e *Engine[P, S, R]) Settings() *settings.Snapshot[S] {
	return e.store.Current()
}

// UpdateSettings derives, validates and publishes a new settings snapshot.
// Jobs already queued keep the snapshot they captured.
func (e *Engine[P, S, R]) UpdateSettings(fn settings.UpdateFunc[S]) error {
	snap, err := e.store.Update(fn)
	if err != nil {
		util.Log(e.ctx).WithField("engine", e.name).WithError(err).Warn("settings update rejected")
		return err
	}
	util.Log(e.ctx).WithField("engine", e.name).WithField("version", snap.Version()).Debug("settings updated")
	return nil
}

// ReplaceSettings validates and publishes value as the new settings.
func (e *Engine[P, S, R]) ReplaceSettings(value S) error {
	return e.UpdateSettings(func(S) (S, error) { return value, nil })
}

// ResetSettings publishes the settings the engine was created with.
func (e *Engine[P, S, R]) ResetSettings() {
	e.store.Reset()
}

// Push queues payload with the current settings and returns the job id.
// An empty payload is ignored and yields an empty id.
func (e *Engine[P, S, R]) Push(ctx context.Context, payload P) (string, error) {
	if e.isEmptyPayload != nil && e.isEmptyPayload(payload) {
		return "", nil
	}

	l := &e.lifecycle
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state == StateClosed {
		return "", ErrEngineClosed
	}

	j := job[P, S]{
		id:       xid.New().String(),
		payload:  payload,
		settings: e.store.Current(),
		queuedAt: time.Now(),
	}
	e.queue.push(j)

	if l.state == StateIdle && e.autoStart && !e.errs.Thrown() {
		if err := e.startLocked(ctx, "auto start"); err != nil {
			return j.id, err
		}
	}
	return j.id, nil
}

// PopResult removes and returns the most recently completed result.
func (e *Engine[P, S, R]) PopResult() (Result[R], error) {
	return e.results.pop()
}

// PeekResult returns the most recently completed result without removing it.
func (e *Engine[P, S, R]) PeekResult() (Result[R], error) {
	return e.results.peek()
}

// AvailableResults returns the number of buffered results.
func (e *Engine[P, S, R]) AvailableResults() int {
	return e.results.len()
}

// ClearResults discards every buffered result. Jobs in flight are unaffected.
func (e *Engine[P, S, R]) ClearResults() {
	e.results.clear()
}

// RemainingTasks returns the number of queued jobs not yet started.
func (e *Engine[P, S, R]) RemainingTasks() int {
	return e.queue.len()
}

// WasErrorThrown reports whether a processing fault is outstanding.
func (e *Engine[P, S, R]) WasErrorThrown() bool {
	return e.errs.Thrown()
}

// Error returns the outstanding processing fault, if any, without clearing it.
func (e *Engine[P, S, R]) Error() error {
	return e.errs.peek()
}

// ClearError discards the outstanding fault. The worker stays halted until Resume.
func (e *Engine[P, S, R]) ClearError() {
	e.errs.clear()
}

// Sink returns the result sink the engine forwards to, or nil.
func (e *Engine[P, S, R]) Sink() sink.Sink[R] {
	return e.sink
}
