package telemetry

import (
	"context"
	"errors"
	"time"

	"github.com/pitabwire/util"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Common attribute keys used across the tracker.
//
//nolint:gochecknoglobals // OpenTelemetry attribute keys must be global for reuse
var (
	AttrMethodKey   = attribute.Key("tracker_method")
	AttrPackageKey  = attribute.Key("tracker_package")
	AttrStatusKey   = attribute.Key("tracker_status")
	AttrErrorKey    = attribute.Key("tracker_error")
	AttrEngineKey   = attribute.Key("tracker_engine")
	AttrJobKey      = attribute.Key("tracker_job")
	AttrSettingsKey = attribute.Key("tracker_settings_version")
)

// Tracer opens and closes spans and records their latency.
type Tracer interface {
	Start(ctx context.Context, methodName string, options ...trace.SpanStartOption) (context.Context, trace.Span)
	End(ctx context.Context, span trace.Span, err error, options ...trace.SpanEndOption)
}

// spanState travels in the context between Start and End.
type spanState struct {
	started time.Time
	method  string
}

type spanStateKey struct{}

type tracer struct {
	name    string
	tracer  trace.Tracer
	latency metric.Float64Histogram
}

// NewTracer creates a tracer for a package using the global providers.
func NewTracer(name string, options ...trace.TracerOption) Tracer {
	return NewTracerWithProviders(name, otel.GetTracerProvider(), otel.GetMeterProvider(), options...)
}

// NewTracerWithProviders creates a tracer bound to explicit providers.
func NewTracerWithProviders(
	name string,
	tp trace.TracerProvider,
	mp metric.MeterProvider,
	options ...trace.TracerOption,
) Tracer {
	return &tracer{
		name:    name,
		tracer:  tp.Tracer(name, options...),
		latency: LatencyMeasure(mp, name),
	}
}

// Start opens a span named spanName. The caller must pass the returned
// context to End.
//
//nolint:spancheck // spans are intentionally returned to caller for lifecycle management
func (t *tracer) Start(
	ctx context.Context,
	spanName string,
	options ...trace.SpanStartOption,
) (context.Context, trace.Span) {
	options = append(options, trace.WithAttributes(AttrMethodKey.String(spanName)))

	ctx, span := t.tracer.Start(ctx, spanName, options...)
	state := &spanState{started: time.Now(), method: t.name + "/" + spanName}
	return context.WithValue(ctx, spanStateKey{}, state), span
}

// End closes the span, marks it failed when err is set and records the
// latency under the span's method and status.
func (t *tracer) End(ctx context.Context, span trace.Span, err error, options ...trace.SpanEndOption) {
	state, ok := ctx.Value(spanStateKey{}).(*spanState)
	if !ok {
		util.Log(ctx).Error("span context was not created by this tracer")
		span.End(options...)
		return
	}

	if err == nil {
		span.SetStatus(codes.Ok, "")
	} else {
		options = append(options, trace.WithStackTrace(true))
		span.SetAttributes(AttrErrorKey.String(err.Error()))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End(options...)

	elapsed := float64(time.Since(state.started)) / float64(time.Millisecond)
	t.latency.Record(ctx, elapsed, metric.WithAttributes(
		AttrStatusKey.String(ErrorCode(err)),
		AttrMethodKey.String(state.method),
	))
}

// ErrorCode classifies err for the status attribute.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "deadline exceeded"
	default:
		return "err"
	}
}
