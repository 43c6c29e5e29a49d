package telemetry

import (
	"context"
	"errors"
	"os"
	"runtime"

	"github.com/pitabwire/util"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/contrib/exporters/autoexport"
	"go.opentelemetry.io/contrib/propagators/autoprop"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"

	"github.com/pitabwire/tracker/config"
)

// EngineInstrumentation is the instrumentation scope used by the job engine.
const EngineInstrumentation = "tracker/engine"

// Providers are the OpenTelemetry providers installed by Setup.
type Providers struct {
	Tracer *sdktrace.TracerProvider
	Meter  *sdkmetric.MeterProvider
	Logger *sdklog.LoggerProvider
}

// Shutdown flushes and stops every provider.
func (p *Providers) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	return errors.Join(
		p.Tracer.Shutdown(ctx),
		p.Meter.Shutdown(ctx),
		p.Logger.Shutdown(ctx),
	)
}

type setupOptions struct {
	version       string
	propagator    propagation.TextMapPropagator
	sampler       sdktrace.Sampler
	spanExporter  sdktrace.SpanExporter
	metricsReader sdkmetric.Reader
	logsExporter  sdklog.Exporter
}

// SetupOption configures Setup.
type SetupOption func(*setupOptions)

// WithVersion sets the service version resource attribute.
func WithVersion(version string) SetupOption {
	return func(o *setupOptions) {
		o.version = version
	}
}

// WithPropagationTextMap specifies the trace baggage carrier to use.
func WithPropagationTextMap(carrier propagation.TextMapPropagator) SetupOption {
	return func(o *setupOptions) {
		o.propagator = carrier
	}
}

// WithTraceSampler specifies the trace sampler to use.
func WithTraceSampler(sampler sdktrace.Sampler) SetupOption {
	return func(o *setupOptions) {
		o.sampler = sampler
	}
}

// WithTraceExporter specifies the trace exporter to use.
func WithTraceExporter(exporter sdktrace.SpanExporter) SetupOption {
	return func(o *setupOptions) {
		o.spanExporter = exporter
	}
}

// WithMetricsReader specifies the metrics reader to use.
func WithMetricsReader(reader sdkmetric.Reader) SetupOption {
	return func(o *setupOptions) {
		o.metricsReader = reader
	}
}

// WithLogsExporter specifies the logs exporter to use.
func WithLogsExporter(exporter sdklog.Exporter) SetupOption {
	return func(o *setupOptions) {
		o.logsExporter = exporter
	}
}

// Setup installs global trace, metric and log providers for a service and
// returns a context whose logger also ships records through OpenTelemetry.
// Exporters not given as options are chosen by autoexport from the OTEL_*
// environment and default to none. When cfg disables telemetry nothing is
// installed and the returned providers are nil.
func Setup(
	ctx context.Context,
	serviceName string,
	cfg config.ConfigurationTelemetry,
	opts ...SetupOption,
) (context.Context, *Providers, error) {
	if cfg != nil && cfg.DisableOpenTelemetry() {
		return ctx, nil, nil
	}

	o := &setupOptions{}
	for _, opt := range opts {
		opt(o)
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(semconv.SchemaURL,
		semconv.ServiceName(serviceName),
		semconv.ServiceVersion(o.version),
		semconv.ProcessPID(os.Getpid()),
		semconv.ProcessRuntimeName("go"),
		semconv.ProcessRuntimeVersion(runtime.Version()),
	))
	if err != nil {
		return ctx, nil, err
	}

	if o.propagator == nil {
		o.propagator = autoprop.NewTextMapPropagator()
	}
	if o.sampler == nil {
		ratio := 1.0
		if cfg != nil {
			ratio = cfg.SamplingRatio()
		}
		o.sampler = sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
	}
	if err = o.exporters(ctx); err != nil {
		return ctx, nil, err
	}

	otel.SetTextMapPropagator(o.propagator)

	p := &Providers{
		Tracer: sdktrace.NewTracerProvider(
			sdktrace.WithSampler(o.sampler),
			sdktrace.WithBatcher(o.spanExporter),
			sdktrace.WithResource(res)),
		Meter: sdkmetric.NewMeterProvider(
			sdkmetric.WithReader(o.metricsReader),
			sdkmetric.WithResource(res),
			sdkmetric.WithView(Views(EngineInstrumentation)...)),
		Logger: sdklog.NewLoggerProvider(
			sdklog.WithResource(res),
			sdklog.WithProcessor(sdklog.NewBatchProcessor(o.logsExporter))),
	}
	otel.SetTracerProvider(p.Tracer)
	otel.SetMeterProvider(p.Meter)
	global.SetLoggerProvider(p.Logger)

	handler := otelslog.NewHandler(serviceName,
		otelslog.WithSource(true),
		otelslog.WithLoggerProvider(p.Logger),
		otelslog.WithAttributes(res.Attributes()...))
	log := util.NewLogger(ctx, util.WithLogHandler(handler)).WithField("service", serviceName)

	return util.ContextWithLogger(ctx, log), p, nil
}

func (o *setupOptions) exporters(ctx context.Context) error {
	var err error
	if o.spanExporter == nil {
		defaultExporter("OTEL_TRACES_EXPORTER")
		if o.spanExporter, err = autoexport.NewSpanExporter(ctx); err != nil {
			return err
		}
	}
	if o.metricsReader == nil {
		defaultExporter("OTEL_METRICS_EXPORTER")
		if o.metricsReader, err = autoexport.NewMetricReader(ctx); err != nil {
			return err
		}
	}
	if o.logsExporter == nil {
		defaultExporter("OTEL_LOGS_EXPORTER")
		if o.logsExporter, err = autoexport.NewLogExporter(ctx); err != nil {
			return err
		}
	}
	return nil
}

func defaultExporter(key string) {
	if os.Getenv(key) == "" {
		_ = os.Setenv(key, "none")
	}
}
