package telemetry

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Units are encoded according to the case-sensitive abbreviations from the
// Unified Code for Units of Measure: http://unitsofmeasure.org/ucum.html.
const (
	unitDimensionless = "1"
	unitMilliseconds  = "ms"
)

const (
	MeterJobsProcessed  = "/jobs_processed"
	MeterJobsFailed     = "/jobs_failed"
	MeterJobsDiscarded  = "/jobs_discarded"
	MeterResultsDropped = "/results_dropped"
)

var (
	defaultMillisecondsBoundaries = []float64{ //nolint:gochecknoglobals // histogram boundaries are shared by all views
		0.0, 0.1, 0.2, 0.4, 0.6, 0.8, 1.0, 2.0, 3.0, 4.0, 5.0, 6.0, 8.0, 10.0, 13.0, 16.0,
		20.0, 25.0, 30.0, 40.0, 50.0, 65.0, 80.0, 100.0, 130.0, 160.0, 200.0, 250.0, 300.0,
		400.0, 500.0, 650.0, 800.0, 1000.0, 2000.0, 5000.0, 10000.0,
	}
)

// Views configures the latency histogram and completed call count for pkg.
func Views(pkg string) []sdkmetric.View {
	return []sdkmetric.View{
		func(inst sdkmetric.Instrument) (sdkmetric.Stream, bool) {
			if inst.Kind == sdkmetric.InstrumentKindHistogram && inst.Name == pkg+"/latency" {
				return sdkmetric.Stream{
					Name:        inst.Name,
					Description: "Distribution of job processing latency, by engine and method.",
					Aggregation: sdkmetric.AggregationExplicitBucketHistogram{
						Boundaries: defaultMillisecondsBoundaries,
					},
					AttributeFilter: func(kv attribute.KeyValue) bool {
						return kv.Key == AttrPackageKey || kv.Key == AttrMethodKey || kv.Key == AttrStatusKey
					},
				}, true
			}
			return sdkmetric.Stream{}, false
		},

		func(inst sdkmetric.Instrument) (sdkmetric.Stream, bool) {
			if inst.Kind == sdkmetric.InstrumentKindHistogram && inst.Name == pkg+"/latency" {
				return sdkmetric.Stream{
					Name:        strings.Replace(inst.Name, "/latency", "/completed_calls", 1),
					Description: "Count of processed jobs by method and status.",
					Aggregation: sdkmetric.DefaultAggregationSelector(sdkmetric.InstrumentKindCounter),
					AttributeFilter: func(kv attribute.KeyValue) bool {
						return kv.Key == AttrMethodKey || kv.Key == AttrStatusKey
					},
				}, true
			}
			return sdkmetric.Stream{}, false
		},
	}
}

func meterFor(mp metric.MeterProvider, pkg string) metric.Meter {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	return mp.Meter(pkg, metric.WithInstrumentationAttributes(AttrPackageKey.String(pkg)))
}

// LatencyMeasure returns the histogram used to record job latency.
func LatencyMeasure(mp metric.MeterProvider, pkg string) metric.Float64Histogram {
	m, err := meterFor(mp, pkg).Float64Histogram(
		pkg+"/latency",
		metric.WithDescription("Latency distribution of job processing"),
		metric.WithUnit(unitMilliseconds),
	)
	if err != nil {
		// Only invalid instrument names fail, a programming error caught by tests.
		panic(fmt.Sprintf("fullName=%q: %v", pkg, err))
	}

	return m
}

// DimensionlessMeasure creates a simple counter for dimensionless measurements.
func DimensionlessMeasure(mp metric.MeterProvider, pkg string, meterName string, description string) metric.Int64Counter {
	m, err := meterFor(mp, pkg).Int64Counter(
		pkg+meterName,
		metric.WithDescription(description),
		metric.WithUnit(unitDimensionless),
	)
	if err != nil {
		panic(fmt.Sprintf("fullName=%q, meter=%q: %v", pkg, meterName, err))
	}
	return m
}

// EngineMetrics groups the counters an engine updates while draining its queue.
type EngineMetrics struct {
	engine         string
	processed      metric.Int64Counter
	failed         metric.Int64Counter
	discarded      metric.Int64Counter
	resultsDropped metric.Int64Counter
}

// NewEngineMetrics registers the engine counters under pkg.
func NewEngineMetrics(mp metric.MeterProvider, pkg string, engine string) *EngineMetrics {
	return &EngineMetrics{
		engine:         engine,
		processed:      DimensionlessMeasure(mp, pkg, MeterJobsProcessed, "Count of jobs processed successfully"),
		failed:         DimensionlessMeasure(mp, pkg, MeterJobsFailed, "Count of jobs whose processing failed"),
		discarded:      DimensionlessMeasure(mp, pkg, MeterJobsDiscarded, "Count of queued jobs discarded by cancel"),
		resultsDropped: DimensionlessMeasure(mp, pkg, MeterResultsDropped, "Count of results a sink refused"),
	}
}

func (m *EngineMetrics) attrs() metric.MeasurementOption {
	return metric.WithAttributes(AttrEngineKey.String(m.engine))
}

func (m *EngineMetrics) JobProcessed(ctx context.Context) {
	if m != nil {
		m.processed.Add(ctx, 1, m.attrs())
	}
}

func (m *EngineMetrics) JobFailed(ctx context.Context) {
	if m != nil {
		m.failed.Add(ctx, 1, m.attrs())
	}
}

func (m *EngineMetrics) JobsDiscarded(ctx context.Context, n int) {
	if m != nil && n > 0 {
		m.discarded.Add(ctx, int64(n), m.attrs())
	}
}

func (m *EngineMetrics) ResultDropped(ctx context.Context) {
	if m != nil {
		m.resultsDropped.Add(ctx, 1, m.attrs())
	}
}
