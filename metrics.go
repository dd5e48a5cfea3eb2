package apm

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all apm metrics.
const meterName = "github.com/opd-ai/apm"

// Stream directions used as the "direction" metric attribute.
const (
	DirectionForward = "forward"
	DirectionReverse = "reverse"
)

// Metrics holds the OpenTelemetry instruments recorded by a Processor.
// All fields are safe for concurrent use.
type Metrics struct {
	// EngineBuilds counts successful lazy engine constructions.
	EngineBuilds metric.Int64Counter

	// EngineBuildFailures counts constructions that failed to build or
	// initialize.
	EngineBuildFailures metric.Int64Counter

	// EngineTeardowns counts engines released by Teardown or Close.
	EngineTeardowns metric.Int64Counter

	// Frames counts frames delivered to a live engine. Use with attribute:
	//   attribute.String("direction", ...)
	Frames metric.Int64Counter

	// StreamErrors counts non-OK engine statuses. Use with attributes:
	//   attribute.String("direction", ...), attribute.String("status", ...)
	StreamErrors metric.Int64Counter

	// ProcessDuration tracks engine time per frame in seconds.
	ProcessDuration metric.Float64Histogram
}

// frameBuckets defines histogram boundaries (in seconds) sized for a
// 10 ms real-time budget.
var frameBuckets = []float64{
	0.00005, 0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider].
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.EngineBuilds, err = m.Int64Counter("apm.engine.builds",
		metric.WithDescription("Engine instances constructed and initialized."),
	); err != nil {
		return nil, err
	}
	if met.EngineBuildFailures, err = m.Int64Counter("apm.engine.build_failures",
		metric.WithDescription("Engine constructions that failed to build or initialize."),
	); err != nil {
		return nil, err
	}
	if met.EngineTeardowns, err = m.Int64Counter("apm.engine.teardowns",
		metric.WithDescription("Engine instances released."),
	); err != nil {
		return nil, err
	}
	if met.Frames, err = m.Int64Counter("apm.frames",
		metric.WithDescription("Frames delivered to the engine by direction."),
	); err != nil {
		return nil, err
	}
	if met.StreamErrors, err = m.Int64Counter("apm.stream.errors",
		metric.WithDescription("Non-OK engine statuses by direction and status."),
	); err != nil {
		return nil, err
	}
	if met.ProcessDuration, err = m.Float64Histogram("apm.process.duration",
		metric.WithDescription("Engine processing time per frame."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(frameBuckets...),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// RecordFrame records one frame delivered to the engine in direction.
func (m *Metrics) RecordFrame(ctx context.Context, direction string, status Status, elapsed time.Duration) {
	dir := attribute.String("direction", direction)
	m.Frames.Add(ctx, 1, metric.WithAttributes(dir))
	m.ProcessDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(dir))
	if status != StatusOK {
		m.StreamErrors.Add(ctx, 1, metric.WithAttributes(dir, attribute.String("status", ErrorMessage(status))))
	}
}
