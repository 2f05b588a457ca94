package diet

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/nutriplan/nutriplan/internal/diet"

// Metrics holds the generation pipeline instruments. A nil *Metrics records
// nothing.
type Metrics struct {
	duration    metric.Float64Histogram
	generations metric.Int64Counter
	attempts    metric.Int64Histogram
	corrections metric.Int64Counter
}

// NewMetrics creates the pipeline instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)

	duration, err := meter.Float64Histogram(
		"diet.generation.duration",
		metric.WithDescription("Duration of diet plan generation in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	generations, err := meter.Int64Counter(
		"diet.generation.total",
		metric.WithDescription("Diet plan generations by outcome"),
		metric.WithUnit("{generation}"),
	)
	if err != nil {
		return nil, err
	}

	attempts, err := meter.Int64Histogram(
		"diet.generation.attempts",
		metric.WithDescription("Model requests needed per generation"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, err
	}

	corrections, err := meter.Int64Counter(
		"diet.validation.corrections",
		metric.WithDescription("Protein correction passes applied by the validator"),
		metric.WithUnit("{pass}"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		duration:    duration,
		generations: generations,
		attempts:    attempts,
		corrections: corrections,
	}, nil
}

// RecordGeneration records one finished generation.
func (m *Metrics) RecordGeneration(ctx context.Context, outcome string, attempts int, d time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.duration.Record(ctx, d.Seconds(), attrs)
	m.generations.Add(ctx, 1, attrs)
	m.attempts.Record(ctx, int64(attempts), attrs)
}

// RecordCorrections records validator correction passes.
func (m *Metrics) RecordCorrections(ctx context.Context, passes int) {
	if m == nil || passes == 0 {
		return
	}
	m.corrections.Add(ctx, int64(passes))
}
