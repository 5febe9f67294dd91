package mutation

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const (
	instrumentationName    = "github.com/x-research-team/dtx-query/mutation"
	instrumentationVersion = "0.1.0"
	metricKeyPrefix        = "mutation."
)

// telemetry объединяет инструменты OpenTelemetry мутации.
type telemetry struct {
	tracer         trace.Tracer
	attemptCounter metric.Int64Counter
	durationHist   metric.Float64Histogram
}

// newTelemetry создает инструменты. Без провайдеров используются no-op реализации.
func newTelemetry(cfg *config) *telemetry {
	tp := cfg.tracerProvider
	if tp == nil {
		tp = tracenoop.NewTracerProvider()
	}
	mp := cfg.meterProvider
	if mp == nil {
		mp = metricnoop.NewMeterProvider()
	}

	meter := mp.Meter(instrumentationName, metric.WithInstrumentationVersion(instrumentationVersion))

	attemptCounter, err := meter.Int64Counter(
		metricKeyPrefix+"attempt.count",
		metric.WithDescription("Количество попыток выполнения мутаций"),
		metric.WithUnit("{attempts}"),
	)
	if err != nil {
		panic(fmt.Sprintf("не удалось создать счетчик attempt.count: %v", err))
	}

	durationHist, err := meter.Float64Histogram(
		metricKeyPrefix+"duration",
		metric.WithDescription("Длительность выполнения мутации с учетом повторов"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		panic(fmt.Sprintf("не удалось создать гистограмму duration: %v", err))
	}

	return &telemetry{
		tracer: tp.Tracer(
			instrumentationName,
			trace.WithInstrumentationVersion(instrumentationVersion),
		),
		attemptCounter: attemptCounter,
		durationHist:   durationHist,
	}
}

func (t *telemetry) start(ctx context.Context, name string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name+" mutate",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("mutation.name", name)),
	)
}

func (t *telemetry) attempt(ctx context.Context, name string, err error) {
	t.attemptCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("mutation.name", name),
		attribute.String("status", status(err)),
	))
}

func (t *telemetry) finish(ctx context.Context, name string, d time.Duration, err error) {
	t.durationHist.Record(ctx, float64(d.Milliseconds()), metric.WithAttributes(
		attribute.String("mutation.name", name),
		attribute.String("status", status(err)),
	))
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
