package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	instrumentationName    = "github.com/x-research-team/dtx-query/query"
	instrumentationVersion = "0.1.0"
	metricKeyPrefix        = "query."
)

// Call описывает одну попытку загрузки, проходящую через цепочку middleware.
type Call struct {
	// Key содержит ключ запроса.
	Key Key
	// Name содержит имя пользовательской функции загрузки для логов.
	Name string
	// Fn выполняет загрузку.
	Fn func(ctx context.Context) (any, error)
}

// Executor выполняет попытку загрузки.
type Executor interface {
	Execute(ctx context.Context, call Call) (any, error)
}

// ExecutorFunc является адаптером, позволяющим использовать обычные функции как Executor.
type ExecutorFunc func(ctx context.Context, call Call) (any, error)

// Execute реализует интерфейс Executor.
func (f ExecutorFunc) Execute(ctx context.Context, call Call) (any, error) {
	return f(ctx, call)
}

// Middleware определяет интерфейс для middleware клиента запросов.
type Middleware interface {
	Wrap(next Executor) Executor
}

// MiddlewareFunc является адаптером, позволяющим использовать обычные функции как middleware.
type MiddlewareFunc func(next Executor) Executor

// Wrap реализует интерфейс Middleware.
func (f MiddlewareFunc) Wrap(next Executor) Executor {
	return f(next)
}

// directExecutor просто вызывает функцию загрузки.
type directExecutor struct{}

func (directExecutor) Execute(ctx context.Context, call Call) (any, error) {
	return call.Fn(ctx)
}

// loggingMiddleware реализует Middleware для логирования загрузок.
type loggingMiddleware struct {
	logger *slog.Logger
}

// NewLoggingMiddleware создает новое middleware для логирования.
// Если логгер не предоставлен (nil), возвращается no-op middleware.
func NewLoggingMiddleware(logger *slog.Logger) Middleware {
	if logger == nil {
		return noopMiddleware{}
	}
	return &loggingMiddleware{logger: logger}
}

// Wrap оборачивает исполнителя для добавления логирования.
func (m *loggingMiddleware) Wrap(next Executor) Executor {
	return ExecutorFunc(func(ctx context.Context, call Call) (result any, err error) {
		hash := call.Key.Hash()
		m.logger.Debug("загрузка запроса", slog.String("query_key", hash), slog.String("query_fn", call.Name))

		startTime := time.Now()
		defer func() {
			duration := time.Since(startTime)
			if err != nil {
				m.logger.Error("ошибка загрузки запроса",
					slog.String("query_key", hash),
					slog.String("query_fn", call.Name),
					slog.Any("error", err),
					slog.Duration("duration", duration),
				)
				return
			}
			m.logger.Debug("запрос загружен",
				slog.String("query_key", hash),
				slog.Duration("duration", duration),
			)
		}()

		return next.Execute(ctx, call)
	})
}

// metricsMiddleware реализует Middleware для сбора метрик OpenTelemetry.
type metricsMiddleware struct {
	fetchCounter metric.Int64Counter
	durationHist metric.Float64Histogram
}

// NewMetricsMiddleware создает новое middleware для сбора метрик.
func NewMetricsMiddleware(provider metric.MeterProvider) Middleware {
	if provider == nil {
		return noopMiddleware{}
	}

	meter := provider.Meter(instrumentationName, metric.WithInstrumentationVersion(instrumentationVersion))

	fetchCounter, err := meter.Int64Counter(
		metricKeyPrefix+"fetch.count",
		metric.WithDescription("Количество попыток загрузки запросов"),
		metric.WithUnit("{fetches}"),
	)
	if err != nil {
		panic(fmt.Sprintf("не удалось создать счетчик fetch.count: %v", err))
	}

	durationHist, err := meter.Float64Histogram(
		metricKeyPrefix+"fetch.duration",
		metric.WithDescription("Длительность загрузки запроса"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		panic(fmt.Sprintf("не удалось создать гистограмму fetch.duration: %v", err))
	}

	return &metricsMiddleware{
		fetchCounter: fetchCounter,
		durationHist: durationHist,
	}
}

// Wrap оборачивает исполнителя для добавления сбора метрик.
func (m *metricsMiddleware) Wrap(next Executor) Executor {
	return ExecutorFunc(func(ctx context.Context, call Call) (any, error) {
		startTime := time.Now()
		result, err := next.Execute(ctx, call)
		duration := float64(time.Since(startTime).Milliseconds())

		attrs := metric.WithAttributes(
			attribute.String("query.key", call.Key.Hash()),
			attribute.String("status", outcome(ctx, err)),
		)
		m.fetchCounter.Add(ctx, 1, attrs)
		m.durationHist.Record(ctx, duration, attrs)

		return result, err
	})
}

// tracingMiddleware реализует Middleware для трассировки OpenTelemetry.
type tracingMiddleware struct {
	tracer trace.Tracer
}

// NewTracingMiddleware создает новое middleware для трассировки.
func NewTracingMiddleware(tp trace.TracerProvider) Middleware {
	if tp == nil {
		return noopMiddleware{}
	}
	return &tracingMiddleware{
		tracer: tp.Tracer(
			instrumentationName,
			trace.WithInstrumentationVersion(instrumentationVersion),
		),
	}
}

// Wrap оборачивает исполнителя спаном на каждую попытку загрузки.
func (m *tracingMiddleware) Wrap(next Executor) Executor {
	return ExecutorFunc(func(ctx context.Context, call Call) (result any, err error) {
		hash := call.Key.Hash()
		ctx, span := m.tracer.Start(ctx, hash+" fetch",
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(
				attribute.String("query.key", hash),
				attribute.String("query.fn", call.Name),
			),
		)
		defer func() {
			if err != nil {
				span.RecordError(err)
			}
			span.End()
		}()

		return next.Execute(ctx, call)
	})
}

// applyMiddlewares применяет цепочку middleware к базовому исполнителю.
// Первое middleware в списке оказывается внешним.
func applyMiddlewares(executor Executor, middlewares ...Middleware) Executor {
	e := executor
	for i := len(middlewares) - 1; i >= 0; i-- {
		e = middlewares[i].Wrap(e)
	}
	return e
}

// noopMiddleware представляет собой пустое middleware.
type noopMiddleware struct{}

// Wrap просто возвращает следующего исполнителя без изменений.
func (noopMiddleware) Wrap(next Executor) Executor {
	return next
}

// outcome классифицирует результат попытки для метрик.
func outcome(ctx context.Context, err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(context.Cause(ctx), ErrCancelled):
		return "cancelled"
	default:
		return "error"
	}
}
