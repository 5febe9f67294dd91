package mutation

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// config содержит неэкспортируемую конфигурацию мутации.
type config struct {
	name           string
	retry          int
	retryDelay     time.Duration
	logger         *slog.Logger
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// Option определяет тип для функциональных опций, которые изменяют конфигурацию мутации.
type Option func(*config)

// WithName задает имя мутации для логов, метрик и трассировки.
// По умолчанию используется имя функции мутации.
func WithName(name string) Option {
	return func(c *config) {
		c.name = name
	}
}

// WithRetry задает число повторов функции мутации после ошибки.
// Отрицательные значения считаются нулем.
func WithRetry(n int) Option {
	return func(c *config) {
		c.retry = max(n, 0)
	}
}

// WithRetryDelay задает паузу перед каждым повтором.
func WithRetryDelay(d time.Duration) Option {
	return func(c *config) {
		c.retryDelay = d
	}
}

// WithLogger возвращает опцию, которая устанавливает логгер мутации.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithTracerProvider возвращает опцию, которая устанавливает провайдер трассировки.
func WithTracerProvider(provider trace.TracerProvider) Option {
	return func(c *config) {
		c.tracerProvider = provider
	}
}

// WithMeterProvider возвращает опцию, которая устанавливает провайдер метрик.
func WithMeterProvider(provider metric.MeterProvider) Option {
	return func(c *config) {
		c.meterProvider = provider
	}
}
