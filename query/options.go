package query

import (
	"log/slog"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/x-research-team/dtx-query/signal"
)

// ErrorHandler получает ошибки фоновых загрузок (интервал, фокус,
// инвалидация), которые некому вернуть напрямую.
type ErrorHandler func(key Key, err error)

// config содержит неэкспортируемую конфигурацию клиента запросов.
type config struct {
	logger               *slog.Logger
	tracerProvider       trace.TracerProvider
	meterProvider        metric.MeterProvider
	middlewares          []Middleware
	network              *signal.Signal
	focus                *signal.Signal
	refetchOnWindowFocus bool
	errorHandler         ErrorHandler
}

// Option определяет тип для функциональных опций, которые изменяют конфигурацию клиента.
type Option func(*config)

// WithLogger возвращает опцию, которая устанавливает логгер клиента.
// Логгер используется для записи жизненного цикла загрузок и ошибок.
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

// WithMiddleware возвращает опцию, которая добавляет один или несколько
// middleware в цепочку выполнения функций загрузки.
func WithMiddleware(mw ...Middleware) Option {
	return func(c *config) {
		c.middlewares = append(c.middlewares, mw...)
	}
}

// WithNetworkSignal задает сигнал подключения к сети. По умолчанию клиент
// создает собственный сигнал.
func WithNetworkSignal(s *signal.Signal) Option {
	return func(c *config) {
		c.network = s
	}
}

// WithFocusSignal задает сигнал фокуса окна. По умолчанию клиент создает
// собственный сигнал.
func WithFocusSignal(s *signal.Signal) Option {
	return func(c *config) {
		c.focus = s
	}
}

// WithRefetchOnWindowFocus включает или отключает перезагрузку успешных
// запросов при возврате фокуса. По умолчанию включено.
func WithRefetchOnWindowFocus(enabled bool) Option {
	return func(c *config) {
		c.refetchOnWindowFocus = enabled
	}
}

// WithErrorHandler задает обработчик ошибок фоновых загрузок.
func WithErrorHandler(h ErrorHandler) Option {
	return func(c *config) {
		c.errorHandler = h
	}
}
