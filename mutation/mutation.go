// Package mutation реализует контроллер операций записи с хуками
// оптимистичного обновления и ограниченным числом повторов. Мутация не
// использует кеш клиента запросов: для согласования кеша хуки вызывают
// query.SetQueryData и Client.InvalidateQueries.
package mutation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/x-research-team/dtx-query/internal/funcname"
	"github.com/x-research-team/dtx-query/notify"
)

// ErrNoMutationFn возвращается, если функция мутации не задана.
var ErrNoMutationFn = errors.New("функция мутации не задана")

// Status описывает состояние мутации.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Hooks описывает функцию мутации и хуки ее жизненного цикла.
// Параметры типа: V для переменных мутации, D для результата и C для
// контекста отката, который возвращает OnMutate и получают остальные хуки.
type Hooks[V, D, C any] struct {
	// Fn выполняет запись. Обязательна.
	Fn func(ctx context.Context, variables V) (D, error)
	// OnMutate вызывается один раз до первой попытки. Ошибка OnMutate
	// завершает мутацию без вызова Fn.
	OnMutate func(ctx context.Context, variables V) (C, error)
	// OnSuccess вызывается после успешной попытки.
	OnSuccess func(ctx context.Context, data D, variables V, rollback C)
	// OnError вызывается, когда повторы исчерпаны.
	OnError func(ctx context.Context, err error, variables V, rollback C)
	// OnSettled вызывается ровно один раз после OnSuccess или OnError.
	OnSettled func(ctx context.Context, data D, err error, variables V, rollback C)
}

// State содержит снимок состояния мутации.
type State[V, D, C any] struct {
	Status       Status
	Data         D
	Error        error
	Variables    V
	Context      C
	FailureCount int
}

// IsIdle сообщает, что мутация не запускалась или была сброшена.
func (s State[V, D, C]) IsIdle() bool { return s.Status == StatusIdle }

// IsPending сообщает, что мутация выполняется.
func (s State[V, D, C]) IsPending() bool { return s.Status == StatusLoading }

// IsSuccess сообщает, что мутация завершилась успешно.
func (s State[V, D, C]) IsSuccess() bool { return s.Status == StatusSuccess }

// IsError сообщает, что мутация завершилась ошибкой.
func (s State[V, D, C]) IsError() bool { return s.Status == StatusError }

// Mutation управляет одной операцией записи.
type Mutation[V, D, C any] struct {
	hooks     Hooks[V, D, C]
	cfg       *config
	telemetry *telemetry
	listeners *notify.Listeners[State[V, D, C]]

	mu         sync.Mutex
	state      State[V, D, C]
	generation uint64
}

// New создает новую мутацию.
func New[V, D, C any](hooks Hooks[V, D, C], opts ...Option) *Mutation[V, D, C] {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.name == "" {
		cfg.name = funcname.Of(hooks.Fn)
	}

	return &Mutation[V, D, C]{
		hooks:     hooks,
		cfg:       cfg,
		telemetry: newTelemetry(cfg),
		listeners: notify.New[State[V, D, C]](),
		state:     State[V, D, C]{Status: StatusIdle},
	}
}

// Mutate выполняет мутацию с переменными variables.
//
// Порядок вызовов: OnMutate, затем Fn (до 1+retry раз с тем же набором
// переменных), затем OnSuccess или OnError и в конце OnSettled. Если
// во время выполнения вызван Reset или запущена новая мутация, хуки
// текущего вызова все равно отрабатывают, но его состояние больше не
// публикуется.
func (m *Mutation[V, D, C]) Mutate(ctx context.Context, variables V) (D, error) {
	gen := m.begin(variables)

	ctx, span := m.telemetry.start(ctx, m.cfg.name)
	defer span.End()

	startTime := time.Now()
	data, rollback, err := m.execute(ctx, gen, variables)
	m.telemetry.finish(ctx, m.cfg.name, time.Since(startTime), err)

	if err != nil {
		span.RecordError(err)
		m.update(gen, func(s *State[V, D, C]) {
			s.Status = StatusError
			s.Error = err
		})
		if m.cfg.logger != nil {
			m.cfg.logger.Error("ошибка выполнения мутации",
				slog.String("mutation", m.cfg.name),
				slog.Any("error", err),
			)
		}

		if m.hooks.OnError != nil {
			m.hooks.OnError(ctx, err, variables, rollback)
		}
		if m.hooks.OnSettled != nil {
			var zero D
			m.hooks.OnSettled(ctx, zero, err, variables, rollback)
		}

		var zero D
		return zero, err
	}

	m.update(gen, func(s *State[V, D, C]) {
		s.Status = StatusSuccess
		s.Data = data
		s.Error = nil
	})
	if m.cfg.logger != nil {
		m.cfg.logger.Debug("мутация выполнена", slog.String("mutation", m.cfg.name))
	}

	if m.hooks.OnSuccess != nil {
		m.hooks.OnSuccess(ctx, data, variables, rollback)
	}
	if m.hooks.OnSettled != nil {
		m.hooks.OnSettled(ctx, data, nil, variables, rollback)
	}

	return data, nil
}

// MutateAsync является синонимом Mutate.
func (m *Mutation[V, D, C]) MutateAsync(ctx context.Context, variables V) (D, error) {
	return m.Mutate(ctx, variables)
}

// Reset возвращает мутацию в состояние idle, очищая данные, ошибку,
// переменные и контекст отката.
func (m *Mutation[V, D, C]) Reset() {
	m.mu.Lock()
	m.generation++
	m.state = State[V, D, C]{Status: StatusIdle}
	state := m.state
	m.mu.Unlock()

	m.listeners.Notify(state)
}

// State возвращает текущий снимок состояния.
func (m *Mutation[V, D, C]) State() State[V, D, C] {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Subscribe подписывает слушателя на изменения состояния.
func (m *Mutation[V, D, C]) Subscribe(listener func(State[V, D, C])) (unsubscribe func()) {
	return m.listeners.Subscribe(listener)
}

// execute выполняет OnMutate и попытки Fn с повторами.
func (m *Mutation[V, D, C]) execute(ctx context.Context, gen uint64, variables V) (D, C, error) {
	var (
		zero     D
		rollback C
	)

	if m.hooks.Fn == nil {
		return zero, rollback, fmt.Errorf("мутация '%s': %w", m.cfg.name, ErrNoMutationFn)
	}

	if m.hooks.OnMutate != nil {
		var err error
		rollback, err = m.hooks.OnMutate(ctx, variables)
		if err != nil {
			return zero, rollback, fmt.Errorf("мутация '%s': подготовка: %w", m.cfg.name, err)
		}
		m.update(gen, func(s *State[V, D, C]) {
			s.Context = rollback
		})
	}

	var lastErr error
	for attempt := 0; attempt <= m.cfg.retry; attempt++ {
		if attempt > 0 {
			if err := m.wait(ctx); err != nil {
				return zero, rollback, err
			}
			if m.cfg.logger != nil {
				m.cfg.logger.Warn("повтор мутации",
					slog.String("mutation", m.cfg.name),
					slog.Int("attempt", attempt+1),
					slog.Any("error", lastErr),
				)
			}
		}

		data, err := m.hooks.Fn(ctx, variables)
		m.telemetry.attempt(ctx, m.cfg.name, err)
		if err == nil {
			return data, rollback, nil
		}

		lastErr = err
		m.update(gen, func(s *State[V, D, C]) {
			s.FailureCount++
		})
	}

	return zero, rollback, lastErr
}

// wait выдерживает паузу перед повтором с учетом отмены контекста.
func (m *Mutation[V, D, C]) wait(ctx context.Context) error {
	if m.cfg.retryDelay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(m.cfg.retryDelay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// begin переводит мутацию в loading и возвращает номер поколения вызова.
func (m *Mutation[V, D, C]) begin(variables V) uint64 {
	m.mu.Lock()
	m.generation++
	gen := m.generation
	m.state = State[V, D, C]{
		Status:    StatusLoading,
		Variables: variables,
	}
	state := m.state
	m.mu.Unlock()

	m.listeners.Notify(state)
	return gen
}

// update применяет изменение к состоянию, если вызов gen все еще актуален.
func (m *Mutation[V, D, C]) update(gen uint64, apply func(s *State[V, D, C])) {
	m.mu.Lock()
	if gen != m.generation {
		m.mu.Unlock()
		return
	}
	apply(&m.state)
	state := m.state
	m.mu.Unlock()

	m.listeners.Notify(state)
}
