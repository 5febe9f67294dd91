// Package query реализует клиентский слой кеширования запросов и
// синхронизации состояния. Клиент (Client) хранит по одной записи на каждый
// ключ запроса, гарантирует не более одного выполняющегося запроса на ключ,
// кеширует последний успешный результат и публикует состояние подписчикам.
//
// Повторная загрузка запускается вручную, по интервалу, при возврате фокуса
// окну или при инвалидации ключа. Сигнал сети не запускает загрузку сам, а
// лишь разрешает или приостанавливает будущие попытки.
//
// Go не поддерживает обобщенные методы, поэтому типизированный API
// представлен функциями пакета:
//
//	client := query.NewClient(query.WithLogger(slog.Default()))
//	defer client.Cleanup()
//
//	todos, err := query.Fetch(ctx, client, query.Options[[]Todo]{
//		Key: query.K("todos"),
//		Fn:  fetchTodos,
//	})
package query

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/x-research-team/dtx-query/internal/funcname"
)

// Key представляет упорядоченную последовательность примитивных значений,
// задающую логический идентификатор запроса. Два ключа равны тогда и только
// тогда, когда равны их канонические строковые формы (см. Hash).
type Key []any

// K создает ключ из перечисленных частей.
func K(parts ...any) Key {
	return Key(parts)
}

// Hash возвращает каноническую форму ключа: строковые представления частей,
// соединенные через "-". Ключ из одного значения эквивалентен самому значению.
func (k Key) Hash() string {
	parts := make([]string, len(k))
	for i, p := range k {
		parts[i] = fmt.Sprint(p)
	}
	return strings.Join(parts, "-")
}

// String реализует fmt.Stringer.
func (k Key) String() string {
	return k.Hash()
}

// QueryFunc загружает данные для запроса. Контекст отменяется, когда попытка
// прерывается через CancelQueries или Cleanup; функция должна его учитывать,
// чтобы действительно прекратить работу.
type QueryFunc[T any] func(ctx context.Context) (T, error)

// NetworkMode определяет, при каких условиях запрос может выполняться.
type NetworkMode string

const (
	// NetworkModeOnline разрешает запрос только при доступной сети.
	// Используется по умолчанию.
	NetworkModeOnline NetworkMode = "online"
	// NetworkModeOffline всегда приостанавливает запрос.
	NetworkModeOffline NetworkMode = "offline"
)

// Status описывает основное состояние запроса.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// FetchStatus описывает ортогональное состояние выполнения запроса.
type FetchStatus string

const (
	FetchStatusIdle     FetchStatus = "idle"
	FetchStatusFetching FetchStatus = "fetching"
	FetchStatusPaused   FetchStatus = "paused"
)

// Options описывает запрос: ключ, функцию загрузки и ее настройки.
type Options[T any] struct {
	// Key задает логический идентификатор запроса.
	Key Key
	// Fn загружает данные.
	Fn QueryFunc[T]
	// InitialData, если задано, помещается в только что созданную запись
	// со статусом success.
	InitialData *T
	// PlaceholderData показывается, пока реальные данные еще не получены.
	PlaceholderData *T
	// RefetchInterval включает периодическую перезагрузку; 0 отключает ее.
	RefetchInterval time.Duration
	// NetworkMode управляет приостановкой запроса без сети.
	NetworkMode NetworkMode

	// name заменяет имя Fn в логах и спанах, когда Fn оборачивает
	// пользовательскую функцию.
	name string
}

// State содержит снимок состояния запроса.
type State[T any] struct {
	Data              T
	Error             error
	Status            Status
	IsFetching        bool
	FetchStatus       FetchStatus
	IsPaused          bool
	LastUpdated       time.Time
	IsPlaceholderData bool
}

// options хранит Options без параметра типа; в этом виде запись
// хранит последнюю использованную конфигурацию.
type options struct {
	key             Key
	fnName          string
	fn              func(ctx context.Context) (any, error)
	initialData     any
	hasInitial      bool
	placeholderData any
	hasPlaceholder  bool
	refetchInterval time.Duration
	networkMode     NetworkMode
}

// erase переводит типизированные опции во внутреннее представление.
func (o Options[T]) erase() options {
	fn := o.Fn
	name := o.name
	if name == "" {
		name = funcname.Of(o.Fn)
	}
	erased := options{
		key:    o.Key,
		fnName: name,
		fn: func(ctx context.Context) (any, error) {
			if fn == nil {
				return nil, fmt.Errorf("запрос '%s': функция загрузки не задана", o.Key.Hash())
			}
			return fn(ctx)
		},
		refetchInterval: o.RefetchInterval,
		networkMode:     o.NetworkMode,
	}
	if o.InitialData != nil {
		erased.initialData = *o.InitialData
		erased.hasInitial = true
	}
	if o.PlaceholderData != nil {
		erased.placeholderData = *o.PlaceholderData
		erased.hasPlaceholder = true
	}
	return erased
}

// typed приводит внутренний снимок состояния к типу T.
func typed[T any](s State[any]) State[T] {
	out := State[T]{
		Error:             s.Error,
		Status:            s.Status,
		IsFetching:        s.IsFetching,
		FetchStatus:       s.FetchStatus,
		IsPaused:          s.IsPaused,
		LastUpdated:       s.LastUpdated,
		IsPlaceholderData: s.IsPlaceholderData,
	}
	if v, ok := s.Data.(T); ok {
		out.Data = v
	}
	return out
}
