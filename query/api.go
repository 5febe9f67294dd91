package query

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Fetch загружает данные запроса или присоединяется к уже выполняющейся
// загрузке того же ключа. Все присоединившиеся вызовы получают один и тот
// же результат.
//
// Отмена ctx прекращает только ожидание вызывающей стороны: общая попытка
// продолжает выполняться для остальных участников. Для прерывания самой
// попытки используйте CancelQueries.
func Fetch[T any](ctx context.Context, c *Client, opts Options[T]) (T, error) {
	var zero T

	v, err := c.fetch(ctx, opts.erase(), true)
	if err != nil {
		return zero, err
	}
	return cast[T](opts.Key, v)
}

// FetchAll параллельно загружает несколько запросов. Первая ошибка отменяет
// ожидание остальных и возвращается вызывающей стороне; при успехе
// результаты следуют в порядке opts.
func FetchAll[T any](ctx context.Context, c *Client, opts ...Options[T]) ([]T, error) {
	results := make([]T, len(opts))

	g, gctx := errgroup.WithContext(ctx)
	for i, o := range opts {
		g.Go(func() error {
			v, err := Fetch(gctx, c, o)
			if err != nil {
				return err
			}
			results[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return results, nil
}

// GetQueryData возвращает закешированные данные ключа. Второй результат
// равен false, если записи нет или данные еще не получены.
func GetQueryData[T any](c *Client, key Key) (T, bool) {
	var zero T

	snap, ok := c.snapshot(key.Hash())
	if !ok || snap.state.Data == nil {
		return zero, false
	}
	v, ok := snap.state.Data.(T)
	if !ok {
		return zero, false
	}
	return v, true
}

// SetQueryData записывает данные существующей записи и уведомляет
// подписчиков. Если запись ключа еще не создана, ничего не происходит и
// возвращается false.
func SetQueryData[T any](c *Client, key Key, data T) bool {
	return c.setData(key.Hash(), data)
}

// GetQueryState возвращает снимок состояния ключа.
func GetQueryState[T any](c *Client, key Key) (State[T], bool) {
	snap, ok := c.snapshot(key.Hash())
	if !ok {
		return State[T]{}, false
	}
	return typed[T](snap.state), true
}

// cast приводит результат загрузки к типу T.
func cast[T any](key Key, v any) (T, error) {
	var zero T
	if v == nil {
		return zero, nil
	}
	out, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("запрос '%s': данные типа %T не приводятся к %T", key.Hash(), v, zero)
	}
	return out, nil
}
