package query

import (
	"context"
	"sync"

	"github.com/x-research-team/dtx-query/notify"
)

// Observer представляет один ключ для подписчиков. Наблюдатель хранит
// собственную копию состояния, зеркалируя запись клиента, и рассылает ее
// своим подписчикам. Решения о подстановке placeholder-данных принимает
// только клиент.
type Observer[T any] struct {
	client    *Client
	opts      Options[T]
	hash      string
	listeners *notify.Listeners[State[T]]
	unwatch   func()
	closeOnce sync.Once

	mu      sync.Mutex
	state   State[T]
	version uint64
}

// NewObserver создает наблюдателя ключа opts.Key. Загрузка не запускается,
// пока не вызван Fetch. После использования наблюдатель следует закрыть.
func NewObserver[T any](c *Client, opts Options[T]) *Observer[T] {
	o := &Observer[T]{
		client:    c,
		opts:      opts,
		hash:      opts.Key.Hash(),
		listeners: notify.New[State[T]](),
		state: State[T]{
			Status:      StatusIdle,
			FetchStatus: FetchStatusIdle,
		},
	}
	o.unwatch = c.watch(o.hash, o.apply)
	if snap, ok := c.snapshot(o.hash); ok {
		o.apply(snap)
	}
	return o
}

// Fetch загружает данные через клиент и синхронизирует состояние
// наблюдателя с результатом.
func (o *Observer[T]) Fetch(ctx context.Context) (T, error) {
	data, err := Fetch(ctx, o.client, o.opts)
	if snap, ok := o.client.snapshot(o.hash); ok {
		o.apply(snap)
	}
	return data, err
}

// Subscribe подписывает слушателя на изменения состояния ключа.
func (o *Observer[T]) Subscribe(listener func(State[T])) (unsubscribe func()) {
	return o.listeners.Subscribe(listener)
}

// State возвращает текущий снимок состояния наблюдателя.
func (o *Observer[T]) State() State[T] {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Close отписывает наблюдателя от клиента и удаляет его подписчиков.
func (o *Observer[T]) Close() {
	o.closeOnce.Do(func() {
		o.unwatch()
		o.listeners.Clear()
	})
}

// apply принимает снимок клиента, отбрасывая устаревшие и повторные.
func (o *Observer[T]) apply(change stateChange) {
	o.mu.Lock()
	if o.version != 0 && change.version <= o.version {
		o.mu.Unlock()
		return
	}
	o.version = change.version
	o.state = typed[T](change.state)
	state := o.state
	o.mu.Unlock()

	o.listeners.Notify(state)
}
