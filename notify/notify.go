// Package notify реализует простой список слушателей с синхронной доставкой.
// Используется всеми компонентами, которые публикуют изменения состояния:
// сигналами сети и фокуса, клиентом запросов, наблюдателями и мутациями.
package notify

import (
	"sync"

	"github.com/google/uuid"
)

// Listener получает очередное значение.
type Listener[T any] func(value T)

// subscription представляет собой одну подписку на список слушателей.
type subscription[T any] struct {
	// id содержит уникальный идентификатор подписки (UUID), по которому
	// выполняется отписка.
	id       string
	listener Listener[T]
}

// Listeners хранит потокобезопасное отображение идентификатора подписки на
// функцию-обработчик. Порядок доставки не гарантируется.
type Listeners[T any] struct {
	mu   sync.RWMutex
	subs map[string]*subscription[T]
}

// New создает пустой список слушателей.
func New[T any]() *Listeners[T] {
	return &Listeners[T]{
		subs: make(map[string]*subscription[T]),
	}
}

// Subscribe добавляет слушателя и возвращает функцию для отписки.
// Повторный вызов функции отписки ничего не делает.
func (l *Listeners[T]) Subscribe(listener Listener[T]) (unsubscribe func()) {
	l.mu.Lock()
	defer l.mu.Unlock()

	sub := &subscription[T]{
		id:       uuid.NewString(),
		listener: listener,
	}
	l.subs[sub.id] = sub

	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.subs, sub.id)
	}
}

// Notify синхронно вызывает всех слушателей, подписанных на момент начала
// рассылки. Слушатель, добавленный во время рассылки, в ней не участвует,
// а отписанный во время рассылки больше не вызывается. Вызовы выполняются
// вне внутренней блокировки, поэтому слушатель может подписываться,
// отписываться и вызывать Notify повторно.
func (l *Listeners[T]) Notify(value T) {
	l.mu.RLock()
	snapshot := make([]*subscription[T], 0, len(l.subs))
	for _, sub := range l.subs {
		snapshot = append(snapshot, sub)
	}
	l.mu.RUnlock()

	for _, sub := range snapshot {
		if !l.active(sub.id) {
			continue
		}
		sub.listener(value)
	}
}

// Len возвращает текущее количество подписок.
func (l *Listeners[T]) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.subs)
}

// Clear удаляет все подписки.
func (l *Listeners[T]) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.subs = make(map[string]*subscription[T])
}

// active сообщает, не была ли подписка удалена во время рассылки.
func (l *Listeners[T]) active(id string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.subs[id]
	return ok
}
