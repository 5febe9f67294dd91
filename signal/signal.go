// Package signal описывает булевы сигналы окружения: наличие сети и фокус
// окна. Сигнал хранит текущее значение и синхронно оповещает подписчиков
// при каждом его изменении. Подключение к реальным событиям окружения
// выполняется вызывающей стороной через Set.
package signal

import (
	"sync"

	"github.com/x-research-team/dtx-query/notify"
)

// Signal представляет потокобезопасный булев флаг с подписчиками.
type Signal struct {
	// setMu упорядочивает изменения вместе с оповещениями, чтобы
	// последнее полученное подписчиком значение совпадало с IsActive.
	setMu     sync.Mutex
	mu        sync.Mutex
	active    bool
	listeners *notify.Listeners[bool]
}

// New создает сигнал с начальным значением initial.
func New(initial bool) *Signal {
	return &Signal{
		active:    initial,
		listeners: notify.New[bool](),
	}
}

// NewNetwork создает сигнал подключения к сети. По умолчанию сеть доступна.
func NewNetwork() *Signal {
	return New(true)
}

// NewFocus создает сигнал фокуса окна. По умолчанию окно в фокусе.
func NewFocus() *Signal {
	return New(true)
}

// IsActive возвращает текущее значение сигнала.
func (s *Signal) IsActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Subscribe подписывает слушателя на изменения сигнала.
func (s *Signal) Subscribe(listener func(active bool)) (unsubscribe func()) {
	return s.listeners.Subscribe(listener)
}

// Set принудительно устанавливает значение сигнала. Подписчики вызываются
// синхронно и только если значение действительно изменилось. Параллельные
// вызовы Set выполняются по очереди, поэтому подписчик не может вызывать
// Set того же сигнала.
func (s *Signal) Set(active bool) {
	s.setMu.Lock()
	defer s.setMu.Unlock()

	s.mu.Lock()
	if s.active == active {
		s.mu.Unlock()
		return
	}
	s.active = active
	s.mu.Unlock()

	s.listeners.Notify(active)
}
