package query

import (
	"time"
)

// refetchTimer представляет фоновый процесс периодической перезагрузки одного ключа.
// На каждый ключ существует не более одного активного таймера.
type refetchTimer struct {
	hash     string
	interval time.Duration
	ticker   *time.Ticker
	done     chan struct{}
	stopped  bool
}

// newRefetchTimer создает таймер для ключа hash.
func newRefetchTimer(hash string, interval time.Duration) *refetchTimer {
	return &refetchTimer{
		hash:     hash,
		interval: interval,
		done:     make(chan struct{}),
	}
}

// start запускает фоновый процесс; tick вызывается на каждое срабатывание
// до остановки таймера.
func (t *refetchTimer) start(tick func(t *refetchTimer)) {
	t.ticker = time.NewTicker(t.interval)
	go func() {
		for {
			select {
			case <-t.ticker.C:
				tick(t)
			case <-t.done:
				return
			}
		}
	}()
}

// stop останавливает таймер. Вызывается под блокировкой клиента, поэтому
// повторный вызов безопасен.
func (t *refetchTimer) stop() {
	if t.stopped {
		return
	}
	t.stopped = true
	if t.ticker != nil {
		t.ticker.Stop()
	}
	close(t.done)
}
