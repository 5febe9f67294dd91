package query

import (
	"context"
	"sync/atomic"
)

// cancelToken представляет дескриптор отмены одной попытки загрузки. Функция загрузки
// получает его контекст; отмена кооперативная и лишь сообщает функции, что
// результат больше не нужен.
type cancelToken struct {
	ctx     context.Context
	cancel  context.CancelCauseFunc
	aborted atomic.Bool
}

// newCancelToken создает токен, наследующий значения (например, контекст
// трассировки) от parent, но не его отмену.
func newCancelToken(parent context.Context) *cancelToken {
	ctx, cancel := context.WithCancelCause(context.WithoutCancel(parent))
	return &cancelToken{ctx: ctx, cancel: cancel}
}

// abort прерывает попытку. Повторные вызовы ничего не делают.
func (t *cancelToken) abort() {
	if t.aborted.CompareAndSwap(false, true) {
		t.cancel(ErrCancelled)
	}
}

// isAborted сообщает, была ли попытка прервана.
func (t *cancelToken) isAborted() bool {
	return t.aborted.Load()
}

// release освобождает ресурсы контекста после завершения попытки.
func (t *cancelToken) release() {
	t.cancel(nil)
}
