package query

import (
	"errors"
	"fmt"
)

var (
	// ErrPaused возвращается, когда сетевой режим запрещает выполнение
	// запроса. Ошибка восстановимая: запрос можно повторить после появления сети.
	ErrPaused = errors.New("запрос приостановлен: нет подключения к сети")

	// ErrCancelled возвращается, когда попытка была прервана явной отменой.
	// Отмененные запросы автоматически не повторяются.
	ErrCancelled = errors.New("запрос отменен")

	// ErrNavigation объединяет ошибки навигации по страницам.
	ErrNavigation = errors.New("ошибка навигации по страницам")

	// ErrNoNextPage возвращается, если следующей страницы нет.
	ErrNoNextPage = fmt.Errorf("%w: нет следующей страницы", ErrNavigation)

	// ErrNoPreviousPage возвращается, если предыдущей страницы нет.
	ErrNoPreviousPage = fmt.Errorf("%w: нет предыдущей страницы", ErrNavigation)

	// ErrClientClosed возвращается при обращении к клиенту после Shutdown.
	ErrClientClosed = errors.New("клиент запросов остановлен")
)

// pausedError формирует ошибку приостановки для ключа.
func pausedError(hash string) error {
	return fmt.Errorf("запрос '%s': %w", hash, ErrPaused)
}

// cancelledError формирует ошибку отмены, сохраняя исходную ошибку функции
// загрузки, если она есть.
func cancelledError(hash string, cause error) error {
	if cause == nil {
		return fmt.Errorf("запрос '%s': %w", hash, ErrCancelled)
	}
	return fmt.Errorf("запрос '%s': %w: %w", hash, ErrCancelled, cause)
}
