package query

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/x-research-team/dtx-query/internal/funcname"
)

// Page содержит постраничный результат. Страницы нумеруются с 1; нулевые
// PreviousPage и NextPage означают, что такой страницы нет.
type Page[T any] struct {
	Items        []T
	CurrentPage  int
	PreviousPage int
	NextPage     int
	TotalPages   int
}

// HasNext сообщает, есть ли следующая страница.
func (p Page[T]) HasNext() bool { return p.NextPage > 0 }

// HasPrevious сообщает, есть ли предыдущая страница.
func (p Page[T]) HasPrevious() bool { return p.PreviousPage > 0 }

// PageFunc загружает страницу page размером pageSize.
type PageFunc[T any] func(ctx context.Context, page, pageSize int) (Page[T], error)

// PaginatedOptions описывает постраничный запрос.
type PaginatedOptions[T any] struct {
	// Key задает запись, в которой хранится текущая страница.
	Key Key
	// Fn загружает страницу.
	Fn PageFunc[T]
	// Page задает начальную страницу; по умолчанию 1.
	Page int
	// PageSize передается в Fn без изменений.
	PageSize int
	// KeepPreviousData оставляет предыдущую страницу доступной через Data,
	// пока загружается новая.
	KeepPreviousData bool
	RefetchInterval  time.Duration
	NetworkMode      NetworkMode
}

// Paginated управляет постраничным запросом поверх одной записи клиента.
// Закешированное значение записи и есть текущая страница.
type Paginated[T any] struct {
	client *Client
	opts   PaginatedOptions[T]

	mu         sync.Mutex
	page       int
	navigating bool
}

// NewPaginated создает контроллер постраничного запроса.
func NewPaginated[T any](c *Client, opts PaginatedOptions[T]) *Paginated[T] {
	page := opts.Page
	if page <= 0 {
		page = 1
	}
	return &Paginated[T]{
		client: c,
		opts:   opts,
		page:   page,
	}
}

// Fetch загружает текущую страницу.
func (p *Paginated[T]) Fetch(ctx context.Context) (Page[T], error) {
	p.mu.Lock()
	page := p.page
	p.mu.Unlock()

	return p.load(ctx, page)
}

// FetchNextPage переходит на следующую страницу последнего результата.
// Если ее нет, возвращает ErrNoNextPage, не вызывая функцию загрузки.
func (p *Paginated[T]) FetchNextPage(ctx context.Context) (Page[T], error) {
	current, ok := GetQueryData[Page[T]](p.client, p.opts.Key)
	if !ok || !current.HasNext() {
		return Page[T]{}, fmt.Errorf("запрос '%s': %w", p.opts.Key.Hash(), ErrNoNextPage)
	}
	return p.navigate(ctx, current.NextPage)
}

// FetchPreviousPage переходит на предыдущую страницу последнего результата.
// Если ее нет, возвращает ErrNoPreviousPage, не вызывая функцию загрузки.
func (p *Paginated[T]) FetchPreviousPage(ctx context.Context) (Page[T], error) {
	current, ok := GetQueryData[Page[T]](p.client, p.opts.Key)
	if !ok || !current.HasPrevious() {
		return Page[T]{}, fmt.Errorf("запрос '%s': %w", p.opts.Key.Hash(), ErrNoPreviousPage)
	}
	return p.navigate(ctx, current.PreviousPage)
}

// Status возвращает статус записи страницы.
func (p *Paginated[T]) Status() Status {
	state, ok := GetQueryState[Page[T]](p.client, p.opts.Key)
	if !ok {
		return StatusIdle
	}
	return state.Status
}

// Data возвращает текущую страницу. Без KeepPreviousData страница
// недоступна, пока выполняется переход.
func (p *Paginated[T]) Data() (Page[T], bool) {
	p.mu.Lock()
	hidden := p.navigating && !p.opts.KeepPreviousData
	p.mu.Unlock()

	if hidden {
		return Page[T]{}, false
	}
	return GetQueryData[Page[T]](p.client, p.opts.Key)
}

// Err возвращает ошибку последней загрузки.
func (p *Paginated[T]) Err() error {
	state, ok := GetQueryState[Page[T]](p.client, p.opts.Key)
	if !ok {
		return nil
	}
	return state.Error
}

// TotalPages возвращает количество страниц из последнего результата.
func (p *Paginated[T]) TotalPages() int {
	current, ok := GetQueryData[Page[T]](p.client, p.opts.Key)
	if !ok {
		return 0
	}
	return current.TotalPages
}

// CurrentPage возвращает номер страницы, к которой привязан контроллер.
func (p *Paginated[T]) CurrentPage() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.page
}

// navigate переводит контроллер на страницу page. Загрузка страницы всегда
// выполняется собственной попыткой: если для ключа уже выполняется
// загрузка другой страницы, navigate дожидается ее и загружает page.
func (p *Paginated[T]) navigate(ctx context.Context, page int) (Page[T], error) {
	p.mu.Lock()
	p.page = page
	p.navigating = true
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.navigating = false
		p.mu.Unlock()
	}()

	v, err := p.client.fetchOwn(ctx, p.options(page).erase())
	if err != nil {
		return Page[T]{}, err
	}
	return cast[Page[T]](p.opts.Key, v)
}

func (p *Paginated[T]) load(ctx context.Context, page int) (Page[T], error) {
	return Fetch(ctx, p.client, p.options(page))
}

// options описывает загрузку страницы page как обычный запрос клиента.
func (p *Paginated[T]) options(page int) Options[Page[T]] {
	fn := p.opts.Fn
	size := p.opts.PageSize

	return Options[Page[T]]{
		Key: p.opts.Key,
		Fn: func(ctx context.Context) (Page[T], error) {
			if fn == nil {
				return Page[T]{}, fmt.Errorf("запрос '%s': функция загрузки страницы не задана", p.opts.Key.Hash())
			}
			result, err := fn(ctx, page, size)
			if err != nil {
				return Page[T]{}, err
			}
			if result.CurrentPage == 0 {
				result.CurrentPage = page
			}
			return result, nil
		},
		RefetchInterval: p.opts.RefetchInterval,
		NetworkMode:     p.opts.NetworkMode,
		name:            funcname.Of(fn),
	}
}
