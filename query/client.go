package query

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/x-research-team/dtx-query/notify"
	"github.com/x-research-team/dtx-query/signal"
)

// record хранит запись кеша: состояние, последние опции и дескриптор отмены
// выполняющейся попытки. Создается лениво при первой загрузке ключа.
type record struct {
	hash        string
	state       State[any]
	opts        options
	token       *cancelToken
	hasRealData bool
}

// stateChange содержит снимок состояния ключа с номером версии. Версии растут
// монотонно в пределах клиента, что позволяет подписчикам отбрасывать
// снимки, доставленные не по порядку.
type stateChange struct {
	version uint64
	state   State[any]
}

// delivery описывает отложенную рассылку снимка вне блокировки клиента.
type delivery struct {
	watchers *notify.Listeners[stateChange]
	change   stateChange
}

func (d delivery) deliver() {
	if d.watchers != nil {
		d.watchers.Notify(d.change)
	}
}

// Client представляет реестр запросов и единственную точку изменения их состояния.
// Клиент явно создается через NewClient и освобождается через Cleanup или
// Shutdown; глобального состояния у пакета нет.
type Client struct {
	mu                   sync.Mutex
	records              map[string]*record
	timers               map[string]*refetchTimer
	inflight             map[*record]struct{}
	watchers             map[string]*notify.Listeners[stateChange]
	version              uint64
	closed               bool
	refetchOnWindowFocus bool

	group             singleflight.Group
	executor          Executor
	fetchingListeners *notify.Listeners[int]
	network           *signal.Signal
	focus             *signal.Signal
	unsubscribeFocus  func()
	logger            *slog.Logger
	errorHandler      ErrorHandler
	background        sync.WaitGroup
}

// NewClient создает новый клиент запросов.
func NewClient(opts ...Option) *Client {
	cfg := &config{
		refetchOnWindowFocus: true,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.network == nil {
		cfg.network = signal.NewNetwork()
	}
	if cfg.focus == nil {
		cfg.focus = signal.NewFocus()
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	// Сначала middleware по умолчанию, затем пользовательские.
	allMiddlewares := []Middleware{
		NewLoggingMiddleware(cfg.logger),
		NewMetricsMiddleware(cfg.meterProvider),
		NewTracingMiddleware(cfg.tracerProvider),
	}
	allMiddlewares = append(allMiddlewares, cfg.middlewares...)

	c := &Client{
		records:              make(map[string]*record),
		timers:               make(map[string]*refetchTimer),
		inflight:             make(map[*record]struct{}),
		watchers:             make(map[string]*notify.Listeners[stateChange]),
		refetchOnWindowFocus: cfg.refetchOnWindowFocus,
		executor:             applyMiddlewares(directExecutor{}, allMiddlewares...),
		fetchingListeners:    notify.New[int](),
		network:              cfg.network,
		focus:                cfg.focus,
		logger:               logger,
		errorHandler:         cfg.errorHandler,
	}
	c.unsubscribeFocus = c.focus.Subscribe(c.onFocusChange)

	return c
}

// fetch является единственной точкой входа, изменяющей состояние запроса.
// reinstall управляет переустановкой интервального таймера; срабатывание
// самого таймера его не переустанавливает.
func (c *Client) fetch(ctx context.Context, opts options, reinstall bool) (any, error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()

	if closed {
		return nil, ErrClientClosed
	}
	return c.do(ctx, opts, reinstall)
}

// do выполняет загрузку без проверки остановки клиента. Используется
// фоновыми загрузками, запущенными до Shutdown: они должны завершиться.
func (c *Client) do(ctx context.Context, opts options, reinstall bool) (any, error) {
	v, _, err := c.attempt(ctx, opts, reinstall)
	return v, err
}

// fetchOwn загружает ключ попыткой с опциями opts. Если для ключа уже
// выполняется попытка, запущенная другим вызовом, fetchOwn дожидается ее
// завершения и запускает новую: результат чужой попытки не возвращается.
func (c *Client) fetchOwn(ctx context.Context, opts options) (any, error) {
	for {
		c.mu.Lock()
		closed := c.closed
		c.mu.Unlock()

		if closed {
			return nil, ErrClientClosed
		}

		v, own, err := c.attempt(ctx, opts, true)
		if own || ctx.Err() != nil {
			return v, err
		}
	}
}

// attempt запускает попытку загрузки или присоединяется к выполняющейся.
// Второй результат сообщает, была ли попытка запущена этим вызовом.
// При reinstall опции становятся последними опциями записи, а
// интервальный таймер переустанавливается.
func (c *Client) attempt(ctx context.Context, opts options, reinstall bool) (any, bool, error) {
	hash := opts.key.Hash()

	c.mu.Lock()
	rec := c.recordLocked(hash, opts)
	if reinstall {
		rec.opts = opts
		if !c.closed {
			c.installTimerLocked(hash, opts)
		}
	}
	c.mu.Unlock()

	// Параллельные вызовы для одного ключа разделяют одну попытку.
	// own записывается до отправки результата в канал.
	var own bool
	ch := c.group.DoChan(hash, func() (any, error) {
		own = true
		return c.run(ctx, hash, opts)
	})

	select {
	case res := <-ch:
		return res.Val, own, res.Err
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

// run выполняет одну попытку загрузки ключа hash.
func (c *Client) run(ctx context.Context, hash string, opts options) (any, error) {
	c.mu.Lock()
	rec := c.recordLocked(hash, opts)
	rec.opts = opts

	if c.shouldPauseLocked(opts.networkMode) {
		rec.state.FetchStatus = FetchStatusPaused
		rec.state.IsPaused = true
		d := c.changeLocked(rec)
		c.mu.Unlock()

		d.deliver()
		return nil, pausedError(hash)
	}

	if opts.hasPlaceholder && !rec.hasRealData {
		rec.state.Data = opts.placeholderData
		rec.state.IsPlaceholderData = true
	}

	token := newCancelToken(ctx)
	rec.token = token
	rec.state.Status = StatusLoading
	rec.state.IsFetching = true
	rec.state.FetchStatus = FetchStatusFetching
	rec.state.IsPaused = false
	c.inflight[rec] = struct{}{}
	count := len(c.inflight)
	d := c.changeLocked(rec)
	c.mu.Unlock()

	d.deliver()
	c.fetchingListeners.Notify(count)

	data, err := c.executor.Execute(token.ctx, Call{Key: opts.key, Name: opts.fnName, Fn: opts.fn})
	aborted := token.isAborted()
	token.release()

	c.mu.Lock()
	if aborted {
		err = cancelledError(hash, err)
	}
	// Запись могла быть заменена инвалидацией, пока попытка выполнялась.
	// Результат такой попытки получают только ее участники.
	current := c.records[hash] == rec
	if err == nil {
		rec.state = State[any]{
			Data:        data,
			Status:      StatusSuccess,
			FetchStatus: FetchStatusIdle,
			LastUpdated: time.Now(),
		}
		rec.hasRealData = true
	} else {
		rec.state.Error = err
		rec.state.Status = StatusError
		rec.state.FetchStatus = FetchStatusIdle
		rec.state.IsFetching = false
		if rec.state.IsPlaceholderData {
			rec.state.Data = nil
			rec.state.IsPlaceholderData = false
		}
	}
	if rec.token == token {
		rec.token = nil
	}
	delete(c.inflight, rec)
	count = len(c.inflight)
	d = delivery{}
	if current {
		d = c.changeLocked(rec)
	}
	c.mu.Unlock()

	d.deliver()
	c.fetchingListeners.Notify(count)

	if err != nil {
		return nil, err
	}
	return data, nil
}

// recordLocked возвращает запись ключа, создавая ее при необходимости.
func (c *Client) recordLocked(hash string, opts options) *record {
	if rec, ok := c.records[hash]; ok {
		return rec
	}

	rec := &record{
		hash: hash,
		opts: opts,
		state: State[any]{
			Status:      StatusIdle,
			FetchStatus: FetchStatusIdle,
		},
	}
	if opts.hasInitial {
		rec.state.Data = opts.initialData
		rec.state.Status = StatusSuccess
		rec.state.LastUpdated = time.Now()
		rec.hasRealData = true
	}
	c.records[hash] = rec
	return rec
}

// shouldPauseLocked решает, может ли запрос выполняться при текущем
// состоянии сети.
func (c *Client) shouldPauseLocked(mode NetworkMode) bool {
	if mode == NetworkModeOffline {
		return true
	}
	return !c.network.IsActive()
}

// changeLocked фиксирует новую версию состояния записи для рассылки.
func (c *Client) changeLocked(rec *record) delivery {
	c.version++
	return delivery{
		watchers: c.watchers[rec.hash],
		change:   stateChange{version: c.version, state: rec.state},
	}
}

// installTimerLocked заменяет интервальный таймер ключа.
func (c *Client) installTimerLocked(hash string, opts options) {
	if old, ok := c.timers[hash]; ok {
		old.stop()
		delete(c.timers, hash)
	}
	if opts.refetchInterval <= 0 {
		return
	}

	t := newRefetchTimer(hash, opts.refetchInterval)
	c.timers[hash] = t
	t.start(c.onTick)
}

// onTick перезагружает ключ по таймеру, если загрузка еще не выполняется.
func (c *Client) onTick(t *refetchTimer) {
	c.mu.Lock()
	if c.closed || t.stopped || c.timers[t.hash] != t {
		c.mu.Unlock()
		return
	}
	rec, ok := c.records[t.hash]
	if !ok || rec.state.IsFetching {
		c.mu.Unlock()
		return
	}
	opts := rec.opts
	c.background.Add(1)
	c.mu.Unlock()

	defer c.background.Done()
	if _, err := c.do(context.Background(), opts, false); err != nil {
		c.report(opts.key, "interval", err)
	}
}

// onFocusChange перезагружает успешные запросы при возврате фокуса.
func (c *Client) onFocusChange(focused bool) {
	if !focused {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.refetchOnWindowFocus {
		return
	}
	for _, rec := range c.records {
		if rec.state.Status == StatusSuccess {
			c.spawnLocked(rec.opts, "focus")
		}
	}
}

// spawnLocked запускает фоновую загрузку, ошибки которой только
// логируются и передаются обработчику ошибок.
func (c *Client) spawnLocked(opts options, reason string) {
	if c.closed {
		return
	}

	c.background.Add(1)
	go func() {
		defer c.background.Done()
		if _, err := c.do(context.Background(), opts, true); err != nil {
			c.report(opts.key, reason, err)
		}
	}()
}

// report передает ошибку фоновой загрузки в лог и обработчик ошибок.
func (c *Client) report(key Key, reason string, err error) {
	level := slog.LevelError
	if errors.Is(err, ErrPaused) || errors.Is(err, ErrClientClosed) {
		level = slog.LevelWarn
	}
	c.logger.Log(context.Background(), level, "ошибка фоновой загрузки запроса",
		slog.String("query_key", key.Hash()),
		slog.String("reason", reason),
		slog.Any("error", err),
	)

	if c.errorHandler != nil {
		c.errorHandler(key, err)
	}
}

// snapshot возвращает текущий снимок состояния ключа.
func (c *Client) snapshot(hash string) (stateChange, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.records[hash]
	if !ok {
		return stateChange{}, false
	}
	return stateChange{version: c.version, state: rec.state}, true
}

// watch подписывает функцию на изменения состояния ключа hash.
// Подписка переживает инвалидацию ключа.
func (c *Client) watch(hash string, fn func(stateChange)) (unsubscribe func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	w, ok := c.watchers[hash]
	if !ok {
		w = notify.New[stateChange]()
		c.watchers[hash] = w
	}
	unsub := w.Subscribe(fn)

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()

		unsub()
		if w.Len() == 0 && c.watchers[hash] == w {
			delete(c.watchers, hash)
		}
	}
}

// setData записывает данные ключа напрямую, минуя функцию загрузки.
func (c *Client) setData(hash string, data any) bool {
	c.mu.Lock()
	rec, ok := c.records[hash]
	if !ok {
		c.mu.Unlock()
		return false
	}
	rec.state.Data = data
	rec.state.LastUpdated = time.Now()
	rec.state.IsPlaceholderData = false
	rec.hasRealData = true
	d := c.changeLocked(rec)
	c.mu.Unlock()

	d.deliver()
	return true
}

// InvalidateQueries удаляет запись ключа вместе с ее таймером и сразу
// запускает повторную загрузку с последними опциями. Ошибки повторной
// загрузки не возвращаются вызывающей стороне, а передаются в лог и
// обработчик ошибок.
func (c *Client) InvalidateQueries(key Key) {
	hash := key.Hash()

	c.mu.Lock()
	rec, ok := c.records[hash]
	if !ok || c.closed {
		c.mu.Unlock()
		return
	}

	delete(c.records, hash)
	if t, ok := c.timers[hash]; ok {
		t.stop()
		delete(c.timers, hash)
	}
	// Новая загрузка не должна присоединяться к попытке удаленной записи.
	c.group.Forget(hash)

	fresh := c.recordLocked(hash, rec.opts)
	d := c.changeLocked(fresh)
	c.spawnLocked(rec.opts, "invalidate")
	c.mu.Unlock()

	d.deliver()
}

// CancelQueries прерывает выполняющуюся попытку ключа, если она есть.
// Закешированные данные не удаляются; попытка завершится ошибкой ErrCancelled.
func (c *Client) CancelQueries(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.records[key.Hash()]
	if !ok || rec.token == nil {
		return
	}
	rec.token.abort()
	rec.token = nil
}

// SubscribeToFetchingCount подписывает слушателя на количество
// выполняющихся загрузок. Слушатель сразу получает текущее значение.
func (c *Client) SubscribeToFetchingCount(listener func(count int)) (unsubscribe func()) {
	unsubscribe = c.fetchingListeners.Subscribe(listener)
	listener(c.FetchingCount())
	return unsubscribe
}

// FetchingCount возвращает количество выполняющихся загрузок.
func (c *Client) FetchingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.inflight)
}

// SetWindowFocused передает клиенту состояние фокуса окна.
func (c *Client) SetWindowFocused(focused bool) {
	c.focus.Set(focused)
}

// SetNetworkOnline передает клиенту состояние подключения к сети.
// Переход в онлайн не перезагружает приостановленные запросы.
func (c *Client) SetNetworkOnline(online bool) {
	c.network.Set(online)
}

// SetRefetchOnWindowFocus включает или отключает перезагрузку при
// возврате фокуса.
func (c *Client) SetRefetchOnWindowFocus(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refetchOnWindowFocus = enabled
}

// Cleanup останавливает все интервальные таймеры и прерывает все
// выполняющиеся попытки. Кеш при этом сохраняется, клиент остается рабочим.
func (c *Client) Cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for hash, t := range c.timers {
		t.stop()
		delete(c.timers, hash)
	}
	for rec := range c.inflight {
		if rec.token != nil {
			rec.token.abort()
			rec.token = nil
		}
	}
}

// Shutdown корректно завершает работу клиента: выполняет Cleanup,
// отписывается от сигнала фокуса и ожидает завершения фоновых загрузок.
// После Shutdown загрузки завершаются ошибкой ErrClientClosed.
func (c *Client) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.Cleanup()
	c.unsubscribeFocus()

	done := make(chan struct{})
	go func() {
		c.background.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
