package query_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/x-research-team/dtx-query/query"
)

type todo struct {
	ID    int
	Title string
}

var errUpstream = errors.New("сервер недоступен")

// Функция загрузки, возвращающая заданные данные и считающая вызовы.
func countingFn[T any](calls *atomic.Int32, data T) query.QueryFunc[T] {
	return func(context.Context) (T, error) {
		calls.Add(1)
		return data, nil
	}
}

// Тест дедупликации: два параллельных вызова получают один и тот же
// результат при единственном вызове функции загрузки.
func TestClient_Fetch_Dedup(t *testing.T) {
	t.Parallel()

	client := query.NewClient()
	defer client.Cleanup()

	var calls atomic.Int32
	release := make(chan struct{})
	list := &[]todo{{ID: 1, Title: "купить хлеб"}}

	opts := query.Options[*[]todo]{
		Key: query.K("todos"),
		Fn: func(ctx context.Context) (*[]todo, error) {
			calls.Add(1)
			<-release
			return list, nil
		},
	}

	var wg sync.WaitGroup
	results := make([]*[]todo, 2)
	errs := make([]error, 2)
	for i := range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = query.Fetch(context.Background(), client, opts)
		}()
	}

	// Ждем, пока первая попытка начнется, и даем второму вызову присоединиться.
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, int32(1), calls.Load(), "функция загрузки должна быть вызвана один раз")
	assert.Same(t, results[0], results[1], "оба вызова должны получить один и тот же экземпляр")
	assert.Same(t, list, results[0])
}

// Тест: ошибка загрузки сохраняет ранее полученные данные.
func TestClient_Fetch_ErrorKeepsData(t *testing.T) {
	t.Parallel()

	client := query.NewClient()
	defer client.Cleanup()

	key := query.K("todos", 1)
	_, err := query.Fetch(context.Background(), client, query.Options[string]{
		Key: key,
		Fn:  func(context.Context) (string, error) { return "данные", nil },
	})
	require.NoError(t, err)

	_, err = query.Fetch(context.Background(), client, query.Options[string]{
		Key: key,
		Fn:  func(context.Context) (string, error) { return "", errUpstream },
	})
	require.ErrorIs(t, err, errUpstream, "ошибка функции загрузки должна возвращаться без изменений")

	data, ok := query.GetQueryData[string](client, key)
	require.True(t, ok)
	assert.Equal(t, "данные", data, "данные предыдущей загрузки должны сохраниться")

	state, ok := query.GetQueryState[string](client, key)
	require.True(t, ok)
	assert.Equal(t, query.StatusError, state.Status)
	assert.Equal(t, query.FetchStatusIdle, state.FetchStatus)
	assert.False(t, state.IsFetching)
	assert.ErrorIs(t, state.Error, errUpstream)
}

// Тест успешной загрузки: состояние переходит в success.
func TestClient_Fetch_SuccessState(t *testing.T) {
	t.Parallel()

	client := query.NewClient()
	defer client.Cleanup()

	before := time.Now()
	data, err := query.Fetch(context.Background(), client, query.Options[[]todo]{
		Key: query.K("todos"),
		Fn: func(context.Context) ([]todo, error) {
			return []todo{{ID: 1, Title: "помыть посуду"}}, nil
		},
	})
	require.NoError(t, err)
	require.Len(t, data, 1)

	state, ok := query.GetQueryState[[]todo](client, query.K("todos"))
	require.True(t, ok)
	assert.Equal(t, query.StatusSuccess, state.Status)
	assert.Equal(t, query.FetchStatusIdle, state.FetchStatus)
	assert.False(t, state.IsFetching)
	assert.NoError(t, state.Error)
	assert.False(t, state.LastUpdated.Before(before))
	assert.Equal(t, data, state.Data)
}

// Тест инвалидации: запись пересоздается и загружается заново.
func TestClient_InvalidateQueries(t *testing.T) {
	t.Parallel()

	client := query.NewClient()
	defer client.Cleanup()

	var calls atomic.Int32
	key := query.K("todos")
	_, err := query.Fetch(context.Background(), client, query.Options[int]{
		Key: key,
		Fn: func(context.Context) (int, error) {
			return int(calls.Add(1)), nil
		},
	})
	require.NoError(t, err)

	first, ok := query.GetQueryState[int](client, key)
	require.True(t, ok)

	time.Sleep(2 * time.Millisecond)
	client.InvalidateQueries(key)

	require.Eventually(t, func() bool {
		state, ok := query.GetQueryState[int](client, key)
		return ok && state.Status == query.StatusSuccess && state.Data == 2
	}, time.Second, time.Millisecond, "после инвалидации запрос должен загрузиться повторно")

	second, _ := query.GetQueryState[int](client, key)
	assert.True(t, second.LastUpdated.After(first.LastUpdated), "время обновления должно увеличиться")
	assert.Equal(t, int32(2), calls.Load())
}

// Тест: инвалидация неизвестного ключа ничего не делает.
func TestClient_InvalidateQueries_UnknownKey(t *testing.T) {
	t.Parallel()

	client := query.NewClient()
	defer client.Cleanup()

	client.InvalidateQueries(query.K("unknown"))

	_, ok := query.GetQueryState[int](client, query.K("unknown"))
	assert.False(t, ok)
}

// Тест: ошибка повторной загрузки после инвалидации не теряется, а попадает
// в обработчик ошибок и состояние записи.
func TestClient_InvalidateQueries_ErrorHandler(t *testing.T) {
	t.Parallel()

	var (
		mu       sync.Mutex
		reported []error
	)
	client := query.NewClient(query.WithErrorHandler(func(_ query.Key, err error) {
		mu.Lock()
		defer mu.Unlock()
		reported = append(reported, err)
	}))
	defer client.Cleanup()

	var calls atomic.Int32
	key := query.K("todos")
	_, err := query.Fetch(context.Background(), client, query.Options[int]{
		Key: key,
		Fn: func(context.Context) (int, error) {
			if calls.Add(1) > 1 {
				return 0, errUpstream
			}
			return 1, nil
		},
	})
	require.NoError(t, err)

	client.InvalidateQueries(key)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(reported) == 1
	}, time.Second, time.Millisecond)

	mu.Lock()
	assert.ErrorIs(t, reported[0], errUpstream)
	mu.Unlock()

	state, ok := query.GetQueryState[int](client, key)
	require.True(t, ok)
	assert.Equal(t, query.StatusError, state.Status)
}

func TestClient_NetworkMode(t *testing.T) {
	t.Parallel()

	t.Run("offline всегда приостанавливает запрос", func(t *testing.T) {
		t.Parallel()

		client := query.NewClient()
		defer client.Cleanup()

		var calls atomic.Int32
		_, err := query.Fetch(context.Background(), client, query.Options[int]{
			Key:         query.K("offline"),
			Fn:          countingFn(&calls, 1),
			NetworkMode: query.NetworkModeOffline,
		})

		require.ErrorIs(t, err, query.ErrPaused)
		assert.Zero(t, calls.Load(), "приостановленный запрос не должен вызывать функцию загрузки")

		state, ok := query.GetQueryState[int](client, query.K("offline"))
		require.True(t, ok)
		assert.Equal(t, query.FetchStatusPaused, state.FetchStatus)
		assert.True(t, state.IsPaused)
		assert.Equal(t, query.StatusIdle, state.Status)
	})

	t.Run("online без сети приостанавливает запрос", func(t *testing.T) {
		t.Parallel()

		client := query.NewClient()
		defer client.Cleanup()
		client.SetNetworkOnline(false)

		var calls atomic.Int32
		_, err := query.Fetch(context.Background(), client, query.Options[int]{
			Key: query.K("online"),
			Fn:  countingFn(&calls, 1),
		})

		require.ErrorIs(t, err, query.ErrPaused)
		assert.Zero(t, calls.Load())

		// Появление сети само по себе не перезапускает запрос.
		client.SetNetworkOnline(true)
		time.Sleep(20 * time.Millisecond)
		assert.Zero(t, calls.Load())

		data, err := query.Fetch(context.Background(), client, query.Options[int]{
			Key: query.K("online"),
			Fn:  countingFn(&calls, 1),
		})
		require.NoError(t, err)
		assert.Equal(t, 1, data)

		state, _ := query.GetQueryState[int](client, query.K("online"))
		assert.False(t, state.IsPaused)
		assert.Equal(t, query.FetchStatusIdle, state.FetchStatus)
	})
}

// Тест: при возврате фокуса перезагружаются только успешные запросы.
func TestClient_FocusRefetch(t *testing.T) {
	t.Parallel()

	client := query.NewClient()

	var okCalls, failCalls, pausedCalls atomic.Int32
	_, err := query.Fetch(context.Background(), client, query.Options[int]{
		Key: query.K("ok"),
		Fn:  countingFn(&okCalls, 1),
	})
	require.NoError(t, err)

	_, err = query.Fetch(context.Background(), client, query.Options[int]{
		Key: query.K("fail"),
		Fn: func(context.Context) (int, error) {
			failCalls.Add(1)
			return 0, errUpstream
		},
	})
	require.Error(t, err)

	_, err = query.Fetch(context.Background(), client, query.Options[int]{
		Key:         query.K("paused"),
		Fn:          countingFn(&pausedCalls, 1),
		NetworkMode: query.NetworkModeOffline,
	})
	require.ErrorIs(t, err, query.ErrPaused)

	client.SetWindowFocused(false)
	client.SetWindowFocused(true)

	// Shutdown дожидается всех фоновых загрузок.
	require.NoError(t, client.Shutdown(context.Background()))

	assert.Equal(t, int32(2), okCalls.Load(), "успешный запрос должен перезагрузиться")
	assert.Equal(t, int32(1), failCalls.Load(), "запрос с ошибкой не должен перезагружаться")
	assert.Zero(t, pausedCalls.Load(), "запрос в статусе idle не должен перезагружаться")
}

// Тест: перезагрузку по фокусу можно отключить.
func TestClient_FocusRefetch_Disabled(t *testing.T) {
	t.Parallel()

	client := query.NewClient(query.WithRefetchOnWindowFocus(false))

	var calls atomic.Int32
	_, err := query.Fetch(context.Background(), client, query.Options[int]{
		Key: query.K("ok"),
		Fn:  countingFn(&calls, 1),
	})
	require.NoError(t, err)

	client.SetWindowFocused(false)
	client.SetWindowFocused(true)
	require.NoError(t, client.Shutdown(context.Background()))
	assert.Equal(t, int32(1), calls.Load())

	client = query.NewClient()
	client.SetRefetchOnWindowFocus(false)
	_, err = query.Fetch(context.Background(), client, query.Options[int]{
		Key: query.K("ok"),
		Fn:  countingFn(&calls, 1),
	})
	require.NoError(t, err)

	client.SetWindowFocused(false)
	client.SetWindowFocused(true)
	require.NoError(t, client.Shutdown(context.Background()))
	assert.Equal(t, int32(2), calls.Load())
}

// Тест отмены: попытка завершается ErrCancelled, данные сохраняются.
func TestClient_CancelQueries(t *testing.T) {
	t.Parallel()

	client := query.NewClient()
	defer client.Cleanup()

	key := query.K("todos")
	_, err := query.Fetch(context.Background(), client, query.Options[string]{
		Key: key,
		Fn:  func(context.Context) (string, error) { return "старые данные", nil },
	})
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		_, err := query.Fetch(context.Background(), client, query.Options[string]{
			Key: key,
			Fn: func(ctx context.Context) (string, error) {
				<-ctx.Done()
				return "", ctx.Err()
			},
		})
		errCh <- err
	}()

	require.Eventually(t, func() bool { return client.FetchingCount() == 1 }, time.Second, time.Millisecond)
	client.CancelQueries(key)

	select {
	case err = <-errCh:
	case <-time.After(time.Second):
		t.Fatal("отмененная попытка не завершилась")
	}

	require.ErrorIs(t, err, query.ErrCancelled)
	assert.ErrorIs(t, err, context.Canceled, "исходная ошибка функции загрузки должна сохраниться")

	data, ok := query.GetQueryData[string](client, key)
	require.True(t, ok)
	assert.Equal(t, "старые данные", data)

	state, _ := query.GetQueryState[string](client, key)
	assert.Equal(t, query.StatusError, state.Status)
	assert.Zero(t, client.FetchingCount())
}

// Тест: попытка, проигнорировавшая отмену, все равно считается отмененной.
func TestClient_CancelQueries_IgnoredByFn(t *testing.T) {
	t.Parallel()

	client := query.NewClient()
	defer client.Cleanup()

	key := query.K("stubborn")
	release := make(chan struct{})
	errCh := make(chan error, 1)
	go func() {
		_, err := query.Fetch(context.Background(), client, query.Options[int]{
			Key: key,
			Fn: func(context.Context) (int, error) {
				<-release
				return 42, nil
			},
		})
		errCh <- err
	}()

	require.Eventually(t, func() bool { return client.FetchingCount() == 1 }, time.Second, time.Millisecond)
	client.CancelQueries(key)
	close(release)

	err := <-errCh
	require.ErrorIs(t, err, query.ErrCancelled)

	_, ok := query.GetQueryData[int](client, key)
	assert.False(t, ok, "результат отмененной попытки не должен попасть в кеш")
}

// Тест: отмена контекста вызывающей стороны не прерывает общую попытку.
func TestClient_Fetch_CallerContext(t *testing.T) {
	t.Parallel()

	client := query.NewClient()
	defer client.Cleanup()

	release := make(chan struct{})
	var calls atomic.Int32
	opts := query.Options[int]{
		Key: query.K("slow"),
		Fn: func(context.Context) (int, error) {
			calls.Add(1)
			<-release
			return 7, nil
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := query.Fetch(ctx, client, opts)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, client.FetchingCount(), "попытка должна продолжать выполняться")

	done := make(chan int, 1)
	go func() {
		v, _ := query.Fetch(context.Background(), client, opts)
		done <- v
	}()
	time.Sleep(20 * time.Millisecond)
	close(release)

	assert.Equal(t, 7, <-done)
	assert.Equal(t, int32(1), calls.Load())
}

// Тест интервальной перезагрузки и ее остановки через Cleanup.
func TestClient_RefetchInterval(t *testing.T) {
	t.Parallel()

	client := query.NewClient()

	var calls atomic.Int32
	_, err := query.Fetch(context.Background(), client, query.Options[int]{
		Key:             query.K("ticker"),
		Fn:              countingFn(&calls, 1),
		RefetchInterval: 10 * time.Millisecond,
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return calls.Load() >= 3 }, time.Second, time.Millisecond,
		"запрос должен перезагружаться по интервалу")

	client.Cleanup()
	time.Sleep(20 * time.Millisecond)
	stopped := calls.Load()
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, stopped, calls.Load(), "после Cleanup таймеры не должны срабатывать")
}

// Тест: повторная загрузка ключа с другим интервалом заменяет таймер,
// старый таймер больше не срабатывает.
func TestClient_RefetchInterval_Replaced(t *testing.T) {
	t.Parallel()

	client := query.NewClient()
	defer client.Cleanup()

	var calls atomic.Int32
	opts := query.Options[int]{
		Key:             query.K("ticker"),
		Fn:              countingFn(&calls, 1),
		RefetchInterval: 10 * time.Millisecond,
	}
	_, err := query.Fetch(context.Background(), client, opts)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return calls.Load() >= 3 }, time.Second, time.Millisecond)

	opts.RefetchInterval = time.Hour
	_, err = query.Fetch(context.Background(), client, opts)
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)
	settled := calls.Load()
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, settled, calls.Load(), "таймер с прежним интервалом должен быть остановлен")

	opts.RefetchInterval = 10 * time.Millisecond
	_, err = query.Fetch(context.Background(), client, opts)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return calls.Load() >= settled+4 }, time.Second, time.Millisecond,
		"новый интервал должен вступить в силу")
}

// Тест: нулевой интервал при повторной загрузке отключает перезагрузку.
func TestClient_RefetchInterval_Disabled(t *testing.T) {
	t.Parallel()

	client := query.NewClient()
	defer client.Cleanup()

	var calls atomic.Int32
	opts := query.Options[int]{
		Key:             query.K("ticker"),
		Fn:              countingFn(&calls, 1),
		RefetchInterval: 10 * time.Millisecond,
	}
	_, err := query.Fetch(context.Background(), client, opts)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return calls.Load() >= 2 }, time.Second, time.Millisecond)

	opts.RefetchInterval = 0
	_, err = query.Fetch(context.Background(), client, opts)
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)
	settled := calls.Load()
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, settled, calls.Load(), "при нулевом интервале таймер не должен срабатывать")
}

// Тест: после инвалидации интервальная перезагрузка продолжается.
func TestClient_InvalidateQueries_KeepsInterval(t *testing.T) {
	t.Parallel()

	client := query.NewClient()
	defer client.Cleanup()

	var calls atomic.Int32
	_, err := query.Fetch(context.Background(), client, query.Options[int]{
		Key:             query.K("ticker"),
		Fn:              countingFn(&calls, 1),
		RefetchInterval: 10 * time.Millisecond,
	})
	require.NoError(t, err)

	client.InvalidateQueries(query.K("ticker"))
	invalidated := calls.Load()

	require.Eventually(t, func() bool { return calls.Load() >= invalidated+3 }, time.Second, time.Millisecond,
		"после инвалидации таймер должен быть установлен заново")
}

// Тест: попытка, начатая до инвалидации, завершается позже новой и не
// перезаписывает состояние наблюдателей устаревшими данными.
func TestClient_InvalidateQueries_InFlight(t *testing.T) {
	t.Parallel()

	client := query.NewClient()
	defer client.Cleanup()

	var calls atomic.Int32
	release := make(chan struct{})
	opts := query.Options[string]{
		Key: query.K("todos"),
		Fn: func(context.Context) (string, error) {
			if calls.Add(1) == 1 {
				<-release
				return "устаревшие", nil
			}
			return "свежие", nil
		},
	}

	observer := query.NewObserver(client, opts)
	defer observer.Close()

	stale := make(chan string, 1)
	go func() {
		v, _ := query.Fetch(context.Background(), client, opts)
		stale <- v
	}()
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)

	client.InvalidateQueries(opts.Key)
	require.Eventually(t, func() bool {
		s := observer.State()
		return s.Status == query.StatusSuccess && s.Data == "свежие"
	}, time.Second, time.Millisecond)

	close(release)
	assert.Equal(t, "устаревшие", <-stale, "участники старой попытки получают ее результат")

	registry, ok := query.GetQueryState[string](client, opts.Key)
	require.True(t, ok)
	assert.Equal(t, "свежие", registry.Data)
	assert.Equal(t, query.StatusSuccess, registry.Status)
	assert.Equal(t, registry, observer.State(), "наблюдатель должен совпадать с реестром")
	assert.Zero(t, client.FetchingCount())
}

// Тест счетчика выполняющихся загрузок.
func TestClient_SubscribeToFetchingCount(t *testing.T) {
	t.Parallel()

	client := query.NewClient()
	defer client.Cleanup()

	var (
		mu     sync.Mutex
		counts []int
	)
	unsubscribe := client.SubscribeToFetchingCount(func(n int) {
		mu.Lock()
		defer mu.Unlock()
		counts = append(counts, n)
	})
	defer unsubscribe()

	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = query.Fetch(context.Background(), client, query.Options[int]{
			Key: query.K("count"),
			Fn: func(context.Context) (int, error) {
				<-release
				return 1, nil
			},
		})
	}()

	require.Eventually(t, func() bool { return client.FetchingCount() == 1 }, time.Second, time.Millisecond)
	close(release)
	<-done

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{0, 1, 0}, counts, "слушатель должен сразу получить текущее значение")
}

// Тест placeholder-данных: они видны во время загрузки и заменяются
// реальными после успеха.
func TestClient_PlaceholderData(t *testing.T) {
	t.Parallel()

	client := query.NewClient()
	defer client.Cleanup()

	placeholder := []todo{{ID: 0, Title: "загрузка..."}}
	release := make(chan struct{})
	opts := query.Options[[]todo]{
		Key:             query.K("todos"),
		PlaceholderData: &placeholder,
		Fn: func(context.Context) ([]todo, error) {
			<-release
			return []todo{{ID: 1, Title: "настоящие данные"}}, nil
		},
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = query.Fetch(context.Background(), client, opts)
	}()

	require.Eventually(t, func() bool { return client.FetchingCount() == 1 }, time.Second, time.Millisecond)
	state, ok := query.GetQueryState[[]todo](client, opts.Key)
	require.True(t, ok)
	assert.True(t, state.IsPlaceholderData)
	assert.Equal(t, placeholder, state.Data)
	assert.Equal(t, query.StatusLoading, state.Status)

	close(release)
	<-done

	state, _ = query.GetQueryState[[]todo](client, opts.Key)
	assert.False(t, state.IsPlaceholderData)
	assert.Equal(t, "настоящие данные", state.Data[0].Title)
}

// Тест: placeholder-данные очищаются при ошибке.
func TestClient_PlaceholderData_ClearedOnError(t *testing.T) {
	t.Parallel()

	client := query.NewClient()
	defer client.Cleanup()

	placeholder := "заглушка"
	_, err := query.Fetch(context.Background(), client, query.Options[string]{
		Key:             query.K("fail"),
		PlaceholderData: &placeholder,
		Fn:              func(context.Context) (string, error) { return "", errUpstream },
	})
	require.ErrorIs(t, err, errUpstream)

	state, ok := query.GetQueryState[string](client, query.K("fail"))
	require.True(t, ok)
	assert.False(t, state.IsPlaceholderData)
	assert.Empty(t, state.Data)
}

// Тест начальных данных: запись создается в статусе success.
func TestClient_InitialData(t *testing.T) {
	t.Parallel()

	client := query.NewClient()
	defer client.Cleanup()

	initial := 10
	_, err := query.Fetch(context.Background(), client, query.Options[int]{
		Key:         query.K("initial"),
		InitialData: &initial,
		Fn:          func(context.Context) (int, error) { return 11, nil },
		NetworkMode: query.NetworkModeOffline,
	})
	require.ErrorIs(t, err, query.ErrPaused)

	state, ok := query.GetQueryState[int](client, query.K("initial"))
	require.True(t, ok)
	assert.Equal(t, query.StatusSuccess, state.Status)
	assert.Equal(t, 10, state.Data)
	assert.False(t, state.LastUpdated.IsZero())
}

func TestClient_SetQueryData(t *testing.T) {
	t.Parallel()

	client := query.NewClient()
	defer client.Cleanup()

	assert.False(t, query.SetQueryData(client, query.K("missing"), 1), "запись без загрузки не создается")

	_, err := query.Fetch(context.Background(), client, query.Options[int]{
		Key: query.K("n"),
		Fn:  func(context.Context) (int, error) { return 1, nil },
	})
	require.NoError(t, err)

	require.True(t, query.SetQueryData(client, query.K("n"), 5))
	data, ok := query.GetQueryData[int](client, query.K("n"))
	require.True(t, ok)
	assert.Equal(t, 5, data)

	_, ok = query.GetQueryData[string](client, query.K("n"))
	assert.False(t, ok, "данные другого типа не должны возвращаться")
}

func TestFetchAll(t *testing.T) {
	t.Parallel()

	t.Run("результаты в порядке опций", func(t *testing.T) {
		t.Parallel()

		client := query.NewClient()
		defer client.Cleanup()

		results, err := query.FetchAll(context.Background(), client,
			query.Options[string]{Key: query.K("a"), Fn: func(context.Context) (string, error) { return "a", nil }},
			query.Options[string]{Key: query.K("b"), Fn: func(context.Context) (string, error) { return "b", nil }},
		)
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, results)
	})

	t.Run("первая ошибка возвращается", func(t *testing.T) {
		t.Parallel()

		client := query.NewClient()
		defer client.Cleanup()

		_, err := query.FetchAll(context.Background(), client,
			query.Options[string]{Key: query.K("a"), Fn: func(context.Context) (string, error) { return "a", nil }},
			query.Options[string]{Key: query.K("b"), Fn: func(context.Context) (string, error) { return "", errUpstream }},
		)
		require.ErrorIs(t, err, errUpstream)
	})

	t.Run("срез опций", func(t *testing.T) {
		t.Parallel()

		client := query.NewClient()
		defer client.Cleanup()

		opts := make([]query.Options[int], 0, 3)
		for i := range 3 {
			opts = append(opts, query.Options[int]{
				Key: query.K("n", i),
				Fn:  func(context.Context) (int, error) { return i * i, nil },
			})
		}

		results, err := query.FetchAll(context.Background(), client, opts...)
		require.NoError(t, err)
		assert.Equal(t, []int{0, 1, 4}, results)
	})
}

// Тест: после Shutdown клиент отклоняет загрузки.
func TestClient_Shutdown(t *testing.T) {
	t.Parallel()

	client := query.NewClient()
	require.NoError(t, client.Shutdown(context.Background()))

	_, err := query.Fetch(context.Background(), client, query.Options[int]{
		Key: query.K("late"),
		Fn:  func(context.Context) (int, error) { return 1, nil },
	})
	require.ErrorIs(t, err, query.ErrClientClosed)
}

func TestKey_Hash(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "todos", query.K("todos").Hash())
	assert.Equal(t, "todos-1", query.K("todos", 1).Hash())
	assert.Equal(t, "users-42-true", query.K("users", 42, true).String())
	assert.Equal(t, query.K("todos", 1).Hash(), query.K("todos", "1").Hash(), "ключи сравниваются по строковой форме")
}
