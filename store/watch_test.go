package store

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/backoffice/internal/apierror"
	"github.com/hrygo/backoffice/store/cache"
	"github.com/hrygo/backoffice/store/query"
)

func newTestCache(t *testing.T) *cache.Cache {
	t.Helper()
	c := cache.New(cache.DefaultConfig())
	t.Cleanup(c.Close)
	return c
}

func waitState[R any](t *testing.T, w *Watch[R]) State[R] {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	state, err := w.Wait(ctx)
	require.NoError(t, err)
	return state
}

func TestWatchStartsIdle(t *testing.T) {
	var calls atomic.Int32
	w := newWatch(context.Background(), newTestCache(t), func(context.Context, query.Descriptor) (string, error) {
		calls.Add(1)
		return "", nil
	})
	defer w.Close()

	assert.Equal(t, StatusIdle, w.State().Status)

	// A record read without an id stays idle and loads nothing.
	w.Request(query.ByID(EntityProjects, ""))
	state := waitState(t, w)
	assert.Equal(t, StatusIdle, state.Status)
	assert.Nil(t, state.Err)
	assert.Equal(t, int32(0), calls.Load())
}

func TestWatchLoadsAndReportsSuccess(t *testing.T) {
	var transitions []Status
	var mu sync.Mutex
	release := make(chan struct{})
	w := newWatch(context.Background(), newTestCache(t), func(_ context.Context, d query.Descriptor) (string, error) {
		<-release
		return d.Key(), nil
	})
	defer w.Close()
	w.OnChange(func(s State[string]) {
		mu.Lock()
		transitions = append(transitions, s.Status)
		mu.Unlock()
	})

	w.Request(query.List(EntityProjects, query.Params{"search": "water"}))
	mu.Lock()
	assert.Equal(t, []Status{StatusLoading}, transitions)
	mu.Unlock()
	close(release)
	state := waitState(t, w)
	assert.Equal(t, StatusSuccess, state.Status)
	assert.Equal(t, "projects?search=water", state.Data)
	assert.Equal(t, "projects?search=water", state.Key)

	// Listeners run after the state settles.
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(transitions) == 2
	}, time.Second, time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []Status{StatusLoading, StatusSuccess}, transitions)
}

func TestWatchDiscardsSupersededResponse(t *testing.T) {
	first := query.List(EntityProjects, query.Params{"search": "wat"})
	second := query.List(EntityProjects, query.Params{"search": "water"})
	gates := map[string]chan struct{}{
		first.Key():  make(chan struct{}),
		second.Key(): make(chan struct{}),
	}
	returned := make(chan string, 2)

	w := newWatch(context.Background(), newTestCache(t), func(_ context.Context, d query.Descriptor) (string, error) {
		<-gates[d.Key()]
		defer func() { returned <- d.Key() }()
		return "result for " + d.Key(), nil
	})
	defer w.Close()

	w.Request(first)
	w.Request(second)

	close(gates[second.Key()])
	state := waitState(t, w)
	assert.Equal(t, StatusSuccess, state.Status)
	assert.Equal(t, "result for "+second.Key(), state.Data)
	assert.Equal(t, second.Key(), <-returned)

	// The older search answers late and must not overwrite the newer state.
	close(gates[first.Key()])
	assert.Equal(t, first.Key(), <-returned)
	time.Sleep(20 * time.Millisecond)
	state = w.State()
	assert.Equal(t, second.Key(), state.Key)
	assert.Equal(t, "result for "+second.Key(), state.Data)
}

func TestWatchDeliversTransitionsInOrder(t *testing.T) {
	w := newWatch(context.Background(), newTestCache(t), func(_ context.Context, d query.Descriptor) (string, error) {
		return d.Key(), nil
	})
	defer w.Close()

	var (
		mu     sync.Mutex
		states []State[string]
	)
	w.OnChange(func(s State[string]) {
		mu.Lock()
		states = append(states, s)
		mu.Unlock()
	})
	snapshot := func() []State[string] {
		mu.Lock()
		defer mu.Unlock()
		return append([]State[string](nil), states...)
	}

	var last query.Descriptor
	order := map[string]int{}
	for i := 0; i < 50; i++ {
		last = query.List(EntityProjects, query.Params{"search": strconv.Itoa(i)})
		order[last.Key()] = i
		w.Request(last)
	}
	final := waitState(t, w)
	require.Equal(t, last.Key(), final.Key)
	require.Eventually(t, func() bool {
		got := snapshot()
		return len(got) > 0 && got[len(got)-1].UpdatedAt.Equal(final.UpdatedAt)
	}, time.Second, time.Millisecond)

	got := snapshot()
	followed := -1
	for i, s := range got {
		if i > 0 {
			assert.False(t, s.UpdatedAt.Before(got[i-1].UpdatedAt), "transition %d delivered out of order", i)
		}
		switch s.Status {
		case StatusLoading:
			followed = order[s.Key]
		case StatusSuccess:
			assert.GreaterOrEqual(t, order[s.Key], followed, "success for a superseded key")
		}
	}
}

func TestWatchSameKeyIsNoop(t *testing.T) {
	var calls atomic.Int32
	w := newWatch(context.Background(), newTestCache(t), func(context.Context, query.Descriptor) (int, error) {
		return int(calls.Add(1)), nil
	})
	defer w.Close()

	d := query.List(EntityProjects, nil)
	w.Request(d)
	waitState(t, w)
	w.Request(query.List(EntityProjects, query.Params{}))
	state := waitState(t, w)

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 1, state.Data)
}

func TestWatchReportsErrorAndRetriesOnRequest(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	w := newWatch(context.Background(), newTestCache(t), func(context.Context, query.Descriptor) (string, error) {
		if fail.Load() {
			return "", apierror.FromResponse(http.StatusNotFound, []byte(`{"message":"project not found"}`))
		}
		return "ok", nil
	})
	defer w.Close()

	d := query.ByID(EntityProjects, "p1")
	w.Request(d)
	state := waitState(t, w)
	require.Equal(t, StatusError, state.Status)
	require.NotNil(t, state.Err)
	assert.Equal(t, apierror.ErrCodeNotFound, state.Err.Code)
	assert.Equal(t, "project not found", state.Err.Message)

	// An errored key may be requested again, typically from a retry button.
	fail.Store(false)
	w.Request(d)
	state = waitState(t, w)
	assert.Equal(t, StatusSuccess, state.Status)
	assert.Nil(t, state.Err)
}

func TestWatchWrapsPlainErrors(t *testing.T) {
	w := newWatch(context.Background(), newTestCache(t), func(context.Context, query.Descriptor) (string, error) {
		return "", assert.AnError
	})
	defer w.Close()

	w.Request(query.List(EntityProjects, nil))
	state := waitState(t, w)
	require.Equal(t, StatusError, state.Status)
	assert.Equal(t, apierror.ErrCodeInternal, state.Err.Code)
	assert.ErrorIs(t, state.Err, assert.AnError)
}

func TestWatchRefetchesOnInvalidation(t *testing.T) {
	c := newTestCache(t)
	var calls atomic.Int32
	w := newWatch(context.Background(), c, func(ctx context.Context, d query.Descriptor) (int32, error) {
		v, err := c.Fetch(ctx, d.Key(), func(context.Context) (any, error) {
			return calls.Add(1), nil
		})
		if err != nil {
			return 0, err
		}
		return v.(int32), nil
	})
	defer w.Close()

	d := query.List(EntityProjects, nil)
	w.Request(d)
	assert.Equal(t, int32(1), waitState(t, w).Data)

	// Invalidating an unrelated key leaves the watch alone.
	c.Invalidate("users")
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())

	c.Invalidate(d.Key())
	require.Eventually(t, func() bool {
		s := w.State()
		return s.Status == StatusSuccess && s.Data == 2
	}, 2*time.Second, 5*time.Millisecond)

	w.Refetch()
	state := waitState(t, w)
	// Refetch reads through the cache, which is fresh again.
	assert.Equal(t, int32(2), state.Data)
}

func TestWatchClose(t *testing.T) {
	c := newTestCache(t)
	var calls atomic.Int32
	w := newWatch(context.Background(), c, func(context.Context, query.Descriptor) (int32, error) {
		return calls.Add(1), nil
	})

	d := query.List(EntityProjects, nil)
	w.Request(d)
	waitState(t, w)
	w.Close()
	w.Close()

	c.Invalidate(d.Key())
	w.Request(query.List(EntityUsers, nil))
	w.Refetch()
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
}

func TestCollectionWatchAgainstServer(t *testing.T) {
	env := newTestEnv(t)
	s := env.store
	ctx := context.Background()

	list := s.Projects().WatchList(ctx)
	defer list.Close()
	list.Request(s.Projects().ListDescriptor(nil))
	state := waitState(t, list)
	require.Equal(t, StatusSuccess, state.Status)
	assert.Empty(t, state.Data)

	created, err := s.CreateProject(ctx, &CreateProject{Title: "Wells"})
	require.NoError(t, err)

	// The create invalidates the watched list, which reloads by itself.
	require.Eventually(t, func() bool {
		st := list.State()
		return st.Status == StatusSuccess && len(st.Data) == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, created.ID, list.State().Data[0].ID)

	record := s.Projects().WatchRecord(ctx)
	defer record.Close()
	record.Request(s.Projects().RecordDescriptor(created.ID))
	state2 := waitState(t, record)
	require.Equal(t, StatusSuccess, state2.Status)
	assert.Equal(t, "Wells", state2.Data.Title)

	require.NoError(t, s.DeleteProject(ctx, &DeleteProject{ID: created.ID}))
	require.Eventually(t, func() bool {
		st := record.State()
		return st.Status == StatusError && st.Err != nil && st.Err.Code == apierror.ErrCodeNotFound
	}, 2*time.Second, 5*time.Millisecond)
}
