package store

import (
	"context"
	"sync"
	"time"

	"github.com/hrygo/backoffice/internal/apierror"
	"github.com/hrygo/backoffice/store/cache"
	"github.com/hrygo/backoffice/store/query"
)

// Status is the lifecycle of a watched read.
type Status string

const (
	// StatusIdle is the initial state, and the state of a disabled descriptor.
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// State is a snapshot of a Watch. Errors are carried as values, never panics.
type State[R any] struct {
	Status    Status
	Key       string
	Data      R
	Err       *apierror.Error
	UpdatedAt time.Time
}

// Watch follows one descriptor at a time, the way a view binds to a query: it loads
// in the background, refetches when the cache invalidates its key, and discards
// responses for keys it no longer follows.
type Watch[R any] struct {
	cache *cache.Cache
	load  func(ctx context.Context, d query.Descriptor) (R, error)

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	desc        query.Descriptor
	state       State[R]
	seq         uint64
	version     uint64 // bumped on every transition
	settled     chan struct{}
	onChange    func(State[R])
	unsubscribe func()
	closed      bool

	// deliverMu orders notifications: a transition older than one already
	// delivered is dropped.
	deliverMu sync.Mutex
	delivered uint64
}

func newWatch[R any](ctx context.Context, c *cache.Cache, load func(context.Context, query.Descriptor) (R, error)) *Watch[R] {
	ctx, cancel := context.WithCancel(ctx)
	settled := make(chan struct{})
	close(settled)

	w := &Watch[R]{
		cache:   c,
		load:    load,
		ctx:     ctx,
		cancel:  cancel,
		state:   State[R]{Status: StatusIdle},
		settled: settled,
	}
	w.unsubscribe = c.Subscribe(w.onInvalidate)
	return w
}

// WatchList creates a Watch over list reads of c.
func (c *Collection[T]) WatchList(ctx context.Context) *Watch[[]T] {
	return newWatch(ctx, c.cache, c.list)
}

// WatchRecord creates a Watch over single-record reads of c.
func (c *Collection[T]) WatchRecord(ctx context.Context) *Watch[*T] {
	return newWatch(ctx, c.cache, c.get)
}

// OnChange registers fn to receive state transitions in order. A transition overtaken
// by a newer one before it could be delivered is skipped. fn must not call back into
// the watch.
func (w *Watch[R]) OnChange(fn func(State[R])) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onChange = fn
}

// Request switches the watch to d. Requesting the key already followed is a no-op
// unless the last load failed. A disabled descriptor moves the watch to idle.
func (w *Watch[R]) Request(d query.Descriptor) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	if !d.Enabled() {
		w.desc = d
		w.seq++
		w.transitionLocked(State[R]{Status: StatusIdle})
		w.notifyUnlock()
		return
	}
	if d.Key() == w.desc.Key() && (w.state.Status == StatusLoading || w.state.Status == StatusSuccess) {
		w.mu.Unlock()
		return
	}
	w.desc = d
	w.startLocked()
}

// Refetch reloads the followed descriptor.
func (w *Watch[R]) Refetch() {
	w.mu.Lock()
	if w.closed || !w.desc.Enabled() {
		w.mu.Unlock()
		return
	}
	w.startLocked()
}

// startLocked begins a load of w.desc and releases the lock.
func (w *Watch[R]) startLocked() {
	w.seq++
	seq, d := w.seq, w.desc
	w.transitionLocked(State[R]{Status: StatusLoading, Key: d.Key(), Data: w.keepData(d)})
	w.notifyUnlock()

	go w.run(seq, d)
}

// keepData keeps showing the previous data while the same key reloads.
func (w *Watch[R]) keepData(d query.Descriptor) R {
	if w.state.Key == d.Key() {
		return w.state.Data
	}
	var zero R
	return zero
}

func (w *Watch[R]) run(seq uint64, d query.Descriptor) {
	data, err := w.load(w.ctx, d)

	w.mu.Lock()
	if w.closed || seq != w.seq {
		// Superseded by a newer request.
		w.mu.Unlock()
		return
	}
	next := State[R]{Status: StatusSuccess, Key: d.Key(), Data: data}
	if err != nil {
		apiErr, ok := apierror.As(err)
		if !ok {
			apiErr = apierror.Internal("load failed", err)
		}
		next = State[R]{Status: StatusError, Key: d.Key(), Data: w.state.Data, Err: apiErr}
	}
	w.transitionLocked(next)
	w.notifyUnlock()
}

// transitionLocked applies next and maintains the settled channel.
func (w *Watch[R]) transitionLocked(next State[R]) {
	wasLoading := w.state.Status == StatusLoading
	w.version++
	next.UpdatedAt = time.Now()
	w.state = next

	switch {
	case next.Status == StatusLoading && !wasLoading:
		w.settled = make(chan struct{})
	case next.Status != StatusLoading && wasLoading:
		close(w.settled)
	}
}

func (w *Watch[R]) onInvalidate(key string) {
	w.mu.Lock()
	follows := !w.closed && w.desc.Enabled() && w.desc.Key() == key
	w.mu.Unlock()
	if follows {
		w.Refetch()
	}
}

// State returns the current snapshot.
func (w *Watch[R]) State() State[R] {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Wait blocks until the watch is not loading, or ctx ends.
func (w *Watch[R]) Wait(ctx context.Context) (State[R], error) {
	for {
		w.mu.Lock()
		if w.state.Status != StatusLoading {
			state := w.state
			w.mu.Unlock()
			return state, nil
		}
		ch := w.settled
		w.mu.Unlock()

		select {
		case <-ctx.Done():
			return w.State(), ctx.Err()
		case <-ch:
		}
	}
}

// Close stops following and cancels loads in flight for this watch.
func (w *Watch[R]) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	if w.state.Status == StatusLoading {
		close(w.settled)
		w.state.Status = StatusIdle
	}
	w.mu.Unlock()

	w.unsubscribe()
	w.cancel()
}

// notifyUnlock releases w.mu and delivers the current state unless a newer one
// has been delivered meanwhile.
func (w *Watch[R]) notifyUnlock() {
	fn, state, version := w.onChange, w.state, w.version
	w.mu.Unlock()
	if fn == nil {
		return
	}

	w.deliverMu.Lock()
	defer w.deliverMu.Unlock()
	if version <= w.delivered {
		return
	}
	w.delivered = version
	fn(state)
}
