// Package debounce coalesces rapid successive values into one delayed emission.
// It sits upstream of list queries so a search box produces one Descriptor per pause
// in typing, not one per keystroke.
package debounce

import (
	"sync"
	"time"
)

// Debouncer emits the last pushed value once no new value has arrived for delay.
// A value equal to the last emitted one is suppressed.
type Debouncer[T comparable] struct {
	delay time.Duration
	emit  func(T)

	// emitMu is held from taking the pending value until emit returns.
	emitMu  sync.Mutex
	mu      sync.Mutex
	timer   *time.Timer
	pending T
	waiting bool
	last    T
	emitted bool
	stopped bool
}

// New creates a debouncer. emit runs on a timer goroutine.
func New[T comparable](delay time.Duration, emit func(T)) *Debouncer[T] {
	return &Debouncer[T]{delay: delay, emit: emit}
}

// Push records v and restarts the quiet period.
func (d *Debouncer[T]) Push(v T) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}

	d.pending = v
	d.waiting = true
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, d.fire)
}

// Flush emits the pending value immediately, if any. An emission already running on
// the timer goroutine completes before Flush returns.
func (d *Debouncer[T]) Flush() {
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.mu.Unlock()
	d.fire()
}

// Stop drops the pending value and ignores further pushes.
func (d *Debouncer[T]) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	d.waiting = false
	if d.timer != nil {
		d.timer.Stop()
	}
}

// Pending reports whether a value is waiting to be emitted.
func (d *Debouncer[T]) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.waiting
}

func (d *Debouncer[T]) fire() {
	d.emitMu.Lock()
	defer d.emitMu.Unlock()

	d.mu.Lock()
	if !d.waiting || d.stopped {
		d.mu.Unlock()
		return
	}
	v := d.pending
	d.waiting = false
	if d.emitted && v == d.last {
		d.mu.Unlock()
		return
	}
	d.last = v
	d.emitted = true
	d.mu.Unlock()

	d.emit(v)
}
