// Package timing provides debounce and throttle wrappers used to gate
// user-driven triggers such as search-as-you-type filtering and rapid send
// clicks. Both wrappers are trailing-edge: they invoke the callback with the
// most recent argument seen, and both stop cleanly so a disposed owner never
// receives a late callback.
package timing

import (
	"sync"
	"time"

	"pixelpilot/internal/clock"
)

// Debounced delays invocation until delay has passed with no further calls.
type Debounced[T any] struct {
	mu      sync.Mutex
	clk     clock.Clock
	delay   time.Duration
	fn      func(T)
	timer   clock.Timer
	last    T
	stopped bool
}

// Debounce wraps fn so that a burst of calls collapses into a single
// invocation with the last argument, delay after the burst goes quiet.
func Debounce[T any](clk clock.Clock, delay time.Duration, fn func(T)) *Debounced[T] {
	return &Debounced[T]{clk: clk, delay: delay, fn: fn}
}

// Call records v and restarts the quiet-period timer.
func (d *Debounced[T]) Call(v T) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.last = v
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = d.clk.AfterFunc(d.delay, d.fire)
}

func (d *Debounced[T]) fire() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.timer = nil
	v := d.last
	d.mu.Unlock()
	d.fn(v)
}

// Stop cancels any pending invocation. Calls after Stop are ignored.
func (d *Debounced[T]) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// Throttled invokes at most once per delay window, trailing edge, with the
// most recent argument seen during the window. At most one invocation is
// pending at a time.
type Throttled[T any] struct {
	mu      sync.Mutex
	clk     clock.Clock
	delay   time.Duration
	fn      func(T)
	timer   clock.Timer
	last    T
	stopped bool
}

// Throttle wraps fn with trailing-edge rate limiting.
func Throttle[T any](clk clock.Clock, delay time.Duration, fn func(T)) *Throttled[T] {
	return &Throttled[T]{clk: clk, delay: delay, fn: fn}
}

// Call records v; the first call of a window opens it and schedules the
// invocation for the end of the window.
func (t *Throttled[T]) Call(v T) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	t.last = v
	if t.timer == nil {
		t.timer = t.clk.AfterFunc(t.delay, t.fire)
	}
}

func (t *Throttled[T]) fire() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.timer = nil
	v := t.last
	t.mu.Unlock()
	t.fn(v)
}

// Stop cancels the pending invocation. Calls after Stop are ignored.
func (t *Throttled[T]) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}
