// Package debounce emits the last value pushed once input has been quiet for a
// fixed window.
package debounce

import (
	"sync"
	"time"
)

// DefaultDelay is the quiescence window used for search input.
const DefaultDelay = 500 * time.Millisecond

// Debouncer delays fn until Push has not been called for delay.
// Intermediate values are dropped; only the final one is emitted.
type Debouncer[T any] struct {
	delay time.Duration
	fn    func(T)

	mu      sync.Mutex
	timer   *time.Timer
	value   T
	pending bool
	gen     uint64
}

// New creates a Debouncer. A non-positive delay falls back to DefaultDelay.
func New[T any](delay time.Duration, fn func(T)) *Debouncer[T] {
	if delay <= 0 {
		delay = DefaultDelay
	}
	return &Debouncer[T]{delay: delay, fn: fn}
}

// Push records v and restarts the quiescence window.
func (d *Debouncer[T]) Push(v T) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.value = v
	d.pending = true
	d.gen++
	gen := d.gen

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, func() {
		d.fire(gen)
	})
}

// fire emits the pending value if no Push, Stop or Flush happened since the
// timer for gen was armed.
func (d *Debouncer[T]) fire(gen uint64) {
	d.mu.Lock()
	if gen != d.gen || !d.pending {
		d.mu.Unlock()
		return
	}
	v := d.value
	d.pending = false
	d.timer = nil
	d.mu.Unlock()

	d.fn(v)
}

// Flush emits the pending value immediately. It returns false if nothing was pending.
func (d *Debouncer[T]) Flush() bool {
	d.mu.Lock()
	if !d.pending {
		d.mu.Unlock()
		return false
	}
	v := d.value
	d.pending = false
	d.gen++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.mu.Unlock()

	d.fn(v)
	return true
}

// Stop cancels the pending emission and reports whether one was pending.
func (d *Debouncer[T]) Stop() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	wasPending := d.pending
	d.pending = false
	d.gen++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	return wasPending
}
