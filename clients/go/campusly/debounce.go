package campusly

import (
	"sync"
	"time"
)

// Debouncer calls fn once d has passed since the last Reset. A timer that
// fires after Cancel or a newer Reset is ignored.
type Debouncer struct {
	d  time.Duration
	fn func()

	mu    sync.Mutex
	timer *time.Timer
	gen   uint64
}

// NewDebouncer creates an idle debouncer.
func NewDebouncer(d time.Duration, fn func()) *Debouncer {
	return &Debouncer{d: d, fn: fn}
}

// Reset starts the idle timer, or restarts it if already running.
func (b *Debouncer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.gen++
	gen := b.gen
	if b.timer != nil {
		b.timer.Stop()
	}
	b.timer = time.AfterFunc(b.d, func() { b.fire(gen) })
}

// Cancel stops the idle timer and reports whether one was pending.
func (b *Debouncer) Cancel() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	pending := b.timer != nil
	b.gen++
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	return pending
}

// Pending reports whether the idle timer is running.
func (b *Debouncer) Pending() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.timer != nil
}

func (b *Debouncer) fire(gen uint64) {
	b.mu.Lock()
	if gen != b.gen {
		b.mu.Unlock()
		return
	}
	b.timer = nil
	b.mu.Unlock()

	b.fn()
}
