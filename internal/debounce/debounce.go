// Package debounce provides a trailing-edge debouncer: a burst of triggers
// collapses into a single callback invocation after the burst goes quiet.
package debounce

import (
	"sync"
	"time"
)

// Debouncer coalesces Trigger calls. The callback runs on a timer goroutine
// once no trigger has arrived for the configured delay. It is safe for
// concurrent use.
type Debouncer struct {
	mu    sync.Mutex
	timer *time.Timer
	delay time.Duration
	fn    func()
}

// New creates a debouncer that invokes fn delay after the last Trigger.
func New(delay time.Duration, fn func()) *Debouncer {
	return &Debouncer{
		delay: delay,
		fn:    fn,
	}
}

// Trigger schedules the callback, resetting the timer if one is pending.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, d.fire)
}

func (d *Debouncer) fire() {
	d.mu.Lock()
	d.timer = nil
	d.mu.Unlock()

	d.fn()
}

// Stop cancels a pending invocation. Returns true if one was pending.
func (d *Debouncer) Stop() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer == nil {
		return false
	}
	stopped := d.timer.Stop()
	d.timer = nil
	return stopped
}

// Flush runs the callback immediately if an invocation is pending.
// Returns true if the callback ran.
func (d *Debouncer) Flush() bool {
	if !d.Stop() {
		return false
	}
	d.fn()
	return true
}
