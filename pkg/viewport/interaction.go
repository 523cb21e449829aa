package viewport

import (
	"sync"
	"sync/atomic"
	"time"
)

// Interaction is the "map is moving" flag shared by every suspension point
// of a cycle. The zero value is inactive.
type Interaction struct {
	active atomic.Bool
}

// Set records whether a pan or zoom gesture is in progress.
func (i *Interaction) Set(active bool) { i.active.Store(active) }

// Active implements fetch.Gate and batch.Gate.
func (i *Interaction) Active() bool { return i.active.Load() }

// Debouncer runs the most recently armed function once its delay has passed
// without another Arm. Arming cancels any pending run.
type Debouncer struct {
	delay time.Duration

	mu    sync.Mutex
	timer *time.Timer
	gen   uint64
}

// NewDebouncer returns a Debouncer with the given quiet period.
func NewDebouncer(delay time.Duration) *Debouncer {
	return &Debouncer{delay: delay}
}

// Arm schedules fn, replacing whatever was pending.
func (d *Debouncer) Arm(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.timer = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		current := gen == d.gen
		if current {
			d.timer = nil
		}
		d.mu.Unlock()
		// A timer that fired while being replaced must not run.
		if current {
			fn()
		}
	})
}

// Stop cancels the pending run, if any. It reports whether one was pending.
func (d *Debouncer) Stop() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.gen++
	if d.timer == nil {
		return false
	}
	d.timer.Stop()
	d.timer = nil
	return true
}

// Pending reports whether a run is scheduled.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}
