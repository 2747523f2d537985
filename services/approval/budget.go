package approval

import (
	"sync"
	"time"
)

// window is a fixed-window admission counter. It relies on time.Time's
// monotonic reading for rollover, so wall-clock skew cannot shrink or
// stretch the window.
type window struct {
	mu       sync.Mutex
	max      int
	interval time.Duration
	count    int
	start    time.Time
	now      func() time.Time
}

func newWindow(max int, interval time.Duration, now func() time.Time) *window {
	if now == nil {
		now = time.Now
	}
	return &window{
		max:      max,
		interval: interval,
		now:      now,
		start:    now(),
	}
}

// Allow consumes one admission slot. It returns false when the window is
// exhausted; the counter resets once the window elapses.
func (w *window) Allow() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.rollLocked()
	if w.max > 0 && w.count >= w.max {
		return false
	}
	w.count++
	return true
}

// Used returns the admissions consumed in the current window
func (w *window) Used() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.rollLocked()
	return w.count
}

// Remaining returns the admissions left in the current window
func (w *window) Remaining() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.rollLocked()
	if w.max <= 0 {
		return -1
	}
	if w.count >= w.max {
		return 0
	}
	return w.max - w.count
}

func (w *window) rollLocked() {
	if w.now().Sub(w.start) >= w.interval {
		w.count = 0
		w.start = w.now()
	}
}
