// Package scheduler provides a named, cancellable delayed-task handle.
// Each logical debounce stream (prediction context, viewport refresh)
// owns exactly one Task; scheduling again cancels the pending run.
package scheduler

import (
	"sync"
	"time"
)

// Task is a single-slot delayed task. Schedule replaces any pending run,
// so only the most recent function can fire.
type Task struct {
	mu    sync.Mutex
	name  string
	timer *time.Timer
	seq   uint64
}

// NewTask creates a named task handle.
func NewTask(name string) *Task {
	return &Task{name: name}
}

// Name returns the task name.
func (t *Task) Name() string {
	return t.name
}

// Schedule runs fn after delay, cancelling any previously scheduled run.
// fn executes on its own goroutine.
func (t *Task) Schedule(delay time.Duration, fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.timer != nil {
		t.timer.Stop()
	}
	t.seq++
	seq := t.seq
	t.timer = time.AfterFunc(delay, func() {
		t.mu.Lock()
		current := t.seq == seq
		if current {
			t.timer = nil
		}
		t.mu.Unlock()
		// A stale timer that lost the race to Stop must not fire fn.
		if current {
			fn()
		}
	})
}

// Cancel stops any pending run. Already-started runs are unaffected.
func (t *Task) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.seq++
}

// Pending reports whether a run is currently scheduled.
func (t *Task) Pending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.timer != nil
}
