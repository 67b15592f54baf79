package timer

import (
	"sync"
	"time"
)

// Task is a callback scheduled to run once after a delay. Cancel is
// idempotent and safe to call after the task has fired.
type Task struct {
	mu        sync.Mutex
	t         *time.Timer
	fired     bool
	cancelled bool
}

// After schedules fn to run once after d on its own goroutine.
func After(d time.Duration, fn func()) *Task {
	task := &Task{}
	task.mu.Lock()
	defer task.mu.Unlock()
	task.t = time.AfterFunc(d, func() {
		task.mu.Lock()
		if task.cancelled {
			task.mu.Unlock()
			return
		}
		task.fired = true
		task.mu.Unlock()
		fn()
	})
	return task
}

// Cancel stops the task if it has not fired yet and reports whether this
// call prevented it. A nil Task is treated as already cancelled.
func (t *Task) Cancel() bool {
	if t == nil {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancelled || t.fired {
		return false
	}
	t.cancelled = true
	t.t.Stop()
	return true
}

// Pending reports whether the task is still waiting to fire.
func (t *Task) Pending() bool {
	if t == nil {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.cancelled && !t.fired
}
