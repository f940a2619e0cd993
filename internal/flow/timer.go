package flow

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Timer schedules deferred work: the notification retry and the
// presentational typing delay before the next prompt.
type Timer interface {
	// ScheduleAfter schedules fn to run once after the delay and returns a
	// cancellation id.
	ScheduleAfter(delay time.Duration, fn func()) (string, error)

	// Cancel stops a scheduled function. Cancelling an unknown or already
	// fired id is a no-op.
	Cancel(id string) error
}

// SimpleTimer implements Timer on top of time.AfterFunc.
type SimpleTimer struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
	nextID int64
}

// NewSimpleTimer creates a new SimpleTimer.
func NewSimpleTimer() *SimpleTimer {
	return &SimpleTimer{timers: make(map[string]*time.Timer)}
}

// ScheduleAfter schedules a function to run after a delay.
func (t *SimpleTimer) ScheduleAfter(delay time.Duration, fn func()) (string, error) {
	t.mu.Lock()
	t.nextID++
	id := fmt.Sprintf("timer_%d", t.nextID)
	t.mu.Unlock()

	slog.Debug("SimpleTimer.ScheduleAfter: scheduling", "id", id, "delay", delay)
	timer := time.AfterFunc(delay, func() {
		t.mu.Lock()
		delete(t.timers, id)
		t.mu.Unlock()
		fn()
	})

	t.mu.Lock()
	t.timers[id] = timer
	t.mu.Unlock()
	return id, nil
}

// Cancel cancels a scheduled function by ID.
func (t *SimpleTimer) Cancel(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if timer, ok := t.timers[id]; ok {
		timer.Stop()
		delete(t.timers, id)
		slog.Debug("SimpleTimer.Cancel: cancelled", "id", id)
	}
	return nil
}

// Stop cancels all scheduled timers.
func (t *SimpleTimer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, timer := range t.timers {
		timer.Stop()
		delete(t.timers, id)
	}
	slog.Debug("SimpleTimer.Stop: all timers stopped")
}
