package dispatch

import (
	"sync"
	"time"
)

// Escalations schedules follow-up actions that fire unless cancelled first.
// The orchestrator arms one when it reports a problem and disarms it when
// the problem clears; a timer that fires means nobody resolved it in time.
type Escalations struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
}

// NewEscalations creates an empty escalation table.
func NewEscalations() *Escalations {
	return &Escalations{timers: make(map[string]*time.Timer)}
}

// Schedule arms fn to run after delay, replacing any pending escalation
// under the same key.
func (e *Escalations) Schedule(key string, delay time.Duration, fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if t, ok := e.timers[key]; ok {
		t.Stop()
	}
	e.timers[key] = time.AfterFunc(delay, func() {
		e.mu.Lock()
		delete(e.timers, key)
		e.mu.Unlock()
		fn()
	})
}

// Cancel disarms the escalation under key. Returns whether one was pending.
func (e *Escalations) Cancel(key string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	t, ok := e.timers[key]
	if !ok {
		return false
	}
	t.Stop()
	delete(e.timers, key)
	return true
}

// CancelAll disarms every pending escalation.
func (e *Escalations) CancelAll() {
	e.mu.Lock()
	defer e.mu.Unlock()

	for key, t := range e.timers {
		t.Stop()
		delete(e.timers, key)
	}
}

// Pending returns the number of armed escalations.
func (e *Escalations) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.timers)
}
