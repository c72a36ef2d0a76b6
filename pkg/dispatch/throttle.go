package dispatch

import (
	"sync"
	"time"
)

// Throttler enforces a minimum interval between messages sharing a key.
// Urgent messages bypass it at the dispatcher level, so a storm of routine
// progress updates cannot drown an alert.
type Throttler struct {
	min time.Duration
	now func() time.Time

	mu   sync.Mutex
	last map[string]time.Time
}

// NewThrottler creates a throttler. A zero or negative interval disables it.
func NewThrottler(min time.Duration) *Throttler {
	return &Throttler{
		min:  min,
		now:  time.Now,
		last: make(map[string]time.Time),
	}
}

// Allow reports whether a message with this key may be sent now, recording
// the send time when it may.
func (t *Throttler) Allow(key string) bool {
	if t.min <= 0 {
		return true
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if last, ok := t.last[key]; ok && now.Sub(last) < t.min {
		return false
	}
	t.last[key] = now
	return true
}

// NextAllowed returns when a message with this key will next pass, which is
// the zero time when it would pass immediately.
func (t *Throttler) NextAllowed(key string) time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()

	last, ok := t.last[key]
	if !ok || t.min <= 0 {
		return time.Time{}
	}
	next := last.Add(t.min)
	if !next.After(t.now()) {
		return time.Time{}
	}
	return next
}

// Reset forgets every recorded send.
func (t *Throttler) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.last = make(map[string]time.Time)
}
