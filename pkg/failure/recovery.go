package failure

import (
	"fmt"
	"sync"
	"time"

	"github.com/moverwatch/moverwatch/pkg/types"
)

// Strategy is the recovery decision for a classified error.
type Strategy string

const (
	// StrategyRetry hands the operation to the retry helper.
	StrategyRetry Strategy = "retry"
	// StrategyNone gives up without retrying.
	StrategyNone Strategy = "none"
	// StrategyEscalate surfaces the error immediately.
	StrategyEscalate Strategy = "escalate"
)

// StrategyFor returns the fixed per-category recovery strategy.
func StrategyFor(cat types.ErrorCategory) Strategy {
	switch cat {
	case types.CategoryNetwork, types.CategoryTimeout, types.CategoryResource:
		return StrategyRetry
	case types.CategoryPermission, types.CategoryValidation:
		return StrategyNone
	case types.CategoryUnknown:
		return StrategyEscalate
	default:
		return StrategyNone
	}
}

const (
	// DefaultEscalationThreshold is how many similar errors within the
	// window force escalation.
	DefaultEscalationThreshold = 3
	// DefaultEscalationWindow is the sliding window for similarity counts.
	DefaultEscalationWindow = 5 * time.Minute
)

// Escalator counts failures per (category, context) in a sliding window and
// decides when repetition or severity forces escalation.
type Escalator struct {
	window    time.Duration
	threshold int
	now       func() time.Time

	mu     sync.Mutex
	counts map[string][]time.Time
}

// NewEscalator creates an escalator; zero arguments select defaults.
func NewEscalator(window time.Duration, threshold int) *Escalator {
	if window <= 0 {
		window = DefaultEscalationWindow
	}
	if threshold <= 0 {
		threshold = DefaultEscalationThreshold
	}
	return &Escalator{
		window:    window,
		threshold: threshold,
		now:       time.Now,
		counts:    make(map[string][]time.Time),
	}
}

// Observe records rec and reports whether it escalates: critical severity
// always does, otherwise the count of similar errors within the window must
// reach the threshold.
func (e *Escalator) Observe(rec types.ErrorRecord) bool {
	key := fmt.Sprintf("%s|%s", rec.Category, rec.Context)
	now := e.now()
	cutoff := now.Add(-e.window)

	e.mu.Lock()
	defer e.mu.Unlock()

	kept := e.counts[key][:0]
	for _, ts := range e.counts[key] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	kept = append(kept, now)
	e.counts[key] = kept

	if rec.Severity == types.SeverityCritical {
		return true
	}
	return len(kept) >= e.threshold
}

// Reset clears the window, e.g. after a successful recovery.
func (e *Escalator) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.counts = make(map[string][]time.Time)
}
