package progress

import (
	"time"
)

// RetentionPolicy selects how the sample history is bounded.
type RetentionPolicy string

const (
	// RetainByCount keeps at most MaxSamples entries.
	RetainByCount RetentionPolicy = "count"
	// RetainByAge keeps entries younger than MaxAge.
	RetainByAge RetentionPolicy = "age"
)

const (
	// DefaultMaxSamples bounds the count-based history.
	DefaultMaxSamples = 1000
	// DefaultMaxAge bounds the age-based history.
	DefaultMaxAge = time.Hour
)

// sample is one (bytes, timestamp) observation.
type sample struct {
	bytes int64
	at    time.Time
}

// history is a bounded ring of samples. Not goroutine-safe; the estimator
// guards it.
type history struct {
	policy  RetentionPolicy
	maxN    int
	maxAge  time.Duration
	samples []sample
}

func newHistory(policy RetentionPolicy, maxN int, maxAge time.Duration) *history {
	if maxN <= 0 {
		maxN = DefaultMaxSamples
	}
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	if policy == "" {
		policy = RetainByCount
	}
	return &history{policy: policy, maxN: maxN, maxAge: maxAge}
}

func (h *history) add(s sample) {
	h.samples = append(h.samples, s)
	h.prune(s.at)
}

func (h *history) prune(now time.Time) {
	switch h.policy {
	case RetainByAge:
		cutoff := now.Add(-h.maxAge)
		i := 0
		for i < len(h.samples) && h.samples[i].at.Before(cutoff) {
			i++
		}
		if i > 0 {
			h.samples = append(h.samples[:0], h.samples[i:]...)
		}
	default:
		if over := len(h.samples) - h.maxN; over > 0 {
			h.samples = append(h.samples[:0], h.samples[over:]...)
		}
	}
}

func (h *history) len() int { return len(h.samples) }

func (h *history) first() sample { return h.samples[0] }

func (h *history) last() sample { return h.samples[len(h.samples)-1] }

// rates returns instantaneous transfer rates between consecutive samples,
// skipping pairs with non-advancing timestamps.
func (h *history) rates() []float64 {
	out := make([]float64, 0, len(h.samples))
	for i := 1; i < len(h.samples); i++ {
		dt := h.samples[i].at.Sub(h.samples[i-1].at).Seconds()
		if dt <= 0 {
			continue
		}
		out = append(out, float64(h.samples[i].bytes-h.samples[i-1].bytes)/dt)
	}
	return out
}

// tail returns up to n most recent samples.
func (h *history) tail(n int) []sample {
	if n >= len(h.samples) {
		return h.samples
	}
	return h.samples[len(h.samples)-n:]
}
