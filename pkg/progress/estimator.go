package progress

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/moverwatch/moverwatch/pkg/types"
)

// Method names an ETC computation strategy.
type Method string

const (
	// MethodLinear projects the average rate between the first and last
	// advancing samples.
	MethodLinear Method = "linear"
	// MethodExponential smooths instantaneous rates with an EMA.
	MethodExponential Method = "exponential"
	// MethodAdaptive picks linear for stable rates and exponential for
	// volatile ones.
	MethodAdaptive Method = "adaptive"
)

// AverageStrategy selects how CurrentRate aggregates instantaneous rates.
type AverageStrategy string

const (
	AverageSimple      AverageStrategy = "simple"
	AverageWeighted    AverageStrategy = "weighted"
	AverageExponential AverageStrategy = "exponential"
)

// ETCResult is an estimated time to completion with a confidence band.
type ETCResult struct {
	Seconds       float64
	Confidence    float64
	ConfidenceMin float64
	ConfidenceMax float64
	Method        Method
}

// ErrNegativeInput rejects samples with negative byte counts. The estimator
// remains usable after a rejected sample.
var ErrNegativeInput = errors.New("progress: negative byte count")

const (
	// defaultAlpha is the EMA smoothing factor.
	defaultAlpha = 0.3
	// defaultCVThreshold is the coefficient-of-variation cutoff below which
	// the adaptive method considers the rate stable.
	defaultCVThreshold = 0.25
	// defaultPauseWindow is how many identical trailing samples mark the
	// transfer as paused.
	defaultPauseWindow = 3
	// confidenceBand is the half-width of the reported confidence interval.
	confidenceBand = 0.15
	// rateWindow is how many recent rates feed CurrentRate and the
	// adaptive stability check.
	rateWindow = 10
)

// Config tunes an Estimator. Zero values select documented defaults.
type Config struct {
	Retention   RetentionPolicy
	MaxSamples  int
	MaxAge      time.Duration
	Alpha       float64
	CVThreshold float64
	PauseWindow int
	Averaging   AverageStrategy
}

// Estimator ingests (bytes, total, timestamp) samples and derives percent,
// rate, and ETC with confidence. Safe for concurrent use.
type Estimator struct {
	mu sync.Mutex

	hist         *history
	totalBytes   int64
	alpha        float64
	cvThreshold  float64
	pauseWindow  int
	averaging    AverageStrategy
	smoothedRate float64
	hasSmoothed  bool
}

// NewEstimator creates an estimator with the given configuration.
func NewEstimator(cfg Config) *Estimator {
	alpha := cfg.Alpha
	if alpha <= 0 || alpha > 1 {
		alpha = defaultAlpha
	}
	cv := cfg.CVThreshold
	if cv <= 0 {
		cv = defaultCVThreshold
	}
	pw := cfg.PauseWindow
	if pw <= 0 {
		pw = defaultPauseWindow
	}
	avg := cfg.Averaging
	if avg == "" {
		avg = AverageSimple
	}
	return &Estimator{
		hist:        newHistory(cfg.Retention, cfg.MaxSamples, cfg.MaxAge),
		alpha:       alpha,
		cvThreshold: cv,
		pauseWindow: pw,
		averaging:   avg,
	}
}

// AddSample records one observation. Negative inputs are rejected with a
// validation error and leave state untouched.
func (e *Estimator) AddSample(bytesTransferred, totalBytes int64, at time.Time) error {
	if bytesTransferred < 0 || totalBytes < 0 {
		return fmt.Errorf("%w: transferred=%d total=%d", ErrNegativeInput, bytesTransferred, totalBytes)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.totalBytes = totalBytes
	e.hist.add(sample{bytes: bytesTransferred, at: at})

	// Keep the EMA rolling as samples arrive so MethodExponential reflects
	// the full stream, not just the retained window.
	if rates := e.hist.rates(); len(rates) > 0 {
		inst := rates[len(rates)-1]
		if !e.hasSmoothed {
			e.smoothedRate = inst
			e.hasSmoothed = true
		} else {
			e.smoothedRate = e.alpha*inst + (1-e.alpha)*e.smoothedRate
		}
	}
	return nil
}

// Reset clears history for a new lifecycle.
func (e *Estimator) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.hist = newHistory(e.hist.policy, e.hist.maxN, e.hist.maxAge)
	e.totalBytes = 0
	e.smoothedRate = 0
	e.hasSmoothed = false
}

// Percent returns completion in [0,100]. A zero total yields 0, never NaN.
func (e *Estimator) Percent() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.percentLocked()
}

func (e *Estimator) percentLocked() float64 {
	if e.totalBytes <= 0 || e.hist.len() == 0 {
		return 0
	}
	pct := float64(e.hist.last().bytes) / float64(e.totalBytes) * 100
	return clamp(pct, 0, 100)
}

// CurrentRate returns the recent transfer rate in bytes/s using the
// configured averaging strategy. Negative aggregate rates (shrinking
// trees) clamp to 0.
func (e *Estimator) CurrentRate() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return math.Max(0, e.currentRateLocked())
}

func (e *Estimator) currentRateLocked() float64 {
	rates := e.hist.rates()
	if len(rates) == 0 {
		return 0
	}
	if len(rates) > rateWindow {
		rates = rates[len(rates)-rateWindow:]
	}

	switch e.averaging {
	case AverageWeighted:
		var sum, wsum float64
		for i, r := range rates {
			w := float64(i + 1)
			sum += r * w
			wsum += w
		}
		return sum / wsum
	case AverageExponential:
		ema := rates[0]
		for _, r := range rates[1:] {
			ema = e.alpha*r + (1-e.alpha)*ema
		}
		return ema
	default:
		var sum float64
		for _, r := range rates {
			sum += r
		}
		return sum / float64(len(rates))
	}
}

// ETC estimates seconds to completion with the given method.
func (e *Estimator) ETC(method Method) ETCResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	// Edge cases shared by every method.
	if e.totalBytes == 0 {
		return withBand(ETCResult{Seconds: 0, Confidence: 1, Method: method})
	}
	if e.hist.len() > 0 && e.hist.last().bytes >= e.totalBytes {
		return withBand(ETCResult{Seconds: 0, Confidence: 1, Method: method})
	}
	if e.usableSamples() < 2 {
		return withBand(ETCResult{Seconds: 0, Confidence: 0.05, Method: method})
	}

	var res ETCResult
	switch method {
	case MethodExponential:
		res = e.etcExponential()
	case MethodAdaptive:
		res = e.etcAdaptive()
	default:
		res = e.etcLinear()
	}

	if e.paused() {
		res.Confidence *= 0.5
	}
	res.Confidence = clamp(res.Confidence, 0, 1)
	return withBand(res)
}

// Metrics bundles the estimator's current view into one value.
func (e *Estimator) Metrics(method Method) types.ProgressMetrics {
	etc := e.ETC(method)

	e.mu.Lock()
	var transferred int64
	if e.hist.len() > 0 {
		transferred = e.hist.last().bytes
	}
	total := e.totalBytes
	pct := e.percentLocked()
	rate := math.Max(0, e.currentRateLocked())
	e.mu.Unlock()

	return types.ProgressMetrics{
		Percent:          pct,
		BytesTransferred: transferred,
		TotalBytes:       total,
		RateBps:          rate,
		ETCSeconds:       etc.Seconds,
		Confidence:       etc.Confidence,
	}
}

// usableSamples counts samples that participate in rate computation: the
// first sample plus every later one with an advancing timestamp.
func (e *Estimator) usableSamples() int {
	if e.hist.len() < 2 {
		return e.hist.len()
	}
	return len(e.hist.rates()) + 1
}

// etcLinear projects from the first and most recent samples with differing
// byte counts.
func (e *Estimator) etcLinear() ETCResult {
	first := e.hist.first()
	last := e.hist.last()

	// Walk back to the most recent sample that differs from the first so a
	// trailing pause does not zero the window.
	if last.bytes == first.bytes {
		for _, s := range e.hist.samples {
			if s.bytes != first.bytes {
				last = s
			}
		}
	}

	dt := last.at.Sub(first.at).Seconds()
	db := float64(last.bytes - first.bytes)
	if dt <= 0 || db <= 0 {
		return ETCResult{Seconds: 0, Confidence: 0.05, Method: MethodLinear}
	}
	rate := db / dt

	remaining := float64(e.totalBytes - e.hist.last().bytes)
	return ETCResult{
		Seconds:    math.Max(0, remaining/rate),
		Confidence: e.stabilityConfidence(),
		Method:     MethodLinear,
	}
}

// etcExponential projects from the running EMA of instantaneous rates.
func (e *Estimator) etcExponential() ETCResult {
	if !e.hasSmoothed || e.smoothedRate <= 0 {
		return ETCResult{Seconds: 0, Confidence: 0.05, Method: MethodExponential}
	}
	remaining := float64(e.totalBytes - e.hist.last().bytes)
	return ETCResult{
		Seconds:    math.Max(0, remaining/e.smoothedRate),
		Confidence: e.stabilityConfidence(),
		Method:     MethodExponential,
	}
}

// etcAdaptive picks linear when recent rates are stable, exponential
// otherwise, and weights confidence by stability and recency.
func (e *Estimator) etcAdaptive() ETCResult {
	cv := e.rateCV()

	var res ETCResult
	if cv >= 0 && cv < e.cvThreshold {
		res = e.etcLinear()
	} else {
		res = e.etcExponential()
	}
	res.Method = MethodAdaptive
	res.Confidence = clamp(e.stabilityConfidence()*e.recencyConfidence(), 0, 1)
	return res
}

// rateCV is the coefficient of variation of recent instantaneous rates;
// -1 when undefined.
func (e *Estimator) rateCV() float64 {
	rates := e.hist.rates()
	if len(rates) < 2 {
		return -1
	}
	if len(rates) > rateWindow {
		rates = rates[len(rates)-rateWindow:]
	}
	var sum float64
	for _, r := range rates {
		sum += r
	}
	mean := sum / float64(len(rates))
	if mean <= 0 {
		return -1
	}
	var varsum float64
	for _, r := range rates {
		varsum += (r - mean) * (r - mean)
	}
	return math.Sqrt(varsum/float64(len(rates))) / mean
}

// stabilityConfidence maps rate volatility onto [0,1]: a perfectly steady
// rate scores near 1, a CV at or above 1 scores near the floor.
func (e *Estimator) stabilityConfidence() float64 {
	cv := e.rateCV()
	if cv < 0 {
		return 0.3
	}
	return clamp(1-cv, 0.1, 1)
}

// recencyConfidence decays with the age of the newest sample: fresh data
// within 10s scores 1, data older than 5 minutes scores the floor.
func (e *Estimator) recencyConfidence() float64 {
	age := time.Since(e.hist.last().at).Seconds()
	switch {
	case age <= 10:
		return 1
	case age >= 300:
		return 0.2
	default:
		return clamp(1-(age-10)/300, 0.2, 1)
	}
}

// paused reports whether the trailing pauseWindow samples carry identical
// byte counts.
func (e *Estimator) paused() bool {
	tail := e.hist.tail(e.pauseWindow)
	if len(tail) < e.pauseWindow {
		return false
	}
	for _, s := range tail[1:] {
		if s.bytes != tail[0].bytes {
			return false
		}
	}
	return true
}

func withBand(r ETCResult) ETCResult {
	r.Confidence = clamp(r.Confidence, 0, 1)
	r.ConfidenceMin = clamp(r.Confidence-confidenceBand, 0, 1)
	r.ConfidenceMax = clamp(r.Confidence+confidenceBand, 0, 1)
	return r
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}
