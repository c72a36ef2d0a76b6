package progress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

// feedSteady adds n samples advancing by stepBytes per second.
func feedSteady(t *testing.T, e *Estimator, n int, stepBytes, total int64) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, e.AddSample(int64(i)*stepBytes, total, t0.Add(time.Duration(i)*time.Second)))
	}
}

func TestAddSampleRejectsNegatives(t *testing.T) {
	e := NewEstimator(Config{})

	assert.ErrorIs(t, e.AddSample(-1, 100, t0), ErrNegativeInput)
	assert.ErrorIs(t, e.AddSample(1, -100, t0), ErrNegativeInput)

	// Estimator stays usable after a rejected sample.
	require.NoError(t, e.AddSample(50, 100, t0))
	assert.Equal(t, 50.0, e.Percent())
}

func TestPercentBounds(t *testing.T) {
	e := NewEstimator(Config{})

	assert.Equal(t, 0.0, e.Percent(), "no samples")

	require.NoError(t, e.AddSample(0, 0, t0))
	assert.Equal(t, 0.0, e.Percent(), "zero total must not be NaN")

	require.NoError(t, e.AddSample(150, 100, t0.Add(time.Second)))
	assert.Equal(t, 100.0, e.Percent(), "overshoot clamps to 100")
}

func TestLinearETC(t *testing.T) {
	e := NewEstimator(Config{})
	// 100 B/s toward 1000 bytes, currently at 400.
	feedSteady(t, e, 5, 100, 1000)

	res := e.ETC(MethodLinear)
	assert.Equal(t, MethodLinear, res.Method)
	assert.InDelta(t, 6.0, res.Seconds, 0.01, "600 bytes left at 100 B/s")
	assert.Greater(t, res.Confidence, 0.5, "steady rate is high confidence")
	assert.LessOrEqual(t, res.ConfidenceMax, 1.0)
	assert.GreaterOrEqual(t, res.ConfidenceMin, 0.0)
}

func TestExponentialETC(t *testing.T) {
	e := NewEstimator(Config{Alpha: 0.5})
	feedSteady(t, e, 5, 100, 1000)

	res := e.ETC(MethodExponential)
	assert.Equal(t, MethodExponential, res.Method)
	// Steady stream: EMA equals the instantaneous rate.
	assert.InDelta(t, 6.0, res.Seconds, 0.01)
}

func TestAdaptivePicksAndClips(t *testing.T) {
	e := NewEstimator(Config{})
	feedSteady(t, e, 8, 100, 10000)

	res := e.ETC(MethodAdaptive)
	assert.Equal(t, MethodAdaptive, res.Method)
	assert.GreaterOrEqual(t, res.Confidence, 0.0)
	assert.LessOrEqual(t, res.Confidence, 1.0)
	assert.Greater(t, res.Seconds, 0.0)
}

func TestCompleteTransfer(t *testing.T) {
	e := NewEstimator(Config{})
	require.NoError(t, e.AddSample(0, 1000, t0))
	require.NoError(t, e.AddSample(1000, 1000, t0.Add(10*time.Second)))

	for _, m := range []Method{MethodLinear, MethodExponential, MethodAdaptive} {
		res := e.ETC(m)
		assert.Equal(t, 0.0, res.Seconds, string(m))
		assert.Equal(t, 1.0, res.Confidence, string(m))
	}
}

func TestZeroTotal(t *testing.T) {
	e := NewEstimator(Config{})
	require.NoError(t, e.AddSample(0, 0, t0))

	res := e.ETC(MethodLinear)
	assert.Equal(t, 0.0, res.Seconds)
}

func TestTooFewSamples(t *testing.T) {
	e := NewEstimator(Config{})
	require.NoError(t, e.AddSample(100, 1000, t0))

	res := e.ETC(MethodLinear)
	assert.Equal(t, 0.0, res.Seconds)
	assert.Less(t, res.Confidence, 0.2, "single sample means near-zero confidence")
}

func TestPausedTransferLowersConfidence(t *testing.T) {
	steady := NewEstimator(Config{})
	feedSteady(t, steady, 6, 100, 10000)
	base := steady.ETC(MethodLinear).Confidence

	paused := NewEstimator(Config{})
	feedSteady(t, paused, 6, 100, 10000)
	// Three identical trailing samples mark a pause.
	for i := 6; i < 9; i++ {
		require.NoError(t, paused.AddSample(500, 10000, t0.Add(time.Duration(i)*time.Second)))
	}

	assert.Less(t, paused.ETC(MethodLinear).Confidence, base)
	assert.Equal(t, 9, paused.usableSamples(), "pause keeps samples in history")
}

func TestCurrentRateStrategies(t *testing.T) {
	for _, strat := range []AverageStrategy{AverageSimple, AverageWeighted, AverageExponential} {
		e := NewEstimator(Config{Averaging: strat})
		feedSteady(t, e, 5, 100, 10000)
		assert.InDelta(t, 100.0, e.CurrentRate(), 0.01, string(strat))
	}
}

func TestCurrentRateNeverNegative(t *testing.T) {
	e := NewEstimator(Config{})
	require.NoError(t, e.AddSample(1000, 10000, t0))
	require.NoError(t, e.AddSample(500, 10000, t0.Add(time.Second)))

	assert.GreaterOrEqual(t, e.CurrentRate(), 0.0)
}

func TestCountRetention(t *testing.T) {
	e := NewEstimator(Config{MaxSamples: 5})
	feedSteady(t, e, 20, 100, 100000)

	assert.Equal(t, 5, e.hist.len())
}

func TestAgeRetention(t *testing.T) {
	e := NewEstimator(Config{Retention: RetainByAge, MaxAge: 10 * time.Second})
	feedSteady(t, e, 30, 100, 100000)

	for _, s := range e.hist.samples {
		assert.False(t, s.at.Before(t0.Add(19*time.Second)))
	}
}

func TestMetricsInvariants(t *testing.T) {
	e := NewEstimator(Config{})
	feedSteady(t, e, 5, 100, 1000)

	m := e.Metrics(MethodAdaptive)
	assert.GreaterOrEqual(t, m.Percent, 0.0)
	assert.LessOrEqual(t, m.Percent, 100.0)
	assert.GreaterOrEqual(t, m.ETCSeconds, 0.0)
	assert.GreaterOrEqual(t, m.Confidence, 0.0)
	assert.LessOrEqual(t, m.Confidence, 1.0)
	assert.GreaterOrEqual(t, m.RateBps, 0.0)
}

func TestReset(t *testing.T) {
	e := NewEstimator(Config{})
	feedSteady(t, e, 5, 100, 1000)
	e.Reset()

	assert.Equal(t, 0.0, e.Percent())
	assert.Equal(t, 0, e.hist.len())
}
