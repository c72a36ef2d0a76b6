package retry

import (
	"context"
	"errors"
	"io/fs"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moverwatch/moverwatch/pkg/breaker"
)

var errFlaky = errors.New("transient")

func fastOpts() Options {
	return Options{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxBackoff: 10 * time.Millisecond}
}

func TestSucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := Execute(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errFlaky
		}
		return nil
	}, fastOpts())

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestExhaustedWrapsLastCause(t *testing.T) {
	calls := 0
	err := Execute(context.Background(), func(ctx context.Context) error {
		calls++
		return errFlaky
	}, fastOpts())

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExhausted)
	assert.ErrorIs(t, err, errFlaky)
	assert.Equal(t, 3, calls)
}

func TestPermanentErrorAbortsImmediately(t *testing.T) {
	calls := 0
	err := Execute(context.Background(), func(ctx context.Context) error {
		calls++
		return fs.ErrPermission
	}, fastOpts())

	require.ErrorIs(t, err, fs.ErrPermission)
	assert.NotErrorIs(t, err, ErrExhausted)
	assert.Equal(t, 1, calls)
}

func TestTimeoutBoundsWholeCall(t *testing.T) {
	opts := fastOpts()
	opts.MaxAttempts = 100
	opts.BaseDelay = 20 * time.Millisecond
	opts.Timeout = 50 * time.Millisecond

	start := time.Now()
	err := Execute(context.Background(), func(ctx context.Context) error {
		return errFlaky
	}, opts)

	require.Error(t, err)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestBreakerRejectionIsPermanent(t *testing.T) {
	m := breaker.NewManager(breaker.Settings{FailureThreshold: 1, Cooldown: time.Hour})
	// Trip the breaker.
	require.Error(t, m.Execute("p", func() error { return errFlaky }))

	calls := 0
	opts := fastOpts()
	opts.Breaker = m
	opts.BreakerName = "p"
	err := Execute(context.Background(), func(ctx context.Context) error {
		calls++
		return nil
	}, opts)

	assert.ErrorIs(t, err, breaker.ErrOpen)
	assert.Equal(t, 0, calls, "open breaker rejects before the op runs")
}

// rateLimited carries a server-requested wait.
type rateLimited struct{ after time.Duration }

func (r *rateLimited) Error() string             { return "rate limited" }
func (r *rateLimited) RetryAfter() time.Duration { return r.after }

func TestRetryAfterFloorsBackoff(t *testing.T) {
	calls := 0
	var gaps []time.Time
	err := Execute(context.Background(), func(ctx context.Context) error {
		gaps = append(gaps, time.Now())
		calls++
		if calls == 1 {
			return &rateLimited{after: 200 * time.Millisecond}
		}
		return nil
	}, fastOpts())

	require.NoError(t, err)
	require.Equal(t, 2, calls)
	assert.GreaterOrEqual(t, gaps[1].Sub(gaps[0]), 200*time.Millisecond)
}

func TestContextCancelAborts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Execute(ctx, func(ctx context.Context) error {
		return errFlaky
	}, fastOpts())
	require.Error(t, err)
}
