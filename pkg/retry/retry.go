package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/moverwatch/moverwatch/pkg/breaker"
	"github.com/moverwatch/moverwatch/pkg/failure"
)

// ErrExhausted wraps the last cause after every attempt failed.
var ErrExhausted = errors.New("retries exhausted")

const (
	// DefaultMaxAttempts bounds total attempts including the first.
	DefaultMaxAttempts = 3
	// DefaultBaseDelay is the first backoff interval.
	DefaultBaseDelay = 500 * time.Millisecond
	// DefaultMaxBackoff caps the exponential schedule.
	DefaultMaxBackoff = 30 * time.Second
)

// RetryAfter is implemented by errors that carry an explicit server-side
// wait (rate-limit responses). The next backoff interval is at least this
// long.
type RetryAfter interface {
	RetryAfter() time.Duration
}

// Options tunes one Execute call.
type Options struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxBackoff  time.Duration
	Jitter      bool
	// Breaker, when set with BreakerName, wraps every attempt in the named
	// circuit breaker. An open breaker fails the call immediately.
	Breaker     *breaker.Manager
	BreakerName string
	// Timeout bounds the whole call including backoff sleeps.
	Timeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = DefaultBaseDelay
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = DefaultMaxBackoff
	}
	return o
}

// Execute runs op with exponential backoff. Permanent failures (permission,
// validation, explicit do-not-retry, breaker rejection) and context expiry
// abort immediately; transient failures are retried until attempts run out,
// at which point the error wraps ErrExhausted with the last cause.
//
// This is the single backoff loop in the system: callers that also consult
// the failure package for a recovery strategy decide whether to call
// Execute, never how often.
func Execute(ctx context.Context, op func(ctx context.Context) error, opts Options) error {
	opts = opts.withDefaults()

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = opts.BaseDelay
	exp.MaxInterval = opts.MaxBackoff
	exp.Multiplier = 2
	exp.MaxElapsedTime = 0
	if opts.Jitter {
		// Uniform jitter around the exponential interval.
		exp.RandomizationFactor = 0.25
	} else {
		exp.RandomizationFactor = 0
	}

	floor := &retryAfterFloor{inner: exp}
	var bo backoff.BackOff = backoff.WithContext(
		backoff.WithMaxRetries(floor, uint64(opts.MaxAttempts-1)), ctx)

	attempts := 0
	lastTransient := false
	err := backoff.Retry(func() error {
		attempts++

		attemptErr := invoke(ctx, op, opts)
		if attemptErr == nil {
			lastTransient = false
			return nil
		}

		if failure.Permanent(attemptErr) ||
			errors.Is(attemptErr, breaker.ErrOpen) ||
			errors.Is(attemptErr, context.DeadlineExceeded) ||
			errors.Is(attemptErr, context.Canceled) {
			lastTransient = false
			return backoff.Permanent(attemptErr)
		}

		var ra RetryAfter
		if errors.As(attemptErr, &ra) {
			floor.setFloor(ra.RetryAfter())
		}

		lastTransient = true
		return attemptErr
	}, bo)

	if err == nil {
		return nil
	}
	if lastTransient && attempts >= opts.MaxAttempts {
		return fmt.Errorf("%w after %d attempts: %w", ErrExhausted, attempts, err)
	}
	return err
}

func invoke(ctx context.Context, op func(ctx context.Context) error, opts Options) error {
	if opts.Breaker != nil && opts.BreakerName != "" {
		return opts.Breaker.Execute(opts.BreakerName, func() error {
			return op(ctx)
		})
	}
	return op(ctx)
}

// retryAfterFloor raises the next interval to at least the server-requested
// wait, then clears the floor.
type retryAfterFloor struct {
	inner backoff.BackOff
	floor time.Duration
}

func (r *retryAfterFloor) setFloor(d time.Duration) {
	if d > r.floor {
		r.floor = d
	}
}

func (r *retryAfterFloor) NextBackOff() time.Duration {
	next := r.inner.NextBackOff()
	if next == backoff.Stop {
		return next
	}
	if r.floor > next {
		next = r.floor
	}
	r.floor = 0
	return next
}

func (r *retryAfterFloor) Reset() {
	r.floor = 0
	r.inner.Reset()
}
