package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

// DefaultRetryAfterInterval is used when the server's Retry-After cannot be parsed.
const DefaultRetryAfterInterval = 5000 * time.Millisecond

// ErrInterrupted is returned when the caller's context ends during a backoff sleep.
var ErrInterrupted = errors.New("retry interrupted")

// Operation is one attempt of a protected call.
type Operation[T any] func(ctx context.Context) Result[T]

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Observer counts retry decisions.
type Observer interface {
	RecordRetry(outcome string)
}

// Executor holds only immutable collaborators, so one instance can serve
// concurrent calls.
type Executor struct {
	logger   *zap.Logger
	sleep    Sleeper
	observer Observer
}

// Option customizes an Executor.
type Option func(*Executor)

// WithSleeper replaces the timer based sleep.
func WithSleeper(s Sleeper) Option {
	return func(e *Executor) { e.sleep = s }
}

// WithObserver reports retry outcomes to o.
func WithObserver(o Observer) Option {
	return func(e *Executor) { e.observer = o }
}

// NewExecutor builds an executor.
func NewExecutor(logger *zap.Logger, opts ...Option) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Executor{logger: logger, sleep: sleepContext}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// newBackOff returns a deterministic doubling schedule starting at initial.
// It is created per Run call and never shared.
func newBackOff(initial time.Duration) *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = initial
	bo.RandomizationFactor = 0
	bo.Multiplier = 2
	bo.MaxInterval = time.Duration(math.MaxInt64)
	bo.Reset()
	return bo
}

// Run invokes op until it succeeds, fails with a non-throttling error, or
// has been retried maxRetries times. Waits come from the server's
// Retry-After when given, otherwise from an interval that starts at
// initialInterval and doubles after every retry. Errors propagate unchanged,
// except a cancelled backoff which yields ErrInterrupted.
func Run[T any](ctx context.Context, e *Executor, op Operation[T], maxRetries int, initialInterval time.Duration) (T, error) {
	var zero T
	bo := newBackOff(initialInterval)

	for attempt := 0; ; attempt++ {
		res := op(ctx)
		switch res.outcome {
		case outcomeOK:
			if attempt > 0 {
				e.record("recovered")
			}
			return res.value, nil
		case outcomeFatal:
			return zero, res.err
		}

		if attempt >= maxRetries {
			e.record("exhausted")
			e.logger.Warn("retry budget exhausted",
				zap.Int("attempts", attempt+1),
				zap.Int("max_retries", maxRetries))
			return zero, res.err
		}

		wait := e.waitFor(res.throttled, bo.NextBackOff())
		e.record("retried")
		e.logger.Info("upstream throttled, backing off",
			zap.Int("retry", attempt+1),
			zap.Duration("wait", wait))

		if err := e.sleep(ctx, wait); err != nil {
			e.record("interrupted")
			return zero, fmt.Errorf("%w: %w", ErrInterrupted, err)
		}
	}
}

func (e *Executor) waitFor(te *ThrottledError, interval time.Duration) time.Duration {
	if te == nil || te.RetryAfter == "" {
		return interval
	}
	secs, ok := te.RetryAfterSeconds()
	if !ok {
		e.logger.Warn("unparseable Retry-After, using default interval",
			zap.String("retry_after", te.RetryAfter),
			zap.Duration("wait", DefaultRetryAfterInterval))
		return DefaultRetryAfterInterval
	}
	return time.Duration(secs) * time.Second
}

func (e *Executor) record(outcome string) {
	if e.observer != nil {
		e.observer.RecordRetry(outcome)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
