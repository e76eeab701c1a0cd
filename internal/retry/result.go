package retry

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// maxRetryAfterSeconds is the largest wait a time.Duration can hold.
const maxRetryAfterSeconds = math.MaxInt64 / int64(time.Second)

// ThrottledError is the upstream quota signal. RetryAfter holds the raw
// Retry-After value and is empty when the server did not suggest a wait.
type ThrottledError struct {
	RetryAfter string
}

func (e *ThrottledError) Error() string {
	if e.RetryAfter == "" {
		return "upstream throttled the request"
	}
	return fmt.Sprintf("upstream throttled the request (retry after %s)", e.RetryAfter)
}

// RetryAfterSeconds parses RetryAfter as delta-seconds. Negative values and
// values too large for a time.Duration are rejected.
func (e *ThrottledError) RetryAfterSeconds() (int64, bool) {
	if e.RetryAfter == "" {
		return 0, false
	}
	secs, err := strconv.ParseInt(strings.TrimSpace(e.RetryAfter), 10, 64)
	if err != nil || secs < 0 || secs > maxRetryAfterSeconds {
		return 0, false
	}
	return secs, true
}

type outcome int

const (
	outcomeOK outcome = iota
	outcomeThrottled
	outcomeFatal
)

// Result is what an Operation reports back to the executor.
type Result[T any] struct {
	outcome   outcome
	value     T
	throttled *ThrottledError
	err       error
}

// Ok is a successful result.
func Ok[T any](v T) Result[T] {
	return Result[T]{outcome: outcomeOK, value: v}
}

// Throttled asks the executor to back off and try again.
func Throttled[T any](e *ThrottledError) Result[T] {
	if e == nil {
		e = &ThrottledError{}
	}
	return Result[T]{outcome: outcomeThrottled, throttled: e, err: e}
}

// Fatal ends the loop with err.
func Fatal[T any](err error) Result[T] {
	return Result[T]{outcome: outcomeFatal, err: err}
}

// From classifies a conventional (value, error) pair. Errors wrapping a
// *ThrottledError are retryable; the original error is what propagates once
// the budget runs out.
func From[T any](v T, err error) Result[T] {
	if err == nil {
		return Ok(v)
	}
	var te *ThrottledError
	if errors.As(err, &te) {
		return Result[T]{outcome: outcomeThrottled, throttled: te, err: err}
	}
	return Fatal[T](err)
}
