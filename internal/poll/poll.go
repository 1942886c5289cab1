// Package poll implements bounded polling: call a check until it yields a
// value or a wall-clock budget runs out.
//
// The budget is purely time-based. There is no attempt limit, so a slow check
// simply means fewer attempts. A check error counts as "no result yet" and
// polling continues; the last error is kept on the Result for reporting.
package poll

import (
	"context"
	"time"
)

// Clock abstracts time so tests can drive polling without sleeping.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// RealClock is the wall clock.
var RealClock Clock = realClock{}

// CheckFunc reports (value, true, nil) once the awaited condition holds.
type CheckFunc[T any] func(ctx context.Context) (T, bool, error)

// Result is the outcome of Poll. Found is false when the budget ran out.
type Result[T any] struct {
	Value    T
	Found    bool
	Attempts int
	Elapsed  time.Duration
	LastErr  error
}

// TimedOut reports whether polling ended without a value.
func (r Result[T]) TimedOut() bool { return !r.Found }

type options struct {
	clock     Clock
	onAttempt func(attempt int, found bool, err error)
}

// Option configures Poll.
type Option func(*options)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithOnAttempt registers a hook invoked after every check.
func WithOnAttempt(fn func(attempt int, found bool, err error)) Option {
	return func(o *options) { o.onAttempt = fn }
}

// Poll invokes check immediately and then every interval until it yields a
// value or timeout has elapsed since the call. Once the deadline has passed no
// further check is started. A wait that would cross the deadline is cut short
// so the timeout is reported promptly.
//
// The returned error is non-nil only when ctx is cancelled.
func Poll[T any](ctx context.Context, check CheckFunc[T], interval, timeout time.Duration, opts ...Option) (Result[T], error) {
	o := options{clock: RealClock}
	for _, opt := range opts {
		opt(&o)
	}

	var res Result[T]
	start := o.clock.Now()
	deadline := start.Add(timeout)

	for {
		if err := ctx.Err(); err != nil {
			res.Elapsed = o.clock.Now().Sub(start)
			return res, err
		}

		res.Attempts++
		v, ok, err := check(ctx)
		if err != nil {
			res.LastErr = err
			ok = false
		}
		if o.onAttempt != nil {
			o.onAttempt(res.Attempts, ok, err)
		}
		if ok {
			res.Value = v
			res.Found = true
			res.Elapsed = o.clock.Now().Sub(start)
			return res, nil
		}

		now := o.clock.Now()
		remaining := deadline.Sub(now)
		if remaining <= 0 {
			res.Elapsed = now.Sub(start)
			return res, nil
		}

		wait := interval
		if wait > remaining {
			wait = remaining
		}

		select {
		case <-ctx.Done():
			res.Elapsed = o.clock.Now().Sub(start)
			return res, ctx.Err()
		case <-o.clock.After(wait):
		}

		if !o.clock.Now().Before(deadline) {
			res.Elapsed = o.clock.Now().Sub(start)
			return res, nil
		}
	}
}

// Sleep waits for d on clock or until ctx is done.
func Sleep(ctx context.Context, clock Clock, d time.Duration) error {
	if err := ctx.Err(); err != nil || d <= 0 {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-clock.After(d):
		return nil
	}
}
