// Package retry runs bounded polling loops on top of cenkalti/backoff.
//
// A Policy caps the number of attempts and chooses constant or exponential
// spacing. Waits go through a pluggable sleep so tests never block.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrExhausted is returned when every attempt ran without completing.
var ErrExhausted = errors.New("retry attempts exhausted")

// errPending marks an attempt that finished cleanly but is not done yet.
var errPending = errors.New("not done")

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(context.Context, time.Duration) error

// Policy bounds a polling loop.
type Policy struct {
	MaxAttempts int
	Interval    time.Duration
	// Multiplier grows the interval after each attempt when greater than 1.
	Multiplier  float64
	MaxInterval time.Duration
	// Sleep replaces the context-aware wait; tests use it to skip real delays.
	Sleep SleepFunc
}

// Fixed returns a policy with a constant interval.
func Fixed(attempts int, interval time.Duration) Policy {
	return Policy{MaxAttempts: attempts, Interval: interval}
}

// BackOff returns the policy's spacing capped at MaxAttempts tries.
func (p Policy) BackOff() backoff.BackOff {
	return Capped(p.spacing(), p.MaxAttempts)
}

func (p Policy) spacing() backoff.BackOff {
	if p.Multiplier <= 1 {
		return backoff.NewConstantBackOff(p.Interval)
	}
	return Exponential(p.Interval, p.MaxInterval, p.Multiplier)
}

// Exponential returns deterministic exponential spacing starting at initial
// and capped at maxInterval. Elapsed time is unbounded; cap attempts with
// Capped.
func Exponential(initial, maxInterval time.Duration, multiplier float64) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	b.Multiplier = multiplier
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	if maxInterval > 0 {
		b.MaxInterval = maxInterval
	} else {
		b.MaxInterval = time.Duration(1<<63 - 1)
	}
	b.Reset()
	return b
}

// Capped limits b to attempts calls in total, so attempts-1 waits.
func Capped(b backoff.BackOff, attempts int) backoff.BackOff {
	if attempts <= 1 {
		return &backoff.StopBackOff{}
	}
	return backoff.WithMaxRetries(b, uint64(attempts-1))
}

// Permanent marks err as not worth retrying. Poll and Do return it unwrapped.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}

// Do runs op until it succeeds, returns a Permanent error, b stops, or ctx is
// done. It returns op's last error, or ctx's error after cancellation.
func Do(ctx context.Context, b backoff.BackOff, sleep SleepFunc, op func() error) error {
	if sleep == nil {
		sleep = Sleep
	}
	err := backoff.RetryNotifyWithTimer(op, backoff.WithContext(b, ctx), nil, &sleepTimer{ctx: ctx, sleep: sleep})
	if ctxErr := ctx.Err(); ctxErr != nil && err != nil {
		return ctxErr
	}
	return err
}

// Poll calls fn until it reports done, returns a permanent error, or the
// attempts run out. It waits between attempts, not after the last one.
// The returned int is the number of attempts made.
func Poll(ctx context.Context, policy Policy, fn func(ctx context.Context, attempt int) (bool, error)) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	attempt := 0
	permanent := false
	err := Do(ctx, policy.BackOff(), policy.Sleep, func() error {
		attempt++
		done, err := fn(ctx, attempt)
		var perm *backoff.PermanentError
		switch {
		case done:
			return nil
		case errors.As(err, &perm):
			permanent = true
			return err
		case err != nil:
			return err
		default:
			return errPending
		}
	})
	if err == nil || permanent || ctx.Err() != nil {
		return attempt, err
	}
	if errors.Is(err, errPending) {
		return attempt, fmt.Errorf("%w after %d attempts", ErrExhausted, attempt)
	}
	return attempt, fmt.Errorf("%w after %d attempts: %w", ErrExhausted, attempt, err)
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
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

// sleepTimer adapts a SleepFunc to backoff.Timer. Start blocks for the wait
// and then fires the channel.
type sleepTimer struct {
	ctx   context.Context
	sleep SleepFunc
	c     chan time.Time
}

func (t *sleepTimer) Start(d time.Duration) {
	if t.c == nil {
		t.c = make(chan time.Time, 1)
	}
	_ = t.sleep(t.ctx, d)
	t.c <- time.Now()
}

func (t *sleepTimer) Stop() {}

func (t *sleepTimer) C() <-chan time.Time { return t.c }
