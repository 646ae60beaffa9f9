// SPDX-FileCopyrightText: 2024 Sascha Brawer <sascha@brawer.ch>
// SPDX-License-Identifier: MIT

package fetch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy tells how often, and how patiently, to retry an operation.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first one.
	MaxAttempts int

	// BaseDelay is the wait after the first failed attempt. After the
	// n-th failed attempt (counting from zero), we wait BaseDelay·2ⁿ.
	BaseDelay time.Duration

	// Timeout limits how long an attempt may go without progress.
	// Operations report progress by calling Alive; one that never
	// does gets Timeout for the entire attempt. Zero means no limit.
	Timeout time.Duration

	// Jitter randomizes delays by up to ±Jitter·delay. Zero means exact delays.
	Jitter float64
}

// DefaultPolicy makes five attempts, waiting 1, 2, 4 and 8 seconds
// between them, and abandons an attempt after ten seconds without progress.
var DefaultPolicy = Policy{
	MaxAttempts: 5,
	BaseDelay:   time.Second,
	Timeout:     10 * time.Second,
}

func (p Policy) backOff(ctx context.Context) backoff.BackOff {
	attempts := max(p.MaxAttempts, 1)
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.BaseDelay
	exp.Multiplier = 2
	exp.RandomizationFactor = p.Jitter
	exp.MaxInterval = p.BaseDelay << attempts
	exp.MaxElapsedTime = 0
	exp.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(attempts-1)), ctx)
}

// ErrStalled tells that an attempt made no progress for longer
// than the policy allows.
var ErrStalled = errors.New("no progress")

type watchdogKey struct{}

// Watchdog cancels an attempt unless it gets kicked in time.
type watchdog struct {
	timer   *time.Timer
	timeout time.Duration
}

func (w *watchdog) kick() {
	w.timer.Reset(w.timeout)
}

// Alive tells the retry helper that the operation running under ctx
// is still making progress, such as receiving data. Outside of Do,
// Alive does nothing.
func Alive(ctx context.Context) {
	if w, ok := ctx.Value(watchdogKey{}).(*watchdog); ok {
		w.kick()
	}
}

// Permanent wraps an error so that Do gives up immediately.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Do calls op until it succeeds or the policy is exhausted, and returns
// the error of the last attempt. There is no wait after the final attempt.
// If the policy has a timeout, op receives a context that gets
// canceled once op has not called Alive for that long.
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error) error {
	return DoNotify(ctx, p, op, nil)
}

// DoNotify is like Do, but calls notify after every failed attempt that
// will be retried, telling the error and how long we will wait.
func DoNotify(ctx context.Context, p Policy, op func(ctx context.Context) error, notify func(err error, wait time.Duration)) error {
	attempt := func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		if p.Timeout <= 0 {
			return op(ctx)
		}

		actx, cancel := context.WithCancelCause(ctx)
		defer cancel(nil)
		w := &watchdog{timeout: p.Timeout}
		w.timer = time.AfterFunc(p.Timeout, func() { cancel(ErrStalled) })
		defer w.timer.Stop()

		err := op(context.WithValue(actx, watchdogKey{}, w))
		if err != nil && errors.Is(context.Cause(actx), ErrStalled) {
			return fmt.Errorf("%w for %v: %v", ErrStalled, p.Timeout, err)
		}
		return err
	}

	return backoff.RetryNotify(attempt, p.backOff(ctx), notify)
}
