// Package retry is the bounded-retry helper used wherever the client waits
// out a transient condition: version conflicts on the local store, rate
// limiting from the backend, and profile rows that appear some time after
// sign-up.
//
// Errors are classified by the callee. Wrapping an error with Retryable
// marks it as transient; any other error ends the loop immediately.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/juju/clock"
	jujuretry "github.com/juju/retry"
	"go.uber.org/zap"
)

// Policy bounds a retry loop.
type Policy struct {
	// Attempts is the total number of calls, including the first.
	Attempts int

	// Delay is the wait before the second call.
	Delay time.Duration

	// MaxDelay caps the delay when Backoff is set. Zero means no cap.
	MaxDelay time.Duration

	// Backoff doubles the delay after every failed attempt.
	Backoff bool

	Clock  clock.Clock
	Logger *zap.Logger
}

// Default is a short policy for local contention.
var Default = Policy{
	Attempts: 5,
	Delay:    20 * time.Millisecond,
	MaxDelay: 500 * time.Millisecond,
	Backoff:  true,
}

// WithLogger returns a copy of p that logs through l.
func (p Policy) WithLogger(l *zap.Logger) Policy {
	p.Logger = l
	return p
}

func (p Policy) withDefaults() Policy {
	if p.Attempts <= 0 {
		p.Attempts = 1
	}
	if p.Delay <= 0 {
		p.Delay = time.Millisecond
	}
	if p.Clock == nil {
		p.Clock = clock.WallClock
	}
	if p.Logger == nil {
		p.Logger = zap.NewNop()
	}
	return p
}

type retryableError struct {
	err error
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

// Retryable marks err as transient. A nil error stays nil.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &retryableError{err: err}
}

// IsRetryable reports whether err was marked with Retryable.
func IsRetryable(err error) bool {
	var r *retryableError
	return errors.As(err, &r)
}

func strip(err error) error {
	var r *retryableError
	if errors.As(err, &r) {
		return r.err
	}
	return err
}

// Do calls fn until it succeeds, returns an error not marked Retryable, the
// attempts run out or ctx is done. The error returned on exhaustion wraps the
// last error fn returned.
func Do(ctx context.Context, name string, p Policy, fn func() error) error {
	p = p.withDefaults()
	log := p.Logger.With(zap.String("op", name))

	var lastErr error
	args := jujuretry.CallArgs{
		Func: func() error {
			lastErr = fn()
			return lastErr
		},
		IsFatalError: func(err error) bool {
			return !IsRetryable(err)
		},
		NotifyFunc: func(err error, attempt int) {
			log.Debug("attempt failed", zap.Int("attempt", attempt), zap.Error(err))
		},
		Attempts: p.Attempts,
		Delay:    p.Delay,
		MaxDelay: p.MaxDelay,
		Clock:    p.Clock,
		Stop:     ctx.Done(),
	}
	if p.Backoff {
		args.BackoffFunc = jujuretry.DoubleDelay
	}

	err := jujuretry.Call(args)
	switch {
	case err == nil:
		return nil
	case jujuretry.IsAttemptsExceeded(err):
		log.Warn("giving up", zap.Int("attempts", p.Attempts), zap.Error(lastErr))
		return fmt.Errorf("%s: giving up after %d attempts: %w", name, p.Attempts, strip(lastErr))
	case jujuretry.IsRetryStopped(err):
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%s: %w", name, ctxErr)
		}
		return fmt.Errorf("%s: %w", name, strip(lastErr))
	}
	return strip(err)
}
