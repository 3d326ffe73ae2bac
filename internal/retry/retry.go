// Package retry runs an operation with exponential backoff and jitter.
// FairShare uses it while bringing up its Postgres and Redis connections.
package retry

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

// PermanentError wraps an error that should not be retried.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so that Do will not retry it.
func Permanent(err error) error {
	return &PermanentError{Err: err}
}

type settings struct {
	maxDelay time.Duration
	onRetry  func(attempt int, err error, wait time.Duration)
}

// Option tunes Do.
type Option func(*settings)

// WithMaxDelay caps the backoff between attempts.
func WithMaxDelay(d time.Duration) Option {
	return func(s *settings) { s.maxDelay = d }
}

// OnRetry is called before each backoff sleep with the 1-based number of
// the attempt that failed.
func OnRetry(fn func(attempt int, err error, wait time.Duration)) Option {
	return func(s *settings) { s.onRetry = fn }
}

// Do calls fn up to maxAttempts times. It stops early when fn succeeds,
// returns a *PermanentError, or ctx is done. baseDelay doubles after each
// failure with ±25% jitter.
func Do(ctx context.Context, maxAttempts int, baseDelay time.Duration, fn func() error, opts ...Option) error {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	var s settings
	for _, opt := range opts {
		opt(&s)
	}

	var err error
	delay := baseDelay
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}

		var pe *PermanentError
		if errors.As(err, &pe) {
			return pe.Err
		}
		if attempt == maxAttempts {
			break
		}

		wait := jittered(delay)
		if s.onRetry != nil {
			s.onRetry(attempt, err, wait)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
		if s.maxDelay > 0 && delay > s.maxDelay {
			delay = s.maxDelay
		}
	}
	return err
}

func jittered(d time.Duration) time.Duration {
	jitter := d / 4
	if jitter <= 0 {
		return d
	}
	return d - jitter + rand.N(2*jitter+1)
}
