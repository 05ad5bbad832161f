// Package retry runs operations against flaky external services with
// exponential backoff. Every remote call in ficherag goes through a Policy.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrInvalidMaxAttempts is returned when a policy allows no attempt at all
var ErrInvalidMaxAttempts = errors.New("max attempts must be greater than 0")

// Policy configures exponential backoff
type Policy struct {
	MaxAttempts int           `koanf:"max_attempts" yaml:"max_attempts"`
	BaseDelay   time.Duration `koanf:"base_delay" yaml:"base_delay"`
	MaxDelay    time.Duration `koanf:"max_delay" yaml:"max_delay"`
	Multiplier  float64       `koanf:"multiplier" yaml:"multiplier"`
}

// DefaultPolicy returns the policy used for embedding, generation and storage calls
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
		Multiplier:  2.0,
	}
}

// NoRetry makes a single attempt
func NoRetry() Policy {
	return Policy{MaxAttempts: 1}
}

// Validate checks the policy values
func (p Policy) Validate() error {
	if p.MaxAttempts <= 0 {
		return ErrInvalidMaxAttempts
	}
	if p.BaseDelay < 0 || p.MaxDelay < 0 {
		return fmt.Errorf("retry delays must not be negative")
	}
	return nil
}

// Delay returns the wait before attempt n+1, n starting at 1
func (p Policy) Delay(n int) time.Duration {
	multiplier := p.Multiplier
	if multiplier < 1 {
		multiplier = 1
	}
	delay := p.BaseDelay
	for i := 1; i < n; i++ {
		delay = time.Duration(float64(delay) * multiplier)
		if p.MaxDelay > 0 && delay > p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so that Do stops retrying and returns it immediately
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Do executes fn until it succeeds, returns a permanent error, the context is
// done or the policy runs out of attempts. The last error is returned.
func Do[T any](ctx context.Context, policy Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if policy.MaxAttempts <= 0 {
		return zero, ErrInvalidMaxAttempts
	}

	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				slog.Debug("operation succeeded after retry", "attempt", attempt)
			}
			return result, nil
		}
		lastErr = err

		var perm *permanentError
		if errors.As(err, &perm) {
			if err == error(perm) {
				return zero, perm.err
			}
			return zero, err
		}
		if attempt == policy.MaxAttempts {
			break
		}

		slog.Debug("operation failed, will retry",
			"attempt", attempt,
			"max_attempts", policy.MaxAttempts,
			"error", err)

		timer := time.NewTimer(policy.Delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}
	return zero, lastErr
}

// DoErr is Do for operations that only return an error
func DoErr(ctx context.Context, policy Policy, fn func(ctx context.Context) error) error {
	_, err := Do(ctx, policy, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}
