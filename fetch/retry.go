package fetch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dnldd/breakout/shared"
	"github.com/rs/zerolog"
)

const (
	// defaultAttemptTimeout is the default deadline for a single fetch attempt.
	defaultAttemptTimeout = time.Second * 10
)

var (
	// ErrUnauthorized is returned when the provider rejects the access credentials.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrMalformedPayload is returned when a response is missing an expected field.
	ErrMalformedPayload = errors.New("malformed payload")
)

// Kind represents the category of a fetch failure.
type Kind int

const (
	KindExhausted Kind = iota
	KindTerminal
	KindCancelled
)

// String stringifies the provided kind.
func (k Kind) String() string {
	switch k {
	case KindExhausted:
		return "exhausted"
	case KindTerminal:
		return "terminal"
	case KindCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// FetchError represents a failed fetch operation.
type FetchError struct {
	Kind     Kind
	Op       string
	Attempts int
	Cause    error
}

// Error returns the error message.
func (e *FetchError) Error() string {
	return fmt.Sprintf("%s: %s after %d attempt(s): %v", e.Op, e.Kind.String(), e.Attempts, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *FetchError) Unwrap() error {
	return e.Cause
}

// terminalError marks an error as not worth retrying.
type terminalError struct {
	err error
}

func (e *terminalError) Error() string { return e.err.Error() }
func (e *terminalError) Unwrap() error { return e.err }

// Terminal marks the provided error as non-retryable.
func Terminal(err error) error {
	if err == nil {
		return nil
	}
	return &terminalError{err: err}
}

// IsTerminal checks whether the provided error was marked non-retryable.
func IsTerminal(err error) bool {
	var terr *terminalError
	return errors.As(err, &terr)
}

// IsCancelled checks whether the provided error is a cancelled fetch.
func IsCancelled(err error) bool {
	var ferr *FetchError
	return errors.As(err, &ferr) && ferr.Kind == KindCancelled
}

// RetryPolicy represents a bounded retry policy. It is never mutated at runtime.
type RetryPolicy struct {
	// MaxAttempts is the maximum number of attempts, at least one.
	MaxAttempts int
	// BaseDelay is the delay unit the backoff is derived from.
	BaseDelay time.Duration
	// Backoff returns the delay to wait after the provided failed attempt (1-indexed).
	Backoff func(attempt int) time.Duration
}

// LinearPolicy returns a policy that waits base * attempt between attempts.
func LinearPolicy(maxAttempts int, base time.Duration) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: maxAttempts,
		BaseDelay:   base,
		Backoff: func(attempt int) time.Duration {
			return base * time.Duration(attempt)
		},
	}
}

// FixedPolicy returns a policy that waits a fixed delay between attempts.
func FixedPolicy(maxAttempts int, delay time.Duration) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: maxAttempts,
		BaseDelay:   delay,
		Backoff: func(int) time.Duration {
			return delay
		},
	}
}

// Validate asserts the policy's sane inputs.
func (p *RetryPolicy) Validate() error {
	var errs error

	if p.MaxAttempts < 1 {
		errs = errors.Join(errs, fmt.Errorf("max attempts must be at least 1, got %d", p.MaxAttempts))
	}
	if p.BaseDelay < 0 {
		errs = errors.Join(errs, fmt.Errorf("base delay cannot be negative"))
	}
	if p.Backoff == nil {
		errs = errors.Join(errs, fmt.Errorf("no backoff function provided"))
	}

	return errs
}

// Retrier runs operations under a retry policy.
type Retrier struct {
	// Policy is the retry policy.
	Policy RetryPolicy
	// AttemptTimeout is the deadline applied to each attempt.
	AttemptTimeout time.Duration
	// Sleep waits between attempts, returning early on context cancellation.
	Sleep func(ctx context.Context, d time.Duration) error
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Do invokes fn until it succeeds, fails terminally or runs out of attempts.
func (r *Retrier) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	_, err := Retry(ctx, r, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Retry invokes fn until it succeeds, fails terminally or runs out of attempts,
// returning its result.
func Retry[T any](ctx context.Context, r *Retrier, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	timeout := r.AttemptTimeout
	if timeout <= 0 {
		timeout = defaultAttemptTimeout
	}

	sleep := r.Sleep
	if sleep == nil {
		sleep = shared.Sleep
	}

	var lastErr error
	attempt := 0
	for attempt < r.Policy.MaxAttempts {
		if err := ctx.Err(); err != nil {
			return zero, &FetchError{Kind: KindCancelled, Op: op, Attempts: attempt, Cause: err}
		}

		attempt++
		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		res, err := fn(attemptCtx)
		cancel()
		if err == nil {
			return res, nil
		}

		lastErr = err

		if ctx.Err() != nil {
			return zero, &FetchError{Kind: KindCancelled, Op: op, Attempts: attempt, Cause: ctx.Err()}
		}

		if IsTerminal(err) {
			r.Logger.Warn().Err(err).Msgf("%s: attempt %d/%d failed terminally", op, attempt, r.Policy.MaxAttempts)
			return zero, &FetchError{Kind: KindTerminal, Op: op, Attempts: attempt, Cause: err}
		}

		r.Logger.Warn().Err(err).Msgf("%s: attempt %d/%d failed", op, attempt, r.Policy.MaxAttempts)

		if attempt < r.Policy.MaxAttempts {
			err := sleep(ctx, r.Policy.Backoff(attempt))
			if err != nil {
				return zero, &FetchError{Kind: KindCancelled, Op: op, Attempts: attempt, Cause: err}
			}
		}
	}

	return zero, &FetchError{Kind: KindExhausted, Op: op, Attempts: attempt, Cause: lastErr}
}
