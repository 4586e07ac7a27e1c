package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/semantrix/adaptroute/internal/models"
)

// Policy controls WithRetry.
type Policy struct {
	MaxRetries int
	BaseDelay  time.Duration
	// OnBackoff is called before each sleep with the index of the failed
	// attempt and the delay about to be waited.
	OnBackoff func(attempt int, delay time.Duration)
}

// State is the retry state of one call. Attempt is the index of the attempt
// in progress, starting at 0.
type State struct {
	Attempt   int
	LastError error
}

// Last reports whether the attempt in progress is the final one the policy allows.
func (s *State) Last(p Policy) bool {
	return s.Attempt >= p.MaxRetries
}

// WithRetry runs fn until it succeeds, returns a non-retryable error, the
// policy is exhausted or ctx is done. Delays grow as BaseDelay * 2^attempt.
// The returned State carries the index of the last attempt made; Attempt is
// -1 when ctx was done before the first attempt.
func WithRetry[T any](ctx context.Context, policy Policy, fn func(ctx context.Context, state *State) (T, error)) (T, State, error) {
	var (
		result T
		state  = State{Attempt: -1}
	)

	err := retry.Do(ctx, policy.backoff(), func(ctx context.Context) error {
		state.Attempt++

		v, err := fn(ctx, &state)
		if err == nil {
			result = v
			return nil
		}

		state.LastError = err
		if !retryable(err) {
			return err
		}
		return retry.RetryableError(err)
	})

	return result, state, err
}

func (p Policy) backoff() retry.Backoff {
	var b retry.Backoff
	if p.BaseDelay > 0 {
		b = retry.NewExponential(p.BaseDelay)
	} else {
		b = retry.BackoffFunc(func() (time.Duration, bool) { return 0, false })
	}

	maxRetries := p.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	b = retry.WithMaxRetries(uint64(maxRetries), b)

	attempt := 0
	return retry.BackoffFunc(func() (time.Duration, bool) {
		delay, stop := b.Next()
		if !stop && p.OnBackoff != nil {
			p.OnBackoff(attempt, delay)
		}
		attempt++
		return delay, stop
	})
}

func retryable(err error) bool {
	var de *models.DispatchError
	if errors.As(err, &de) {
		return de.Retryable()
	}
	switch models.KindOf(err) {
	case models.KindConfiguration, models.KindInvalidRequest, models.KindCancelled:
		return false
	default:
		return true
	}
}
