package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/carsearch/pkg/errors"
)

// WithTimeout runs fn under a deadline and returns its result. A missed
// deadline is reported as ErrTimeout; cancellation of ctx itself passes
// through unchanged. A non-positive timeout runs fn directly.
func WithTimeout[T any](ctx context.Context, timeout time.Duration, name string, fn func(ctx context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}
	deadlineCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		value T
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		v, err := fn(deadlineCtx)
		done <- outcome{v, err}
	}()

	var zero T
	select {
	case out := <-done:
		if out.err != nil && errors.Is(out.err, context.DeadlineExceeded) && ctx.Err() == nil {
			return zero, fmt.Errorf("%s after %v: %w", name, timeout, apperrors.ErrTimeout)
		}
		return out.value, out.err
	case <-deadlineCtx.Done():
		if err := ctx.Err(); err != nil {
			return zero, fmt.Errorf("%s: %w", name, err)
		}
		return zero, fmt.Errorf("%s after %v: %w", name, timeout, apperrors.ErrTimeout)
	}
}
