package pool

import (
	"context"
	"errors"
	"time"

	"github.com/koustreak/dblens/internal/errs"
)

// WithTimeout runs fn and races it against timeout. When the deadline fires
// first it returns a timeout *errs.Error tagged with operation, even if fn
// ignores its context. A timeout <= 0 runs fn without a deadline.
//
// fn receives a context carrying the deadline so drivers that honour
// cancellation can abort early; the underlying timer is always released.
// A panic in fn is re-raised on the caller's goroutine if it arrives before
// the deadline.
func WithTimeout[T any](ctx context.Context, timeout time.Duration, provider, operation string, fn func(context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}

	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		val      T
		err      error
		panicked any
	}
	done := make(chan result, 1)

	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- result{panicked: p}
			}
		}()
		v, err := fn(tctx)
		done <- result{val: v, err: err}
	}()

	var zero T
	select {
	case r := <-done:
		if r.panicked != nil {
			panic(r.panicked)
		}
		if r.err != nil && errors.Is(r.err, context.DeadlineExceeded) && ctx.Err() == nil {
			return zero, errs.Timeout(provider, operation, timeout)
		}
		return r.val, r.err
	case <-tctx.Done():
		if err := ctx.Err(); err != nil {
			// The caller gave up; that is not our deadline.
			return zero, err
		}
		return zero, errs.Timeout(provider, operation, timeout)
	}
}

// NewCancellable pairs a cancellation signal with a deadline. The returned
// context's cause (context.Cause) is a timeout *errs.Error once the deadline
// passes. Cancellation is best-effort: a driver may not observe it mid-call.
func NewCancellable(ctx context.Context, timeout time.Duration, provider, operation string) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeoutCause(ctx, timeout, errs.Timeout(provider, operation, timeout))
}
