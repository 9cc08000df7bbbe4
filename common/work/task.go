package work

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// TaskResult represents the result of one timed execution
type TaskResult[T any] struct {
	Result    T
	Error     error
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
}

// IsSuccess returns true if the task completed successfully
func (tr *TaskResult[T]) IsSuccess() bool {
	return tr.Error == nil
}

// RunWithTimeout runs fn in its own goroutine and waits at most timeout for
// it. When the deadline passes first the task context is cancelled and
// ErrTaskTimeout is returned without waiting for fn to return; fn is expected
// to observe ctx and clean up on its own. A non-positive timeout means only
// the parent context bounds the run.
func RunWithTimeout[T any](ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (T, error)) TaskResult[T] {
	var (
		taskCtx context.Context
		cancel  context.CancelFunc
	)
	if timeout > 0 {
		taskCtx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		taskCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	type outcome struct {
		value T
		err   error
	}
	// buffered so an abandoned task can still finish and exit
	done := make(chan outcome, 1)
	startTime := time.Now()

	go func() {
		var o outcome
		defer func() { done <- o }()
		o.value, o.err = fn(taskCtx)
	}()

	var res TaskResult[T]
	select {
	case o := <-done:
		res.Result, res.Error = o.value, o.err
		// the task may have given up because its own deadline fired
		if o.err != nil && errors.Is(taskCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			res.Error = fmt.Errorf("%w: %w", ErrTaskTimeout, o.err)
		}
	case <-taskCtx.Done():
		if ctx.Err() != nil {
			res.Error = ctx.Err()
		} else {
			res.Error = ErrTaskTimeout
		}
	}

	res.StartTime = startTime
	res.EndTime = time.Now()
	res.Duration = res.EndTime.Sub(startTime)
	return res
}
