package work

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRunWithTimeoutSuccess(t *testing.T) {
	res := RunWithTimeout(context.Background(), time.Second, func(ctx context.Context) (string, error) {
		return "rendered", nil
	})
	if !res.IsSuccess() {
		t.Fatalf("Unexpected error: %v", res.Error)
	}
	if res.Result != "rendered" {
		t.Errorf("Expected result, got %q", res.Result)
	}
	if res.Duration < 0 || res.EndTime.Before(res.StartTime) {
		t.Error("Invalid timing information")
	}
}

func TestRunWithTimeoutError(t *testing.T) {
	boom := errors.New("boom")
	res := RunWithTimeout(context.Background(), time.Second, func(ctx context.Context) (int, error) {
		return 0, boom
	})
	if !errors.Is(res.Error, boom) {
		t.Errorf("Expected task error, got %v", res.Error)
	}
	if errors.Is(res.Error, ErrTaskTimeout) {
		t.Error("Plain failure reported as timeout")
	}
}

func TestRunWithTimeoutAbandonsSlowTask(t *testing.T) {
	cancelled := make(chan struct{})
	release := make(chan struct{})
	defer close(release)

	start := time.Now()
	res := RunWithTimeout(context.Background(), 20*time.Millisecond, func(ctx context.Context) (int, error) {
		<-ctx.Done()
		close(cancelled)
		// ignore cancellation and keep running
		<-release
		return 1, nil
	})

	if !errors.Is(res.Error, ErrTaskTimeout) {
		t.Fatalf("Expected ErrTaskTimeout, got %v", res.Error)
	}
	if time.Since(start) > time.Second {
		t.Error("RunWithTimeout waited for the abandoned task")
	}

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Error("Task context was not cancelled")
	}
}

func TestRunWithTimeoutTaskObservesDeadline(t *testing.T) {
	res := RunWithTimeout(context.Background(), 10*time.Millisecond, func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})
	if !errors.Is(res.Error, ErrTaskTimeout) {
		t.Errorf("Expected ErrTaskTimeout, got %v", res.Error)
	}
}

func TestRunWithTimeoutParentCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	res := RunWithTimeout(ctx, time.Minute, func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})
	if !errors.Is(res.Error, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", res.Error)
	}
	if errors.Is(res.Error, ErrTaskTimeout) {
		t.Error("Parent cancellation reported as timeout")
	}
}
