package backoff

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestExponentialDelay(t *testing.T) {
	tests := []struct {
		name    string
		s       *Exponential
		attempt int
		want    time.Duration
	}{
		{"first retry", NewExponential(time.Second, 0), 1, time.Second},
		{"second retry doubles", NewExponential(time.Second, 0), 2, 2 * time.Second},
		{"third retry", NewExponential(time.Second, 0), 3, 4 * time.Second},
		{"capped", NewExponential(time.Second, 3*time.Second), 5, 3 * time.Second},
		{"triple multiplier", &Exponential{Initial: time.Second, Multiplier: 3}, 3, 9 * time.Second},
		{"multiplier below one", &Exponential{Initial: time.Second, Multiplier: 0.5}, 4, time.Second},
		{"attempt zero", NewExponential(time.Second, 0), 0, time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.s.Delay(tt.attempt); got != tt.want {
				t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
			}
		})
	}
}

func TestRetryStopsOnSuccess(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), 5, NewConstant(time.Millisecond), func(ctx context.Context, attempt int) error {
		calls++
		if attempt < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("Expected 3 calls, got %d", calls)
	}
}

func TestRetryReturnsLastError(t *testing.T) {
	calls := 0
	last := errors.New("attempt 4")
	err := Retry(context.Background(), 4, NewConstant(time.Millisecond), func(ctx context.Context, attempt int) error {
		calls++
		if attempt == 4 {
			return last
		}
		return errors.New("earlier")
	})
	if !errors.Is(err, last) {
		t.Errorf("Expected last error, got %v", err)
	}
	if calls != 4 {
		t.Errorf("Expected 4 calls, got %d", calls)
	}
}

func TestRetryHonorsContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := Retry(ctx, 10, NewConstant(time.Hour), func(ctx context.Context, attempt int) error {
		return errors.New("always")
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Error("Retry kept sleeping after the context ended")
	}
}
