package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

// fakeClock advances only when slept on.
type fakeClock struct {
	now    time.Time
	sleeps []time.Duration
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.InitialDelay != time.Second {
		t.Errorf("Expected InitialDelay to be 1s, got %v", config.InitialDelay)
	}
	if config.MaxAttempts != 0 || config.Timeout != 0 {
		t.Errorf("Expected no bounds, got attempts=%d timeout=%v", config.MaxAttempts, config.Timeout)
	}
}

func TestConfig_calculateDelay(t *testing.T) {
	config := &Config{
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      1 * time.Second,
		BackoffFactor: 2.0,
	}

	tests := []struct {
		name     string
		attempt  int
		expected time.Duration
	}{
		{"attempt 0", 0, 100 * time.Millisecond},
		{"attempt 1", 1, 100 * time.Millisecond},
		{"attempt 2", 2, 200 * time.Millisecond},
		{"attempt 3", 3, 400 * time.Millisecond},
		{"attempt 4", 4, 800 * time.Millisecond},
		{"attempt 5 (capped at max)", 5, 1 * time.Second},
		{"negative attempt", -1, 100 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := config.calculateDelay(tt.attempt)
			if result != tt.expected {
				t.Errorf("calculateDelay(%d) = %v, expected %v", tt.attempt, result, tt.expected)
			}
		})
	}

	fixed := &Config{InitialDelay: 250 * time.Millisecond, BackoffFactor: 1}
	if d := fixed.calculateDelay(9); d != 250*time.Millisecond {
		t.Errorf("fixed interval expected 250ms, got %v", d)
	}
}

func TestUntil_DoneOnThirdAttempt(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	calls := 0

	err := Until(context.Background(), &Config{InitialDelay: time.Second}, clock, func(ctx context.Context, attempt int) (bool, error) {
		calls++
		return attempt == 3, nil
	})
	if err != nil {
		t.Fatalf("Expected success, got %v", err)
	}
	if calls != 3 {
		t.Errorf("Expected 3 calls, got %d", calls)
	}
	if len(clock.sleeps) != 2 {
		t.Errorf("Expected 2 sleeps, got %d", len(clock.sleeps))
	}
}

func TestUntil_ErrorStopsImmediately(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	boom := errors.New("boom")
	calls := 0

	err := Until(context.Background(), nil, clock, func(ctx context.Context, attempt int) (bool, error) {
		calls++
		if attempt == 2 {
			return false, boom
		}
		return false, nil
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Expected boom, got %v", err)
	}
	if calls != 2 {
		t.Errorf("Expected 2 calls, got %d", calls)
	}
}

func TestUntil_MaxAttempts(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	calls := 0

	err := Until(context.Background(), &Config{InitialDelay: time.Second, MaxAttempts: 4}, clock, func(ctx context.Context, attempt int) (bool, error) {
		calls++
		return false, nil
	})
	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("Expected ExhaustedError, got %v", err)
	}
	if !errors.Is(err, ErrExhausted) {
		t.Error("Expected errors.Is(err, ErrExhausted)")
	}
	if calls != 4 || exhausted.Attempts != 4 {
		t.Errorf("Expected 4 attempts, got calls=%d attempts=%d", calls, exhausted.Attempts)
	}
}

func TestUntil_Timeout(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	calls := 0

	err := Until(context.Background(), &Config{InitialDelay: 2 * time.Second, Timeout: 5 * time.Second}, clock, func(ctx context.Context, attempt int) (bool, error) {
		calls++
		return false, nil
	})
	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("Expected ExhaustedError, got %v", err)
	}
	// attempts at 0s, 2s, 4s and a final one clamped to 5s
	if calls != 4 {
		t.Errorf("Expected 4 calls, got %d", calls)
	}
	if exhausted.Elapsed != 5*time.Second {
		t.Errorf("Expected elapsed 5s, got %v", exhausted.Elapsed)
	}
}

func TestUntil_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	clock := &fakeClock{now: time.Unix(0, 0)}

	err := Until(ctx, &Config{InitialDelay: time.Second}, clock, func(ctx context.Context, attempt int) (bool, error) {
		cancel()
		return false, nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
}

func TestRealClock_SleepRespectsContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := RealClock.Sleep(ctx, time.Minute)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Expected deadline exceeded, got %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("Sleep did not return on context deadline")
	}
}

func BenchmarkUntil_NoRetries(b *testing.B) {
	ctx := context.Background()
	for i := 0; i < b.N; i++ {
		_ = Until(ctx, nil, nil, func(ctx context.Context, attempt int) (bool, error) {
			return true, nil
		})
	}
}
