// Package retry drives repeated attempts with a delay between them, bounded by
// an attempt count and an overall deadline. The task poller uses it to pace
// status fetches.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/loykin/hypercore/internal/common"
)

// Config holds the pacing and bounds of a retry loop.
type Config struct {
	InitialDelay  time.Duration // Delay after the first attempt
	MaxDelay      time.Duration // Upper bound for the delay; 0 means InitialDelay
	BackoffFactor float64       // Multiplier per attempt; values <= 1 keep a fixed interval
	Timeout       time.Duration // Overall bound on elapsed time; 0 means none
	MaxAttempts   int           // Maximum attempts; 0 means unlimited
}

// DefaultConfig returns a fixed one second interval with no bounds.
func DefaultConfig() *Config {
	return &Config{
		InitialDelay:  time.Second,
		BackoffFactor: 1,
	}
}

// calculateDelay calculates the delay after a given attempt using exponential backoff
func (rc *Config) calculateDelay(attempt int) time.Duration {
	if attempt <= 1 || rc.BackoffFactor <= 1 {
		return rc.InitialDelay
	}

	delay := time.Duration(float64(rc.InitialDelay) * math.Pow(rc.BackoffFactor, float64(attempt-1)))
	maxDelay := rc.MaxDelay
	if maxDelay <= 0 {
		maxDelay = rc.InitialDelay
	}
	if delay > maxDelay || delay < 0 {
		delay = maxDelay
	}
	return delay
}

// ErrExhausted is matched by errors.Is on an *ExhaustedError.
var ErrExhausted = errors.New("retry budget exhausted")

// ExhaustedError reports that the loop stopped on its attempt or time bound.
type ExhaustedError struct {
	Attempts int
	Elapsed  time.Duration
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("gave up after %d attempts in %s", e.Attempts, e.Elapsed.Round(time.Millisecond))
}

func (e *ExhaustedError) Is(target error) bool { return target == ErrExhausted }

// Clock abstracts time so loops can be driven deterministically in tests.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// RealClock is the wall clock.
var RealClock Clock = realClock{}

// Operation is one attempt. It reports done=true to stop the loop successfully;
// a non-nil error stops the loop and is returned unchanged.
type Operation func(ctx context.Context, attempt int) (done bool, err error)

// Until runs op until it reports done, fails, or the config bounds are reached.
// Bounds are checked after each attempt, so op always runs at least once.
func Until(ctx context.Context, config *Config, clock Clock, op Operation) error {
	if config == nil {
		config = DefaultConfig()
	}
	if clock == nil {
		clock = RealClock
	}

	logger := common.GetLogger().WithComponent("retry")
	start := clock.Now()

	for attempt := 1; ; attempt++ {
		done, err := op(ctx, attempt)
		if err != nil {
			return err
		}
		if done {
			if attempt > 1 {
				logger.Debug("operation finished after repeated attempts", "attempts", attempt)
			}
			return nil
		}

		elapsed := clock.Now().Sub(start)
		if config.MaxAttempts > 0 && attempt >= config.MaxAttempts {
			return &ExhaustedError{Attempts: attempt, Elapsed: elapsed}
		}
		if config.Timeout > 0 && elapsed >= config.Timeout {
			return &ExhaustedError{Attempts: attempt, Elapsed: elapsed}
		}

		delay := config.calculateDelay(attempt)
		if config.Timeout > 0 && elapsed+delay > config.Timeout {
			// final attempt lands on the deadline
			delay = config.Timeout - elapsed
		}

		// Wait before the next attempt, but respect context cancellation
		if err := clock.Sleep(ctx, delay); err != nil {
			return fmt.Errorf("operation cancelled during retry: %w", err)
		}
	}
}
