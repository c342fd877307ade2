package utils

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// SleepResult represents the outcome of a context-aware sleep operation.
type SleepResult int

const (
	// SleepCompleted indicates the sleep duration completed normally.
	SleepCompleted SleepResult = iota
	// SleepCancelled indicates the context was cancelled during sleep.
	SleepCancelled
)

// ContextSleep sleeps for the specified duration while respecting context cancellation.
func ContextSleep(ctx context.Context, duration time.Duration) SleepResult {
	if duration <= 0 {
		if ctx.Err() != nil {
			return SleepCancelled
		}
		return SleepCompleted
	}

	timer := time.NewTimer(duration)
	defer timer.Stop()

	select {
	case <-timer.C:
		return SleepCompleted
	case <-ctx.Done():
		return SleepCancelled
	}
}

// ContextGuard reports whether the context is already cancelled.
func ContextGuard(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// ErrorSleep pauses a worker after a failure. Returns false when the worker
// should stop because the context was cancelled.
func ErrorSleep(ctx context.Context, duration time.Duration, logger *zap.Logger, workerName string) bool {
	return logSleep(ctx, duration, logger, "Context cancelled during error wait, stopping "+workerName)
}

// IntervalSleep pauses a worker between polls. Returns false when the worker
// should stop because the context was cancelled.
func IntervalSleep(ctx context.Context, duration time.Duration, logger *zap.Logger, workerName string) bool {
	return logSleep(ctx, duration, logger, "Context cancelled during pause, stopping "+workerName)
}

func logSleep(ctx context.Context, duration time.Duration, logger *zap.Logger, cancelMessage string) bool {
	if ContextSleep(ctx, duration) == SleepCancelled {
		if logger != nil {
			logger.Info(cancelMessage)
		}
		return false
	}
	return true
}
