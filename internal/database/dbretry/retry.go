package dbretry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"
)

var (
	maxElapsedTime  = 30 * time.Second
	initialInterval = 100 * time.Millisecond
	maxInterval     = 5 * time.Second
	maxRetries      = uint64(5)
)

// retryableCodes are the Postgres error codes worth another attempt.
var retryableCodes = map[string]struct{}{
	"08000": {}, // connection_exception
	"08003": {}, // connection_does_not_exist
	"08006": {}, // connection_failure
	"08001": {}, // sqlclient_unable_to_establish_sqlconnection
	"08004": {}, // sqlserver_rejected_establishment_of_sqlconnection
	"40001": {}, // serialization_failure
	"40P01": {}, // deadlock_detected
	"53300": {}, // too_many_connections
	"55P03": {}, // lock_not_available
	"57P01": {}, // admin_shutdown
	"57P03": {}, // cannot_connect_now
}

// uniqueViolation is the Postgres error code of a duplicate key.
const uniqueViolation = "23505"

// IsRetryableError checks if the given error is retryable.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	var pgerr pgdriver.Error
	if errors.As(err, &pgerr) {
		_, ok := retryableCodes[pgerr.Field('C')]
		return ok
	}

	// A cancelled caller should not be retried on its behalf
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	// Check for common network error strings
	errMsg := err.Error()
	for _, s := range []string{
		"connection reset by peer",
		"broken pipe",
		"connection refused",
		"i/o timeout",
		"unexpected EOF",
	} {
		if strings.Contains(errMsg, s) {
			return true
		}
	}

	return false
}

// IsUniqueViolation checks if the error is a duplicate key error.
func IsUniqueViolation(err error) bool {
	var pgerr pgdriver.Error
	return errors.As(err, &pgerr) && pgerr.Field('C') == uniqueViolation
}

func newBackOff(ctx context.Context) backoff.BackOff {
	b := backoff.WithMaxRetries(backoff.NewExponentialBackOff(
		backoff.WithMaxElapsedTime(maxElapsedTime),
		backoff.WithInitialInterval(initialInterval),
		backoff.WithMaxInterval(maxInterval),
	), maxRetries)
	return backoff.WithContext(b, ctx)
}

// Operation wraps a database operation with retry logic.
func Operation[T any](ctx context.Context, operation func(context.Context) (T, error)) (T, error) {
	var result T

	err := NoResult(ctx, func(ctx context.Context) error {
		var err error
		result, err = operation(ctx)
		return err
	})

	return result, err
}

// NoResult wraps a database operation that doesn't return a result.
// Errors that are not retryable are returned unwrapped.
func NoResult(ctx context.Context, operation func(context.Context) error) error {
	var lastErr error
	permanent := false

	err := backoff.Retry(func() error {
		err := operation(ctx)
		lastErr = err
		if err != nil && !IsRetryableError(err) {
			permanent = true
			return backoff.Permanent(err)
		}
		return err
	}, newBackOff(ctx))

	switch {
	case err == nil:
		return nil
	case permanent:
		return lastErr
	case lastErr != nil:
		// Return the last actual database error instead of retry error
		return fmt.Errorf("database operation failed after retries: %w", lastErr)
	default:
		return fmt.Errorf("database operation failed: %w", err)
	}
}

// Transaction wraps a database transaction with retry logic. fn may run more
// than once and must not keep state between attempts.
func Transaction(ctx context.Context, db *bun.DB, fn func(context.Context, bun.Tx) error) error {
	return NoResult(ctx, func(ctx context.Context) error {
		return db.RunInTx(ctx, nil, fn)
	})
}
