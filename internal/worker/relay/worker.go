// Package relay moves committed outbox rows onto the event stream.
package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/fibgame/fibs/internal/database/types"
	"github.com/fibgame/fibs/internal/events"
	"github.com/fibgame/fibs/internal/setup/config"
	"github.com/fibgame/fibs/internal/worker/core"
	"github.com/fibgame/fibs/pkg/utils"
	"go.uber.org/zap"
)

const (
	defaultBatchSize    = 100
	defaultPollInterval = time.Second
	publishRetries      = 3
)

// Outbox is the store side of the relay.
type Outbox interface {
	UnpublishedEvents(ctx context.Context, limit int) ([]*types.OutboxEvent, error)
	MarkPublished(ctx context.Context, ids []int64) error
}

// Publisher delivers one event downstream.
type Publisher interface {
	Publish(ctx context.Context, env *events.Envelope) (string, error)
}

// Worker publishes outbox rows in commit order. A row is marked published
// only after the publisher accepted it, so a crash between the two steps
// republishes the row and consumers see it twice.
type Worker struct {
	outbox       Outbox
	publisher    Publisher
	reporter     *core.StatusReporter
	batchSize    int
	pollInterval time.Duration
	logger       *zap.Logger
}

// New creates a new relay worker. reporter may be nil.
func New(
	outbox Outbox, publisher Publisher, reporter *core.StatusReporter, cfg *config.Relay, logger *zap.Logger,
) *Worker {
	w := &Worker{
		outbox:       outbox,
		publisher:    publisher,
		reporter:     reporter,
		batchSize:    cfg.BatchSize,
		pollInterval: time.Duration(cfg.PollInterval) * time.Millisecond,
		logger:       logger.Named("relay_worker"),
	}
	if w.batchSize <= 0 {
		w.batchSize = defaultBatchSize
	}
	if w.pollInterval <= 0 {
		w.pollInterval = defaultPollInterval
	}
	return w
}

// Start runs the relay loop until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Relay Worker started", zap.Int("batchSize", w.batchSize))

	if w.reporter != nil {
		w.reporter.Start(ctx)
		defer w.reporter.Stop()
	}

	for {
		if utils.ContextGuard(ctx) {
			w.logger.Info("Relay Worker stopped")
			return nil
		}

		count, err := w.RelayBatch(ctx)
		w.setHealthy(err == nil)

		switch {
		case err != nil && ctx.Err() == nil:
			w.logger.Error("Failed to relay outbox batch", zap.Error(err))
			if !utils.ErrorSleep(ctx, w.pollInterval, w.logger, "relay worker") {
				return nil
			}
		case count < w.batchSize:
			// Caught up, wait for new rows
			if !utils.IntervalSleep(ctx, w.pollInterval, w.logger, "relay worker") {
				return nil
			}
		}
	}
}

// RelayBatch publishes one batch of unpublished rows and returns how many
// were published. Publishing stops at the first row that cannot be
// delivered so that ordering is kept.
func (w *Worker) RelayBatch(ctx context.Context) (int, error) {
	rows, err := w.outbox.UnpublishedEvents(ctx, w.batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to read outbox: %w", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}

	published := make([]int64, 0, len(rows))
	var publishErr error

	for _, row := range rows {
		env := events.FromOutbox(row)
		if err := w.publish(ctx, env); err != nil {
			publishErr = fmt.Errorf("failed to publish event %s: %w", env.ID, err)
			break
		}
		published = append(published, row.ID)
	}

	if len(published) > 0 {
		if err := w.outbox.MarkPublished(ctx, published); err != nil {
			return 0, errors.Join(publishErr, fmt.Errorf("failed to mark events published: %w", err))
		}
	}

	if w.reporter != nil {
		w.reporter.AddProcessed(int64(len(published)), 0)
	}

	w.logger.Debug("Relayed outbox batch",
		zap.Int("published", len(published)),
		zap.Int("read", len(rows)))

	return len(published), publishErr
}

func (w *Worker) publish(ctx context.Context, env *events.Envelope) error {
	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(
			backoff.WithInitialInterval(50*time.Millisecond),
			backoff.WithMaxInterval(time.Second),
		), publishRetries),
		ctx,
	)

	return backoff.Retry(func() error {
		_, err := w.publisher.Publish(ctx, env)
		return err
	}, b)
}

func (w *Worker) setHealthy(healthy bool) {
	if w.reporter != nil {
		w.reporter.SetHealthy(healthy)
	}
}
