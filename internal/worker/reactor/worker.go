// Package reactor consumes the event stream and applies each event's
// reactions.
package reactor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fibgame/fibs/internal/events"
	"github.com/fibgame/fibs/internal/scoring"
	"github.com/fibgame/fibs/internal/setup/config"
	"github.com/fibgame/fibs/internal/worker/core"
	"github.com/fibgame/fibs/pkg/utils"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
)

const (
	defaultBatchSize     = 32
	defaultConcurrency   = 8
	defaultBlockTimeout  = 5 * time.Second
	defaultMaxDeliveries = 5
	retryDelay           = time.Second
)

// Source is the consumer side of the event stream.
type Source interface {
	EnsureGroup(ctx context.Context) error
	Read(ctx context.Context, consumer string, count int64, block time.Duration, pending bool) ([]events.Delivery, error)
	Ack(ctx context.Context, ids ...string) error
	DeadLetter(ctx context.Context, d events.Delivery, cause error) error
}

// Dispatcher applies an event's reactions.
type Dispatcher interface {
	Dispatch(ctx context.Context, env *events.Envelope) error
}

// Worker reads the stream as one consumer of the group. An entry is
// acknowledged once its reactions succeed or fail a precondition; any other
// failure leaves it pending for redelivery until it has been tried
// maxDeliveries times, after which it goes to the dead-letter stream.
type Worker struct {
	source        Source
	dispatcher    Dispatcher
	reporter      *core.StatusReporter
	consumer      string
	batchSize     int64
	concurrency   int
	blockTimeout  time.Duration
	maxDeliveries int

	mu       sync.Mutex
	attempts map[string]int

	logger *zap.Logger
}

// New creates a new reactor worker. reporter may be nil.
func New(
	source Source, dispatcher Dispatcher, reporter *core.StatusReporter, consumer string,
	cfg *config.Reactor, logger *zap.Logger,
) *Worker {
	w := &Worker{
		source:        source,
		dispatcher:    dispatcher,
		reporter:      reporter,
		consumer:      consumer,
		batchSize:     cfg.BatchSize,
		concurrency:   cfg.Concurrency,
		blockTimeout:  time.Duration(cfg.BlockTimeout) * time.Millisecond,
		maxDeliveries: cfg.MaxDeliveries,
		attempts:      make(map[string]int),
		logger:        logger.Named("reactor_worker").With(zap.String("consumer", consumer)),
	}
	if w.batchSize <= 0 {
		w.batchSize = defaultBatchSize
	}
	if w.concurrency <= 0 {
		w.concurrency = defaultConcurrency
	}
	if w.blockTimeout <= 0 {
		w.blockTimeout = defaultBlockTimeout
	}
	if w.maxDeliveries <= 0 {
		w.maxDeliveries = defaultMaxDeliveries
	}
	return w
}

// Start runs the consume loop until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) error {
	if err := w.source.EnsureGroup(ctx); err != nil {
		return err
	}

	w.logger.Info("Reactor Worker started",
		zap.Int64("batchSize", w.batchSize),
		zap.Int("concurrency", w.concurrency))

	if w.reporter != nil {
		w.reporter.Start(ctx)
		defer w.reporter.Stop()
	}

	for {
		if utils.ContextGuard(ctx) {
			w.logger.Info("Reactor Worker stopped")
			return nil
		}

		failed, err := w.Poll(ctx)
		if w.reporter != nil {
			w.reporter.SetHealthy(err == nil)
		}

		switch {
		case err != nil && ctx.Err() == nil:
			w.logger.Error("Failed to read event stream", zap.Error(err))
			if !utils.ErrorSleep(ctx, retryDelay, w.logger, "reactor worker") {
				return nil
			}
		case failed > 0:
			// Give transient failures a moment before the pending entries are retried
			if !utils.ErrorSleep(ctx, retryDelay, w.logger, "reactor worker") {
				return nil
			}
		}
	}
}

// Poll handles one batch. Entries still pending for this consumer are
// retried before new entries are read. It returns how many entries were
// left pending.
func (w *Worker) Poll(ctx context.Context) (int, error) {
	if w.reporter != nil {
		w.reporter.UpdateStatus("Retrying pending events")
	}

	deliveries, err := w.source.Read(ctx, w.consumer, w.batchSize, 0, true)
	if err != nil {
		return 0, fmt.Errorf("failed to read pending entries: %w", err)
	}

	if len(deliveries) == 0 {
		if w.reporter != nil {
			w.reporter.UpdateStatus("Waiting for events")
		}

		deliveries, err = w.source.Read(ctx, w.consumer, w.batchSize, w.blockTimeout, false)
		if err != nil {
			return 0, fmt.Errorf("failed to read new entries: %w", err)
		}
	}

	return w.HandleBatch(ctx, deliveries), nil
}

// HandleBatch processes deliveries concurrently and returns how many were
// left pending.
func (w *Worker) HandleBatch(ctx context.Context, deliveries []events.Delivery) int {
	if len(deliveries) == 0 {
		return 0
	}

	var failed, handled atomic.Int64

	p := pool.New().WithMaxGoroutines(w.concurrency)
	for _, d := range deliveries {
		p.Go(func() {
			if w.handle(ctx, d) {
				handled.Add(1)
			} else {
				failed.Add(1)
			}
		})
	}
	p.Wait()

	if w.reporter != nil {
		w.reporter.AddProcessed(handled.Load(), failed.Load())
	}

	return int(failed.Load())
}

// handle processes one delivery and reports whether it left the pending list.
func (w *Worker) handle(ctx context.Context, d events.Delivery) bool {
	if d.Err != nil || d.Envelope == nil {
		cause := d.Err
		if cause == nil {
			cause = events.ErrEmptyEntry
		}
		return w.deadLetter(ctx, d, cause)
	}

	log := w.logger.With(
		zap.String("entryID", d.ID),
		zap.String("eventID", d.Envelope.ID.String()),
		zap.String("kind", string(d.Envelope.Kind)))

	err := w.dispatcher.Dispatch(ctx, d.Envelope)
	switch {
	case err == nil:
		return w.ack(ctx, d)

	case errors.Is(err, scoring.ErrPreconditionViolated):
		log.Warn("Dropping event with violated precondition", zap.Error(err))
		return w.ack(ctx, d)

	case errors.Is(err, events.ErrUnknownKind):
		return w.deadLetter(ctx, d, err)
	}

	attempts := w.recordAttempt(d.ID)
	if attempts >= w.maxDeliveries {
		return w.deadLetter(ctx, d, fmt.Errorf("gave up after %d attempts: %w", attempts, err))
	}

	log.Error("Failed to handle event", zap.Int("attempt", attempts), zap.Error(err))
	return false
}

func (w *Worker) ack(ctx context.Context, d events.Delivery) bool {
	if err := w.source.Ack(ctx, d.ID); err != nil {
		w.logger.Error("Failed to ack entry", zap.String("entryID", d.ID), zap.Error(err))
		return false
	}
	w.forget(d.ID)
	return true
}

func (w *Worker) deadLetter(ctx context.Context, d events.Delivery, cause error) bool {
	if err := w.source.DeadLetter(ctx, d, cause); err != nil {
		w.logger.Error("Failed to dead-letter entry", zap.String("entryID", d.ID), zap.Error(err))
		return false
	}
	w.forget(d.ID)
	return true
}

func (w *Worker) recordAttempt(id string) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.attempts[id]++
	return w.attempts[id]
}

func (w *Worker) forget(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	delete(w.attempts, id)
}
