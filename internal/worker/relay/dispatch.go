package relay

import (
	"context"
	"errors"

	"github.com/fibgame/fibs/internal/events"
	"github.com/fibgame/fibs/internal/scoring"
	"go.uber.org/zap"
)

// Dispatcher handles an event in process.
type Dispatcher interface {
	Dispatch(ctx context.Context, env *events.Envelope) error
}

// DispatchPublisher delivers events straight to a dispatcher instead of a
// stream. It serves single-process deployments with the memory store.
type DispatchPublisher struct {
	dispatcher Dispatcher
	logger     *zap.Logger
}

// NewDispatchPublisher creates a publisher over the dispatcher.
func NewDispatchPublisher(dispatcher Dispatcher, logger *zap.Logger) *DispatchPublisher {
	return &DispatchPublisher{
		dispatcher: dispatcher,
		logger:     logger.Named("dispatch_publisher"),
	}
}

// Publish dispatches the event. A violated precondition is terminal, so it
// is logged and counted as delivered.
func (p *DispatchPublisher) Publish(ctx context.Context, env *events.Envelope) (string, error) {
	err := p.dispatcher.Dispatch(ctx, env)
	if errors.Is(err, scoring.ErrPreconditionViolated) {
		p.logger.Warn("Dropped event with violated precondition",
			zap.String("eventID", env.ID.String()),
			zap.String("kind", string(env.Kind)),
			zap.Error(err))
		err = nil
	}
	if err != nil {
		return "", err
	}
	return env.ID.String(), nil
}
