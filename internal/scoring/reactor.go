package scoring

import (
	"context"
	"fmt"

	"github.com/fibgame/fibs/internal/events"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Reactor routes change events to the award, name sync and notification
// handlers.
type Reactor struct {
	awards   *Awards
	nameSync *NameSync
	notifier *Notifier
	tracer   trace.Tracer
	logger   *zap.Logger
}

// NewReactor creates a reactor with every handler bound to the same store.
func NewReactor(store Store, logger *zap.Logger, opts ...Option) *Reactor {
	return &Reactor{
		awards:   NewAwards(store, logger),
		nameSync: NewNameSync(store, logger),
		notifier: NewNotifier(store, logger, opts...),
		tracer:   otel.Tracer("github.com/fibgame/fibs/internal/scoring"),
		logger:   logger.Named("reactor"),
	}
}

// Dispatch decodes the envelope and runs its handler.
func (r *Reactor) Dispatch(ctx context.Context, env *events.Envelope) error {
	ctx, span := r.tracer.Start(ctx, "Reactor.Dispatch", trace.WithAttributes(
		attribute.String("event.kind", string(env.Kind)),
		attribute.String("event.id", env.ID.String()),
	))
	defer span.End()

	ev, err := env.Decode()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	switch e := ev.(type) {
	case *events.FibCreated:
		err = r.awards.HandleFibCreated(ctx, e)
	case *events.LikeCreated:
		err = r.awards.HandleLikeCreated(ctx, e)
	case *events.ProfileWritten:
		err = r.nameSync.HandleProfileWritten(ctx, e)
	case *events.LeaderboardUpdated:
		err = r.notifier.HandleLeaderboardUpdated(ctx, env.ID, e)
	default:
		err = fmt.Errorf("%w: %T", events.ErrUnknownKind, ev)
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	return nil
}
