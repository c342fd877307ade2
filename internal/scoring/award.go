package scoring

import (
	"context"
	"errors"
	"fmt"

	"github.com/fibgame/fibs/internal/database/types"
	"github.com/fibgame/fibs/internal/events"
	"go.uber.org/zap"
)

// Awards credits authors when their fibs are written and liked.
type Awards struct {
	store  Store
	logger *zap.Logger
}

// NewAwards creates the authorship and like award reactors.
func NewAwards(store Store, logger *zap.Logger) *Awards {
	return &Awards{
		store:  store,
		logger: logger.Named("awards"),
	}
}

// HandleFibCreated credits the author of a new fib. Redelivery of the same
// fib is a no-op.
func (a *Awards) HandleFibCreated(ctx context.Context, ev *events.FibCreated) error {
	fib := ev.Fib
	if fib.Author == "" {
		return fmt.Errorf("%w: fib %s has no author", ErrPreconditionViolated, fib.ID)
	}

	return a.store.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		fresh, err := tx.MarkProcessed(ctx, "fib_written:"+fib.ID)
		if err != nil {
			return fmt.Errorf("failed to mark fib written: %w", err)
		}
		if !fresh {
			a.logger.Debug("Authorship award already applied", zap.String("fibID", fib.ID))
			return nil
		}

		_, err = tx.IncrementLeaderboard(ctx, &types.LeaderboardIncrement{
			UserID:      fib.Author,
			Points:      WritePoints,
			WritePoints: WritePoints,
			WriteTotal:  1,
		})
		if err != nil {
			return fmt.Errorf("failed to credit author %s: %w", fib.Author, err)
		}

		a.logger.Debug("Credited fib author",
			zap.String("fibID", fib.ID),
			zap.String("author", fib.Author))
		return nil
	})
}

// HandleLikeCreated credits the author of a liked fib. A like by the author
// fails with ErrSelfLike and changes nothing.
func (a *Awards) HandleLikeCreated(ctx context.Context, ev *events.LikeCreated) error {
	return a.store.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		fib, err := tx.GetFib(ctx, ev.FibID)
		if err != nil {
			if errors.Is(err, types.ErrNotFound) {
				return fmt.Errorf("%w: liked fib %s does not exist", ErrPreconditionViolated, ev.FibID)
			}
			return fmt.Errorf("failed to get liked fib: %w", err)
		}

		if fib.Author == ev.UserID {
			return ErrSelfLike
		}

		fresh, err := tx.MarkProcessed(ctx, "fib_liked:"+ev.FibID+":"+ev.UserID)
		if err != nil {
			return fmt.Errorf("failed to mark fib liked: %w", err)
		}
		if !fresh {
			a.logger.Debug("Like award already applied",
				zap.String("fibID", ev.FibID),
				zap.String("userID", ev.UserID))
			return nil
		}

		_, err = tx.IncrementLeaderboard(ctx, &types.LeaderboardIncrement{
			UserID:      fib.Author,
			Points:      LikedPoints,
			LikedPoints: LikedPoints,
			LikedTotal:  1,
		})
		if err != nil {
			return fmt.Errorf("failed to credit liked author %s: %w", fib.Author, err)
		}

		return nil
	})
}
