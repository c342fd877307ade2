package scoring_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fibgame/fibs/internal/database/types"
	"github.com/fibgame/fibs/internal/events"
	"github.com/fibgame/fibs/internal/scoring"
	"github.com/fibgame/fibs/internal/storage/memory"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

var testNow = time.Date(2024, 3, 14, 15, 9, 26, 0, time.UTC)

func testClock() time.Time { return testNow }

type fixture struct {
	store       *memory.Store
	votes       *scoring.VoteService
	fibs        *scoring.FibService
	profiles    *scoring.ProfileService
	leaderboard *scoring.LeaderboardService
	notifier    *scoring.Notifier
	reactor     *scoring.Reactor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	logger := zaptest.NewLogger(t)
	store := memory.New(memory.WithClock(testClock))
	clock := scoring.WithClock(testClock)

	return &fixture{
		store:       store,
		votes:       scoring.NewVoteService(store, logger, clock),
		fibs:        scoring.NewFibService(store, logger, clock),
		profiles:    scoring.NewProfileService(store, logger, clock),
		leaderboard: scoring.NewLeaderboardService(store, logger),
		notifier:    scoring.NewNotifier(store, logger, clock),
		reactor:     scoring.NewReactor(store, logger, clock),
	}
}

// seedFib writes a fib directly, without running any reactor.
func (f *fixture) seedFib(t *testing.T, id, author, game string, veracity bool) {
	t.Helper()

	err := f.store.RunInTx(context.Background(), func(ctx context.Context, tx scoring.Tx) error {
		return tx.CreateFib(ctx, &types.Fib{
			ID:       id,
			Author:   author,
			Page:     "page",
			Claim:    "claim " + id,
			Veracity: veracity,
			Gold:     []string{},
			Evidence: []string{},
			Game:     game,
			Created:  testNow,
		})
	})
	require.NoError(t, err)
}

// drain dispatches outbox events until none are left and returns the errors
// of failed dispatches. Events produced by reactors are dispatched as well.
func (f *fixture) drain(t *testing.T) []error {
	t.Helper()

	ctx := context.Background()
	var errs []error

	for range 100 {
		rows, err := f.store.UnpublishedEvents(ctx, 0)
		require.NoError(t, err)
		if len(rows) == 0 {
			return errs
		}

		ids := make([]int64, 0, len(rows))
		for _, row := range rows {
			if err := f.reactor.Dispatch(ctx, events.FromOutbox(row)); err != nil {
				errs = append(errs, err)
			}
			ids = append(ids, row.ID)
		}
		require.NoError(t, f.store.MarkPublished(ctx, ids))
	}

	t.Fatal("outbox did not drain")
	return nil
}

// entry returns the leaderboard entry of a user, or nil if there is none.
func (f *fixture) entry(t *testing.T, userID string) *types.LeaderboardEntry {
	t.Helper()

	var entry *types.LeaderboardEntry
	err := f.store.RunInTx(context.Background(), func(ctx context.Context, tx scoring.Tx) error {
		var err error
		entry, err = tx.GetLeaderboardEntry(ctx, userID)
		if errors.Is(err, types.ErrNotFound) {
			return nil
		}
		return err
	})
	require.NoError(t, err)
	return entry
}

func zapLogger(t *testing.T) *zap.Logger {
	return zaptest.NewLogger(t)
}

func ptr[T any](v T) *T {
	return &v
}
