package database_test

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/fibgame/fibs/internal/database"
	"github.com/fibgame/fibs/internal/database/types"
	"github.com/fibgame/fibs/internal/events"
	"github.com/fibgame/fibs/internal/scoring"
	"github.com/fibgame/fibs/internal/setup/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// newTestClient connects to the database named by FIBS_TEST_POSTGRES_DSN and
// empties every table.
func newTestClient(t *testing.T) *database.Client {
	t.Helper()

	dsn := os.Getenv("FIBS_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("FIBS_TEST_POSTGRES_DSN not set")
	}

	ctx := context.Background()
	client, err := database.NewConnection(ctx, &config.PostgreSQL{DSN: dsn}, zaptest.NewLogger(t), true)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	_, err = client.DB().NewRaw(`TRUNCATE fibs, likes, dislikes, reports, vote_receipts, profiles,
		leaderboard_entries, notification_lists, outbox_events, processed_events`).Exec(ctx)
	require.NoError(t, err)

	return client
}

func seedPair(t *testing.T, client *database.Client) {
	t.Helper()

	err := client.RunInTx(context.Background(), func(ctx context.Context, tx scoring.Tx) error {
		for _, fib := range []*types.Fib{
			{ID: "a", Author: "alice", Veracity: true, Game: "g", Gold: []string{}, Evidence: []string{}},
			{ID: "b", Author: "bob", Veracity: false, Game: "g", Gold: []string{}, Evidence: []string{}},
		} {
			if err := tx.CreateFib(ctx, fib); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
}

func ptr[T any](v T) *T {
	return &v
}

// drain publishes every outbox row straight to the reactor.
func drain(t *testing.T, client *database.Client, reactor *scoring.Reactor) {
	t.Helper()

	ctx := context.Background()
	for {
		rows, err := client.UnpublishedEvents(ctx, 50)
		require.NoError(t, err)
		if len(rows) == 0 {
			return
		}

		ids := make([]int64, 0, len(rows))
		for _, row := range rows {
			require.NoError(t, reactor.Dispatch(ctx, events.FromOutbox(row)))
			ids = append(ids, row.ID)
		}
		require.NoError(t, client.MarkPublished(ctx, ids))
	}
}

func TestClientVote(t *testing.T) {
	client := newTestClient(t)
	logger := zaptest.NewLogger(t)
	ctx := context.Background()

	seedPair(t, client)

	votes := scoring.NewVoteService(client, logger)
	result, err := votes.CreateVote(ctx, "carol", &scoring.VoteRequest{
		Fibs:  []string{"a", "b"},
		Index: ptr(1),
		Time:  ptr(45.7),
	})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, int64(45), result.Points)

	_, err = votes.CreateVote(ctx, "carol", &scoring.VoteRequest{Fibs: []string{"a", "b"}, Index: ptr(1), Time: ptr(10.0)})
	require.ErrorIs(t, err, scoring.ErrAlreadyVoted)

	err = client.RunInTx(ctx, func(ctx context.Context, tx scoring.Tx) error {
		carol, err := tx.GetLeaderboardEntry(ctx, "carol")
		require.NoError(t, err)
		assert.Equal(t, int64(45), carol.VerifyPoints)
		assert.Equal(t, int64(1), carol.VerifyTotal)

		alice, err := tx.GetLeaderboardEntry(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, int64(37), alice.FoolPoints)
		assert.Equal(t, int64(1), alice.FoolTotal)

		exists, err := tx.HasVoteReceipt(ctx, "b", "carol")
		require.NoError(t, err)
		assert.True(t, exists)
		return nil
	})
	require.NoError(t, err)
}

func TestClientConcurrentIncrements(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := client.RunInTx(ctx, func(ctx context.Context, tx scoring.Tx) error {
				_, err := tx.IncrementLeaderboard(ctx, &types.LeaderboardIncrement{UserID: "u", Points: 3, WriteTotal: 1})
				return err
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	err := client.RunInTx(ctx, func(ctx context.Context, tx scoring.Tx) error {
		entry, err := tx.GetLeaderboardEntry(ctx, "u")
		require.NoError(t, err)
		assert.Equal(t, int64(30), entry.Points)
		assert.Equal(t, int64(10), entry.WriteTotal)
		return nil
	})
	require.NoError(t, err)
}

func TestClientConcurrentDisjointVotes(t *testing.T) {
	client := newTestClient(t)
	logger := zaptest.NewLogger(t)
	ctx := context.Background()

	const pairs = 10

	err := client.RunInTx(ctx, func(ctx context.Context, tx scoring.Tx) error {
		for i := range pairs {
			for _, fib := range []*types.Fib{
				{ID: fmt.Sprintf("t%d", i), Author: "alice", Veracity: true, Game: "g", Gold: []string{}, Evidence: []string{}},
				{ID: fmt.Sprintf("f%d", i), Author: "bob", Veracity: false, Game: "g", Gold: []string{}, Evidence: []string{}},
			} {
				if err := tx.CreateFib(ctx, fib); err != nil {
					return err
				}
			}
		}
		return nil
	})
	require.NoError(t, err)

	votes := scoring.NewVoteService(client, logger)

	var wg sync.WaitGroup
	for i := range pairs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := votes.CreateVote(ctx, "carol", &scoring.VoteRequest{
				Fibs:  []string{fmt.Sprintf("t%d", i), fmt.Sprintf("f%d", i)},
				Index: ptr(1),
				Time:  ptr(float64(20 + i)),
			})
			if assert.NoError(t, err) {
				assert.Equal(t, int64(20+i), result.Points)
			}
		}()
	}
	wg.Wait()

	var wantVoter, wantAuthor int64
	for i := range pairs {
		wantVoter += int64(20 + i)
		wantAuthor += (scoring.MaxVerifyPoints - int64(20+i)) / 2
	}

	err = client.RunInTx(ctx, func(ctx context.Context, tx scoring.Tx) error {
		carol, err := tx.GetLeaderboardEntry(ctx, "carol")
		require.NoError(t, err)
		assert.Equal(t, wantVoter, carol.VerifyPoints)
		assert.Equal(t, int64(pairs), carol.VerifyTotal)

		for _, author := range []string{"alice", "bob"} {
			entry, err := tx.GetLeaderboardEntry(ctx, author)
			require.NoError(t, err)
			assert.Equal(t, wantAuthor, entry.FoolPoints, author)
			assert.Equal(t, int64(pairs), entry.FoolTotal, author)
		}

		for i := range pairs {
			exists, err := tx.HasVoteReceipt(ctx, fmt.Sprintf("f%d", i), "carol")
			require.NoError(t, err)
			assert.True(t, exists)
		}
		return nil
	})
	require.NoError(t, err)
}

func TestClientIncrementChange(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	name := "Alice"

	err := client.RunInTx(ctx, func(ctx context.Context, tx scoring.Tx) error {
		change, err := tx.IncrementLeaderboard(ctx, &types.LeaderboardIncrement{UserID: "alice", Points: 5})
		require.NoError(t, err)
		assert.Equal(t, int64(0), change.Before.Points)
		assert.Equal(t, int64(5), change.After.Points)

		change, err = tx.IncrementLeaderboard(ctx, &types.LeaderboardIncrement{
			UserID: "alice", DisplayName: &name, Points: 2,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(5), change.Before.Points)
		assert.Equal(t, int64(7), change.After.Points)
		assert.Equal(t, "Alice", change.After.DisplayName)
		return nil
	})
	require.NoError(t, err)
}

func TestClientWriteOnce(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	seedPair(t, client)

	like := func() error {
		return client.RunInTx(ctx, func(ctx context.Context, tx scoring.Tx) error {
			return tx.CreateLike(ctx, &types.Like{FibID: "a", UserID: "carol"})
		})
	}
	require.NoError(t, like())
	require.ErrorIs(t, like(), types.ErrAlreadyExists)

	err := client.RunInTx(ctx, func(ctx context.Context, tx scoring.Tx) error {
		fresh, err := tx.MarkProcessed(ctx, "k")
		require.NoError(t, err)
		assert.True(t, fresh)

		fresh, err = tx.MarkProcessed(ctx, "k")
		require.NoError(t, err)
		assert.False(t, fresh)

		_, err = tx.GetFib(ctx, "missing")
		require.ErrorIs(t, err, types.ErrNotFound)
		return nil
	})
	require.NoError(t, err)
}

func TestClientReactorFlow(t *testing.T) {
	client := newTestClient(t)
	logger := zaptest.NewLogger(t)
	ctx := context.Background()

	reactor := scoring.NewReactor(client, logger)
	fibs := scoring.NewFibService(client, logger)

	seedPair(t, client)
	require.NoError(t, fibs.Rate(ctx, "carol", &scoring.RateRequest{GoodFib: "a", BadFib: "b"}))
	drain(t, client, reactor)

	notifier := scoring.NewNotifier(client, logger)
	list, err := notifier.List(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, list.List, 1)
	assert.Equal(t, types.NotificationLikes, list.List[0].Type)
	assert.Equal(t, int64(1), list.List[0].Likes)

	alice, err := scoring.NewLeaderboardService(client, logger).Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(110), alice.Points)
	assert.Equal(t, int64(1), alice.WriteTotal)
	assert.Equal(t, int64(1), alice.LikedTotal)

	rows, err := client.UnpublishedEvents(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, rows)
}
