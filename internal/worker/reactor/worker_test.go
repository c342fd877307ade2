package reactor_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/fibgame/fibs/internal/database/types"
	"github.com/fibgame/fibs/internal/events"
	"github.com/fibgame/fibs/internal/scoring"
	"github.com/fibgame/fibs/internal/setup/config"
	"github.com/fibgame/fibs/internal/storage/memory"
	"github.com/fibgame/fibs/internal/worker/reactor"
	"github.com/redis/rueidis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var errTransient = errors.New("store unavailable")

type dispatchFunc func(ctx context.Context, env *events.Envelope) error

func (f dispatchFunc) Dispatch(ctx context.Context, env *events.Envelope) error {
	return f(ctx, env)
}

var testConfig = &config.Reactor{
	BatchSize:     10,
	Concurrency:   4,
	BlockTimeout:  10,
	MaxDeliveries: 3,
}

func setupStream(t *testing.T) (*events.Stream, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client, err := rueidis.NewClient(rueidis.ClientOption{InitAddress: []string{mr.Addr()}, DisableCache: true})
	require.NoError(t, err)
	t.Cleanup(client.Close)

	stream := events.NewStream(client, "", "", zaptest.NewLogger(t))
	require.NoError(t, stream.EnsureGroup(context.Background()))
	return stream, mr
}

// publishOutbox moves every unpublished row of the store onto the stream.
func publishOutbox(t *testing.T, store *memory.Store, stream *events.Stream) int {
	t.Helper()

	ctx := context.Background()
	rows, err := store.UnpublishedEvents(ctx, 0)
	require.NoError(t, err)

	ids := make([]int64, 0, len(rows))
	for _, row := range rows {
		_, err := stream.Publish(ctx, events.FromOutbox(row))
		require.NoError(t, err)
		ids = append(ids, row.ID)
	}
	require.NoError(t, store.MarkPublished(ctx, ids))
	return len(rows)
}

func publishLike(t *testing.T, stream *events.Stream) {
	t.Helper()

	row, err := events.NewOutboxEvent(&events.LikeCreated{FibID: "fib", UserID: "bob"}, time.Now())
	require.NoError(t, err)
	_, err = stream.Publish(context.Background(), events.FromOutbox(row))
	require.NoError(t, err)
}

func pendingCount(t *testing.T, stream *events.Stream) int {
	t.Helper()

	pending, err := stream.Read(context.Background(), "worker-1", 100, 0, true)
	require.NoError(t, err)
	return len(pending)
}

func deadCount(t *testing.T, mr *miniredis.Miniredis, stream *events.Stream) int {
	t.Helper()

	if !mr.Exists(stream.DeadKey()) {
		return 0
	}
	dead, err := mr.Stream(stream.DeadKey())
	require.NoError(t, err)
	return len(dead)
}

func TestPollAppliesReactions(t *testing.T) {
	t.Parallel()

	logger := zaptest.NewLogger(t)
	stream, _ := setupStream(t)
	store := memory.New()

	err := store.RunInTx(context.Background(), func(ctx context.Context, tx scoring.Tx) error {
		if err := tx.CreateFib(ctx, &types.Fib{ID: "fib", Author: "alice", Game: "g"}); err != nil {
			return err
		}
		return tx.CreateLike(ctx, &types.Like{FibID: "fib", UserID: "bob"})
	})
	require.NoError(t, err)

	worker := reactor.New(stream, scoring.NewReactor(store, logger), nil, "worker-1", testConfig, logger)

	// Run until the reactions stop producing events
	for publishOutbox(t, store, stream) > 0 {
		failed, err := worker.Poll(context.Background())
		require.NoError(t, err)
		assert.Zero(t, failed)
	}
	assert.Zero(t, pendingCount(t, stream))

	err = store.RunInTx(context.Background(), func(ctx context.Context, tx scoring.Tx) error {
		entry, err := tx.GetLeaderboardEntry(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, int64(110), entry.Points)
		assert.Equal(t, int64(1), entry.LikedTotal)

		list, err := tx.GetNotificationsForUpdate(ctx, "alice")
		require.NoError(t, err)
		require.Len(t, list.List, 1)
		assert.Equal(t, int64(1), list.List[0].Likes)
		return nil
	})
	require.NoError(t, err)
}

func TestPollRetriesThenDeadLetters(t *testing.T) {
	t.Parallel()

	stream, mr := setupStream(t)
	publishLike(t, stream)

	var calls atomic.Int32
	dispatcher := dispatchFunc(func(context.Context, *events.Envelope) error {
		calls.Add(1)
		return errTransient
	})
	worker := reactor.New(stream, dispatcher, nil, "worker-1", testConfig, zaptest.NewLogger(t))

	for range 2 {
		failed, err := worker.Poll(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, failed)
		assert.Equal(t, 1, pendingCount(t, stream))
	}

	failed, err := worker.Poll(context.Background())
	require.NoError(t, err)
	assert.Zero(t, failed)

	assert.Equal(t, int32(3), calls.Load())
	assert.Zero(t, pendingCount(t, stream))
	assert.Equal(t, 1, deadCount(t, mr, stream))
}

func TestPollRecoversFromTransientFailure(t *testing.T) {
	t.Parallel()

	stream, mr := setupStream(t)
	publishLike(t, stream)

	var calls atomic.Int32
	dispatcher := dispatchFunc(func(context.Context, *events.Envelope) error {
		if calls.Add(1) == 1 {
			return errTransient
		}
		return nil
	})
	worker := reactor.New(stream, dispatcher, nil, "worker-1", testConfig, zaptest.NewLogger(t))

	failed, err := worker.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, failed)

	failed, err = worker.Poll(context.Background())
	require.NoError(t, err)
	assert.Zero(t, failed)

	assert.Zero(t, pendingCount(t, stream))
	assert.Zero(t, deadCount(t, mr, stream))
}

func TestPollAcksViolatedPreconditions(t *testing.T) {
	t.Parallel()

	stream, mr := setupStream(t)
	publishLike(t, stream)

	dispatcher := dispatchFunc(func(context.Context, *events.Envelope) error {
		return scoring.ErrSelfLike
	})
	worker := reactor.New(stream, dispatcher, nil, "worker-1", testConfig, zaptest.NewLogger(t))

	failed, err := worker.Poll(context.Background())
	require.NoError(t, err)
	assert.Zero(t, failed)

	assert.Zero(t, pendingCount(t, stream))
	assert.Zero(t, deadCount(t, mr, stream))
}

func TestPollDeadLettersPoisonEntries(t *testing.T) {
	t.Parallel()

	stream, mr := setupStream(t)

	_, err := mr.XAdd(stream.Key(), "*", []string{"envelope", "not json"})
	require.NoError(t, err)

	row, err := events.NewOutboxEvent(&events.LikeCreated{FibID: "fib", UserID: "bob"}, time.Now())
	require.NoError(t, err)
	env := events.FromOutbox(row)
	env.Kind = "fibDeleted"
	_, err = stream.Publish(context.Background(), env)
	require.NoError(t, err)

	dispatcher := dispatchFunc(func(_ context.Context, env *events.Envelope) error {
		_, err := env.Decode()
		return err
	})
	worker := reactor.New(stream, dispatcher, nil, "worker-1", testConfig, zaptest.NewLogger(t))

	failed, err := worker.Poll(context.Background())
	require.NoError(t, err)
	assert.Zero(t, failed)

	assert.Zero(t, pendingCount(t, stream))
	assert.Equal(t, 2, deadCount(t, mr, stream))
}

func TestStartStopsOnCancel(t *testing.T) {
	t.Parallel()

	stream, _ := setupStream(t)
	publishLike(t, stream)

	var calls atomic.Int32
	dispatcher := dispatchFunc(func(context.Context, *events.Envelope) error {
		calls.Add(1)
		return nil
	})
	worker := reactor.New(stream, dispatcher, nil, "worker-1", testConfig, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- worker.Start(ctx) }()

	require.Eventually(t, func() bool { return calls.Load() == 1 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}
