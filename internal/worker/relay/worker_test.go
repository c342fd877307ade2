package relay_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/fibgame/fibs/internal/database/types"
	"github.com/fibgame/fibs/internal/events"
	"github.com/fibgame/fibs/internal/scoring"
	"github.com/fibgame/fibs/internal/setup/config"
	"github.com/fibgame/fibs/internal/storage/memory"
	"github.com/fibgame/fibs/internal/worker/relay"
	"github.com/redis/rueidis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var errBroker = errors.New("broker down")

// recordingPublisher accepts events until failAfter are published.
type recordingPublisher struct {
	mu        sync.Mutex
	published []*events.Envelope
	failAfter int
}

func (p *recordingPublisher) Publish(_ context.Context, env *events.Envelope) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.failAfter >= 0 && len(p.published) >= p.failAfter {
		return "", errBroker
	}
	p.published = append(p.published, env)
	return env.ID.String(), nil
}

func seedLikes(t *testing.T, store *memory.Store, n int) {
	t.Helper()

	err := store.RunInTx(context.Background(), func(ctx context.Context, tx scoring.Tx) error {
		if err := tx.CreateFib(ctx, &types.Fib{ID: "fib", Author: "alice", Game: "g"}); err != nil {
			return err
		}
		for i := range n {
			like := &types.Like{FibID: "fib", UserID: string(rune('a' + i))}
			if err := tx.CreateLike(ctx, like); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
}

func TestRelayBatch(t *testing.T) {
	t.Parallel()

	store := memory.New()
	seedLikes(t, store, 4)

	publisher := &recordingPublisher{failAfter: -1}
	worker := relay.New(store, publisher, nil, &config.Relay{BatchSize: 3}, zaptest.NewLogger(t))

	count, err := worker.RelayBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	count, err = worker.RelayBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	count, err = worker.RelayBatch(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)

	require.Len(t, publisher.published, 5)
	assert.Equal(t, events.KindFibCreated, publisher.published[0].Kind)
	for _, env := range publisher.published[1:] {
		assert.Equal(t, events.KindLikeCreated, env.Kind)
	}
}

func TestRelayBatchStopsAtFailure(t *testing.T) {
	t.Parallel()

	store := memory.New()
	seedLikes(t, store, 2)

	publisher := &recordingPublisher{failAfter: 1}
	worker := relay.New(store, publisher, nil, &config.Relay{BatchSize: 10}, zaptest.NewLogger(t))

	count, err := worker.RelayBatch(context.Background())
	require.ErrorIs(t, err, errBroker)
	assert.Equal(t, 1, count)

	// The failed row and the rows after it stay in the outbox
	rows, err := store.UnpublishedEvents(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, string(events.KindLikeCreated), rows[0].Kind)
}

func TestRelayToStream(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	client, err := rueidis.NewClient(rueidis.ClientOption{InitAddress: []string{mr.Addr()}, DisableCache: true})
	require.NoError(t, err)
	t.Cleanup(client.Close)

	logger := zaptest.NewLogger(t)
	stream := events.NewStream(client, "", "", logger)
	require.NoError(t, stream.EnsureGroup(context.Background()))

	store := memory.New()
	seedLikes(t, store, 1)

	worker := relay.New(store, stream, nil, &config.Relay{BatchSize: 10, PollInterval: 10}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- worker.Start(ctx) }()

	var deliveries []events.Delivery
	require.Eventually(t, func() bool {
		got, err := stream.Read(context.Background(), "test", 10, 0, false)
		if err != nil {
			return false
		}
		deliveries = append(deliveries, got...)
		return len(deliveries) == 2
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, events.KindFibCreated, deliveries[0].Envelope.Kind)
	assert.Equal(t, events.KindLikeCreated, deliveries[1].Envelope.Kind)

	rows, err := store.UnpublishedEvents(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestDispatchPublisher(t *testing.T) {
	t.Parallel()

	logger := zaptest.NewLogger(t)
	store := memory.New()
	reactor := scoring.NewReactor(store, logger)
	publisher := relay.NewDispatchPublisher(reactor, logger)

	// A self-like is terminal and must not block the relay
	err := store.RunInTx(context.Background(), func(ctx context.Context, tx scoring.Tx) error {
		if err := tx.CreateFib(ctx, &types.Fib{ID: "fib", Author: "alice", Game: "g"}); err != nil {
			return err
		}
		return tx.CreateLike(ctx, &types.Like{FibID: "fib", UserID: "alice"})
	})
	require.NoError(t, err)

	worker := relay.New(store, publisher, nil, &config.Relay{}, logger)
	for {
		count, err := worker.RelayBatch(context.Background())
		require.NoError(t, err)
		if count == 0 {
			break
		}
	}

	err = store.RunInTx(context.Background(), func(ctx context.Context, tx scoring.Tx) error {
		entry, err := tx.GetLeaderboardEntry(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, int64(100), entry.Points)
		assert.Zero(t, entry.LikedTotal)
		return nil
	})
	require.NoError(t, err)
}
