package scoring_test

import (
	"context"
	"testing"

	"github.com/fibgame/fibs/internal/database/types"
	"github.com/fibgame/fibs/internal/scoring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFibService(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	_, err := f.fibs.Create(ctx, "author", &scoring.FibDraft{Page: "Moon", Game: "g1"})
	require.ErrorIs(t, err, scoring.ErrInvalidContent)

	_, err = f.fibs.Create(ctx, "", &scoring.FibDraft{Page: "Moon", Claim: "c", Game: "g1"})
	require.ErrorIs(t, err, scoring.ErrUnauthorized)

	first := createFib(t, f, "author", true)
	second := createFib(t, f, "author", false)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, []string{}, first.Gold)

	got, err := f.fibs.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, first.Claim, got.Claim)

	_, err = f.fibs.Get(ctx, "missing")
	require.ErrorIs(t, err, types.ErrNotFound)

	pair, err := f.fibs.ListByGame(ctx, "g1")
	require.NoError(t, err)
	assert.Len(t, pair, 2)

	other, err := f.fibs.ListByGame(ctx, "g2")
	require.NoError(t, err)
	assert.Empty(t, other)

	require.NoError(t, f.fibs.Report(ctx, "reader", first.ID, "typo"))
	require.ErrorIs(t, f.fibs.Report(ctx, "reader", first.ID, "  "), scoring.ErrInvalidContent)
	require.ErrorIs(t, f.fibs.Report(ctx, "reader", "missing", "typo"), types.ErrNotFound)

	require.ErrorIs(t, f.fibs.Rate(ctx, "fan", &scoring.RateRequest{}), scoring.ErrInvalidContent)
	require.ErrorIs(t, f.fibs.Rate(ctx, "fan", &scoring.RateRequest{GoodFib: "missing"}), types.ErrNotFound)
}

func TestRateIsAtomic(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	good := createFib(t, f, "author", true)
	bad := createFib(t, f, "author", false)

	require.NoError(t, f.fibs.Rate(ctx, "fan", &scoring.RateRequest{BadFib: bad.ID}))

	// The dislike already exists, so the like is rolled back with it
	err := f.fibs.Rate(ctx, "fan", &scoring.RateRequest{GoodFib: good.ID, BadFib: bad.ID})
	require.ErrorIs(t, err, types.ErrAlreadyExists)
	require.Empty(t, f.drain(t))

	assert.Zero(t, f.entry(t, "author").LikedTotal)
}

func TestRenameValidation(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	_, err := f.profiles.Rename(ctx, "u1", "Ada")
	require.ErrorIs(t, err, types.ErrNotFound)

	_, err = f.profiles.Rename(ctx, "u1", "   ")
	require.ErrorIs(t, err, scoring.ErrInvalidContent)

	_, err = f.profiles.Login(ctx, &scoring.LoginRequest{})
	require.ErrorIs(t, err, scoring.ErrUnauthorized)
}

func TestLeaderboardService(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	createFib(t, f, "writer", true)
	createFib(t, f, "writer", false)
	createFib(t, f, "other", true)
	require.Empty(t, f.drain(t))

	top, err := f.leaderboard.Top(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "writer", top[0].UserID)
	assert.Equal(t, int64(2*scoring.WritePoints), top[0].Points)
	assert.Equal(t, 1, top[0].Level.Number)

	_, err = f.leaderboard.Top(ctx, "nope", 10)
	require.ErrorIs(t, err, types.ErrInvalidLeaderboardField)

	me, err := f.leaderboard.Get(ctx, "nobody")
	require.NoError(t, err)
	assert.Equal(t, "nobody", me.UserID)
	assert.Equal(t, "First Timer", me.Level.Name)
}
