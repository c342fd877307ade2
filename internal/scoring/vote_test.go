package scoring_test

import (
	"context"
	"fmt"
	"math"
	"sync"
	"testing"

	"github.com/fibgame/fibs/internal/scoring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateVote(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		index       int
		time        float64
		sameAuthor  bool
		wantSuccess bool
		wantPoints  int64
		wantAuthor  int64
	}{
		{name: "correct guess", index: 1, time: 45.7, wantSuccess: true, wantPoints: 45, wantAuthor: 37},
		{name: "correct guess at zero", index: 1, time: 0, wantSuccess: true, wantPoints: 0, wantAuthor: 60},
		{name: "correct guess just under two minutes", index: 1, time: 119.9, wantSuccess: true, wantPoints: 119},
		{name: "correct guess with one author", index: 1, time: 119.9, sameAuthor: true, wantSuccess: true, wantPoints: 119, wantAuthor: 1},
		{name: "correct guess capped", index: 1, time: 250, wantSuccess: true, wantPoints: 120},
		{name: "wrong guess", index: 0, time: 45, wantSuccess: false, wantPoints: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t)
			secondAuthor := "author2"
			if tt.sameAuthor {
				secondAuthor = "author1"
			}
			f.seedFib(t, "true", "author1", "g1", true)
			f.seedFib(t, "false", secondAuthor, "g1", false)

			result, err := f.votes.CreateVote(context.Background(), "voter", &scoring.VoteRequest{
				Fibs:  []string{"true", "false"},
				Index: ptr(tt.index),
				Time:  ptr(tt.time),
			})
			require.NoError(t, err)
			assert.Equal(t, tt.wantSuccess, result.Success)
			assert.Equal(t, tt.wantPoints, result.Points)

			voter := f.entry(t, "voter")
			require.NotNil(t, voter)
			assert.Equal(t, result.Points, voter.Points)
			assert.Equal(t, result.Points, voter.VerifyPoints)
			if tt.wantSuccess {
				assert.Equal(t, int64(1), voter.VerifyTotal)
			} else {
				assert.Zero(t, voter.VerifyTotal)
			}

			for _, author := range []string{"author1", secondAuthor} {
				entry := f.entry(t, author)
				if tt.wantAuthor == 0 {
					assert.Nil(t, entry, author)
					continue
				}
				require.NotNil(t, entry, author)
				assert.Equal(t, tt.wantAuthor, entry.Points)
				assert.Equal(t, tt.wantAuthor, entry.FoolPoints)
				assert.Equal(t, int64(1), entry.FoolTotal)
			}
		})
	}
}

func TestCreateVoteRejected(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		voter   string
		req     *scoring.VoteRequest
		wantErr error
	}{
		{
			name:    "one fib",
			voter:   "voter",
			req:     &scoring.VoteRequest{Fibs: []string{"t1"}, Time: ptr(10.0)},
			wantErr: scoring.ErrInvalidVote,
		},
		{
			name:    "missing index",
			voter:   "voter",
			req:     &scoring.VoteRequest{Fibs: []string{"t1", "f1"}, Time: ptr(10.0)},
			wantErr: scoring.ErrInvalidVote,
		},
		{
			name:    "missing time",
			voter:   "voter",
			req:     &scoring.VoteRequest{Fibs: []string{"t1", "f1"}, Index: ptr(0)},
			wantErr: scoring.ErrInvalidVote,
		},
		{
			name:    "index out of range",
			voter:   "voter",
			req:     &scoring.VoteRequest{Fibs: []string{"t1", "f1"}, Index: ptr(2), Time: ptr(10.0)},
			wantErr: scoring.ErrInvalidVote,
		},
		{
			name:    "empty fib id",
			voter:   "voter",
			req:     &scoring.VoteRequest{Fibs: []string{"t1", ""}, Index: ptr(1), Time: ptr(10.0)},
			wantErr: scoring.ErrInvalidVote,
		},
		{
			name:    "time at limit",
			voter:   "voter",
			req:     &scoring.VoteRequest{Fibs: []string{"t1", "f1"}, Index: ptr(1), Time: ptr(300.0)},
			wantErr: scoring.ErrInvalidVote,
		},
		{
			name:    "negative time",
			voter:   "voter",
			req:     &scoring.VoteRequest{Fibs: []string{"t1", "f1"}, Index: ptr(1), Time: ptr(-1.0)},
			wantErr: scoring.ErrInvalidVote,
		},
		{
			name:    "nan time",
			voter:   "voter",
			req:     &scoring.VoteRequest{Fibs: []string{"t1", "f1"}, Index: ptr(1), Time: ptr(math.NaN())},
			wantErr: scoring.ErrInvalidVote,
		},
		{
			name:    "missing fib",
			voter:   "voter",
			req:     &scoring.VoteRequest{Fibs: []string{"t1", "nope"}, Index: ptr(1), Time: ptr(10.0)},
			wantErr: scoring.ErrFibNotFound,
		},
		{
			name:    "two true fibs",
			voter:   "voter",
			req:     &scoring.VoteRequest{Fibs: []string{"t1", "t2"}, Index: ptr(1), Time: ptr(10.0)},
			wantErr: scoring.ErrPairInvariant,
		},
		{
			name:    "two false fibs",
			voter:   "voter",
			req:     &scoring.VoteRequest{Fibs: []string{"f1", "f2"}, Index: ptr(1), Time: ptr(10.0)},
			wantErr: scoring.ErrPairInvariant,
		},
		{
			name:    "own fib",
			voter:   "author1",
			req:     &scoring.VoteRequest{Fibs: []string{"t1", "f1"}, Index: ptr(1), Time: ptr(10.0)},
			wantErr: scoring.ErrSelfVote,
		},
		{
			name:    "no voter",
			voter:   "",
			req:     &scoring.VoteRequest{Fibs: []string{"t1", "f1"}, Index: ptr(1), Time: ptr(10.0)},
			wantErr: scoring.ErrUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t)
			f.seedFib(t, "t1", "author1", "g1", true)
			f.seedFib(t, "t2", "author2", "g1", true)
			f.seedFib(t, "f1", "author2", "g1", false)
			f.seedFib(t, "f2", "author1", "g1", false)

			result, err := f.votes.CreateVote(context.Background(), tt.voter, tt.req)
			require.ErrorIs(t, err, tt.wantErr)
			require.ErrorIs(t, err, scoring.ErrUnauthorized)
			assert.Nil(t, result)

			for _, user := range []string{"voter", "author1", "author2"} {
				assert.Nil(t, f.entry(t, user), user)
			}
		})
	}
}

func TestCreateVoteTwice(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.seedFib(t, "t1", "author1", "g1", true)
	f.seedFib(t, "f1", "author2", "g1", false)
	ctx := context.Background()

	req := &scoring.VoteRequest{Fibs: []string{"t1", "f1"}, Index: ptr(1), Time: ptr(30.0)}
	_, err := f.votes.CreateVote(ctx, "voter", req)
	require.NoError(t, err)

	_, err = f.votes.CreateVote(ctx, "voter", req)
	require.ErrorIs(t, err, scoring.ErrAlreadyVoted)

	voter := f.entry(t, "voter")
	require.NotNil(t, voter)
	assert.Equal(t, int64(30), voter.Points)
	assert.Equal(t, int64(1), voter.VerifyTotal)
}

func TestCreateVoteConcurrent(t *testing.T) {
	t.Parallel()

	const voters = 25

	f := newFixture(t)
	f.seedFib(t, "t1", "author1", "g1", true)
	f.seedFib(t, "f1", "author2", "g1", false)

	var wg sync.WaitGroup
	results := make([]*scoring.VoteResult, voters)
	errs := make([]error, voters)

	for i := range voters {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = f.votes.CreateVote(context.Background(), voterName(i), &scoring.VoteRequest{
				Fibs:  []string{"t1", "f1"},
				Index: ptr(1),
				Time:  ptr(float64(10 + i)),
			})
		}()
	}
	wg.Wait()

	var wantAuthor int64
	for i := range voters {
		require.NoError(t, errs[i])
		assert.Equal(t, int64(10+i), results[i].Points)

		entry := f.entry(t, voterName(i))
		require.NotNil(t, entry)
		assert.Equal(t, results[i].Points, entry.Points)

		wantAuthor += (scoring.MaxVerifyPoints - results[i].Points) / 2
	}

	for _, author := range []string{"author1", "author2"} {
		entry := f.entry(t, author)
		require.NotNil(t, entry)
		assert.Equal(t, wantAuthor, entry.FoolPoints)
		assert.Equal(t, int64(voters), entry.FoolTotal)
	}
}

func TestCreateVoteDisjointPairs(t *testing.T) {
	t.Parallel()

	const pairs = 20

	f := newFixture(t)
	for i := range pairs {
		f.seedFib(t, fmt.Sprintf("t%d", i), "author1", "g1", true)
		f.seedFib(t, fmt.Sprintf("f%d", i), "author2", "g1", false)
	}

	var wg sync.WaitGroup
	results := make([]*scoring.VoteResult, pairs)
	errs := make([]error, pairs)

	// One voter on every pair: the receipts never collide, the leaderboard rows do
	for i := range pairs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = f.votes.CreateVote(context.Background(), "voter", &scoring.VoteRequest{
				Fibs:  []string{fmt.Sprintf("t%d", i), fmt.Sprintf("f%d", i)},
				Index: ptr(1),
				Time:  ptr(float64(10 + i)),
			})
		}()
	}
	wg.Wait()

	var wantVoter, wantAuthor int64
	for i := range pairs {
		require.NoError(t, errs[i])
		assert.True(t, results[i].Success)
		assert.Equal(t, int64(10+i), results[i].Points)

		wantVoter += results[i].Points
		wantAuthor += (scoring.MaxVerifyPoints - results[i].Points) / 2
	}

	voter := f.entry(t, "voter")
	require.NotNil(t, voter)
	assert.Equal(t, wantVoter, voter.Points)
	assert.Equal(t, wantVoter, voter.VerifyPoints)
	assert.Equal(t, int64(pairs), voter.VerifyTotal)

	for _, author := range []string{"author1", "author2"} {
		entry := f.entry(t, author)
		require.NotNil(t, entry)
		assert.Equal(t, wantAuthor, entry.FoolPoints)
		assert.Equal(t, int64(pairs), entry.FoolTotal)
	}
}

func voterName(i int) string {
	return "voter-" + string(rune('a'+i))
}
