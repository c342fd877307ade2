package scoring

import (
	"context"
	"errors"

	"github.com/fibgame/fibs/internal/database/types"
	"go.uber.org/zap"
)

const (
	// DefaultLeaderboardLimit is the page size of the leaderboard.
	DefaultLeaderboardLimit = 20
	// MaxLeaderboardLimit caps the requested page size.
	MaxLeaderboardLimit = 100
)

// RankedEntry is a leaderboard entry with its derived level.
type RankedEntry struct {
	*types.LeaderboardEntry
	Level Level `json:"level"`
}

// LeaderboardService reads the leaderboard.
type LeaderboardService struct {
	store  Store
	logger *zap.Logger
}

// NewLeaderboardService creates a new leaderboard service.
func NewLeaderboardService(store Store, logger *zap.Logger) *LeaderboardService {
	return &LeaderboardService{
		store:  store,
		logger: logger.Named("leaderboard_service"),
	}
}

// Top returns the highest entries ordered by field. An empty field orders by
// points and a non-positive limit uses the default page size.
func (s *LeaderboardService) Top(ctx context.Context, field types.LeaderboardField, limit int) ([]*RankedEntry, error) {
	if field == "" {
		field = types.LeaderboardFieldPoints
	}
	if _, err := field.Column(); err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = DefaultLeaderboardLimit
	}
	limit = min(limit, MaxLeaderboardLimit)

	var entries []*types.LeaderboardEntry
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		entries, err = tx.TopLeaderboard(ctx, field, limit)
		return err
	})
	if err != nil {
		return nil, err
	}

	ranked := make([]*RankedEntry, 0, len(entries))
	for _, entry := range entries {
		ranked = append(ranked, &RankedEntry{LeaderboardEntry: entry, Level: ComputeLevel(entry)})
	}
	return ranked, nil
}

// Get returns the entry of one user. A user with no entry yet gets an empty
// one at the first level.
func (s *LeaderboardService) Get(ctx context.Context, userID string) (*RankedEntry, error) {
	var entry *types.LeaderboardEntry
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		entry, err = tx.GetLeaderboardEntry(ctx, userID)
		return err
	})
	if errors.Is(err, types.ErrNotFound) {
		entry, err = &types.LeaderboardEntry{UserID: userID}, nil
	}
	if err != nil {
		return nil, err
	}

	return &RankedEntry{LeaderboardEntry: entry, Level: ComputeLevel(entry)}, nil
}
