package scoring

import (
	"context"

	"github.com/fibgame/fibs/internal/database/types"
)

// Store is the transactional document store the engine runs against.
// fn runs in a single transaction: every write inside it lands together or
// not at all, along with the change events those writes produce.
type Store interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the set of document operations available inside a transaction.
type Tx interface {
	FibStore
	VoteStore
	ProfileStore
	LeaderboardStore
	NotificationStore

	// MarkProcessed records that the effect identified by key has been applied.
	// It returns false when the key was already recorded.
	MarkProcessed(ctx context.Context, key string) (bool, error)
}

// FibStore holds fibs and their write-once sub-records.
type FibStore interface {
	GetFib(ctx context.Context, id string) (*types.Fib, error)
	ListFibsByGame(ctx context.Context, game string) ([]*types.Fib, error)
	// CreateFib emits a FibCreated event.
	CreateFib(ctx context.Context, fib *types.Fib) error
	// CreateLike emits a LikeCreated event. Returns types.ErrAlreadyExists
	// when the user already liked the fib.
	CreateLike(ctx context.Context, like *types.Like) error
	CreateDislike(ctx context.Context, dislike *types.Dislike) error
	SaveReport(ctx context.Context, report *types.Report) error
}

// VoteStore holds vote receipts.
type VoteStore interface {
	HasVoteReceipt(ctx context.Context, fibID, voterID string) (bool, error)
	// CreateVoteReceipts returns types.ErrAlreadyExists if any receipt exists.
	CreateVoteReceipts(ctx context.Context, receipts []*types.VoteReceipt) error
}

// ProfileStore holds user profiles.
type ProfileStore interface {
	GetProfile(ctx context.Context, userID string) (*types.Profile, error)
	// SaveProfile emits a ProfileWritten event.
	SaveProfile(ctx context.Context, profile *types.Profile) error
}

// LeaderboardStore holds the derived per-user accumulators.
type LeaderboardStore interface {
	GetLeaderboardEntry(ctx context.Context, userID string) (*types.LeaderboardEntry, error)
	TopLeaderboard(ctx context.Context, field types.LeaderboardField, limit int) ([]*types.LeaderboardEntry, error)
	// IncrementLeaderboard applies the increment atomically in the store,
	// creating the entry if needed, and emits a LeaderboardUpdated event.
	IncrementLeaderboard(ctx context.Context, inc *types.LeaderboardIncrement) (*types.LeaderboardChange, error)
}

// NotificationStore holds per-user notification lists.
type NotificationStore interface {
	// GetNotificationsForUpdate returns the list locked for the rest of the
	// transaction, or an empty list if the user has none.
	GetNotificationsForUpdate(ctx context.Context, userID string) (*types.NotificationList, error)
	SaveNotifications(ctx context.Context, list *types.NotificationList) error
}
