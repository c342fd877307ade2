// Package memory is an in-process implementation of the scoring store.
// Transactions are serialised behind one mutex and staged until commit.
package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/fibgame/fibs/internal/database/types"
	"github.com/fibgame/fibs/internal/events"
	"github.com/fibgame/fibs/internal/scoring"
)

var _ scoring.Store = (*Store)(nil)

type pairKey struct {
	fibID  string
	userID string
}

// Store keeps every document in memory along with an outbox of change events.
type Store struct {
	mu  sync.Mutex
	now func() time.Time

	fibs          table[string, types.Fib]
	likes         table[pairKey, types.Like]
	dislikes      table[pairKey, types.Dislike]
	reports       table[pairKey, types.Report]
	receipts      table[pairKey, types.VoteReceipt]
	profiles      table[string, types.Profile]
	leaderboard   table[string, types.LeaderboardEntry]
	notifications table[string, []types.NotificationEntry]
	processed     table[string, time.Time]

	outbox       []*types.OutboxEvent
	nextOutboxID int64
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the clock used for outbox timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		now:           time.Now,
		fibs:          make(table[string, types.Fib]),
		likes:         make(table[pairKey, types.Like]),
		dislikes:      make(table[pairKey, types.Dislike]),
		reports:       make(table[pairKey, types.Report]),
		receipts:      make(table[pairKey, types.VoteReceipt]),
		profiles:      make(table[string, types.Profile]),
		leaderboard:   make(table[string, types.LeaderboardEntry]),
		notifications: make(table[string, []types.NotificationEntry]),
		processed:     make(table[string, time.Time]),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RunInTx runs fn against a staged view of the store. The writes and their
// events are committed only if fn returns nil.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx scoring.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{
		now:           s.now,
		fibs:          stage(s.fibs),
		likes:         stage(s.likes),
		dislikes:      stage(s.dislikes),
		reports:       stage(s.reports),
		receipts:      stage(s.receipts),
		profiles:      stage(s.profiles),
		leaderboard:   stage(s.leaderboard),
		notifications: stage(s.notifications),
		processed:     stage(s.processed),
	}

	if err := fn(ctx, tx); err != nil {
		return err
	}

	tx.fibs.commit()
	tx.likes.commit()
	tx.dislikes.commit()
	tx.reports.commit()
	tx.receipts.commit()
	tx.profiles.commit()
	tx.leaderboard.commit()
	tx.notifications.commit()
	tx.processed.commit()

	for _, row := range tx.outbox {
		s.nextOutboxID++
		row.ID = s.nextOutboxID
		s.outbox = append(s.outbox, row)
	}

	return nil
}

// UnpublishedEvents returns up to limit outbox rows not yet published, oldest
// first.
func (s *Store) UnpublishedEvents(ctx context.Context, limit int) ([]*types.OutboxEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rows []*types.OutboxEvent
	for _, row := range s.outbox {
		if !row.Published.IsZero() {
			continue
		}
		copied := *row
		rows = append(rows, &copied)
		if limit > 0 && len(rows) == limit {
			break
		}
	}
	return rows, nil
}

// MarkPublished stamps the given outbox rows as published.
func (s *Store) MarkPublished(ctx context.Context, ids []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for _, row := range s.outbox {
		if slices.Contains(ids, row.ID) && row.Published.IsZero() {
			row.Published = now
		}
	}
	return nil
}

// memTx is one staged transaction.
type memTx struct {
	now func() time.Time

	fibs          *staged[string, types.Fib]
	likes         *staged[pairKey, types.Like]
	dislikes      *staged[pairKey, types.Dislike]
	reports       *staged[pairKey, types.Report]
	receipts      *staged[pairKey, types.VoteReceipt]
	profiles      *staged[string, types.Profile]
	leaderboard   *staged[string, types.LeaderboardEntry]
	notifications *staged[string, []types.NotificationEntry]
	processed     *staged[string, time.Time]

	outbox []*types.OutboxEvent
}

func (tx *memTx) emit(ev events.Event) error {
	row, err := events.NewOutboxEvent(ev, tx.now())
	if err != nil {
		return err
	}
	tx.outbox = append(tx.outbox, row)
	return nil
}

func cloneFib(f types.Fib) *types.Fib {
	f.Gold = slices.Clone(f.Gold)
	f.Evidence = slices.Clone(f.Evidence)
	return &f
}

func (tx *memTx) GetFib(_ context.Context, id string) (*types.Fib, error) {
	fib, ok := tx.fibs.get(id)
	if !ok {
		return nil, types.ErrNotFound
	}
	return cloneFib(fib), nil
}

func (tx *memTx) ListFibsByGame(_ context.Context, game string) ([]*types.Fib, error) {
	fibs := []*types.Fib{}
	tx.fibs.each(func(_ string, fib types.Fib) {
		if fib.Game == game {
			fibs = append(fibs, cloneFib(fib))
		}
	})

	slices.SortFunc(fibs, func(a, b *types.Fib) int {
		return cmp.Or(a.Created.Compare(b.Created), cmp.Compare(a.ID, b.ID))
	})
	return fibs, nil
}

func (tx *memTx) CreateFib(_ context.Context, fib *types.Fib) error {
	if _, ok := tx.fibs.get(fib.ID); ok {
		return types.ErrAlreadyExists
	}

	stored := cloneFib(*fib)
	tx.fibs.put(fib.ID, *stored)
	return tx.emit(&events.FibCreated{Fib: *stored})
}

func (tx *memTx) CreateLike(_ context.Context, like *types.Like) error {
	key := pairKey{like.FibID, like.UserID}
	if _, ok := tx.likes.get(key); ok {
		return types.ErrAlreadyExists
	}

	tx.likes.put(key, *like)
	return tx.emit(&events.LikeCreated{FibID: like.FibID, UserID: like.UserID})
}

func (tx *memTx) CreateDislike(_ context.Context, dislike *types.Dislike) error {
	key := pairKey{dislike.FibID, dislike.UserID}
	if _, ok := tx.dislikes.get(key); ok {
		return types.ErrAlreadyExists
	}

	tx.dislikes.put(key, *dislike)
	return nil
}

func (tx *memTx) SaveReport(_ context.Context, report *types.Report) error {
	tx.reports.put(pairKey{report.FibID, report.UserID}, *report)
	return nil
}

func (tx *memTx) HasVoteReceipt(_ context.Context, fibID, voterID string) (bool, error) {
	_, ok := tx.receipts.get(pairKey{fibID, voterID})
	return ok, nil
}

func (tx *memTx) CreateVoteReceipts(_ context.Context, receipts []*types.VoteReceipt) error {
	for _, r := range receipts {
		if _, ok := tx.receipts.get(pairKey{r.FibID, r.Author}); ok {
			return types.ErrAlreadyExists
		}
	}

	for _, r := range receipts {
		stored := *r
		stored.EvidenceUsed = slices.Clone(r.EvidenceUsed)
		stored.Fibs = slices.Clone(r.Fibs)
		tx.receipts.put(pairKey{r.FibID, r.Author}, stored)
	}
	return nil
}

func (tx *memTx) GetProfile(_ context.Context, userID string) (*types.Profile, error) {
	profile, ok := tx.profiles.get(userID)
	if !ok {
		return nil, types.ErrNotFound
	}
	return &profile, nil
}

func (tx *memTx) SaveProfile(_ context.Context, profile *types.Profile) error {
	ev := &events.ProfileWritten{After: *profile}
	if before, ok := tx.profiles.get(profile.UserID); ok {
		ev.Before = &before
	}

	tx.profiles.put(profile.UserID, *profile)
	return tx.emit(ev)
}

func (tx *memTx) GetLeaderboardEntry(_ context.Context, userID string) (*types.LeaderboardEntry, error) {
	entry, ok := tx.leaderboard.get(userID)
	if !ok {
		return nil, types.ErrNotFound
	}
	return &entry, nil
}

func (tx *memTx) TopLeaderboard(
	_ context.Context, field types.LeaderboardField, limit int,
) ([]*types.LeaderboardEntry, error) {
	if _, err := field.Column(); err != nil {
		return nil, err
	}

	entries := []*types.LeaderboardEntry{}
	tx.leaderboard.each(func(_ string, entry types.LeaderboardEntry) {
		entries = append(entries, &entry)
	})

	slices.SortFunc(entries, func(a, b *types.LeaderboardEntry) int {
		return cmp.Or(cmp.Compare(field.Value(b), field.Value(a)), cmp.Compare(a.UserID, b.UserID))
	})

	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (tx *memTx) IncrementLeaderboard(
	_ context.Context, inc *types.LeaderboardIncrement,
) (*types.LeaderboardChange, error) {
	if err := inc.Validate(); err != nil {
		return nil, err
	}

	current, _ := tx.leaderboard.get(inc.UserID)
	after := inc.Apply(current)
	before := inc.Revert(after)

	tx.leaderboard.put(inc.UserID, after)

	if err := tx.emit(&events.LeaderboardUpdated{UserID: inc.UserID, Before: before, After: after}); err != nil {
		return nil, err
	}
	return &types.LeaderboardChange{Before: before, After: after}, nil
}

func (tx *memTx) GetNotificationsForUpdate(_ context.Context, userID string) (*types.NotificationList, error) {
	list, _ := tx.notifications.get(userID)
	return &types.NotificationList{UserID: userID, List: slices.Clone(list)}, nil
}

func (tx *memTx) SaveNotifications(_ context.Context, list *types.NotificationList) error {
	tx.notifications.put(list.UserID, slices.Clone(list.List))
	return nil
}

func (tx *memTx) MarkProcessed(_ context.Context, key string) (bool, error) {
	if _, ok := tx.processed.get(key); ok {
		return false, nil
	}
	tx.processed.put(key, tx.now())
	return true, nil
}
