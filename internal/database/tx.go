package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fibgame/fibs/internal/database/dbretry"
	"github.com/fibgame/fibs/internal/database/types"
	"github.com/fibgame/fibs/internal/events"
	"github.com/uptrace/bun"
)

// counterColumns are the leaderboard columns changed only by increments.
var counterColumns = []string{
	"points",
	"verify_points",
	"verify_total",
	"fool_points",
	"fool_total",
	"liked_points",
	"liked_total",
	"write_points",
	"write_total",
}

// pgTx implements scoring.Tx on a bun transaction. Change events are written
// to the outbox table in the same transaction.
type pgTx struct {
	tx  bun.Tx
	now func() time.Time
}

func (t *pgTx) emit(ctx context.Context, ev events.Event) error {
	row, err := events.NewOutboxEvent(ev, t.now())
	if err != nil {
		return err
	}

	if _, err := t.tx.NewInsert().Model(row).Exec(ctx); err != nil {
		return fmt.Errorf("failed to write %s event: %w", ev.Kind(), err)
	}
	return nil
}

// notFound maps a missing row to types.ErrNotFound.
func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return types.ErrNotFound
	}
	return err
}

// insertOnce inserts a write-once row, returning types.ErrAlreadyExists if a
// row with the same key is present. The conflict does not abort the
// transaction.
func (t *pgTx) insertOnce(ctx context.Context, model any, want int64) error {
	res, err := t.tx.NewInsert().Model(model).On("CONFLICT DO NOTHING").Exec(ctx)
	if err != nil {
		if dbretry.IsUniqueViolation(err) {
			return types.ErrAlreadyExists
		}
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected < want {
		return types.ErrAlreadyExists
	}
	return nil
}

func (t *pgTx) GetFib(ctx context.Context, id string) (*types.Fib, error) {
	fib := new(types.Fib)
	if err := t.tx.NewSelect().Model(fib).Where("id = ?", id).Scan(ctx); err != nil {
		return nil, notFound(err)
	}
	return fib, nil
}

func (t *pgTx) ListFibsByGame(ctx context.Context, game string) ([]*types.Fib, error) {
	fibs := []*types.Fib{}
	err := t.tx.NewSelect().Model(&fibs).
		Where("game = ?", game).
		Order("created ASC", "id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return fibs, nil
}

func (t *pgTx) CreateFib(ctx context.Context, fib *types.Fib) error {
	if err := t.insertOnce(ctx, fib, 1); err != nil {
		return err
	}
	return t.emit(ctx, &events.FibCreated{Fib: *fib})
}

func (t *pgTx) CreateLike(ctx context.Context, like *types.Like) error {
	if err := t.insertOnce(ctx, like, 1); err != nil {
		return err
	}
	return t.emit(ctx, &events.LikeCreated{FibID: like.FibID, UserID: like.UserID})
}

func (t *pgTx) CreateDislike(ctx context.Context, dislike *types.Dislike) error {
	return t.insertOnce(ctx, dislike, 1)
}

func (t *pgTx) SaveReport(ctx context.Context, report *types.Report) error {
	_, err := t.tx.NewInsert().Model(report).
		On("CONFLICT (fib_id, user_id) DO UPDATE").
		Set("issue = EXCLUDED.issue").
		Set("created = EXCLUDED.created").
		Exec(ctx)
	return err
}

func (t *pgTx) HasVoteReceipt(ctx context.Context, fibID, voterID string) (bool, error) {
	return t.tx.NewSelect().Model((*types.VoteReceipt)(nil)).
		Where("fib_id = ?", fibID).
		Where("author = ?", voterID).
		Exists(ctx)
}

// CreateVoteReceipts inserts every receipt or reports a conflict. On a
// conflict some receipts may be written, so the caller must roll back.
func (t *pgTx) CreateVoteReceipts(ctx context.Context, receipts []*types.VoteReceipt) error {
	return t.insertOnce(ctx, &receipts, int64(len(receipts)))
}

func (t *pgTx) GetProfile(ctx context.Context, userID string) (*types.Profile, error) {
	profile := new(types.Profile)
	if err := t.tx.NewSelect().Model(profile).Where("user_id = ?", userID).Scan(ctx); err != nil {
		return nil, notFound(err)
	}
	return profile, nil
}

func (t *pgTx) SaveProfile(ctx context.Context, profile *types.Profile) error {
	ev := &events.ProfileWritten{After: *profile}

	before := new(types.Profile)
	err := t.tx.NewSelect().Model(before).Where("user_id = ?", profile.UserID).For("UPDATE").Scan(ctx)
	switch {
	case err == nil:
		ev.Before = before
	case !errors.Is(err, sql.ErrNoRows):
		return err
	}

	_, err = t.tx.NewInsert().Model(profile).
		On("CONFLICT (user_id) DO UPDATE").
		Set("display_name = EXCLUDED.display_name").
		Set("email_verified = EXCLUDED.email_verified").
		Set("anonymous = EXCLUDED.anonymous").
		Set("last_login = EXCLUDED.last_login").
		Exec(ctx)
	if err != nil {
		return err
	}

	return t.emit(ctx, ev)
}

func (t *pgTx) GetLeaderboardEntry(ctx context.Context, userID string) (*types.LeaderboardEntry, error) {
	entry := new(types.LeaderboardEntry)
	if err := t.tx.NewSelect().Model(entry).Where("user_id = ?", userID).Scan(ctx); err != nil {
		return nil, notFound(err)
	}
	return entry, nil
}

func (t *pgTx) TopLeaderboard(
	ctx context.Context, field types.LeaderboardField, limit int,
) ([]*types.LeaderboardEntry, error) {
	column, err := field.Column()
	if err != nil {
		return nil, err
	}

	entries := []*types.LeaderboardEntry{}
	q := t.tx.NewSelect().Model(&entries).
		OrderExpr("? DESC", bun.Ident(column)).
		OrderExpr("user_id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return entries, nil
}

// IncrementLeaderboard adds the deltas in a single upsert so concurrent
// writers never overwrite each other. The entry before the write is derived
// from the returned row.
func (t *pgTx) IncrementLeaderboard(
	ctx context.Context, inc *types.LeaderboardIncrement,
) (*types.LeaderboardChange, error) {
	if err := inc.Validate(); err != nil {
		return nil, err
	}

	entry := inc.Apply(types.LeaderboardEntry{})

	q := t.tx.NewInsert().Model(&entry).On("CONFLICT (user_id) DO UPDATE")
	for _, col := range counterColumns {
		q = q.Set("? = le.? + EXCLUDED.?", bun.Ident(col), bun.Ident(col), bun.Ident(col))
	}
	if inc.DisplayName != nil {
		q = q.Set("display_name = EXCLUDED.display_name")
	}

	if _, err := q.Returning("*").Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to increment leaderboard: %w", err)
	}

	change := &types.LeaderboardChange{Before: inc.Revert(entry), After: entry}

	err := t.emit(ctx, &events.LeaderboardUpdated{UserID: inc.UserID, Before: change.Before, After: change.After})
	if err != nil {
		return nil, err
	}
	return change, nil
}

// GetNotificationsForUpdate creates the list row if needed so that the row
// lock also covers a user's first notification.
func (t *pgTx) GetNotificationsForUpdate(ctx context.Context, userID string) (*types.NotificationList, error) {
	list := &types.NotificationList{UserID: userID, List: []types.NotificationEntry{}}

	if _, err := t.tx.NewInsert().Model(list).On("CONFLICT DO NOTHING").Exec(ctx); err != nil {
		return nil, err
	}

	err := t.tx.NewSelect().Model(list).Where("user_id = ?", userID).For("UPDATE").Scan(ctx)
	if err != nil {
		return nil, err
	}
	return list, nil
}

func (t *pgTx) SaveNotifications(ctx context.Context, list *types.NotificationList) error {
	if list.List == nil {
		list.List = []types.NotificationEntry{}
	}

	_, err := t.tx.NewInsert().Model(list).
		On("CONFLICT (user_id) DO UPDATE").
		Set("list = EXCLUDED.list").
		Exec(ctx)
	return err
}

func (t *pgTx) MarkProcessed(ctx context.Context, key string) (bool, error) {
	res, err := t.tx.NewInsert().
		Model(&types.ProcessedEvent{EventKey: key, Processed: t.now()}).
		On("CONFLICT DO NOTHING").
		Exec(ctx)
	if err != nil {
		return false, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}
