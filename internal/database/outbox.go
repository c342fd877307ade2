package database

import (
	"context"
	"time"

	"github.com/fibgame/fibs/internal/database/dbretry"
	"github.com/fibgame/fibs/internal/database/types"
	"github.com/uptrace/bun"
)

// UnpublishedEvents returns up to limit outbox rows not yet published, oldest
// first.
func (c *Client) UnpublishedEvents(ctx context.Context, limit int) ([]*types.OutboxEvent, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) ([]*types.OutboxEvent, error) {
		rows := []*types.OutboxEvent{}
		q := c.db.NewSelect().Model(&rows).
			Where("published IS NULL").
			Order("id ASC")
		if limit > 0 {
			q = q.Limit(limit)
		}

		if err := q.Scan(ctx); err != nil {
			return nil, err
		}
		return rows, nil
	})
}

// MarkPublished stamps the given outbox rows as published.
func (c *Client) MarkPublished(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		_, err := c.db.NewUpdate().Model((*types.OutboxEvent)(nil)).
			Set("published = ?", c.now()).
			Where("id IN (?)", bun.In(ids)).
			Where("published IS NULL").
			Exec(ctx)
		return err
	})
}

// PurgePublished deletes published outbox rows older than the cutoff.
func (c *Client) PurgePublished(ctx context.Context, before time.Time) (int64, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (int64, error) {
		res, err := c.db.NewDelete().Model((*types.OutboxEvent)(nil)).
			Where("published IS NOT NULL").
			Where("published < ?", before).
			Exec(ctx)
		if err != nil {
			return 0, err
		}
		return res.RowsAffected()
	})
}
