package migrations

import (
	"context"
	"fmt"

	"github.com/fibgame/fibs/internal/database/types"
	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		models := []any{
			(*types.Fib)(nil),
			(*types.Like)(nil),
			(*types.Dislike)(nil),
			(*types.Report)(nil),
			(*types.VoteReceipt)(nil),
			(*types.Profile)(nil),
			(*types.LeaderboardEntry)(nil),
			(*types.NotificationList)(nil),
			(*types.OutboxEvent)(nil),
			(*types.ProcessedEvent)(nil),
		}

		for _, model := range models {
			_, err := db.NewCreateTable().
				Model(model).
				IfNotExists().
				Exec(ctx)
			if err != nil {
				return fmt.Errorf("failed to create table %T: %w", model, err)
			}
		}

		return nil
	}, func(ctx context.Context, db *bun.DB) error {
		models := []any{
			(*types.ProcessedEvent)(nil),
			(*types.OutboxEvent)(nil),
			(*types.NotificationList)(nil),
			(*types.LeaderboardEntry)(nil),
			(*types.Profile)(nil),
			(*types.VoteReceipt)(nil),
			(*types.Report)(nil),
			(*types.Dislike)(nil),
			(*types.Like)(nil),
			(*types.Fib)(nil),
		}

		for _, model := range models {
			_, err := db.NewDropTable().
				Model(model).
				IfExists().
				Cascade().
				Exec(ctx)
			if err != nil {
				return fmt.Errorf("failed to drop table %T: %w", model, err)
			}
		}

		return nil
	})
}
