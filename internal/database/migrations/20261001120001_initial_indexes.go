package migrations

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		_, err := db.NewRaw(`
			-- Fib pairs
			CREATE INDEX IF NOT EXISTS idx_fibs_game
			ON fibs (game, created ASC);

			CREATE INDEX IF NOT EXISTS idx_fibs_author
			ON fibs (author);

			-- Receipt lookups by voter
			CREATE INDEX IF NOT EXISTS idx_vote_receipts_author
			ON vote_receipts (author, fib_id);

			-- Leaderboard sort columns
			CREATE INDEX IF NOT EXISTS idx_leaderboard_points
			ON leaderboard_entries (points DESC, user_id ASC);

			CREATE INDEX IF NOT EXISTS idx_leaderboard_verify_total
			ON leaderboard_entries (verify_total DESC, user_id ASC);

			CREATE INDEX IF NOT EXISTS idx_leaderboard_fool_total
			ON leaderboard_entries (fool_total DESC, user_id ASC);

			CREATE INDEX IF NOT EXISTS idx_leaderboard_liked_total
			ON leaderboard_entries (liked_total DESC, user_id ASC);

			CREATE INDEX IF NOT EXISTS idx_leaderboard_write_total
			ON leaderboard_entries (write_total DESC, user_id ASC);

			-- Outbox relay scan
			CREATE INDEX IF NOT EXISTS idx_outbox_events_unpublished
			ON outbox_events (id ASC)
			WHERE published IS NULL;

			CREATE INDEX IF NOT EXISTS idx_outbox_events_published
			ON outbox_events (published)
			WHERE published IS NOT NULL;
		`).Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to create indexes: %w", err)
		}

		return nil
	}, func(ctx context.Context, db *bun.DB) error {
		_, err := db.NewRaw(`
			DROP INDEX IF EXISTS idx_fibs_game;
			DROP INDEX IF EXISTS idx_fibs_author;
			DROP INDEX IF EXISTS idx_vote_receipts_author;
			DROP INDEX IF EXISTS idx_leaderboard_points;
			DROP INDEX IF EXISTS idx_leaderboard_verify_total;
			DROP INDEX IF EXISTS idx_leaderboard_fool_total;
			DROP INDEX IF EXISTS idx_leaderboard_liked_total;
			DROP INDEX IF EXISTS idx_leaderboard_write_total;
			DROP INDEX IF EXISTS idx_outbox_events_unpublished;
			DROP INDEX IF EXISTS idx_outbox_events_published;
		`).Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to drop indexes: %w", err)
		}

		return nil
	})
}
