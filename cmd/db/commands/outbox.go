package commands

import (
	"context"
	"time"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

// OutboxCommands returns the outbox maintenance commands.
func OutboxCommands(deps *CLIDependencies) []*cli.Command {
	return []*cli.Command{
		{
			Name:  "purge-outbox",
			Usage: "Delete outbox rows that were published before a cutoff",
			Description: `Published outbox rows are only kept for inspection. Rows that were never
published are always kept.

Examples:
  db purge-outbox                     # Delete rows published over a week ago
  db purge-outbox --older-than 24h    # Delete rows published over a day ago`,
			Flags: []cli.Flag{
				&cli.DurationFlag{
					Name:  "older-than",
					Usage: "Minimum age of a published row",
					Value: 7 * 24 * time.Hour,
				},
			},
			Action: handlePurgeOutbox(deps),
		},
	}
}

func handlePurgeOutbox(deps *CLIDependencies) cli.ActionFunc {
	return func(ctx context.Context, c *cli.Command) error {
		age := c.Duration("older-than")
		if age <= 0 {
			return ErrInvalidAge
		}

		cutoff := time.Now().Add(-age)
		deleted, err := deps.DB.PurgePublished(ctx, cutoff)
		if err != nil {
			return err
		}

		deps.Logger.Info("Purged published outbox rows",
			zap.Time("cutoff", cutoff),
			zap.Int64("deleted", deleted))
		return nil
	}
}
