package commands

import (
	"context"
	"fmt"

	"github.com/uptrace/bun/migrate"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

// MigrationCommands returns the schema migration commands.
func MigrationCommands(deps *CLIDependencies) []*cli.Command {
	return []*cli.Command{
		{
			Name:  "init",
			Usage: "Initialize migration tables",
			Action: func(ctx context.Context, _ *cli.Command) error {
				return deps.Migrator.Init(ctx)
			},
		},
		{
			Name:  "migrate",
			Usage: "Run pending migrations",
			Action: func(ctx context.Context, _ *cli.Command) error {
				return deps.applyLocked(ctx, "migrated", deps.Migrator.Migrate)
			},
		},
		{
			Name:  "rollback",
			Usage: "Rollback the last migration group",
			Action: func(ctx context.Context, _ *cli.Command) error {
				return deps.applyLocked(ctx, "rolled back", deps.Migrator.Rollback)
			},
		},
		{
			Name:   "status",
			Usage:  "Show migration status",
			Action: handleStatus(deps),
		},
		{
			Name:      "create",
			Usage:     "Create a new Go migration file",
			ArgsUsage: "NAME",
			Action:    handleCreate(deps),
		},
	}
}

// applyLocked runs a migrate or rollback step while holding the migration lock.
func (deps *CLIDependencies) applyLocked(
	ctx context.Context, verb string, step func(context.Context, ...migrate.MigrationOption) (*migrate.MigrationGroup, error),
) error {
	if err := deps.Migrator.Init(ctx); err != nil {
		return fmt.Errorf("failed to initialize migration tables: %w", err)
	}

	if err := deps.Migrator.Lock(ctx); err != nil {
		return err
	}
	defer deps.Migrator.Unlock(ctx) //nolint:errcheck // -

	group, err := step(ctx)
	if err != nil {
		return err
	}

	if group.IsZero() {
		deps.Logger.Info("Nothing to do, database is up to date")
		return nil
	}

	deps.Logger.Info("Successfully "+verb,
		zap.String("group", group.String()),
		zap.Int("migrations", len(group.Migrations)))
	return nil
}

func handleStatus(deps *CLIDependencies) cli.ActionFunc {
	return func(ctx context.Context, _ *cli.Command) error {
		ms, err := deps.Migrator.MigrationsWithStatus(ctx)
		if err != nil {
			return err
		}

		for _, m := range ms {
			state := "pending"
			if m.IsApplied() {
				state = fmt.Sprintf("applied in group %d", m.GroupID)
			}
			fmt.Printf("%-40s %s\n", m.Name+"_"+m.Comment, state)
		}

		deps.Logger.Info("Migration status",
			zap.Int("total", len(ms)),
			zap.Int("unapplied", len(ms.Unapplied())),
			zap.String("last_group", ms.LastGroup().String()))
		return nil
	}
}

func handleCreate(deps *CLIDependencies) cli.ActionFunc {
	return func(ctx context.Context, c *cli.Command) error {
		if c.Args().Len() != 1 {
			return ErrNameRequired
		}

		mf, err := deps.Migrator.CreateGoMigration(ctx, c.Args().First())
		if err != nil {
			return err
		}

		deps.Logger.Info("Created Go migration", zap.String("path", mf.Path))
		return nil
	}
}
