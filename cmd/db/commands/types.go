package commands

import (
	"errors"

	"github.com/fibgame/fibs/internal/database"
	"github.com/uptrace/bun/migrate"
	"go.uber.org/zap"
)

var (
	ErrNameRequired = errors.New("NAME argument required")
	ErrInvalidAge   = errors.New("--older-than must be positive")
)

// CLIDependencies holds the dependencies shared by the db commands.
type CLIDependencies struct {
	DB       *database.Client
	Migrator *migrate.Migrator
	Logger   *zap.Logger
}
