package database

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"time"

	"github.com/bytedance/sonic"
	"github.com/fibgame/fibs/internal/database/dbretry"
	"github.com/fibgame/fibs/internal/database/migrations"
	"github.com/fibgame/fibs/internal/scoring"
	"github.com/fibgame/fibs/internal/setup/config"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bunjson"
	"github.com/uptrace/bun/extra/bunotel"
	"github.com/uptrace/bun/migrate"
	"go.uber.org/zap"
)

var _ scoring.Store = (*Client)(nil)

// sonicProvider is a JSON provider that uses Sonic for encoding and decoding.
type sonicProvider struct{}

func (sonicProvider) Marshal(v any) ([]byte, error) {
	return sonic.Marshal(v)
}

func (sonicProvider) Unmarshal(data []byte, v any) error {
	return sonic.Unmarshal(data, v)
}

func (sonicProvider) NewEncoder(w io.Writer) bunjson.Encoder {
	return sonic.ConfigDefault.NewEncoder(w)
}

func (sonicProvider) NewDecoder(r io.Reader) bunjson.Decoder {
	return sonic.ConfigDefault.NewDecoder(r)
}

// Client is the Postgres document store.
type Client struct {
	db     *bun.DB
	now    func() time.Time
	logger *zap.Logger
}

// NewConnection establishes a new database connection.
func NewConnection(
	ctx context.Context, config *config.PostgreSQL, logger *zap.Logger, autoMigrate bool,
) (*Client, error) {
	// Initialize database connection with config values
	opts := []pgdriver.Option{pgdriver.WithApplicationName("fibs")}
	if config.DSN != "" {
		opts = append(opts, pgdriver.WithDSN(config.DSN))
	} else {
		opts = append(opts,
			pgdriver.WithAddr(fmt.Sprintf("%s:%d", config.Host, config.Port)),
			pgdriver.WithUser(config.User),
			pgdriver.WithPassword(config.Password),
			pgdriver.WithDatabase(config.DBName),
			pgdriver.WithInsecure(true),
		)
	}
	sqldb := sql.OpenDB(pgdriver.NewConnector(opts...))

	// Set connection pool settings
	if config.MaxOpenConns > 0 {
		sqldb.SetMaxOpenConns(config.MaxOpenConns)
	}
	if config.MaxIdleConns > 0 {
		sqldb.SetMaxIdleConns(config.MaxIdleConns)
	}
	sqldb.SetConnMaxLifetime(time.Duration(config.MaxLifetime) * time.Minute)
	sqldb.SetConnMaxIdleTime(time.Duration(config.MaxIdleTime) * time.Minute)

	// Set Sonic as the JSON provider
	bunjson.SetProvider(sonicProvider{})

	// Create Bun db instance
	db := bun.NewDB(sqldb, pgdialect.New())

	// Add query hooks for logging and tracing
	db.AddQueryHook(NewHook(logger))
	db.AddQueryHook(bunotel.NewQueryHook(bunotel.WithDBName("fibs")))

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Run migrations if requested
	if autoMigrate {
		if err := Migrate(ctx, db, logger); err != nil {
			db.Close()
			return nil, err
		}
	}

	logger.Info("Database connection established")

	return NewClient(db, logger), nil
}

// NewClient wraps an open bun database.
func NewClient(db *bun.DB, logger *zap.Logger) *Client {
	return &Client{
		db:     db,
		now:    time.Now,
		logger: logger,
	}
}

// Migrate applies every pending migration.
func Migrate(ctx context.Context, db *bun.DB, logger *zap.Logger) error {
	migrator := migrate.NewMigrator(db, migrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		return fmt.Errorf("failed to initialize migrations: %w", err)
	}

	group, err := migrator.Migrate(ctx)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	if !group.IsZero() {
		logger.Info("Automatically ran migrations", zap.String("group", group.String()))
	}

	return nil
}

// RunInTx runs fn in a database transaction, retrying it on serialization
// failures, deadlocks and connection errors.
func (c *Client) RunInTx(ctx context.Context, fn func(ctx context.Context, tx scoring.Tx) error) error {
	return dbretry.Transaction(ctx, c.db, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, &pgTx{tx: tx, now: c.now})
	})
}

// Close gracefully shuts down the database connection.
func (c *Client) Close() error {
	err := c.db.Close()
	if err != nil {
		c.logger.Error("Failed to close database connection", zap.Error(err))
		return err
	}

	c.logger.Info("Database connection closed")

	return nil
}

// DB returns the underlying bun.DB instance.
func (c *Client) DB() *bun.DB {
	return c.db
}
