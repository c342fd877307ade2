package setup

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/fibgame/fibs/internal/database"
	"github.com/fibgame/fibs/internal/database/migrations"
	"github.com/fibgame/fibs/internal/events"
	"github.com/fibgame/fibs/internal/identity"
	"github.com/fibgame/fibs/internal/redis"
	"github.com/fibgame/fibs/internal/scoring"
	"github.com/fibgame/fibs/internal/setup/config"
	"github.com/fibgame/fibs/internal/setup/telemetry"
	"github.com/fibgame/fibs/internal/storage/memory"
	"github.com/fibgame/fibs/internal/worker/relay"
	"github.com/redis/rueidis"
	"github.com/uptrace/bun/migrate"
	"go.uber.org/zap"
)

// ErrPendingMigrations is returned when the schema is behind and automatic
// migration was not requested.
var ErrPendingMigrations = errors.New("database migrations are pending, run `db migrate` first")

// Store is a document store with a transactional outbox.
type Store interface {
	scoring.Store
	relay.Outbox
}

// Options selects what InitializeApp connects to.
type Options struct {
	// Memory keeps every document in process. No Postgres or Redis
	// connection is made and Stream stays nil.
	Memory bool
	// AutoMigrate applies pending migrations instead of failing.
	AutoMigrate bool
	// WorkerType and WorkerID name the worker process in logs.
	WorkerType string
	WorkerID   string
}

// App bundles the dependencies shared by the binaries.
type App struct {
	Config       *config.Config     // Application configuration
	Logger       *zap.Logger        // Main application logger
	DBLogger     *zap.Logger        // Database-specific logger
	Store        Store              // Document store used by the services
	DB           *database.Client   // Postgres client, nil in memory mode
	RedisManager *redis.Manager     // Redis connection manager, nil in memory mode
	Stream       *events.Stream     // Change event stream, nil in memory mode
	StatusClient rueidis.Client     // Redis client for worker status reporting
	Verifier     identity.Verifier  // Identity token verifier
	LogManager   *telemetry.Manager // Log management system
	flushTraces  func(context.Context)
	pprofServer  *pprofServer
}

// InitializeApp bootstraps the application dependencies in order so that
// every component has what it needs when it is created.
func InitializeApp(ctx context.Context, serviceType telemetry.ServiceType, logDir string, opts Options) (*App, error) {
	cfg, _, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}

	// Logging comes first to capture setup issues
	forwardErrors := cfg.Common.Telemetry.UptraceDSN != ""

	logManager, err := telemetry.NewManager(
		serviceType, logDir, &cfg.Common.Debug, forwardErrors, opts.WorkerType, opts.WorkerID,
	)
	if err != nil {
		return nil, err
	}

	logger, dbLogger, err := logManager.GetLoggers()
	if err != nil {
		return nil, err
	}

	app := &App{
		Config:     cfg,
		Logger:     logger,
		DBLogger:   dbLogger.Named("database"),
		LogManager: logManager,
		flushTraces: telemetry.ConfigureTracing(
			&cfg.Common.Telemetry, "fibs-"+logManager.GetComponentName(), config.RepositoryVersion, logger,
		),
	}

	if err := app.connect(ctx, opts); err != nil {
		app.Cleanup(ctx)
		return nil, err
	}

	verifier, err := identity.NewVerifier(ctx, &cfg.Common.Identity, logger)
	if err != nil {
		app.Cleanup(ctx)
		return nil, err
	}
	app.Verifier = verifier

	if cfg.Common.Debug.EnablePprof {
		srv, err := startPprofServer(cfg.Common.Debug.PprofPort, logger)
		if err != nil {
			logger.Error("Failed to start pprof server", zap.Error(err))
		} else {
			app.pprofServer = srv
			logger.Warn("pprof debugging endpoint enabled - this should not be used in production!")
		}
	}

	return app, nil
}

// connect opens the store and the Redis clients.
func (s *App) connect(ctx context.Context, opts Options) error {
	if opts.Memory {
		s.Logger.Warn("Using the in-memory store, documents are lost on exit")
		s.Store = memory.New()
		return nil
	}

	db, err := checkAndRunMigrations(ctx, &s.Config.Common.PostgreSQL, s.DBLogger, opts.AutoMigrate)
	if err != nil {
		return err
	}
	s.DB = db
	s.Store = db

	s.RedisManager = redis.NewManager(&s.Config.Common.Redis, s.Logger)

	streamClient, err := s.RedisManager.GetClient(redis.StreamDBIndex)
	if err != nil {
		return err
	}
	s.Stream = events.NewStream(streamClient, s.Config.Common.Stream.Key, s.Config.Common.Stream.Group, s.Logger)

	s.StatusClient, err = s.RedisManager.GetClient(redis.WorkerStatusDBIndex)
	if err != nil {
		return err
	}

	return s.RedisManager.Ping(ctx)
}

// Cleanup shuts components down in reverse order. Errors are logged so that
// every component still gets its turn.
func (s *App) Cleanup(ctx context.Context) {
	if s.pprofServer != nil {
		if err := s.pprofServer.Shutdown(ctx); err != nil {
			s.Logger.Error("Failed to shutdown pprof server", zap.Error(err))
		}
	}

	if s.DB != nil {
		if err := s.DB.Close(); err != nil {
			log.Printf("Failed to close database connection: %v", err)
		}
	}

	// Redis goes last as other components might need it during cleanup
	if s.RedisManager != nil {
		s.RedisManager.Close()
	}

	if s.flushTraces != nil {
		s.flushTraces(ctx)
	}

	if err := s.Logger.Sync(); err != nil {
		log.Printf("Failed to sync logger: %v", err)
	}
	if err := s.DBLogger.Sync(); err != nil {
		log.Printf("Failed to sync DB logger: %v", err)
	}
	s.LogManager.Close()
}

// checkAndRunMigrations connects to Postgres and makes sure the schema is
// current before the connection is handed out.
func checkAndRunMigrations(
	ctx context.Context, cfg *config.PostgreSQL, dbLogger *zap.Logger, autoMigrate bool,
) (*database.Client, error) {
	db, err := database.NewConnection(ctx, cfg, dbLogger, false)
	if err != nil {
		return nil, err
	}

	migrator := migrate.NewMigrator(db.DB(), migrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize migrations: %w", err)
	}

	ms, err := migrator.MigrationsWithStatus(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to check migration status: %w", err)
	}

	unapplied := ms.Unapplied()
	if len(unapplied) == 0 {
		return db, nil
	}

	if !autoMigrate {
		db.Close()
		return nil, fmt.Errorf("%w: %d unapplied", ErrPendingMigrations, len(unapplied))
	}

	if err := database.Migrate(ctx, db.DB(), dbLogger); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}
