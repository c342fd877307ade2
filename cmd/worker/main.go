package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fibgame/fibs/internal/scoring"
	"github.com/fibgame/fibs/internal/setup"
	"github.com/fibgame/fibs/internal/setup/telemetry"
	"github.com/fibgame/fibs/internal/worker/core"
	"github.com/fibgame/fibs/internal/worker/reactor"
	"github.com/fibgame/fibs/internal/worker/relay"
	"github.com/fibgame/fibs/pkg/utils"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	// WorkerLogDir specifies where worker log files are stored.
	WorkerLogDir = "logs/worker_logs"

	// RelayWorker publishes committed outbox rows to the event stream.
	RelayWorker = "relay"

	// ReactorWorker consumes the event stream and runs the reactions.
	ReactorWorker = "reactor"

	// restartDelay is the pause before a crashed worker is started again.
	restartDelay = 5 * time.Second
)

// startable is a worker loop that returns when ctx is cancelled.
type startable interface {
	Start(ctx context.Context) error
}

func main() {
	if err := run(); err != nil {
		log.Printf("Error: %v", err)
		os.Exit(1)
	}
}

func run() error {
	app := &cli.Command{
		Name:  "worker",
		Usage: "Start fibs background workers",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "workers",
				Aliases: []string{"w"},
				Value:   1,
				Usage:   "Number of workers to start",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  RelayWorker,
				Usage: "Start the outbox relay",
				Action: func(ctx context.Context, _ *cli.Command) error {
					// Concurrent relays would publish the same rows twice
					return runWorkers(ctx, RelayWorker, 1)
				},
			},
			{
				Name:  ReactorWorker,
				Usage: "Start event reactor workers",
				Action: func(ctx context.Context, c *cli.Command) error {
					return runWorkers(ctx, ReactorWorker, c.Int("workers"))
				},
			},
			{
				Name:   "status",
				Usage:  "Show the heartbeat of every running worker",
				Action: showStatus,
			},
		},
	}

	return app.Run(context.Background(), os.Args)
}

// runWorkers starts count instances of a worker type and waits for them.
func runWorkers(ctx context.Context, workerType string, count int64) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := setup.InitializeApp(ctx, telemetry.ServiceWorker, WorkerLogDir, setup.Options{WorkerType: workerType})
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer app.Cleanup(context.Background())

	if delay := time.Duration(app.Config.Worker.StartupDelay) * time.Millisecond; delay > 0 {
		app.Logger.Info("Delaying worker start", zap.Duration("delay", delay))
		if utils.ContextSleep(ctx, delay) == utils.SleepCancelled {
			return nil
		}
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "worker"
	}

	g, ctx := errgroup.WithContext(ctx)
	for i := range count {
		workerLogger, err := app.LogManager.GetLogger(fmt.Sprintf("%s_worker_%d", workerType, i))
		if err != nil {
			return err
		}

		reporter := core.NewStatusReporter(app.StatusClient, workerType, workerLogger)

		var w startable
		switch workerType {
		case RelayWorker:
			w = relay.New(app.Store, app.Stream, reporter, &app.Config.Worker.Relay, workerLogger)
		case ReactorWorker:
			consumer := fmt.Sprintf("%s-%s", hostname, reporter.GetWorkerID())
			w = reactor.New(
				app.Stream, scoring.NewReactor(app.Store, workerLogger), reporter,
				consumer, &app.Config.Worker.Reactor, workerLogger,
			)
		default:
			return fmt.Errorf("invalid worker type: %s", workerType)
		}

		g.Go(func() error {
			runWorker(ctx, w, workerLogger)
			return nil
		})
	}

	app.Logger.Info("Started workers", zap.String("type", workerType), zap.Int64("count", count))
	err = g.Wait()
	app.Logger.Info("All workers have finished")
	return err
}

// runWorker runs a single worker and restarts it after a crash until ctx is
// cancelled.
func runWorker(ctx context.Context, w startable, logger *zap.Logger) {
	for {
		err := func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("worker panicked: %v", r)
				}
			}()

			logger.Info("Starting worker")
			return w.Start(ctx)
		}()

		if utils.ContextGuard(ctx) {
			logger.Info("Context cancelled, stopping worker")
			return
		}

		logger.Error("Worker stopped unexpectedly",
			zap.String("worker_type", fmt.Sprintf("%T", w)),
			zap.Error(err))

		if !utils.ErrorSleep(ctx, restartDelay, logger, "worker") {
			return
		}
	}
}

// showStatus prints the last heartbeat of every worker.
func showStatus(ctx context.Context, _ *cli.Command) error {
	app, err := setup.InitializeApp(ctx, telemetry.ServiceWorker, WorkerLogDir, setup.Options{WorkerType: "status"})
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer app.Cleanup(context.Background())

	statuses, err := core.NewMonitor(app.StatusClient, app.Logger).GetAllStatuses(ctx)
	if err != nil {
		return err
	}

	if len(statuses) == 0 {
		fmt.Println("No workers are reporting")
		return nil
	}

	now := time.Now()
	for _, status := range statuses {
		state := "healthy"
		switch {
		case status.IsStale(now):
			state = "stale"
		case !status.IsHealthy:
			state = "unhealthy"
		}

		fmt.Printf("%-8s %-36s %-9s processed=%d failed=%d seen=%s task=%q\n",
			status.WorkerType, status.WorkerID, state, status.Processed, status.Failed,
			now.Sub(status.LastSeen).Round(time.Second), status.CurrentTask)
	}

	return nil
}
