package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fibgame/fibs/internal/rest"
	"github.com/fibgame/fibs/internal/scoring"
	"github.com/fibgame/fibs/internal/setup"
	"github.com/fibgame/fibs/internal/setup/telemetry"
	"github.com/fibgame/fibs/internal/worker/relay"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// RESTLogDir specifies where REST server log files are stored.
const RESTLogDir = "logs/rest_logs"

// Server timeouts.
const (
	ReadHeaderTimeout = 5 * time.Second
	ReadTimeout       = 10 * time.Second
	WriteTimeout      = 30 * time.Second
	ShutdownTimeout   = 30 * time.Second
)

func main() {
	if err := run(); err != nil {
		log.Printf("Error: %v", err)
		os.Exit(1)
	}
}

func run() error {
	app := &cli.Command{
		Name:  "rest",
		Usage: "Start the fibs REST API",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "memory",
				Usage: "Keep documents in memory and run the reactor in process",
			},
			&cli.BoolFlag{
				Name:  "auto-migrate",
				Usage: "Apply pending database migrations on start",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return serve(ctx, setup.Options{
				Memory:      c.Bool("memory"),
				AutoMigrate: c.Bool("auto-migrate"),
			})
		},
	}

	return app.Run(context.Background(), os.Args)
}

func serve(ctx context.Context, opts setup.Options) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := setup.InitializeApp(ctx, telemetry.ServiceREST, RESTLogDir, opts)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer app.Cleanup(context.Background())

	handler := rest.NewServer(app.Store, app.Verifier, app.Logger, &app.Config.REST)
	defer handler.Close()

	addr := fmt.Sprintf("%s:%d", app.Config.REST.Host, app.Config.REST.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: ReadHeaderTimeout,
		ReadTimeout:       ReadTimeout,
		WriteTimeout:      WriteTimeout,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		app.Logger.Info("REST server started", zap.String("address", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	})

	// Without a stream the outbox is drained straight into the reactor
	if opts.Memory {
		reactor := scoring.NewReactor(app.Store, app.Logger)
		relayWorker := relay.New(
			app.Store, relay.NewDispatchPublisher(reactor, app.Logger), nil, &app.Config.Worker.Relay, app.Logger,
		)
		g.Go(func() error {
			return relayWorker.Start(ctx)
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		app.Logger.Info("Shutting down REST server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			app.Logger.Error("Server forced to shutdown", zap.Error(err))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	app.Logger.Info("Server gracefully stopped")
	return nil
}
