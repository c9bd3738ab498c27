package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	cli "github.com/urfave/cli/v3"

	"github.com/heraldhq/herald/pkg/campaign"
	"github.com/heraldhq/herald/pkg/cmd"
	"github.com/heraldhq/herald/pkg/contacts"
	"github.com/heraldhq/herald/pkg/dispatch/queued"
	"github.com/heraldhq/herald/pkg/models"
	"github.com/heraldhq/herald/pkg/otelhelper"
	"github.com/heraldhq/herald/pkg/queue"
	"github.com/heraldhq/herald/pkg/sources/redisqueue"
	"github.com/heraldhq/herald/pkg/web"
	"github.com/heraldhq/herald/pkg/workflow"
)

const shutdownGrace = 30 * time.Second

// Server wires the pipeline components together and runs them until a
// termination signal arrives.
type Server struct {
	logger  *slog.Logger
	command *cli.Command
}

func NewServer(logger *slog.Logger, command *cli.Command) *Server {
	return &Server{
		logger:  logger,
		command: command,
	}
}

func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	_, err := otelhelper.NewTracer(ctx, "herald")
	if err != nil {
		s.logger.WarnContext(ctx, "Failed to initialize tracer", "error", err)
	}

	persist := cmd.NewPersistence(ctx, s.logger, s.command.String("database-url"))
	defer func() {
		err := persist.Close(ctx)
		if err != nil {
			s.logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
		}
	}()

	eventBus := cmd.NewEventBus(s.command.String("event-bus"), s.logger)
	defer func() {
		err := eventBus.Close()
		if err != nil {
			s.logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
		}
	}()

	dispatcher := cmd.NewDispatcher(
		s.command.String("dispatcher"),
		s.command.String("dispatcher-endpoint"),
		s.command.String("dispatcher-api-key"),
		s.logger,
	)

	q := queue.New(persist, dispatcher, eventBus, s.logger, queue.Config{
		TickInterval:   s.command.Duration("tick-interval"),
		MaxConcurrency: int(s.command.Int("max-concurrency")),
		BaseRetryDelay: s.command.Duration("base-retry-delay"),
		MaxRetryDelay:  s.command.Duration("max-retry-delay"),
	})

	contactService := contacts.NewMemoryService()

	// Workflow and campaign sends go through queue admission, not straight
	// to the provider.
	enqueuer := queued.New(q)

	engine := workflow.NewEngine(persist, enqueuer, contactService, eventBus, s.logger)
	runner := campaign.NewRunner(persist, enqueuer, eventBus, s.logger, campaign.Config{})

	q.Start(ctx)

	err = q.StartCleaner(ctx, s.command.String("cleaner-cron"))
	if err != nil {
		return err
	}

	err = engine.Recover(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to recover sleeping executions", "error", err)
	}

	var source *redisqueue.Source

	if addr := s.command.String("redis-addr"); addr != "" {
		source, err = redisqueue.NewSource(redisqueue.Config{
			Addr:  addr,
			Queue: s.command.String("redis-queue"),
		}, s.logger)
		if err != nil {
			return err
		}

		err = source.Start(ctx, func(ctx context.Context, event models.TriggerEvent) error {
			return engine.HandleTriggerEvent(ctx, event)
		})
		if err != nil {
			return err
		}
	}

	api := web.NewAPI(q, engine, runner, persist, s.logger)

	errCh := make(chan error, 1)

	go func() {
		errCh <- api.Start(int(s.command.Int("port")))
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		s.logger.InfoContext(ctx, "Shutting down", "signal", sig.String())
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer shutdownCancel()

	if source != nil {
		err := source.Stop(shutdownCtx)
		if err != nil {
			s.logger.ErrorContext(ctx, "Failed to stop trigger source", "error", err)
		}
	}

	err = api.Shutdown()
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to stop API server", "error", err)
	}

	engine.Shutdown()

	return q.Shutdown(shutdownCtx)
}
