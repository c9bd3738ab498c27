// Package main provides the Herald delivery pipeline server.
package main

import (
	"context"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/heraldhq/herald/pkg/log"
)

const (
	defaultPort           = 9091
	defaultMaxConcurrency = 5
)

func main() {
	logger := log.WithModule("herald")

	command := &cli.Command{
		Name:                  "herald",
		Usage:                 "Run the email delivery pipeline: queue, workflows, campaigns, and API",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Database URL (memory:// or postgres://...)",
				Value:   "memory://",
				Sources: cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus provider (memory, kafka)",
				Value:   "memory",
				Sources: cli.EnvVars("EVENT_BUS"),
			},
			&cli.StringFlag{
				Name:    "dispatcher",
				Usage:   "Delivery provider (logmail, httpapi)",
				Value:   "logmail",
				Sources: cli.EnvVars("DISPATCHER"),
			},
			&cli.StringFlag{
				Name:    "dispatcher-endpoint",
				Usage:   "HTTP provider send endpoint",
				Sources: cli.EnvVars("DISPATCHER_ENDPOINT"),
			},
			&cli.StringFlag{
				Name:    "dispatcher-api-key",
				Usage:   "HTTP provider API key",
				Sources: cli.EnvVars("DISPATCHER_API_KEY"),
			},
			&cli.DurationFlag{
				Name:    "tick-interval",
				Usage:   "Queue scheduler tick interval",
				Sources: cli.EnvVars("TICK_INTERVAL"),
			},
			&cli.IntFlag{
				Name:    "max-concurrency",
				Usage:   "Maximum concurrent dispatches",
				Value:   defaultMaxConcurrency,
				Sources: cli.EnvVars("MAX_CONCURRENCY"),
			},
			&cli.DurationFlag{
				Name:    "base-retry-delay",
				Usage:   "Base delay for exponential retry backoff",
				Sources: cli.EnvVars("BASE_RETRY_DELAY"),
			},
			&cli.DurationFlag{
				Name:    "max-retry-delay",
				Usage:   "Upper bound on the retry backoff delay",
				Sources: cli.EnvVars("MAX_RETRY_DELAY"),
			},
			&cli.StringFlag{
				Name:    "cleaner-cron",
				Usage:   "Cron expression for terminal item cleanup",
				Value:   "0 3 * * *",
				Sources: cli.EnvVars("CLEANER_CRON"),
			},
			&cli.StringFlag{
				Name:    "redis-addr",
				Usage:   "Redis address for the trigger event source (empty disables it)",
				Sources: cli.EnvVars("REDIS_ADDR"),
			},
			&cli.StringFlag{
				Name:    "redis-queue",
				Usage:   "Redis list to consume trigger events from",
				Value:   "herald:events",
				Sources: cli.EnvVars("REDIS_QUEUE"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger.InfoContext(ctx, "Initializing Herald")

			server := NewServer(logger, command)

			return server.Run(ctx)
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
