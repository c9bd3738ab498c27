// Package redisqueue consumes trigger events from a Redis list and feeds
// them to the workflow engine.
package redisqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/heraldhq/herald/pkg/models"
)

const (
	popTimeout     = 1 * time.Second
	connectTimeout = 5 * time.Second
)

// Callback receives each decoded trigger event.
type Callback func(ctx context.Context, event models.TriggerEvent) error

// Config describes the Redis connection and the list to consume.
type Config struct {
	Addr     string
	Password string
	DB       int
	Queue    string
}

type Source struct {
	config   Config
	client   redis.UniversalClient
	callback Callback
	logger   *slog.Logger
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

func NewSource(config Config, logger *slog.Logger) (*Source, error) {
	if config.Queue == "" {
		return nil, errors.New("redis queue name is required")
	}

	if config.Addr == "" {
		config.Addr = "localhost:6379"
	}

	return &Source{
		config: config,
		stopCh: make(chan struct{}),
		logger: logger.With("module", "redisqueue", "queue", config.Queue),
	}, nil
}

// Start connects to Redis and launches the consumer loop.
func (s *Source) Start(ctx context.Context, callback Callback) error {
	s.callback = callback

	s.client = redis.NewClient(&redis.Options{
		Addr:     s.config.Addr,
		Password: s.config.Password,
		DB:       s.config.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	err := s.client.Ping(pingCtx).Err()
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	s.logger.InfoContext(ctx, "Connected to Redis", "addr", s.config.Addr, "db", s.config.DB)

	s.wg.Add(1)

	go s.consume(ctx)

	return nil
}

func (s *Source) consume(ctx context.Context) {
	defer s.wg.Done()

	s.logger.InfoContext(ctx, "Starting trigger event consumer")

	for {
		select {
		case <-s.stopCh:
			s.logger.InfoContext(ctx, "Trigger event consumer stopped")

			return
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "Context cancelled, stopping trigger event consumer")

			return
		default:
			err := s.processMessage(ctx)
			if err != nil {
				s.logger.ErrorContext(ctx, "Error processing message", "error", err)
				time.Sleep(1 * time.Second)
			}
		}
	}
}

func (s *Source) processMessage(ctx context.Context) error {
	result, err := s.client.BLPop(ctx, popTimeout, s.config.Queue).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}

		return fmt.Errorf("failed to pop message from queue: %w", err)
	}

	if len(result) < 2 {
		return nil
	}

	var event models.TriggerEvent

	err = json.Unmarshal([]byte(result[1]), &event)
	if err != nil {
		return fmt.Errorf("failed to decode trigger event: %w", err)
	}

	if event.Type == "" || event.ContactID == "" {
		s.logger.WarnContext(ctx, "Dropping trigger event without type or contact", "message", result[1])

		return nil
	}

	go func() {
		err := s.callback(ctx, event)
		if err != nil {
			s.logger.ErrorContext(ctx, "Error handling trigger event", "type", event.Type, "error", err)
		}
	}()

	return nil
}

// Stop halts the consumer and closes the connection.
func (s *Source) Stop(ctx context.Context) error {
	close(s.stopCh)
	s.wg.Wait()

	if s.client != nil {
		err := s.client.Close()
		if err != nil {
			s.logger.ErrorContext(ctx, "Error closing Redis client", "error", err)
		}
	}

	return nil
}
