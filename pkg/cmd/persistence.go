package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/heraldhq/herald/pkg/persistence"
	"github.com/heraldhq/herald/pkg/persistence/memory"
	"github.com/heraldhq/herald/pkg/persistence/postgresql"
)

// NewPersistence selects a store from the database URL scheme. "memory://"
// keeps everything in-process; postgres URLs get the PostgreSQL store with
// migrations applied.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) persistence.Persistence {
	switch {
	case databaseURL == "" || strings.HasPrefix(databaseURL, "memory://"):
		return memory.NewPersistence()
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		persist, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			panic(fmt.Errorf("failed to initialize PostgreSQL persistence: %w", err))
		}

		return persist
	default:
		panic("Unsupported database URL: " + databaseURL)
	}
}
