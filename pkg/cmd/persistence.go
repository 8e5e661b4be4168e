package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/autoflow-io/autoflow/pkg/persistence"
	"github.com/autoflow-io/autoflow/pkg/persistence/file"
	"github.com/autoflow-io/autoflow/pkg/persistence/postgresql"
	"github.com/autoflow-io/autoflow/pkg/persistence/redis"
)

// PersistenceProvider returns the storage backend named by a DATABASE_URL and, for the file
// backend, the directory to use. URLs without a known scheme are file paths.
func PersistenceProvider(databaseURL string) (string, string) {
	scheme, rest, found := strings.Cut(databaseURL, "://")
	if !found {
		return "file", databaseURL
	}

	switch scheme {
	case "postgres", "postgresql":
		return "postgresql", databaseURL
	case "redis", "rediss":
		return "redis", databaseURL
	case "file":
		return "file", rest
	default:
		return "file", databaseURL
	}
}

func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) persistence.Persistence {
	provider, target := PersistenceProvider(databaseURL)

	logger.InfoContext(ctx, "Initializing persistence", "provider", provider)

	switch provider {
	case "postgresql":
		p, err := postgresql.NewPersistence(ctx, logger, target)
		if err != nil {
			panic(fmt.Errorf("failed to initialize postgres persistence: %w", err))
		}

		return p
	case "redis":
		p, err := redis.NewPersistence(ctx, logger, target)
		if err != nil {
			panic(fmt.Errorf("failed to initialize redis persistence: %w", err))
		}

		return p
	default:
		return file.NewPersistence(target)
	}
}
