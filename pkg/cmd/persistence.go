package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/courier/pkg/persistence"
	"github.com/dukex/courier/pkg/persistence/file"
	"github.com/dukex/courier/pkg/persistence/postgresql"
)

var supportedPersistenceProviders = []string{"file", "postgres", "postgresql"}

func NewTokenStore(ctx context.Context, logger *slog.Logger, databaseURL string) persistence.TokenStore {
	switch parsePersistenceProvider(databaseURL) {
	case "postgres", "postgresql":
		store, err := postgresql.NewTokenStore(ctx, logger, databaseURL)
		if err != nil {
			panic(fmt.Errorf("failed to create PostgreSQL token store: %w", err))
		}

		return store
	default:
		return file.NewTokenStore(databaseURL)
	}
}

func parsePersistenceProvider(databaseURL string) string {
	provider, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return "file"
	}

	for _, supported := range supportedPersistenceProviders {
		if provider == supported {
			return provider
		}
	}

	return "file"
}

// NewBatchJournal returns the journal that keeps queued batch requests across
// restarts, stored next to the tokens selected by databaseURL.
func NewBatchJournal(ctx context.Context, logger *slog.Logger, databaseURL string) persistence.BatchJournal {
	switch parsePersistenceProvider(databaseURL) {
	case "postgres", "postgresql":
		journal, err := postgresql.NewJournal(ctx, logger, databaseURL)
		if err != nil {
			panic(fmt.Errorf("failed to create PostgreSQL batch journal: %w", err))
		}

		return journal
	default:
		return file.NewJournal(databaseURL)
	}
}
